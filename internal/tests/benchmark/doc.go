// Package benchmark provides performance benchmarks for slotmesh.
//
// Run benchmarks with:
//
//	go test -bench=. -benchmem ./internal/tests/benchmark/...
//
// Run the per-tick scheduler cost across dummy counts:
//
//	go test -bench=BenchmarkSchedulerTick -benchmem -benchtime=5s ./internal/tests/benchmark/...
//
// Compare results:
//
//	benchstat old.txt new.txt
package benchmark
