package benchmark

import (
	"fmt"
	"math/rand/v2"
	"runtime"
	"testing"

	"github.com/yndnr/slotmesh/internal/core/domain"
	"github.com/yndnr/slotmesh/internal/core/service"
	"github.com/yndnr/slotmesh/internal/telemetry/logger"
	"github.com/yndnr/slotmesh/internal/telemetry/metric"
)

// DummyCounts defines the dummy counts for benchmarking.
var DummyCounts = []int{0, 1, 4, 16, 63}

// PayloadSizes are snapshot state sizes in bytes.
var PayloadSizes = []int{256, 4 << 10, 32 << 10}

const benchServer = "127.0.0.1:8303"

// gameState returns size bytes that look like a game world: long runs of
// zeroes broken by a few entity records.
func gameState(size int, seed uint64) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	state := make([]byte, size)
	for i := 0; i < size; i += 64 {
		end := min(i+12, size)
		for j := i; j < end; j++ {
			state[j] = byte(r.UintN(256))
		}
	}
	return state
}

// mutate changes a small fraction of state, like one server tick would.
func mutate(state []byte, tick int) []byte {
	next := append([]byte(nil), state...)
	for i := tick % 64; i < len(next); i += 512 {
		next[i]++
	}
	return next
}

// onlineRegistry returns a registry with an online main slot and dummies
// online dummy slots.
func onlineRegistry(b *testing.B, dummies int) *service.Registry {
	b.Helper()
	reg := service.NewRegistry(service.RegistryConfig{
		Logger:  logger.Discard(),
		Metrics: metric.NewRegistry(),
	})

	main, err := reg.OpenMain(benchServer, 7)
	if err != nil {
		b.Fatalf("OpenMain: %v", err)
	}
	bringOnline(b, reg, main)
	reg.SetCapabilities(domain.Capabilities{Extended: true, MaxDummies: dummies})

	for i := 0; i < dummies; i++ {
		id, err := reg.Register(benchServer, 7)
		if err != nil {
			b.Fatalf("Register dummy %d: %v", i, err)
		}
		bringOnline(b, reg, id)
	}
	return reg
}

func bringOnline(b *testing.B, reg *service.Registry, id domain.SlotID) {
	b.Helper()
	for _, to := range []domain.SlotState{domain.StateAuthenticating, domain.StateOnline} {
		if err := reg.Transition(id, to); err != nil {
			b.Fatalf("transition %s to %s: %v", id, to, err)
		}
	}
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithDummyCounts runs a benchmark function with various dummy counts.
func runWithDummyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, dummies int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("dummies_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}

// runWithPayloadSizes runs a benchmark function with various state sizes.
func runWithPayloadSizes(b *testing.B, sizes []int, benchFn func(b *testing.B, size int)) {
	for _, size := range sizes {
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			benchFn(b, size)
		})
	}
}
