// Package demo records per-slot snapshots and input frames to a local file
// so a session can be inspected after the fact.
//
// File layout:
//
//	magic "SMDEMO\x01"
//	frame*: [len:4][crc32:4][kind:1][slot:4][tick:8][payload...]
//
// len covers everything after itself. The crc covers kind, slot, tick and
// payload. A torn trailing frame (crash mid-write) is tolerated by the
// Reader and reported through Reader.Truncated.
package demo
