// Package packet implements the game-server wire format.
//
// Every datagram is one kind byte followed by protobuf wire-format fields:
//
//	[kind:1][field...]
//
// Messages are plain Go structs; Encode and Decode translate them with
// protowire so the format stays forward compatible (unknown fields are
// skipped). Snapshot payloads may be lz4 compressed and carry a murmur3
// checksum of the reconstructed state.
package packet
