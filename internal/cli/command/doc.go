// Package command defines the slotmesh command tree.
//
//	slotmesh run        run a session against a game server
//	slotmesh control    drive a running session over its control API
//	slotmesh demo       inspect recorded demo files
//	slotmesh version    print build information
package command
