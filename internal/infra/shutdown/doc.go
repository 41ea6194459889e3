// Package shutdown coordinates process termination for slotmesh.
//
// A Handler waits for SIGINT/SIGTERM or a programmatic Trigger, cancels
// its context so long-running loops stop, then runs the registered hooks
// in reverse order under a timeout.
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	go session.Run(h.Context())
//	h.OnShutdown(server.Shutdown)
//	err := h.Wait()
package shutdown
