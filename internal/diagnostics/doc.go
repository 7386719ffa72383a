// Package diagnostics provides the local diagnostics HTTP server.
//
// Routes:
//
//	GET  /health   connectivity snapshot (link, registration, session)
//	GET  /metrics  Prometheus exposition
//	GET  /events   websocket stream of live readings
//	POST /restart  asks the lifecycle loop to restart the device
//
// The server runs on its own goroutines. It only reads status snapshots and
// posts restart requests; it never drives the connectivity state itself.
//
//	srv, err := diagnostics.New(deps)
//	srv.Start(ctx)
//	defer srv.Close()
package diagnostics
