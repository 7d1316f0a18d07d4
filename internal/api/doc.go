// Package api provides the local HTTP control surface for the inkblue
// daemon.
//
// It exposes the peripheral registry, the sighting journal, subsystem
// power control and the behaviour toggles over a loopback REST API,
// plus a WebSocket event stream for connect/disconnect notifications.
// The reader UI is the only intended client; the listener binds to
// 127.0.0.1 by default and carries no authentication.
//
// Lifecycle follows the other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
