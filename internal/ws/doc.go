// Package ws carries terminal sessions over WebSocket.
//
// Each connection is bound to one session for its lifetime. Conn adapts a
// gorilla/websocket connection to terminal.Channel; Handler upgrades the
// request and hands the connection to terminal.Registry.Serve.
//
// Message Types (Client → Server):
//   - input: {"type":"input","data":"ls\n"}
//   - resize: {"type":"resize","rows":40,"cols":120}
//   - heartbeat: {"type":"heartbeat"}
//   - any other text is written to the shell as-is
//
// Message Types (Server → Client, framed mode):
//   - session: the id the connection is attached to
//   - output: pty output as UTF-8 text
//   - heartbeat: server ping with a unix timestamp
//   - error: a rejected request
//
// Example Usage:
//
//	handler := ws.NewHandler(registry, ws.DefaultConfig(), logger)
//	router.GET("/ws/terminal", handler.Terminal)
//	router.GET("/ws/terminal/:id", handler.Terminal)
package ws
