// Package dispatcher is the gateway's request path. Every inbound request is
// sent to the single backend instance registered under a fixed logical name.
//
// A request whose Upgrade header is exactly "websocket" is an upgrade attempt.
// When the instance accepts it and hands back a socket, the caller receives a
// fresh 101 response carrying that socket, and ServeHTTP bridges the two
// connections. Any other answer, including a 101 without a socket, is relayed
// unchanged. When forwarding fails the caller receives a 500 whose plain text
// body describes the failure. Nothing is retried.
//
// Resolution of the instance and the forwarding itself belong to the injected
// Router; logging and metrics are injected too and never alter the response.
package dispatcher
