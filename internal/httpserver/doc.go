// Package httpserver runs the gateway's listeners: an http.Server with a
// validated address, configurable timeouts and graceful shutdown.
package httpserver
