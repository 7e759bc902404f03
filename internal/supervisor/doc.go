// Package supervisor starts the instance process the gateway fronts, hands it
// its environment and waits for it to accept connections.
package supervisor
