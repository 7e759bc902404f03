// Package healthcheck periodically probes instance endpoints over HTTP and
// records whether they answer with a 2xx status.
package healthcheck
