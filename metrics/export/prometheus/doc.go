// Package prometheus renders authclient metrics in Prometheus text exposition format.
//
// [NewPrometheusExporter] reads a [authclient.Client] on every scrape. Counter names are
// prefixed authclient_*_total; the single histogram is authclient_request_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate client state.
package prometheus
