// Package metrics keeps per-run Prometheus counters on a private registry and
// writes them as a textfile next to the batch outputs.
package metrics
