// Package httpserver wires the plan API handler into a runnable HTTP server
// with request logging, health checks, drain-aware readiness, optional pprof
// endpoints and a separate Prometheus metrics listener.
package httpserver
