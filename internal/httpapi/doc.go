// Package httpapi serves the admin HTTP surface: health checks, Prometheus
// metrics and read-only bus inspection.
//
// Routes:
//
//	GET /healthz                      liveness, always "ok"
//	GET /readyz                       readiness
//	GET /metrics                      Prometheus exposition
//	GET /buses                        statistics of every bus
//	GET /buses/{name}                 statistics of one bus
//	GET /buses/{name}/topics?match=P  topics of one bus matching P
package httpapi
