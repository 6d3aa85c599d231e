// Package api hosts the HTTP server, middleware, and REST handlers. Routes:
//   - POST /api/scrape/ scrapes a batch of URLs.
//   - GET /api/filters/ lists field names, or the values of one field.
//   - GET /api/filtered-results/ lists pages matching field=value filters.
//   - GET /api/all-values/ lists every value of one field.
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
package api
