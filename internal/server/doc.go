// Package server implements the synchronous conversion API. It converts one
// file per request, swaps the inference engine on demand and exposes health,
// configuration and Prometheus metrics endpoints.
package server
