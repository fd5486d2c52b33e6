/*
Package observability turns executor events into Prometheus metrics.

Metrics are registered on their own registry so that several engines, or
several tests, can live in one process. Handler serves that registry in the
Prometheus text format.
*/
package observability
