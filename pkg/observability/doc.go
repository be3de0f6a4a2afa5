/*
Package observability provides ports.Observer implementations for monitoring the interpreter.

It includes a structured-log observer, a plain-text writer for CLIs, an in-memory
recorder for tests and request-scoped collection, and a Prometheus collector that
counts events and tracks tension and coherence per session.
*/
package observability
