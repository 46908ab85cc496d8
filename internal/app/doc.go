// Package app wires the application together: configuration, logging, the
// SQLite store, token service, validation snapshot, handlers and the HTTP
// server, plus graceful shutdown.
//
// The wiring is plain dependency injection. NewApplication builds every
// component in order and fails fast on anything that would leave the server
// in a half-working state: an unloadable config, an unopenable store, or a
// first snapshot build that cannot read the store.
package app
