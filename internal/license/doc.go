// Package license implements the validation engine and its cache-consistency
// protocol.
//
// The hot validation path never touches the durable store. It reads from an
// immutable Snapshot of all services and licenses, published behind a single
// atomically-swapped reference. Mutating endpoints rebuild the snapshot
// wholesale after every successful write; between the write and the rebuild
// completing, reads may observe pre-mutation data. That staleness window is
// bounded by one full scan of both tables and is an explicit property of the
// design, not an accident.
//
// The Validator runs a strictly ordered rule chain over the current snapshot;
// the first failing check determines the rejection reason used for both the
// HTTP response and the audit log.
package license
