// Package core provides batched, retrying row inserts and table provisioning
// on top of a remote table [Store].
//
// This package holds all domain logic independent of the store backend and
// of the HTTP or CLI front ends. Backends live under internal/store.
//
// # Inserting Rows
//
// [Inserter.InsertAll] runs a small state machine:
//
//	attempting -> (backing off -> attempting)* -> succeeded | exhausted
//
// Each attempt plans the round's rows into batches with [PlanBatches],
// uploads every batch concurrently on the shared [WorkerPool], and waits for
// all of them. Rejections are reported per batch with a local row index;
// adding the batch stride turns it into an index within the round. Only the
// rejected rows, with their insert ids, go into the next round:
//
//	rows := core.RowSet{Rows: []core.Row{{"id": "a"}, {"id": "b"}, {"id": "c"}}}
//	// max 2 rows per batch: [a b] stride 0, [c] stride 2
//	// batch 0 rejects local index 1 -> round index 0+1 = 1 -> retry [b]
//
// The wait between rounds comes from [BackoffPolicy.Delay]. When the last
// attempt still has rejections, [InsertFailedError] lists every row with its
// position in the original input and the last message the store gave.
//
// A call that fails to complete (as opposed to rejecting rows) is not
// retried: the whole InsertAll returns a [TransportError].
//
// # Worker Pool
//
// The [WorkerPool] is process scoped. Create it once at startup, pass it to
// every Inserter and call [WorkerPool.Drain] on shutdown.
//
// # Provisioning Tables
//
// [Provisioner.GetOrCreateTable] applies a [WriteDisposition] and a
// [CreateDisposition] to the destination before rows are written. A create
// that loses a race against another writer is not an error; it yields a nil
// table.
//
// # Error Handling
//
// Errors are typed ([ConfigurationError], [TransportError],
// [InsertFailedError], [TableStateError], [InterruptedError],
// [ServiceError]) and mapped to support codes by [MapError].
package core
