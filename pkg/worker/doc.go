// Package worker provides a generic bounded worker pool.
//
// The daemon's receive loop hands each inbound request to a Pool so that slow
// handlers do not stall the connector:
//
//	pool, err := worker.NewPool("requests", 8, 256, handle,
//		worker.WithMetricsRegistry[*provider.Request](registry))
//	if err != nil { ... }
//	_ = pool.Start(ctx)
//	defer pool.Stop(30 * time.Second)
//
//	if err := pool.SubmitWait(ctx, req); err != nil { ... }
//
// Submit never blocks and drops the item with ErrQueueFull when the queue is at
// capacity; SubmitWait applies backpressure instead. Stop closes the queue,
// lets the workers drain what is already queued, and returns ErrStopTimeout if
// they do not finish in time. Cancelling the context passed to Start makes the
// workers exit without draining.
//
// With WithMetricsRegistry the pool exports fleetbus_worker_* metrics labelled
// pool=<name>: queue depth, utilization, submitted, processed, failed and dropped
// counts, and a processing time histogram split by success or error.
package worker
