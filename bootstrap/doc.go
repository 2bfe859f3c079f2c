// Package bootstrap turns a configuration snapshot into a sealed provider
// registry.
//
// The Sequencer loads, in order: the fact source (wrapped in a facts.Cache), the
// connector, the security provider, the registration emitter, the audit sink
// when rpcaudit is on, and the runner statistics. The first failure aborts the
// run with a fatal error and the registry stays unsealed.
//
// Runtime owns everything built at startup:
//
//	rt, err := bootstrap.New(ctx, snap, bootstrap.WithLogger(logger))
//	if err != nil { ... }
//	defer rt.Close(ctx)
//
//	if err := rt.Connector().Connect(ctx); err != nil { ... }
package bootstrap
