// Package plugin is the provider registry that connects configuration to
// implementations.
//
// Two maps live in a Registry. The factory catalog maps implementation names such
// as "Connector::Nats" or "Facts::Yaml" to a Factory; it is filled by
// catalog.Register at startup. The entry table maps a category ("connector",
// "facts", ...) to the provider instances chosen for this process; it is filled by
// the bootstrap sequencer and read by everything else.
//
// # Categories
//
// Singleton categories (connector, security, facts, registration, audit,
// global_stats) hold one provider and reject a second registration with
// errors.ErrDuplicateProvider. Multi categories (facts_plugin, or anything passed to
// DeclareCategory with Multi) keep every registration in order.
//
// # Lifecycle
//
//	r := plugin.NewRegistry()
//	if err := catalog.Register(r); err != nil { ... }
//
//	inst, err := r.Resolve("connector", snap.Connector(), deps)
//	if err != nil { ... }
//	_ = r.Register("connector", snap.Connector(), inst)
//
//	r.Seal()
//	conn, err := plugin.GetAs[provider.Connector](r, "connector")
//
// Registration happens on one goroutine before Seal; afterwards the registry is
// read-only and needs no locking.
package plugin
