// Package facts provides the fact cache and the built-in fact sources.
//
// A fact is a named string describing the local node ("os", "role",
// "network.interfaces.eth0.ip"). Fact sources collect the whole mapping at once,
// which is typically expensive, so the bootstrap sequencer wraps the selected
// source in a Cache and registers the Cache as the "facts" provider:
//
//	src := facts.NewYamlSource([]string{"/etc/fleetbus/facts.yaml"}, "", logger)
//	cache, err := facts.NewCache(src, 300*time.Second)
//
//	os, ok, err := cache.GetFact(ctx, "os")
//
// The TTL comes from plugin.facts.cachetime. With a TTL of zero the mapping is
// refreshed on any lookup that is later than the last refresh.
//
// Sources:
//
//   - Facts::Yaml reads plugin.yaml, a colon separated list of YAML files
//   - Facts::Env reads environment variables with the plugin.env.prefix prefix
//     (default FACTER_)
package facts
