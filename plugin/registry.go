package plugin

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/c360/fleetbus/errors"
)

// Cardinality says how many entries a category may hold.
type Cardinality int

const (
	// Singleton categories hold exactly one provider.
	Singleton Cardinality = iota
	// Multi categories hold any number of entries in registration order.
	Multi
)

// String returns the string representation of Cardinality
func (c Cardinality) String() string {
	if c == Multi {
		return "multi"
	}
	return "singleton"
}

// Well-known categories.
const (
	CategoryConnector    = "connector"
	CategorySecurity     = "security"
	CategoryFacts        = "facts"
	CategoryRegistration = "registration"
	CategoryAudit        = "audit"
	CategoryGlobalStats  = "global_stats"
	CategoryFactsPlugin  = "facts_plugin"
)

// Factory builds a provider instance. Factories do no I/O.
type Factory func(deps Dependencies) (any, error)

// Entry is one registered provider instance.
type Entry struct {
	Category string
	Name     string
	Instance any
}

// Registry maps categories to provider entries and holds the factory catalog.
//
// A Registry is populated once during bootstrap by a single goroutine and sealed
// afterwards. Once sealed it is read-only and safe for concurrent readers; any
// later write fails with errors.ErrRegistrySealed. There is no internal locking.
type Registry struct {
	categories map[string]Cardinality
	entries    map[string][]Entry
	factories  map[string]Factory
	sealed     bool
}

// NewRegistry creates a registry with the built-in categories declared.
func NewRegistry() *Registry {
	r := &Registry{
		categories: make(map[string]Cardinality),
		entries:    make(map[string][]Entry),
		factories:  make(map[string]Factory),
	}
	for _, c := range []string{
		CategoryConnector,
		CategorySecurity,
		CategoryFacts,
		CategoryRegistration,
		CategoryAudit,
		CategoryGlobalStats,
	} {
		r.categories[c] = Singleton
	}
	r.categories[CategoryFactsPlugin] = Multi
	return r
}

// ImplementationName composes the factory catalog key for a category and a
// provider name, e.g. ("facts", "yaml") -> "Facts::Yaml".
func ImplementationName(category, name string) string {
	return capitalize(category) + "::" + capitalize(name)
}

// DeclareCategory adds an extension-point category. Redeclaring a category with
// the same cardinality is a no-op; changing it is rejected.
func (r *Registry) DeclareCategory(category string, cardinality Cardinality) error {
	if err := r.checkWritable("DeclareCategory"); err != nil {
		return err
	}
	if category == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "DeclareCategory", "category validation")
	}
	if existing, ok := r.categories[category]; ok && existing != cardinality {
		msg := fmt.Errorf("%w: category '%s' is already declared %s", errors.ErrInvalidConfig, category, existing)
		return errors.WrapInvalid(msg, "Registry", "DeclareCategory", "cardinality check")
	}
	r.categories[category] = cardinality
	return nil
}

// Cardinality returns how many entries category may hold. Undeclared categories
// behave as singletons.
func (r *Registry) Cardinality(category string) Cardinality {
	if c, ok := r.categories[category]; ok {
		return c
	}
	return Singleton
}

// Register adds an instance under category. A singleton category that already
// holds an entry rejects the registration with errors.ErrDuplicateProvider; a
// multi category appends.
func (r *Registry) Register(category, name string, instance any) error {
	if err := r.checkWritable("Register"); err != nil {
		return err
	}
	if category == "" || name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "entry name validation")
	}
	if instance == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "Register", "instance validation")
	}

	if r.Cardinality(category) == Singleton && len(r.entries[category]) > 0 {
		existing := r.entries[category][0]
		msg := fmt.Errorf("%w: '%s' already provides '%s', cannot add '%s'",
			errors.ErrDuplicateProvider, existing.Name, category, name)
		return errors.WrapInvalid(msg, "Registry", "Register", "duplicate provider check")
	}

	r.entries[category] = append(r.entries[category], Entry{
		Category: category,
		Name:     name,
		Instance: instance,
	})
	return nil
}

// RegisterFactory adds a factory to the catalog under ImplementationName(category, name).
func (r *Registry) RegisterFactory(category, name string, factory Factory) error {
	if err := r.checkWritable("RegisterFactory"); err != nil {
		return err
	}
	if category == "" || name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory name validation")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "RegisterFactory", "factory function validation")
	}

	key := ImplementationName(category, name)
	if _, exists := r.factories[key]; exists {
		msg := fmt.Errorf("%w: factory '%s' is already registered", errors.ErrDuplicateProvider, key)
		return errors.WrapInvalid(msg, "Registry", "RegisterFactory", "duplicate factory check")
	}

	r.factories[key] = factory
	return nil
}

// Resolve builds a provider instance from the factory catalog. The instance is
// returned, not registered. An unknown implementation or a failing factory both
// report errors.ErrPluginNotFound; a factory error is wrapped so its own cause
// stays reachable through errors.Is.
func (r *Registry) Resolve(category, name string, deps Dependencies) (any, error) {
	key := ImplementationName(category, name)

	factory, ok := r.factories[key]
	if !ok {
		msg := fmt.Errorf("%w: no implementation '%s'", errors.ErrPluginNotFound, key)
		return nil, errors.WrapFatal(msg, "Registry", "Resolve", "factory lookup")
	}

	if deps.Registry == nil {
		deps.Registry = r
	}

	instance, err := factory(deps)
	if err != nil {
		msg := fmt.Errorf("could not load '%s': %w: %w", key, errors.ErrPluginNotFound, err)
		return nil, errors.WrapFatal(msg, "Registry", "Resolve", "factory execution")
	}
	if instance == nil {
		msg := fmt.Errorf("could not load '%s': %w: factory returned nil", key, errors.ErrPluginNotFound)
		return nil, errors.WrapFatal(msg, "Registry", "Resolve", "factory execution")
	}
	return instance, nil
}

// Get returns the single entry of category.
func (r *Registry) Get(category string) (Entry, error) {
	entries := r.entries[category]
	switch len(entries) {
	case 0:
		msg := fmt.Errorf("%w for '%s'", errors.ErrNoProvider, category)
		return Entry{}, errors.WrapInvalid(msg, "Registry", "Get", "provider lookup")
	case 1:
		return entries[0], nil
	default:
		msg := fmt.Errorf("%w: '%s' has %d entries", errors.ErrAmbiguousProvider, category, len(entries))
		return Entry{}, errors.WrapInvalid(msg, "Registry", "Get", "provider lookup")
	}
}

// All returns a copy of every entry of category in registration order.
func (r *Registry) All(category string) []Entry {
	entries := r.entries[category]
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}

// GetAs returns the single provider of category as T.
func GetAs[T any](r *Registry, category string) (T, error) {
	var zero T

	entry, err := r.Get(category)
	if err != nil {
		return zero, err
	}

	typed, ok := entry.Instance.(T)
	if !ok {
		msg := fmt.Errorf("%w: %w: '%s' provider '%s' is %T",
			errors.ErrInvalidConfig, errors.ErrProviderTypeMismatch, category, entry.Name, entry.Instance)
		return zero, errors.WrapInvalid(msg, "Registry", "GetAs", "type assertion")
	}
	return typed, nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Categories returns every category that holds at least one entry, sorted.
func (r *Registry) Categories() []string {
	out := make([]string, 0, len(r.entries))
	for c, entries := range r.entries {
		if len(entries) > 0 {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Implementations returns every factory catalog key, sorted.
func (r *Registry) Implementations() []string {
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) checkWritable(method string) error {
	if r.sealed {
		return errors.WrapFatal(errors.ErrRegistrySealed, "Registry", method, "sealed check")
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
