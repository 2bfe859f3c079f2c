package plugin

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/errors"
)

type fakeSource struct{ name string }

type namer interface{ Name() string }

func (f *fakeSource) Name() string { return f.name }

func TestImplementationName(t *testing.T) {
	assert.Equal(t, "Facts::Yaml", ImplementationName("facts", "yaml"))
	assert.Equal(t, "Connector::Nats", ImplementationName("connector", "NATS"))
	assert.Equal(t, "Global_stats::Runner", ImplementationName("global_stats", "runner"))
}

func TestRegister_SingletonDuplicate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(CategoryConnector, "Nats", &fakeSource{"a"}))
	err := r.Register(CategoryConnector, "Other", &fakeSource{"b"})

	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateProvider)

	entry, err := r.Get(CategoryConnector)
	require.NoError(t, err)
	assert.Equal(t, "Nats", entry.Name)
}

func TestRegister_MultiAppends(t *testing.T) {
	r := NewRegistry()

	a := &fakeSource{"a"}
	b := &fakeSource{"b"}
	require.NoError(t, r.Register(CategoryFactsPlugin, "Yaml", a))
	require.NoError(t, r.Register(CategoryFactsPlugin, "Yaml", b))

	all := r.All(CategoryFactsPlugin)
	require.Len(t, all, 2)
	assert.Same(t, a, all[0].Instance)
	assert.Same(t, b, all[1].Instance)

	_, err := r.Get(CategoryFactsPlugin)
	assert.ErrorIs(t, err, errors.ErrAmbiguousProvider)
}

func TestAll_ReturnsCopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(CategoryFactsPlugin, "Yaml", &fakeSource{"a"}))

	all := r.All(CategoryFactsPlugin)
	all[0].Name = "mutated"

	assert.Equal(t, "Yaml", r.All(CategoryFactsPlugin)[0].Name)
	assert.Empty(t, r.All("unknown"))
}

func TestGet_Empty(t *testing.T) {
	r := NewRegistry()

	_, err := r.Get(CategorySecurity)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNoProvider)

	src := &fakeSource{"psk"}
	require.NoError(t, r.Register(CategorySecurity, "Psk", src))

	entry, err := r.Get(CategorySecurity)
	require.NoError(t, err)
	assert.Same(t, src, entry.Instance)
	assert.Equal(t, CategorySecurity, entry.Category)
}

func TestRegister_Validation(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("", "x", &fakeSource{}), errors.ErrInvalidConfig)
	assert.ErrorIs(t, r.Register("x", "", &fakeSource{}), errors.ErrInvalidConfig)
	assert.ErrorIs(t, r.Register("x", "y", nil), errors.ErrInvalidConfig)
}

func TestDeclareCategory(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.DeclareCategory("validator", Multi))
	require.NoError(t, r.DeclareCategory("validator", Multi))
	assert.Equal(t, Multi, r.Cardinality("validator"))
	assert.Equal(t, Singleton, r.Cardinality("undeclared"))

	err := r.DeclareCategory("validator", Singleton)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)

	require.NoError(t, r.Register("validator", "A", &fakeSource{}))
	require.NoError(t, r.Register("validator", "B", &fakeSource{}))
	assert.Len(t, r.All("validator"), 2)
}

func TestResolve(t *testing.T) {
	r := NewRegistry()
	snap, err := config.ParseString("identity = test")
	require.NoError(t, err)

	var seen Dependencies
	require.NoError(t, r.RegisterFactory(CategoryFacts, "yaml", func(deps Dependencies) (any, error) {
		seen = deps
		return &fakeSource{"yaml"}, nil
	}))

	inst, err := r.Resolve(CategoryFacts, "YAML", Dependencies{Config: snap})
	require.NoError(t, err)
	assert.Equal(t, "yaml", inst.(*fakeSource).name)
	assert.Same(t, r, seen.Registry)
	assert.Same(t, snap, seen.Config)

	// Resolve does not register.
	_, err = r.Get(CategoryFacts)
	assert.ErrorIs(t, err, errors.ErrNoProvider)
}

func TestResolve_NotFound(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve(CategoryConnector, "Carrierpigeon", Dependencies{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPluginNotFound)
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "Connector::Carrierpigeon")
}

func TestResolve_FactoryFailure(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory(CategoryConnector, "Nats", func(Dependencies) (any, error) {
		return nil, fmt.Errorf("no host: %w", errors.ErrMissingConfig)
	}))
	require.NoError(t, r.RegisterFactory(CategorySecurity, "Nil", func(Dependencies) (any, error) {
		return nil, nil
	}))

	_, err := r.Resolve(CategoryConnector, "Nats", Dependencies{})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrPluginNotFound)
	assert.ErrorIs(t, err, errors.ErrMissingConfig)

	_, err = r.Resolve(CategorySecurity, "Nil", Dependencies{})
	assert.ErrorIs(t, err, errors.ErrPluginNotFound)
}

func TestRegisterFactory_Duplicate(t *testing.T) {
	r := NewRegistry()
	f := func(Dependencies) (any, error) { return &fakeSource{}, nil }

	require.NoError(t, r.RegisterFactory(CategoryFacts, "Yaml", f))
	err := r.RegisterFactory(CategoryFacts, "yaml", f)
	assert.ErrorIs(t, err, errors.ErrDuplicateProvider)

	assert.ErrorIs(t, r.RegisterFactory(CategoryFacts, "Env", nil), errors.ErrInvalidConfig)
	assert.Equal(t, []string{"Facts::Yaml"}, r.Implementations())
}

func TestGetAs(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(CategoryFacts, "Yaml", &fakeSource{"yaml"}))
	require.NoError(t, r.Register(CategorySecurity, "Psk", "not a namer"))

	n, err := GetAs[namer](r, CategoryFacts)
	require.NoError(t, err)
	assert.Equal(t, "yaml", n.Name())

	_, err = GetAs[namer](r, CategorySecurity)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.ErrorIs(t, err, errors.ErrProviderTypeMismatch)

	_, err = GetAs[namer](r, CategoryConnector)
	assert.ErrorIs(t, err, errors.ErrNoProvider)
}

func TestSeal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(CategoryFacts, "Yaml", &fakeSource{}))
	r.Seal()
	assert.True(t, r.Sealed())

	assert.ErrorIs(t, r.Register(CategoryConnector, "Nats", &fakeSource{}), errors.ErrRegistrySealed)
	assert.ErrorIs(t, r.RegisterFactory(CategoryConnector, "Nats", func(Dependencies) (any, error) { return 1, nil }),
		errors.ErrRegistrySealed)
	assert.ErrorIs(t, r.DeclareCategory("late", Multi), errors.ErrRegistrySealed)

	// Reads still work.
	_, err := r.Get(CategoryFacts)
	assert.NoError(t, err)
	assert.Equal(t, []string{CategoryFacts}, r.Categories())
}
