package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/fleetbus/bootstrap"
	"github.com/c360/fleetbus/config"
	"github.com/c360/fleetbus/connector"
	"github.com/c360/fleetbus/logging"
	"github.com/c360/fleetbus/plugin"
	"github.com/c360/fleetbus/registration"
	"github.com/c360/fleetbus/security"
	fleettest "github.com/c360/fleetbus/testutil"
)

func newTestRuntime(t *testing.T, extra string) (*bootstrap.Runtime, *fleettest.Loopback) {
	t.Helper()
	fleettest.UnsetEnv(t, security.EnvPSK)

	lb := fleettest.NewLoopback()
	loop := func(r *plugin.Registry) error {
		return r.RegisterFactory(plugin.CategoryConnector, "Loop", func(plugin.Dependencies) (any, error) {
			return connector.New(connector.Pool{Endpoints: []connector.Endpoint{{Host: "loop", Port: 1}}},
				connector.WithDialer(func(ctx context.Context, _ connector.Pool) (connector.Transport, error) {
					return lb.Dial(ctx)
				})), nil
		})
	}

	snap, err := config.ParseString("identity = node1\nconnector = loop\nsecurityprovider = psk\nplugin.psk = k\n" + extra)
	require.NoError(t, err)

	rt, err := bootstrap.New(context.Background(), snap, bootstrap.WithLogger(logging.Discard()), bootstrap.WithCatalog(loop))
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt, lb
}

func startDaemon(t *testing.T, rt *bootstrap.Runtime) (*daemon, context.CancelFunc, <-chan error) {
	t.Helper()
	d, err := newDaemon(rt, 2)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.subscribe(ctx))
	require.NoError(t, d.pool.Start(ctx))

	done := make(chan error, 1)
	go func() { done <- d.receiveLoop(ctx) }()

	t.Cleanup(func() {
		cancel()
		_ = d.pool.Stop(time.Second)
	})
	return d, cancel, done
}

func seal(t *testing.T, rt *bootstrap.Runtime, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	sealed, err := rt.Security().Encode(context.Background(), body)
	require.NoError(t, err)
	return sealed
}

func TestDaemon_Topics(t *testing.T) {
	rt, _ := newTestRuntime(t, "topicprefix = fleet\nregistration = disabled\n")
	d, err := newDaemon(rt, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"fleet.broadcast.command", "fleet.node.node1.command"}, d.topics())
}

func TestDaemon_RequestRoundTrip(t *testing.T) {
	auditPath := filepath.Join(t.TempDir(), "audit.log")
	rt, lb := newTestRuntime(t,
		"registration = disabled\nrpcaudit = 1\nrpcauditprovider = logfile\nplugin.rpcaudit.logfile = "+auditPath+"\n")
	_, cancel, done := startDaemon(t, rt)

	delivered := lb.Inject("broadcast.command", seal(t, rt, request{
		RequestID: "req-1",
		Sender:    "admin",
		Agent:     "service",
		Action:    "status",
		ReplyTo:   "replies.admin",
	}))
	require.Equal(t, 1, delivered)

	require.Eventually(t, func() bool { return len(lb.Published("replies.admin")) == 1 }, 2*time.Second, 5*time.Millisecond)

	body, err := rt.Security().Decode(context.Background(), lb.Published("replies.admin")[0])
	require.NoError(t, err)
	var r reply
	require.NoError(t, json.Unmarshal(body, &r))
	assert.Equal(t, reply{RequestID: "req-1", Identity: "node1", Status: "accepted"}, r)

	require.Eventually(t, func() bool { return rt.Stats().Snapshot()["replies"] == 1 }, time.Second, 5*time.Millisecond)
	snap := rt.Stats().Snapshot()
	assert.Equal(t, 1.0, snap["total"])
	assert.Equal(t, 1.0, snap["validated"])
	assert.Equal(t, 1.0, snap["passed"])

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"requestid":"req-1"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("receive loop did not stop")
	}
}

func TestDaemon_FilteredAndUnvalidated(t *testing.T) {
	rt, lb := newTestRuntime(t, "registration = disabled\n")
	startDaemon(t, rt)

	lb.Inject("node.node1.command", seal(t, rt, request{RequestID: "a", Target: "node2"}))
	lb.Inject("broadcast.command", []byte(`{"requestid":"unsigned"}`))
	lb.Inject("broadcast.command", seal(t, rt, request{RequestID: "b", Target: "node1"}))

	require.Eventually(t, func() bool {
		s := rt.Stats().Snapshot()
		return s["total"] == 3 && s["filtered"] == 1 && s["unvalidated"] == 1 && s["passed"] == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, lb.Published("replies.admin"))
}

func TestDaemon_RegistrationLoop(t *testing.T) {
	rt, lb := newTestRuntime(t, "registration = agentlist\nregisterinterval = 1\nplugin.agentlist.agents = puppet\n")
	d, err := newDaemon(rt, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.subscribe(ctx))

	done := make(chan error, 1)
	go func() { done <- d.registrationLoop(ctx) }()

	require.Eventually(t, func() bool { return len(lb.Published("registration.agent")) >= 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	body, err := rt.Security().Decode(context.Background(), lb.Published("registration.agent")[0])
	require.NoError(t, err)
	var msg registration.Message
	require.NoError(t, json.Unmarshal(body, &msg))
	assert.Equal(t, "node1", msg.Identity)
	assert.Equal(t, []string{"puppet"}, msg.Agents)
}

func TestDaemon_RegistrationDisabled(t *testing.T) {
	rt, _ := newTestRuntime(t, "registration = disabled\n")
	d, err := newDaemon(rt, 1)
	require.NoError(t, err)

	assert.NoError(t, d.registrationLoop(context.Background()))
}
