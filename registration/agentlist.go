package registration

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/provider"
)

// Message is the registration payload.
type Message struct {
	ID        string   `json:"msgid"`
	Identity  string   `json:"identity"`
	Agents    []string `json:"agents"`
	Timestamp int64    `json:"timestamp"`
}

// Agentlist announces the node identity and its agents on a registration topic.
type Agentlist struct {
	identity string
	topic    string
	agents   []string
	interval time.Duration
	signer   provider.SecuritySigner
	logger   *slog.Logger
	now      func() time.Time
}

var _ provider.RegistrationEmitter = (*Agentlist)(nil)

// NewAgentlist creates an emitter publishing to topic every interval. signer
// may be nil to publish the payload unsealed.
func NewAgentlist(identity, topic string, agents []string, interval time.Duration,
	signer provider.SecuritySigner, logger *slog.Logger) *Agentlist {
	if logger == nil {
		logger = slog.Default()
	}
	return &Agentlist{
		identity: identity,
		topic:    topic,
		agents:   append([]string{}, agents...),
		interval: interval,
		signer:   signer,
		logger:   logger,
		now:      time.Now,
	}
}

// Interval implements provider.RegistrationEmitter.
func (a *Agentlist) Interval() time.Duration { return a.interval }

// Topic returns the destination of registration messages.
func (a *Agentlist) Topic() string { return a.topic }

// Emit publishes one registration message through conn.
func (a *Agentlist) Emit(ctx context.Context, conn provider.Connector) error {
	payload, err := json.Marshal(Message{
		ID:        uuid.NewString(),
		Identity:  a.identity,
		Agents:    a.agents,
		Timestamp: a.now().Unix(),
	})
	if err != nil {
		return errors.WrapInvalid(err, "Agentlist", "Emit", "marshal registration")
	}

	if a.signer != nil {
		if payload, err = a.signer.Encode(ctx, payload); err != nil {
			return errors.Wrap(err, "Agentlist", "Emit", "seal registration")
		}
	}

	if err := conn.Send(ctx, a.topic, payload); err != nil {
		return errors.Wrap(err, "Agentlist", "Emit", "send registration")
	}

	a.logger.Debug("Sent registration", "topic", a.topic, "agents", len(a.agents))
	return nil
}

// Disabled never emits. Its zero Interval keeps the registration loop off.
type Disabled struct{}

var _ provider.RegistrationEmitter = Disabled{}

// Emit does nothing.
func (Disabled) Emit(context.Context, provider.Connector) error { return nil }

// Interval returns zero.
func (Disabled) Interval() time.Duration { return 0 }
