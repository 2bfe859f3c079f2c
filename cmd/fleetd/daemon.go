package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/fleetbus/bootstrap"
	"github.com/c360/fleetbus/errors"
	"github.com/c360/fleetbus/pkg/retry"
	"github.com/c360/fleetbus/pkg/worker"
	"github.com/c360/fleetbus/provider"
)

// request is the decoded body of an inbound message.
type request struct {
	RequestID string         `json:"requestid"`
	Sender    string         `json:"senderid"`
	Target    string         `json:"target,omitempty"`
	Agent     string         `json:"agent"`
	Action    string         `json:"action"`
	Data      map[string]any `json:"data,omitempty"`
	ReplyTo   string         `json:"reply_to,omitempty"`
}

// reply acknowledges a request to its reply_to destination.
type reply struct {
	RequestID string `json:"requestid"`
	Identity  string `json:"identity"`
	Status    string `json:"status"`
}

// receiveBackoff bounds how fast the receive loop retries after a transient error.
const receiveBackoff = 100 * time.Millisecond

type daemon struct {
	rt     *bootstrap.Runtime
	logger *slog.Logger
	pool   *worker.Pool[*provider.Request]
}

func newDaemon(rt *bootstrap.Runtime, workers int) (*daemon, error) {
	d := &daemon{rt: rt, logger: rt.Logger.With("component", "daemon")}

	pool, err := worker.NewPool("requests", workers, workers*64, d.handle,
		worker.WithMetricsRegistry[*provider.Request](rt.Metrics),
		worker.WithLogger[*provider.Request](d.logger))
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return d, nil
}

// topics are the destinations this node listens on.
func (d *daemon) topics() []string {
	snap := d.rt.Config
	return []string{
		snap.Topic("broadcast", "command"),
		snap.Topic("node", snap.Identity(), "command"),
	}
}

// subscribe connects the connector and subscribes to topics.
func (d *daemon) subscribe(ctx context.Context) error {
	conn := d.rt.Connector()
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	for _, topic := range d.topics() {
		if err := conn.Subscribe(ctx, topic); err != nil {
			return err
		}
		d.logger.Info("Subscribed", "topic", topic)
	}
	return nil
}

// receiveLoop feeds inbound messages to the worker pool until ctx is done.
func (d *daemon) receiveLoop(ctx context.Context) error {
	conn := d.rt.Connector()
	stats := d.rt.Stats()

	for {
		req, err := conn.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if !errors.IsTransient(err) {
				return errors.Wrap(err, "daemon", "receiveLoop", "receive")
			}
			d.logger.Warn("Receive failed", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(receiveBackoff):
			}
			continue
		}

		stats.Received()
		if err := d.pool.SubmitWait(ctx, req); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "daemon", "receiveLoop", "dispatch")
		}
	}
}

// handle verifies, filters, audits and acknowledges one request.
func (d *daemon) handle(ctx context.Context, in *provider.Request) error {
	stats := d.rt.Stats()

	body, err := d.rt.Security().Decode(ctx, in.Body)
	if err != nil {
		stats.Unvalidated()
		return err
	}
	stats.Validated()

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		stats.Unvalidated()
		return errors.WrapInvalid(errors.Detail(errors.ErrInvalidData, "request body: %v", err),
			"daemon", "handle", "decode request")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if req.Target != "" && req.Target != d.rt.Config.Identity() {
		stats.Filtered()
		return nil
	}

	if sink := d.rt.Audit(); sink != nil {
		rec := provider.AuditRecord{
			RequestID: req.RequestID,
			Sender:    req.Sender,
			Agent:     req.Agent,
			Action:    req.Action,
			Data:      req.Data,
			Time:      in.ReceivedAt,
		}
		if err := sink.Audit(ctx, rec); err != nil {
			return err
		}
	}
	stats.Passed()

	d.logger.Info("Request accepted",
		"requestid", req.RequestID, "sender", req.Sender, "agent", req.Agent, "action", req.Action)

	if req.ReplyTo == "" {
		return nil
	}
	return d.reply(ctx, req)
}

func (d *daemon) reply(ctx context.Context, req request) error {
	payload, err := json.Marshal(reply{RequestID: req.RequestID, Identity: d.rt.Config.Identity(), Status: "accepted"})
	if err != nil {
		return errors.WrapInvalid(err, "daemon", "reply", "marshal reply")
	}
	sealed, err := d.rt.Security().Encode(ctx, payload)
	if err != nil {
		return err
	}
	conn := d.rt.Connector()
	err = retry.Do(ctx, retry.Quick(), func(ctx context.Context) error {
		return conn.Send(ctx, req.ReplyTo, sealed)
	})
	if err != nil {
		return err
	}
	d.rt.Stats().Sent()
	return nil
}

// registrationLoop emits registration messages every interval. A zero interval
// returns immediately.
func (d *daemon) registrationLoop(ctx context.Context) error {
	emitter := d.rt.Registration()
	interval := emitter.Interval()
	if interval <= 0 {
		d.logger.Debug("Registration disabled")
		return nil
	}

	emit := func() {
		if err := emitter.Emit(ctx, d.rt.Connector()); err != nil && ctx.Err() == nil {
			d.logger.Warn("Registration failed", "error", err)
		}
	}

	emit()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			emit()
		}
	}
}
