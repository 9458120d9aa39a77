// Package telemetry optionally publishes a completed batch's
// aggregated Result over NATS JetStream. Adapted from the teacher's
// pkg/messaging.Client: that client was a general-purpose pub/sub/
// request-reply wrapper used throughout the matching/ledger/risk
// services. queuesim only ever produces one kind of fact — a finished
// Result — and never subscribes to anything, so Publisher keeps just
// the JetStream publish path and drops Subscribe/QueueSubscribe/
// Request/consumer management entirely.
//
// Publisher mirrors the teacher's nil-safe optional-dependency pattern
// (matching.Engine worked correctly with a nil *messaging.Client): a
// nil *Publisher, or one built with Connected() false, is always safe
// to call Publish on — it is a no-op, not a panic. A simulation run
// never depends on telemetry to produce a correct Result.
package telemetry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const resultSubject = "queuesim.result"

// ResultEvent is the payload published for one completed batch run.
type ResultEvent struct {
	ID        uuid.UUID       `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	RunLabel  string          `json:"run_label"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher wraps a NATS JetStream connection used only to emit
// ResultEvent messages. The zero value is not usable; use New or Nil.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// New connects to url and returns a Publisher backed by JetStream. The
// caller should fall back to Nil() if telemetry is not configured,
// rather than leaving a Publisher in a half-connected state.
func New(url, clientName string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name(clientName), nats.MaxReconnects(5))
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Publisher{conn: conn, js: js}, nil
}

// Nil returns a nil *Publisher, which discards every PublishResult
// call: Connected, PublishResult and Close are all safe on a nil
// receiver, so callers need not condition on nil.
func Nil() *Publisher { return nil }

// Connected reports whether p is backed by a live NATS connection.
func (p *Publisher) Connected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// PublishResult marshals payload and publishes it under runLabel. A
// nil or disconnected Publisher does nothing and returns nil — a
// telemetry outage never fails a simulation run.
func (p *Publisher) PublishResult(ctx context.Context, runLabel string, payload interface{}) error {
	if !p.Connected() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	evt := ResultEvent{ID: uuid.New(), Timestamp: time.Now().UTC(), RunLabel: runLabel, Payload: data}
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}

	_, err = p.js.PublishAsync(resultSubject, body, nats.Context(ctx))
	return err
}

// Close releases the underlying connection. A nil Publisher is a
// no-op.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
