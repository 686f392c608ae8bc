package mediator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrInvalidEnvelope is returned when raw bytes are not a well-formed
// envelope.
var ErrInvalidEnvelope = errors.New("mediator: invalid envelope")

// Ingress routes JSON envelopes into the mediator for callers that cannot
// dispatch typed messages directly, such as another process or a module
// compiled without generated call sites.
//
// The envelope format is:
//
//	{"type": "order/create", "payload": {...}}
//
// Message types are registered under a routing key with RegisterMessage;
// the payload is unmarshaled into the registered type before dispatch.
// The "type" field is read with gjson before any payload parsing, so
// non-matching messages are rejected cheaply.
//
// Configure the ingress fully before use; it is safe for concurrent
// dispatch afterward.
type Ingress struct {
	m      *Mediator
	codecs map[string]func([]byte) (any, error)
}

// NewIngress creates an Ingress dispatching into m.
func NewIngress(m *Mediator) *Ingress {
	return &Ingress{
		m:      m,
		codecs: make(map[string]func([]byte) (any, error)),
	}
}

// RegisterMessage maps an envelope routing key to message type M. The
// payload is unmarshaled into M with encoding/json.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver.
//
// Example:
//
//	mediator.RegisterMessage[CreateOrder](ingress, "order/create")
func RegisterMessage[M any](in *Ingress, key string) {
	in.codecs[key] = func(raw []byte) (any, error) {
		var msg M
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("%w: payload for %q: %w", ErrInvalidEnvelope, key, err)
		}
		return msg, nil
	}
}

// Dispatch parses the envelope and publishes the decoded message to every
// matching handler.
func (in *Ingress) Dispatch(ctx context.Context, raw []byte) error {
	msg, err := in.parse(raw)
	if err != nil {
		return err
	}
	return in.m.Publish(ctx, msg)
}

// Call parses the envelope, invokes the message's single handler, and
// returns the JSON-encoded response. A handler without a response yields
// an empty JSON object.
func (in *Ingress) Call(ctx context.Context, raw []byte) ([]byte, error) {
	msg, err := in.parse(raw)
	if err != nil {
		return nil, err
	}
	resp, err := InvokeAsync[any](ctx, in.m, msg)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(resp)
}

// parse validates the envelope and decodes the payload into the registered
// message type.
func (in *Ingress) parse(raw []byte) (any, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidEnvelope)
	}

	key := gjson.GetBytes(raw, "type")
	if !key.Exists() || key.Type != gjson.String {
		return nil, fmt.Errorf("%w: missing type field", ErrInvalidEnvelope)
	}

	decode, ok := in.codecs[key.String()]
	if !ok {
		return nil, fmt.Errorf("%w: unknown message type %q", ErrInvalidEnvelope, key.String())
	}

	payload := []byte("{}")
	if p := gjson.GetBytes(raw, "payload"); p.Exists() {
		payload = []byte(p.Raw)
	}
	return decode(payload)
}
