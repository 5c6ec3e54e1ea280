package tui

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Envelope is the wire format for every message on the bus: a type tag
// plus a raw payload decoded against the tag by the receiving handler.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func NewEnvelope(typ string, payload any) (Envelope, error) {
	if typ == "" {
		return Envelope{}, errors.New("empty envelope type")
	}
	env := Envelope{Type: typ}
	if payload == nil {
		return env, nil
	}
	var err error
	if env.Payload, err = json.Marshal(payload); err != nil {
		return Envelope{}, errors.Wrapf(err, "marshal %s payload", typ)
	}
	return env, nil
}

func (e Envelope) MarshalJSONBytes() ([]byte, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "marshal envelope")
	}
	return b, nil
}

// Decode unmarshals the payload into dst. The error names the type tag
// so a malformed collaborator message is traceable in the logs.
func (e Envelope) Decode(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return errors.Wrapf(err, "decode %s payload", e.Type)
	}
	return nil
}

func decodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, errors.Wrap(err, "unmarshal envelope")
	}
	return env, nil
}
