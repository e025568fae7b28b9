package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrInvalid     = errors.New("invalid message")
)

var validate = validator.New()

// Encode writes m with its "type" discriminator.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.MessageType(), err)
	}
	fields["type"], _ = json.Marshal(m.MessageType())
	return json.Marshal(fields)
}

// Decode reads the discriminator, decodes the matching payload and validates
// it. Steps inside a submit are fully decoded, so an unknown node or mark
// type fails here.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	var m Message
	switch head.Type {
	case TypeJoin:
		m = decodeInto[Join](data)
	case TypeSubmit:
		m = decodeInto[Submit](data)
	case TypeSelection:
		m = decodeInto[Selection](data)
	case TypeInit:
		m = decodeInto[Init](data)
	case TypeAccepted:
		m = decodeInto[Accepted](data)
	case TypeRejected:
		m = decodeInto[Rejected](data)
	case TypeSteps:
		m = decodeInto[Steps](data)
	case TypePresence:
		m = decodeInto[Presence](data)
	case TypeUserLeft:
		m = decodeInto[UserLeft](data)
	case TypeError:
		m = decodeInto[Error](data)
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalid)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, head.Type)
	}

	if d, ok := m.(decodeError); ok {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalid, head.Type, d.err)
	}
	if err := Validate(m); err != nil {
		return nil, err
	}
	return m, nil
}

type decodeError struct{ err error }

func (decodeError) MessageType() Type { return "" }

func decodeInto[T Message](data []byte) Message {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return decodeError{err: err}
	}
	return v
}

// Validate checks struct tags plus the rules tags cannot express.
func Validate(m Message) error {
	if err := validate.Struct(m); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, m.MessageType(), err)
	}
	if s, ok := m.(Selection); ok && !s.Empty() && *s.To < *s.From {
		return fmt.Errorf("%w: selection to %d before from %d", ErrInvalid, *s.To, *s.From)
	}
	return nil
}
