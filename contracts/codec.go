package contracts

import (
	"encoding/json"
)

// Sniff classifies body by the fields it carries. Only the top-level keys are
// inspected; the payload itself is not validated.
func Sniff(body []byte) (Kind, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return KindUnknown, &DecodeError{Kind: KindUnknown, Body: body, Err: err}
	}

	has := func(name string) bool {
		_, ok := fields[name]
		return ok
	}

	switch {
	case has("supplier_order_id"):
		return KindConfirmation, nil
	case has("sender") && has("type"):
		return KindBroadcast, nil
	case has("team_order_id") && has("equipment_type"):
		return KindOrder, nil
	default:
		return KindUnknown, nil
	}
}

// Decode sniffs body and decodes it into the matching payload, returned as
// *Order, *Confirmation or *Broadcast
func Decode(body []byte) (Message, error) {
	kind, err := Sniff(body)
	if err != nil {
		return nil, err
	}

	switch kind {
	case KindOrder:
		o, err := DecodeOrder(body)
		if err != nil {
			return nil, err
		}
		return &o, nil
	case KindConfirmation:
		c, err := DecodeConfirmation(body)
		if err != nil {
			return nil, err
		}
		return &c, nil
	case KindBroadcast:
		b, err := DecodeBroadcast(body)
		if err != nil {
			return nil, err
		}
		return &b, nil
	default:
		return nil, &DecodeError{Kind: KindUnknown, Body: body, Err: ErrUnexpectedKind}
	}
}

// DecodeOrder decodes and validates an Order
func DecodeOrder(body []byte) (Order, error) {
	var o Order
	if err := decodeInto(KindOrder, body, &o); err != nil {
		return Order{}, err
	}
	return o, nil
}

// DecodeConfirmation decodes and validates a Confirmation
func DecodeConfirmation(body []byte) (Confirmation, error) {
	var c Confirmation
	if err := decodeInto(KindConfirmation, body, &c); err != nil {
		return Confirmation{}, err
	}
	return c, nil
}

// DecodeBroadcast decodes and validates a Broadcast
func DecodeBroadcast(body []byte) (Broadcast, error) {
	var b Broadcast
	if err := decodeInto(KindBroadcast, body, &b); err != nil {
		return Broadcast{}, err
	}
	return b, nil
}

// DecodeMap decodes any JSON object, for logging bodies of unknown shape
func DecodeMap(body []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, &DecodeError{Kind: KindUnknown, Body: body, Err: err}
	}
	return m, nil
}

func decodeInto(kind Kind, body []byte, msg Message) error {
	if err := json.Unmarshal(body, msg); err != nil {
		return &DecodeError{Kind: kind, Body: body, Err: err}
	}
	if err := msg.Validate(); err != nil {
		return &DecodeError{Kind: kind, Body: body, Err: err}
	}
	return nil
}
