// Package webhook receives and reconciles provider webhook notifications
// against locally tracked orders.
package webhook

import (
	"encoding/json"
	"strconv"
)

// CustomDataOrderKey is the custom-data field the checkout path threads the
// internal order id through, and the reconciler reads back.
const CustomDataOrderKey = "order_id"

// Event names the provider sends. Only status events change local state;
// the rest are acknowledged as explicit no-ops.
var statusEvents = map[string]bool{
	"order_created":                    true,
	"order_refunded":                   true,
	"subscription_created":             true,
	"subscription_cancelled":           true,
	"subscription_expired":             true,
	"subscription_payment_success":     true,
	"subscription_payment_failed":      true,
	"subscription_payment_refunded":    true,
	"subscription_payment_recovered":   true,
}

// IsStatusEvent reports whether the event name represents an order or
// subscription status change.
func IsStatusEvent(name string) bool {
	return statusEvents[name]
}

// Payload is the raw webhook body shape. Identifiers arrive inconsistent or
// partial depending on event type and provider version; every field here is
// optional in practice.
type Payload struct {
	Meta struct {
		EventName  string            `json:"event_name"`
		CustomData map[string]string `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         string `json:"id"` // opaque identifier id
		Attributes struct {
			OrderNumber json.Number `json:"order_number"` // provider numeric order id
			OrderID     json.Number `json:"order_id"`     // alias used by subscription events
			Identifier  string      `json:"identifier"`
			Status      string      `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

// Event is a parsed webhook with its candidate correlation identifiers
// extracted and normalized.
type Event struct {
	Name          string
	NumericID     string // provider numeric order id, "" if absent
	IdentifierID  string // provider opaque identifier, "" if absent
	CustomOrderID string // caller-chosen internal order id from custom data, "" if absent
	RawStatus     string
	Raw           json.RawMessage // original body, kept for the dead-letter archive
}

// ParseEvent decodes a raw body into an Event. eventName overrides the body's
// meta.event_name when non-empty (the provider also signals it via header).
func ParseEvent(body []byte, eventName string) (*Event, error) {
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, err
	}
	evt := &Event{
		Name:          p.Meta.EventName,
		IdentifierID:  p.Data.Attributes.Identifier,
		CustomOrderID: p.Meta.CustomData[CustomDataOrderKey],
		RawStatus:     p.Data.Attributes.Status,
		Raw:           json.RawMessage(body),
	}
	if eventName != "" {
		evt.Name = eventName
	}
	if evt.IdentifierID == "" {
		evt.IdentifierID = p.Data.ID
	}
	evt.NumericID = numericID(p)
	return evt, nil
}

// numericID picks the provider numeric order id from whichever attribute the
// event type populated.
func numericID(p Payload) string {
	for _, n := range []json.Number{p.Data.Attributes.OrderNumber, p.Data.Attributes.OrderID} {
		s := n.String()
		if s == "" || s == "0" {
			continue
		}
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			return s
		}
	}
	return ""
}
