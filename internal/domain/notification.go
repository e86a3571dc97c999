package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Notification is the payment resource body the gateway posts to the callback
// endpoint and returns from GET /payments/{id}.
type Notification struct {
	// Raw holds the exact bytes the notification was decoded from
	Raw        json.RawMessage        `json:"-"`
	Variables  map[string]interface{} `json:"variables,omitempty"`
	Link       *RemoteLink            `json:"link,omitempty"`
	CreatedAt  *time.Time             `json:"created_at,omitempty"`
	ID         GatewayID              `json:"id" validate:"required"`
	OrderID    string                 `json:"order_id"`
	Currency   string                 `json:"currency,omitempty"`
	State      string                 `json:"state,omitempty"`
	Operations []RemoteOperation      `json:"operations" validate:"dive"`
	Accepted   bool                   `json:"accepted"`
	TestMode   bool                   `json:"test_mode"`
}

// DecodeNotification decodes a payment resource body and keeps a copy of the raw bytes
func DecodeNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, err
	}
	if n.ID == "" {
		return nil, errors.New("payment resource without id")
	}
	n.Raw = append(json.RawMessage(nil), body...)
	return &n, nil
}

// PaymentID returns the gateway payment id as text
func (n *Notification) PaymentID() string {
	return n.ID.String()
}

// RemoteOperation is one entry of a notification's operation list
type RemoteOperation struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
	// Raw holds the operation object as the gateway sent it, including
	// fields this type does not model
	Raw          json.RawMessage `json:"-"`
	ID           GatewayID       `json:"id" validate:"required"`
	Type         string          `json:"type" validate:"required"`
	QPStatusCode string          `json:"qp_status_code,omitempty"`
	QPStatusMsg  string          `json:"qp_status_msg,omitempty"`
	AQStatusCode string          `json:"aq_status_code,omitempty"`
	AQStatusMsg  string          `json:"aq_status_msg,omitempty"`
	Amount       int64           `json:"amount" validate:"gte=0"`
	Pending      bool            `json:"pending"`
}

// UnmarshalJSON decodes the operation and keeps a copy of its raw object
func (r *RemoteOperation) UnmarshalJSON(data []byte) error {
	type remoteOperation RemoteOperation
	var op remoteOperation
	if err := json.Unmarshal(data, &op); err != nil {
		return err
	}
	*r = RemoteOperation(op)
	r.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Payload returns the operation as received, or its encoding when it was
// not decoded from gateway bytes
func (r *RemoteOperation) Payload() (json.RawMessage, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	return json.Marshal(r)
}

// RemoteID returns the gateway operation id as text
func (r *RemoteOperation) RemoteID() string {
	return r.ID.String()
}

// Outcome classifies the operation from its pending flag and status code
func (r *RemoteOperation) Outcome() OperationOutcome {
	return OutcomeFromStatusCode(r.QPStatusCode, r.Pending)
}

// GatewayID is an opaque gateway identifier. The gateway sends ids as JSON
// numbers, but any JSON string is accepted as well.
type GatewayID string

// String returns the id as text
func (id GatewayID) String() string {
	return string(id)
}

// UnmarshalJSON accepts a JSON string or a JSON number
func (id *GatewayID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = GatewayID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("gateway id must be a string or a number: %w", err)
	}
	*id = GatewayID(n.String())
	return nil
}

// MarshalJSON writes integer ids as numbers and everything else as strings
func (id GatewayID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// RemoteLink is the hosted payment window attached to a payment
type RemoteLink struct {
	URL    string `json:"url"`
	Amount int64  `json:"amount"`
}

// SortRemoteOperations orders unseen operations by gateway timestamp, then
// by remote id, so that a permuted notification produces the same log.
func SortRemoteOperations(ops []RemoteOperation) {
	sort.SliceStable(ops, func(i, j int) bool {
		ti, tj := ops[i].CreatedAt, ops[j].CreatedAt
		switch {
		case ti != nil && tj != nil && !ti.Equal(*tj):
			return ti.Before(*tj)
		case ti == nil && tj != nil:
			return false
		case ti != nil && tj == nil:
			return true
		}
		return lessRemoteID(ops[i].RemoteID(), ops[j].RemoteID())
	})
}

// lessRemoteID compares numeric ids numerically and falls back to text order
func lessRemoteID(a, b string) bool {
	if len(a) != len(b) {
		ai, aerr := strconv.ParseInt(a, 10, 64)
		bi, berr := strconv.ParseInt(b, 10, 64)
		if aerr == nil && berr == nil {
			return ai < bi
		}
	}
	return a < b
}
