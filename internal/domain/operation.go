package domain

import (
	"encoding/json"
	"sort"
	"time"
)

// OperationType is the kind of event recorded for a payment
type OperationType string

const (
	OperationTypeCreate            OperationType = "create"
	OperationTypeAuthorize         OperationType = "authorize"
	OperationTypeCaptureRequest    OperationType = "capture_request"
	OperationTypeCapture           OperationType = "capture"
	OperationTypeCancelRequest     OperationType = "cancel_request"
	OperationTypeCancel            OperationType = "cancel"
	OperationTypeRefundRequest     OperationType = "refund_request"
	OperationTypeRefund            OperationType = "refund"
	OperationTypeChecksumFailure   OperationType = "checksum_failure"
	OperationTypeTestModeViolation OperationType = "test_mode_violation"
)

// IsRequest returns true for provisional records written before an outbound call
func (t OperationType) IsRequest() bool {
	return t == OperationTypeCaptureRequest ||
		t == OperationTypeCancelRequest ||
		t == OperationTypeRefundRequest
}

// OperationOutcome is the gateway-reported state of an operation
type OperationOutcome string

const (
	OperationOutcomeUnset   OperationOutcome = ""
	OperationOutcomePending OperationOutcome = "pending"
	OperationOutcomeSuccess OperationOutcome = "success"
	OperationOutcomeFailed  OperationOutcome = "failed"
)

// Gateway status codes (qp_status_code)
const (
	StatusCodeApproved          = "20000"
	StatusCodeWaitingApproval   = "20200"
	StatusCode3DSecureRequired  = "30100"
	StatusCodeRejected          = "40000"
	StatusCodeRejectedByAcquire = "40001"
	StatusCodeRequestDataError  = "40002"
	StatusCodeAuthorizeExpired  = "40003"
	StatusCodeGatewayError      = "50000"
	StatusCodeCommunicationErr  = "50300"
)

// OutcomeFromStatusCode classifies a gateway status code.
// An explicit pending flag wins over the code.
func OutcomeFromStatusCode(code string, pending bool) OperationOutcome {
	switch {
	case pending:
		return OperationOutcomePending
	case code == "":
		return OperationOutcomeUnset
	case code == StatusCodeApproved:
		return OperationOutcomeSuccess
	case code == StatusCodeWaitingApproval || code == StatusCode3DSecureRequired:
		return OperationOutcomePending
	default:
		return OperationOutcomeFailed
	}
}

// Operation is one entry of a payment's operation log.
// OperationID is nil for provisional records and sentinel events.
// CreatedAt is the local write time and drives the fold order;
// GatewayCreatedAt keeps the timestamp reported by the gateway.
type Operation struct {
	CreatedAt        time.Time        `json:"created_at"`
	GatewayCreatedAt *time.Time       `json:"gateway_created_at,omitempty"`
	OperationID      *string          `json:"operation_id,omitempty"`
	Payload          json.RawMessage  `json:"payload,omitempty"`
	PaymentID        string           `json:"payment_id"`
	Type             OperationType    `json:"type"`
	Outcome          OperationOutcome `json:"outcome"`
	StatusCode       string           `json:"status_code,omitempty"`
	ID               int64            `json:"id"`
	Amount           int64            `json:"amount"`
}

// IsSuccessful returns true if the gateway approved the operation
func (o *Operation) IsSuccessful() bool {
	return o.Outcome == OperationOutcomeSuccess
}

// IsFinished returns true once the gateway reported a final outcome
func (o *Operation) IsFinished() bool {
	return o.Outcome == OperationOutcomeSuccess || o.Outcome == OperationOutcomeFailed
}

// IsProvisional returns true for local request records not yet confirmed by the gateway
func (o *Operation) IsProvisional() bool {
	return o.OperationID == nil && o.Type.IsRequest()
}

// Clone returns a deep copy so stores never share mutable state with callers
func (o *Operation) Clone() *Operation {
	c := *o
	if o.OperationID != nil {
		id := *o.OperationID
		c.OperationID = &id
	}
	if o.GatewayCreatedAt != nil {
		ts := *o.GatewayCreatedAt
		c.GatewayCreatedAt = &ts
	}
	if o.Payload != nil {
		c.Payload = append(json.RawMessage(nil), o.Payload...)
	}
	return &c
}

// ApplyRemote overwrites the mutable fields from a gateway-reported operation.
// Applying the same remote operation twice leaves the record unchanged.
func (o *Operation) ApplyRemote(remote RemoteOperation, payload json.RawMessage) {
	o.Type = OperationType(remote.Type)
	o.Amount = remote.Amount
	o.StatusCode = remote.QPStatusCode
	o.Outcome = remote.Outcome()
	o.GatewayCreatedAt = remote.CreatedAt
	o.Payload = payload
}

// SortOperations orders operations by (CreatedAt, ID) ascending.
// This is the fold order used for status derivation.
func SortOperations(ops []*Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		if !ops[i].CreatedAt.Equal(ops[j].CreatedAt) {
			return ops[i].CreatedAt.Before(ops[j].CreatedAt)
		}
		return ops[i].ID < ops[j].ID
	})
}

// IndexByRemoteID maps remote operation ids to their local records.
// Records without a remote id are not indexed.
func IndexByRemoteID(ops []*Operation) map[string]*Operation {
	index := make(map[string]*Operation, len(ops))
	for _, op := range ops {
		if op.OperationID == nil {
			continue
		}
		index[*op.OperationID] = op
	}
	return index
}

// SentinelKind identifies a synthetic operation raised by the inbound trust boundary
type SentinelKind int

const (
	SentinelChecksumFailure SentinelKind = iota + 1
	SentinelTestModeViolation
)

// OperationType returns the log entry type written for the sentinel
func (k SentinelKind) OperationType() OperationType {
	switch k {
	case SentinelChecksumFailure:
		return OperationTypeChecksumFailure
	case SentinelTestModeViolation:
		return OperationTypeTestModeViolation
	default:
		return ""
	}
}

func (k SentinelKind) String() string {
	return string(k.OperationType())
}

// NewSentinelOperation builds the single record appended for a rejected callback.
// Sentinels carry no amount and no remote id.
func NewSentinelOperation(kind SentinelKind, paymentID string, payload json.RawMessage, now time.Time) *Operation {
	return &Operation{
		PaymentID: paymentID,
		Type:      kind.OperationType(),
		Amount:    0,
		Outcome:   OperationOutcomeUnset,
		CreatedAt: now,
		Payload:   payload,
	}
}

// NewRequestOperation builds the provisional record for a local action
func NewRequestOperation(paymentID string, opType OperationType, amount int64, now time.Time) *Operation {
	return &Operation{
		PaymentID: paymentID,
		Type:      opType,
		Amount:    amount,
		Outcome:   OperationOutcomeUnset,
		CreatedAt: now,
	}
}
