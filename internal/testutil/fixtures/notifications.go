package fixtures

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/kevin07696/payment-reconciler/internal/domain"
)

// BaseTime is the reference instant of gateway timestamps in fixtures
var BaseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// RemoteOp builds a gateway operation with the given id, type, amount and status code.
// The gateway timestamp is BaseTime plus id seconds.
func RemoteOp(id int64, opType string, amount int64, statusCode string) domain.RemoteOperation {
	return domain.RemoteOperation{
		ID:           domain.GatewayID(strconv.FormatInt(id, 10)),
		Type:         opType,
		Amount:       amount,
		QPStatusCode: statusCode,
		CreatedAt:    TimePtr(BaseTime.Add(time.Duration(id) * time.Second)),
	}
}

// Authorized is a successful authorize operation
func Authorized(id, amount int64) domain.RemoteOperation {
	return RemoteOp(id, string(domain.OperationTypeAuthorize), amount, domain.StatusCodeApproved)
}

// Captured is a successful capture operation
func Captured(id, amount int64) domain.RemoteOperation {
	return RemoteOp(id, string(domain.OperationTypeCapture), amount, domain.StatusCodeApproved)
}

// Refunded is a successful refund operation
func Refunded(id, amount int64) domain.RemoteOperation {
	return RemoteOp(id, string(domain.OperationTypeRefund), amount, domain.StatusCodeApproved)
}

// Cancelled is a successful cancel operation
func Cancelled(id int64) domain.RemoteOperation {
	return RemoteOp(id, string(domain.OperationTypeCancel), 0, domain.StatusCodeApproved)
}

// Pending marks op as pending at the gateway
func Pending(op domain.RemoteOperation) domain.RemoteOperation {
	op.Pending = true
	op.QPStatusCode = ""
	return op
}

// Notification builds a payment notification carrying ops
func Notification(paymentID string, testMode bool, ops ...domain.RemoteOperation) *domain.Notification {
	return &domain.Notification{
		ID:         domain.GatewayID(paymentID),
		OrderID:    "order-" + paymentID,
		Currency:   "EUR",
		Accepted:   true,
		TestMode:   testMode,
		Operations: ops,
	}
}

// NotificationBody encodes n the way the gateway posts it
func NotificationBody(n *domain.Notification) []byte {
	body, err := json.Marshal(n)
	if err != nil {
		panic(err)
	}
	return body
}
