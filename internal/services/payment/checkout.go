package payment

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/kevin07696/payment-reconciler/internal/domain"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
	"github.com/oklog/ulid/v2"
)

// orderIDLength is the maximum order reference length the gateway accepts
const orderIDLength = 20

// NewOrderID returns a unique gateway order reference.
// The first 20 characters of a ULID keep the 48-bit timestamp and 50 random bits,
// so the entropy must not be monotonic: that source only bumps the low bits.
func NewOrderID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()[:orderIDLength]
}

// CreatePaymentInput describes a new gateway payment
type CreatePaymentInput struct {
	Basket     *domain.Basket    `validate:"omitempty"`
	Variables  map[string]string `validate:"-"`
	CustomerID string            `validate:"required"`
	Currency   string            `validate:"required,len=3,alpha"`
	Amount     int64             `validate:"gt=0"`
}

// CreatePayment registers a new payment with the gateway and stores it
// together with its create operation.
func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (p *domain.Payment, err error) {
	ctx, span := s.startSpan(ctx, "payment.Create", "")
	defer func() { endSpan(span, err) }()

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	orderID := NewOrderID()
	remote, err := s.gateway.CreatePayment(ctx, ports.CreatePaymentRequest{
		OrderID:    orderID,
		Currency:   strings.ToUpper(in.Currency),
		Variables:  in.Variables,
		BrandingID: s.cfg.BrandingID,
		Basket:     in.Basket.GatewayItems(),
		Shipping:   in.Basket.GatewayShipping(),
		ShopSystem: &s.cfg.ShopSystem,
	})
	if err != nil {
		s.logger.Error("Gateway payment creation failed",
			ports.String("order_id", orderID),
			ports.Err(err))
		return nil, err
	}

	now := s.clock.Now()
	p = &domain.Payment{
		ID:         remote.PaymentID(),
		OrderID:    orderID,
		CustomerID: in.CustomerID,
		Currency:   strings.ToUpper(in.Currency),
		Amount:     in.Amount,
		Status:     domain.PaymentStatusCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = s.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.payments.Create(ctx, tx, p); err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		create := &domain.Operation{
			PaymentID: p.ID,
			Type:      domain.OperationTypeCreate,
			CreatedAt: now,
			Payload:   rawPayload(remote.Raw),
		}
		if err := s.operations.Append(ctx, tx, create); err != nil {
			return fmt.Errorf("append create operation: %w", err)
		}
		return s.rederive(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Payment created",
		ports.String("payment_id", p.ID),
		ports.String("order_id", p.OrderID),
		ports.Int64("amount", p.Amount),
		ports.String("currency", p.Currency))

	return p, nil
}

// UpdatePaymentInput replaces the basket and target amount of a payment
type UpdatePaymentInput struct {
	Basket    *domain.Basket    `validate:"omitempty"`
	Variables map[string]string `validate:"-"`
	Amount    int64             `validate:"gt=0"`
}

// UpdatePayment changes a payment nobody has paid yet.
// Only payments still in CREATED can be updated.
func (s *Service) UpdatePayment(ctx context.Context, paymentID string, in UpdatePaymentInput) (p *domain.Payment, err error) {
	ctx, span := s.startSpan(ctx, "payment.Update", paymentID)
	defer func() { endSpan(span, err) }()

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	unlock, err := s.lock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.payments.GetByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status != domain.PaymentStatusCreated {
		return nil, domain.NewInvalidStateError("update", current.Status)
	}

	if _, err := s.gateway.UpdatePayment(ctx, paymentID, ports.UpdatePaymentRequest{
		Variables:  in.Variables,
		BrandingID: s.cfg.BrandingID,
		Basket:     in.Basket.GatewayItems(),
		Shipping:   in.Basket.GatewayShipping(),
		ShopSystem: &s.cfg.ShopSystem,
	}); err != nil {
		s.logger.Error("Gateway payment update failed",
			ports.String("payment_id", paymentID),
			ports.Err(err))
		return nil, err
	}

	return s.mutate(ctx, paymentID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
		p.Amount = in.Amount
		return nil
	})
}

// LinkOptions are the storefront details of the hosted payment window
type LinkOptions struct {
	CustomerEmail  string `validate:"omitempty,email"`
	Language       string `validate:"omitempty,len=2"`
	PaymentMethods string
}

// CreatePaymentLink requests the hosted payment window for the payment's
// current amount and stores the link on the payment.
func (s *Service) CreatePaymentLink(ctx context.Context, paymentID string, opts LinkOptions) (string, error) {
	if err := s.validate.Struct(opts); err != nil {
		return "", validationError(err)
	}

	p, err := s.payments.GetByID(ctx, nil, paymentID)
	if err != nil {
		return "", err
	}

	language := opts.Language
	if language == "" {
		language = s.cfg.Language
	}
	methods := opts.PaymentMethods
	if methods == "" {
		methods = s.cfg.PaymentMethods
	}

	url, err := s.gateway.CreatePaymentLink(ctx, paymentID, ports.CreateLinkRequest{
		Amount:         p.Amount,
		ContinueURL:    s.cfg.ContinueURL,
		CancelURL:      s.cfg.CancelURL,
		CallbackURL:    s.cfg.CallbackURL,
		CustomerEmail:  opts.CustomerEmail,
		Language:       language,
		PaymentMethods: methods,
	})
	if err != nil {
		return "", err
	}

	unlock, err := s.lock(ctx, paymentID)
	if err != nil {
		return "", err
	}
	defer unlock()

	if _, err := s.mutate(ctx, paymentID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
		p.Link = &url
		return nil
	}); err != nil {
		return "", err
	}

	s.logger.Info("Payment link created",
		ports.String("payment_id", paymentID),
		ports.Int64("amount", p.Amount))

	return url, nil
}

// CheckoutRequest starts or resumes the hosted checkout of a basket
type CheckoutRequest struct {
	Basket         *domain.Basket    `json:"basket" validate:"omitempty"`
	Variables      map[string]string `json:"variables" validate:"-"`
	PaymentID      string            `json:"payment_id"`
	CustomerID     string            `json:"customer_id" validate:"required"`
	CustomerEmail  string            `json:"customer_email" validate:"omitempty,email"`
	Currency       string            `json:"currency" validate:"required,len=3,alpha"`
	Language       string            `json:"language" validate:"omitempty,len=2"`
	PaymentMethods string            `json:"payment_methods"`
	Amount         int64             `json:"amount" validate:"gt=0"`
}

// CheckoutResult is the payment to redirect the customer for
type CheckoutResult struct {
	Payment *domain.Payment `json:"payment"`
	URL     string          `json:"url"`
}

// StartCheckout reuses the session's payment while it is still CREATED and
// creates a new one otherwise, parks the basket and returns the payment link.
func (s *Service) StartCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	p, err := s.resumeOrCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	signature, err := s.parkBasket(ctx, p, req.Basket)
	if err != nil {
		return nil, err
	}

	if signature != nil || p.BasketSignature != nil {
		unlock, err := s.lock(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		p, err = s.mutate(ctx, p.ID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
			p.BasketSignature = signature
			return nil
		})
		unlock()
		if err != nil {
			return nil, err
		}
	}

	url, err := s.CreatePaymentLink(ctx, p.ID, LinkOptions{
		CustomerEmail:  req.CustomerEmail,
		Language:       req.Language,
		PaymentMethods: req.PaymentMethods,
	})
	if err != nil {
		return nil, err
	}
	p.Link = &url

	return &CheckoutResult{Payment: p, URL: url}, nil
}

func (s *Service) resumeOrCreate(ctx context.Context, req CheckoutRequest) (*domain.Payment, error) {
	if req.PaymentID != "" {
		existing, err := s.payments.GetByID(ctx, nil, req.PaymentID)
		switch {
		case err == nil && existing.Status == domain.PaymentStatusCreated:
			return s.UpdatePayment(ctx, existing.ID, UpdatePaymentInput{
				Basket:    req.Basket,
				Variables: req.Variables,
				Amount:    req.Amount,
			})
		case err != nil && !domain.IsNotFoundError(err):
			return nil, err
		}
	}

	return s.CreatePayment(ctx, CreatePaymentInput{
		Basket:     req.Basket,
		Variables:  req.Variables,
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
		Amount:     req.Amount,
	})
}

// parkBasket deletes the previously parked basket and stores the current one
func (s *Service) parkBasket(ctx context.Context, p *domain.Payment, basket *domain.Basket) (*string, error) {
	if s.baskets == nil {
		return nil, nil
	}

	if p.BasketSignature != nil {
		if err := s.baskets.Delete(ctx, *p.BasketSignature); err != nil {
			s.logger.Warn("Failed to delete previous basket",
				ports.String("payment_id", p.ID),
				ports.String("signature", *p.BasketSignature),
				ports.Err(err))
		}
	}

	if basket == nil {
		return nil, nil
	}

	signature, err := s.baskets.Save(ctx, basket, s.cfg.BasketTTL)
	if err != nil {
		return nil, fmt.Errorf("park basket: %w", err)
	}
	return &signature, nil
}

// RestoreBasket returns the basket parked for the payment, or nil if none is parked
func (s *Service) RestoreBasket(ctx context.Context, paymentID string) (*domain.Basket, error) {
	p, err := s.payments.GetByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if p.BasketSignature == nil || s.baskets == nil {
		return nil, nil
	}
	return s.baskets.Load(ctx, *p.BasketSignature)
}

// AttachOrder links the finalised shop order to the payment and discards the
// parked basket. Attaching the same order number again is a no-op.
func (s *Service) AttachOrder(ctx context.Context, paymentID, orderNumber string) (*domain.Payment, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return nil, domain.NewDomainError(domain.ErrorCodeValidationMissingField, "order_number is required")
	}

	unlock, err := s.lock(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var parked *string
	p, err := s.mutate(ctx, paymentID, func(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
		if p.OrderNumber != nil {
			if *p.OrderNumber != orderNumber {
				return domain.NewInvalidStateError("attach order", p.Status).
					WithDetail("order_number", *p.OrderNumber)
			}
			return nil
		}
		p.OrderNumber = &orderNumber
		parked = p.BasketSignature
		p.BasketSignature = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	if parked != nil && s.baskets != nil {
		if err := s.baskets.Delete(ctx, *parked); err != nil {
			s.logger.Warn("Failed to delete parked basket",
				ports.String("payment_id", paymentID),
				ports.Err(err))
		}
	}

	s.logger.Info("Order attached to payment",
		ports.String("payment_id", paymentID),
		ports.String("order_number", orderNumber))

	return p, nil
}

// SyncPayment pulls the payment from the gateway and reconciles its
// operation list exactly like a callback.
func (s *Service) SyncPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	if _, err := s.payments.GetByID(ctx, nil, paymentID); err != nil {
		return nil, err
	}

	remote, err := s.gateway.GetPayment(ctx, paymentID)
	if err != nil {
		s.logger.Error("Failed to load payment from gateway",
			ports.String("payment_id", paymentID),
			ports.Err(err))
		return nil, err
	}

	return s.reconcile(ctx, SourceSync, paymentID, remote)
}

// rawPayload keeps gateway bodies that are valid JSON
func rawPayload(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return raw
}
