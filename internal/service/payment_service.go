package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/PromptForge/internal/metrics"
	"github.com/digkill/PromptForge/internal/models"
)

// OrderGateway creates checkout orders with the payment provider.
type OrderGateway interface {
	CreateOrder(ctx context.Context, amountMinor int, currency, receipt string) (*models.Order, error)
}

// OrderStore keeps issued orders until they are paid.
type OrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id string) (*models.Order, error)
}

// Alerter delivers operational alerts. Delivery is best effort.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

type PaymentService struct {
	log          *slog.Logger
	gateway      OrderGateway
	orders       OrderStore
	verifier     *PaymentVerifier
	credits      *CreditService
	alerts       Alerter
	metrics      *metrics.Metrics
	currency     string
	timeout      time.Duration
	storeTimeout time.Duration
}

func NewPaymentService(log *slog.Logger, gateway OrderGateway, orders OrderStore, verifier *PaymentVerifier, credits *CreditService, alerts Alerter, m *metrics.Metrics, currency string, timeout time.Duration) *PaymentService {
	if currency == "" {
		currency = "INR"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PaymentService{
		log:          log,
		gateway:      gateway,
		orders:       orders,
		verifier:     verifier,
		credits:      credits,
		alerts:       alerts,
		metrics:      m,
		currency:     strings.ToUpper(currency),
		timeout:      timeout,
		storeTimeout: credits.storeTimeout,
	}
}

// CreateOrder prices planName from the catalogue, asks the gateway for an
// order and stores it against accountID.
func (s *PaymentService) CreateOrder(ctx context.Context, accountID int64, planName string) (*models.Order, error) {
	tier, ok := models.LookupPlanTier(strings.TrimSpace(planName))
	if !ok {
		return nil, validationError("unknown plan")
	}

	gctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	receipt := "receipt_order_" + uuid.NewString()
	order, err := s.gateway.CreateOrder(gctx, tier.Price*100, s.currency, receipt)
	cancel()
	if err != nil {
		s.log.Error("create order", "user_id", accountID, "plan", tier.Name, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	order.UserID = accountID
	order.Plan = tier.Name
	order.Credits = tier.DailyCredits
	if order.Receipt == "" {
		order.Receipt = receipt
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.orders.Create(sctx, order); err != nil {
		return nil, storageError("save order", err)
	}
	s.log.Info("order created", "user_id", accountID, "order_id", order.ID, "plan", tier.Name, "amount", order.Amount)
	return order, nil
}

// VerifyPaymentRequest is the confirmation relayed by the client after
// checkout. Plan is optional and only checked against the stored order.
type VerifyPaymentRequest struct {
	OrderID   string
	PaymentID string
	Signature string
	Plan      string
}

type PaymentResult struct {
	User    *models.User
	Plan    string
	Credits int
	Applied bool
}

// VerifyAndCredit checks the gateway signature and only then credits the
// account with the plan and credits stored on the order.
func (s *PaymentService) VerifyAndCredit(ctx context.Context, accountID int64, req VerifyPaymentRequest) (*PaymentResult, error) {
	req.Plan = strings.TrimSpace(req.Plan)
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, validationError("order id, payment id and signature are required")
	}

	if err := s.verifier.Verify(req.OrderID, req.PaymentID, req.Signature); err != nil {
		s.metrics.SignatureFailuresTotal.Inc()
		s.log.Warn("payment signature rejected", "user_id", accountID, "order_id", req.OrderID, "payment_id", req.PaymentID)
		s.alert(ctx, fmt.Sprintf("Rejected payment signature: user %d, order %s, payment %s", accountID, req.OrderID, req.PaymentID))
		return nil, err
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	order, err := s.orders.FindByID(sctx, req.OrderID)
	cancel()
	if err != nil {
		return nil, storageError("load order", err)
	}
	if order == nil || order.UserID != accountID {
		s.log.Warn("payment for unknown order", "user_id", accountID, "order_id", req.OrderID)
		return nil, fmt.Errorf("order %s: %w", req.OrderID, ErrNotFound)
	}
	if req.Plan != "" && req.Plan != order.Plan {
		s.log.Warn("payment plan does not match order", "user_id", accountID, "order_id", order.ID, "claimed", req.Plan, "ordered", order.Plan)
		return nil, validationError("plan does not match order")
	}

	user, applied, err := s.credits.Credit(ctx, accountID, order.Credits, order.Plan, order.ID, req.PaymentID)
	if err != nil {
		return nil, err
	}
	return &PaymentResult{User: user, Plan: order.Plan, Credits: order.Credits, Applied: applied}, nil
}

// alert hands text to the alerter without holding up the caller.
func (s *PaymentService) alert(ctx context.Context, text string) {
	if s.alerts == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := s.alerts.Alert(ctx, text); err != nil {
			s.log.Error("send payment alert", "err", err)
		}
	}()
}
