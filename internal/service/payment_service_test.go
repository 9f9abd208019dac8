package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/PromptForge/internal/models"
)

const testKeySecret = "rzp_test_secret"

type stubGateway struct {
	amount   int
	currency string
	receipt  string
	err      error
}

func (g *stubGateway) CreateOrder(_ context.Context, amountMinor int, currency, receipt string) (*models.Order, error) {
	g.amount, g.currency, g.receipt = amountMinor, currency, receipt
	if g.err != nil {
		return nil, g.err
	}
	return &models.Order{ID: "order_abc", Amount: amountMinor, Currency: currency, Receipt: receipt, Status: "created"}, nil
}

type paymentFixture struct {
	svc     *PaymentService
	ledger  *memLedger
	orders  *memOrders
	gateway *stubGateway
	alerts  *recordingAlerter
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	f := &paymentFixture{
		ledger:  newMemLedger(),
		orders:  newMemOrders(),
		gateway: &stubGateway{},
		alerts:  &recordingAlerter{},
	}
	m := newTestMetrics()
	credits := NewCreditService(discardLogger(), f.ledger, f.ledger, f.ledger, m, time.Second)
	f.svc = NewPaymentService(discardLogger(), f.gateway, f.orders, NewPaymentVerifier(testKeySecret), credits, f.alerts, m, "INR", time.Second)
	return f
}

// issue stores a paid-for order for plan as CreateOrder would.
func (f *paymentFixture) issue(id string, userID int64, plan string) {
	tier, _ := models.LookupPlanTier(plan)
	f.orders.put(models.Order{ID: id, UserID: userID, Plan: tier.Name, Credits: tier.DailyCredits, Amount: tier.Price * 100, Currency: "INR"})
}

func signed(orderID, paymentID string) VerifyPaymentRequest {
	return VerifyPaymentRequest{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: NewPaymentVerifier(testKeySecret).Sign(orderID, paymentID),
	}
}

func TestVerifierRoundTrip(t *testing.T) {
	v := NewPaymentVerifier(testKeySecret)
	sig := v.Sign("order_1", "pay_1")

	assert.Len(t, sig, 64)
	assert.NoError(t, v.Verify("order_1", "pay_1", sig))
}

func TestVerifierRejectsEverySingleBitFlip(t *testing.T) {
	v := NewPaymentVerifier(testKeySecret)
	sig := v.Sign("order_1", "pay_1")

	for i := range len(sig) {
		for bit := range 8 {
			raw := []byte(sig)
			raw[i] ^= 1 << bit
			assert.ErrorIs(t, v.Verify("order_1", "pay_1", string(raw)), ErrInvalidSignature, "position %d bit %d", i, bit)
		}
	}
}

func TestVerifierRejectsUppercaseHex(t *testing.T) {
	v := NewPaymentVerifier(testKeySecret)
	sig := v.Sign("order_1", "pay_1")
	require.NotEqual(t, sig, strings.ToUpper(sig))

	assert.ErrorIs(t, v.Verify("order_1", "pay_1", strings.ToUpper(sig)), ErrInvalidSignature)
}

func TestVerifierRejectsMalformedInput(t *testing.T) {
	v := NewPaymentVerifier(testKeySecret)
	sig := v.Sign("order_1", "pay_1")

	assert.ErrorIs(t, v.Verify("order_1", "pay_1", ""), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify("order_1", "pay_1", "not-hex"), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify("order_1", "pay_1", sig[:62]), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify("order_1", "pay_1", sig+"00"), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify("order_1", "pay_2", sig), ErrInvalidSignature)
	assert.ErrorIs(t, v.Verify("", "pay_1", sig), ErrInvalidSignature)
	assert.ErrorIs(t, NewPaymentVerifier("other").Verify("order_1", "pay_1", sig), ErrInvalidSignature)
}

func TestStarterPurchaseCreditsOnce(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.ledger.addUser(500, models.PlanFree)
	f.issue("order_1", id, models.PlanStarter)
	req := signed("order_1", "pay_1")
	req.Plan = models.PlanStarter

	res, err := f.svc.VerifyAndCredit(context.Background(), id, req)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1000, res.Credits)
	assert.Equal(t, 1500, res.User.Credits)
	assert.Equal(t, models.PlanStarter, res.User.Plan)

	res, err = f.svc.VerifyAndCredit(context.Background(), id, req)
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, 1500, f.ledger.balance(id))

	_, err = f.svc.VerifyAndCredit(context.Background(), id, signed("order_1", "pay_2"))
	require.NoError(t, err)
	assert.Equal(t, 1500, f.ledger.balance(id))
}

func TestStarterOrderCannotBeClaimedAsMega(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.ledger.addUser(500, models.PlanFree)
	f.issue("order_1", id, models.PlanStarter)

	req := signed("order_1", "pay_1")
	req.Plan = models.PlanMega
	_, err := f.svc.VerifyAndCredit(context.Background(), id, req)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 500, f.ledger.balance(id))
	assert.Equal(t, models.PlanFree, f.ledger.plan(id))

	res, err := f.svc.VerifyAndCredit(context.Background(), id, signed("order_1", "pay_1"))
	require.NoError(t, err)
	assert.Equal(t, models.PlanStarter, res.Plan)
	assert.Equal(t, 1500, f.ledger.balance(id))
}

func TestVerifyRejectsUnknownOrForeignOrder(t *testing.T) {
	f := newPaymentFixture(t)
	owner := f.ledger.addUser(0, models.PlanFree)
	other := f.ledger.addUser(0, models.PlanFree)
	f.issue("order_1", owner, models.PlanPro)

	_, err := f.svc.VerifyAndCredit(context.Background(), owner, signed("order_never_issued", "pay_1"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.VerifyAndCredit(context.Background(), other, signed("order_1", "pay_1"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, f.ledger.balance(other))
	assert.Zero(t, f.ledger.balance(owner))
}

func TestInvalidSignatureMutatesNothing(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.ledger.addUser(500, models.PlanFree)
	f.issue("order_1", id, models.PlanMega)

	_, err := f.svc.VerifyAndCredit(context.Background(), id, VerifyPaymentRequest{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: NewPaymentVerifier("forged").Sign("order_1", "pay_1"),
	})
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, 500, f.ledger.balance(id))
	assert.Equal(t, models.PlanFree, f.ledger.plan(id))
	assert.Equal(t, float64(1), testutil.ToFloat64(f.svc.metrics.SignatureFailuresTotal))

	assert.Eventually(t, func() bool { return len(f.alerts.sent()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Contains(t, f.alerts.sent()[0], "order_1")
}

func TestInvalidSignatureAlertDoesNotBlock(t *testing.T) {
	f := newPaymentFixture(t)
	release := make(chan struct{})
	defer close(release)
	f.svc.alerts = blockingAlerter{release: release}
	id := f.ledger.addUser(500, models.PlanFree)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.VerifyAndCredit(context.Background(), id, VerifyPaymentRequest{OrderID: "o", PaymentID: "p", Signature: strings.Repeat("0", 64)})
		done <- err
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrInvalidSignature)
	case <-time.After(time.Second):
		t.Fatal("verification waited for the alert")
	}
}

type blockingAlerter struct {
	release chan struct{}
}

func (b blockingAlerter) Alert(ctx context.Context, _ string) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestVerifyRequiresFields(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.ledger.addUser(500, models.PlanFree)

	_, err := f.svc.VerifyAndCredit(context.Background(), id, VerifyPaymentRequest{OrderID: "o", PaymentID: "p"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.VerifyAndCredit(context.Background(), id, VerifyPaymentRequest{OrderID: "o", Signature: "aa"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderPricesFromCatalogue(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.ledger.addUser(500, models.PlanFree)

	order, err := f.svc.CreateOrder(context.Background(), id, models.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, 10000, f.gateway.amount)
	assert.Equal(t, "INR", f.gateway.currency)
	assert.Regexp(t, `^receipt_order_[0-9a-f-]{36}$`, f.gateway.receipt)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, 2500, order.Credits)

	stored, err := f.orders.FindByID(context.Background(), "order_abc")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, id, stored.UserID)
	assert.Equal(t, models.PlanPro, stored.Plan)
	assert.Equal(t, 2500, stored.Credits)
	assert.Equal(t, 10000, stored.Amount)
}

func TestCreateOrderValidationAndGatewayErrors(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.ledger.addUser(500, models.PlanFree)

	_, err := f.svc.CreateOrder(context.Background(), id, "Team Pack")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.CreateOrder(context.Background(), id, models.PlanFree)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, f.gateway.amount)

	f.gateway.err = errors.New("503 from gateway")
	_, err = f.svc.CreateOrder(context.Background(), id, models.PlanStarter)
	assert.ErrorIs(t, err, ErrGateway)
	assert.Empty(t, f.orders.orders)
}

func TestEndToEndPurchase(t *testing.T) {
	f := newPaymentFixture(t)
	id := f.ledger.addUser(500, models.PlanFree)

	order, err := f.svc.CreateOrder(context.Background(), id, models.PlanStarter)
	require.NoError(t, err)

	res, err := f.svc.VerifyAndCredit(context.Background(), id, signed(order.ID, "pay_live_1"))
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, 1500, f.ledger.balance(id))
	assert.Equal(t, models.PlanStarter, f.ledger.plan(id))
}
