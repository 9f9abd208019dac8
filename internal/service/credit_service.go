package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/digkill/PromptForge/internal/metrics"
	"github.com/digkill/PromptForge/internal/models"
	"github.com/digkill/PromptForge/internal/repository"
)

const resetParallelism = 8

// AccountStore is the slice of the user repository the ledger writes through.
type AccountStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	DebitCredits(ctx context.Context, userID int64, amount int) (bool, error)
	ResetCredits(ctx context.Context, userID int64, plan string, credits int) (bool, error)
	ListIDsByPlan(ctx context.Context, plan string) ([]int64, error)
}

type UsageStore interface {
	ChargeAndLog(ctx context.Context, userID int64, amount int, prompt *models.Prompt) (bool, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]models.Prompt, error)
}

type PaymentStore interface {
	ApplyCredit(ctx context.Context, payment *models.Payment) error
	FindByOrder(ctx context.Context, orderID string) (*models.Payment, error)
}

// CreditService is the only component that changes balances or plans.
type CreditService struct {
	log          *slog.Logger
	accounts     AccountStore
	usage        UsageStore
	payments     PaymentStore
	metrics      *metrics.Metrics
	storeTimeout time.Duration
}

func NewCreditService(log *slog.Logger, accounts AccountStore, usage UsageStore, payments PaymentStore, m *metrics.Metrics, storeTimeout time.Duration) *CreditService {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &CreditService{
		log:          log,
		accounts:     accounts,
		usage:        usage,
		payments:     payments,
		metrics:      m,
		storeTimeout: storeTimeout,
	}
}

// storeContext bounds a single store call. The caller's cancellation is
// dropped so an abandoned request still finishes its write.
func (s *CreditService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
}

// Account loads the account or returns ErrNotFound.
func (s *CreditService) Account(ctx context.Context, accountID int64) (*models.User, error) {
	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, storageError("load account", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// Debit removes amount from the balance in a single conditional update.
func (s *CreditService) Debit(ctx context.Context, accountID int64, amount int) (*models.User, error) {
	if amount <= 0 {
		return nil, validationError("debit amount must be positive")
	}

	dctx, cancel := s.storeContext(ctx)
	ok, err := s.accounts.DebitCredits(dctx, accountID, amount)
	cancel()
	if err != nil {
		return nil, storageError("debit", err)
	}
	if !ok {
		return nil, s.rejectDebit(ctx, accountID)
	}

	s.metrics.CreditsDebitedTotal.Add(float64(amount))
	return s.Account(ctx, accountID)
}

// Charge debits amount and appends record as one unit of work. Either both
// are stored or neither is.
func (s *CreditService) Charge(ctx context.Context, accountID int64, amount int, record *models.Prompt) (*models.User, *models.Prompt, error) {
	if amount <= 0 {
		return nil, nil, validationError("charge amount must be positive")
	}
	if record == nil || !record.PromptType.Valid() {
		return nil, nil, ErrInvalidCategory
	}

	cctx, cancel := s.storeContext(ctx)
	ok, err := s.usage.ChargeAndLog(cctx, accountID, amount, record)
	cancel()
	if err != nil {
		return nil, nil, storageError("charge", err)
	}
	if !ok {
		return nil, nil, s.rejectDebit(ctx, accountID)
	}

	s.metrics.CreditsDebitedTotal.Add(float64(amount))
	user, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, nil, err
	}
	return user, record, nil
}

// rejectDebit tells a missing account apart from a short balance.
func (s *CreditService) rejectDebit(ctx context.Context, accountID int64) error {
	if _, err := s.Account(ctx, accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.DebitsRejectedTotal.WithLabelValues("not_found").Inc()
		}
		return err
	}
	s.metrics.DebitsRejectedTotal.WithLabelValues("insufficient").Inc()
	return ErrInsufficientCredits
}

// Credit adds amount and moves the account to planTag. An order is applied
// at most once; a replay by the same account returns the current account with
// applied=false, a replay by another account is ErrConflict.
func (s *CreditService) Credit(ctx context.Context, accountID int64, amount int, planTag, orderID, paymentID string) (*models.User, bool, error) {
	if amount <= 0 {
		return nil, false, validationError("credit amount must be positive")
	}
	if planTag == "" {
		return nil, false, validationError("plan is required")
	}
	if orderID == "" || paymentID == "" {
		return nil, false, validationError("order and payment ids are required")
	}

	payment := &models.Payment{
		UserID:    accountID,
		OrderID:   orderID,
		PaymentID: paymentID,
		Plan:      planTag,
		Credits:   amount,
	}

	cctx, cancel := s.storeContext(ctx)
	err := s.payments.ApplyCredit(cctx, payment)
	cancel()

	applied := true
	switch {
	case err == nil:
		s.metrics.CreditsGrantedTotal.WithLabelValues(planTag).Add(float64(amount))
		s.log.Info("payment credited", "user_id", accountID, "order_id", orderID, "plan", planTag, "credits", amount)
	case errors.Is(err, repository.ErrDuplicate):
		applied = false
		s.metrics.PaymentReplaysTotal.Inc()
		s.log.Warn("payment already applied", "user_id", accountID, "order_id", orderID, "payment_id", paymentID)
		if err := s.checkSettledBy(ctx, accountID, orderID); err != nil {
			return nil, false, err
		}
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, ErrNotFound
	default:
		return nil, false, storageError("apply credit", err)
	}

	user, err := s.Account(ctx, accountID)
	if err != nil {
		return nil, false, err
	}
	return user, applied, nil
}

// checkSettledBy confirms the earlier payment for orderID credited accountID.
func (s *CreditService) checkSettledBy(ctx context.Context, accountID int64, orderID string) error {
	fctx, cancel := s.storeContext(ctx)
	defer cancel()

	prior, err := s.payments.FindByOrder(fctx, orderID)
	if err != nil {
		return storageError("load settled payment", err)
	}
	if prior != nil && prior.UserID != accountID {
		s.log.Warn("order settled by another account", "user_id", accountID, "order_id", orderID, "settled_by", prior.UserID)
		return fmt.Errorf("%w: order was already settled", ErrConflict)
	}
	return nil
}

// ResetDailyAllotment overwrites the balance of every account on planTag with
// the tier's daily credits. Free and custom tags are left alone. A failure on
// one account is logged and the sweep carries on.
func (s *CreditService) ResetDailyAllotment(ctx context.Context, planTag string) (int, error) {
	tier, ok := models.LookupPlanTier(planTag)
	if !ok {
		return 0, nil
	}

	lctx, cancel := s.storeContext(ctx)
	ids, err := s.accounts.ListIDsByPlan(lctx, tier.Name)
	cancel()
	if err != nil {
		return 0, storageError("list accounts for reset", err)
	}

	var affected, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(resetParallelism)

	for _, id := range ids {
		g.Go(func() error {
			rctx, cancel := s.storeContext(ctx)
			defer cancel()

			ok, err := s.accounts.ResetCredits(rctx, id, tier.Name, tier.DailyCredits)
			if err != nil {
				failed.Add(1)
				s.log.Error("reset account credits", "user_id", id, "plan", tier.Name, "err", err)
				return nil
			}
			if ok {
				affected.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.ResetAccountsTotal.WithLabelValues(tier.Name, "ok").Add(float64(affected.Load()))
	s.metrics.ResetAccountsTotal.WithLabelValues(tier.Name, "failed").Add(float64(failed.Load()))
	s.log.Info("daily allotment reset", "plan", tier.Name, "credits", tier.DailyCredits, "accounts", len(ids), "reset", affected.Load(), "failed", failed.Load())

	return int(affected.Load()), nil
}

// ResetAllTiers resets every paid tier. Tiers are independent: an error
// listing one tier does not skip the others.
func (s *CreditService) ResetAllTiers(ctx context.Context) (map[string]int, error) {
	start := time.Now()
	counts := make(map[string]int)
	var errs []error
	for _, plan := range models.PaidPlanNames() {
		n, err := s.ResetDailyAllotment(ctx, plan)
		if err != nil {
			errs = append(errs, fmt.Errorf("reset %s: %w", plan, err))
			continue
		}
		counts[plan] = n
	}
	s.metrics.ResetDuration.Observe(time.Since(start).Seconds())
	return counts, errors.Join(errs...)
}
