package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/digkill/PromptForge/internal/metrics"
	"github.com/digkill/PromptForge/internal/models"
	"github.com/digkill/PromptForge/internal/repository"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// memLedger is an in-memory stand-in for the MySQL repositories. Every
// method holds the lock for its whole body, mirroring the row-level
// atomicity of the SQL statements.
type memLedger struct {
	mu       sync.Mutex
	nextID   int64
	users    map[int64]*models.User
	prompts  []models.Prompt
	payments map[string]models.Payment

	failReset  map[int64]bool
	failCharge error
	failFind   error
}

func newMemLedger() *memLedger {
	return &memLedger{
		users:     make(map[int64]*models.User),
		payments:  make(map[string]models.Payment),
		failReset: make(map[int64]bool),
	}
}

func (m *memLedger) addUser(credits int, plan string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.users[m.nextID] = &models.User{
		ID:         m.nextID,
		Name:       "user",
		Email:      fmt.Sprintf("user%d@example.com", m.nextID),
		Credits:    credits,
		Plan:       plan,
		IsVerified: true,
	}
	return m.nextID
}

func (m *memLedger) balance(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Credits
}

func (m *memLedger) plan(id int64) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[id].Plan
}

func (m *memLedger) promptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func (m *memLedger) FindByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFind != nil {
		return nil, m.failFind
	}
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memLedger) FindByEmail(_ context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memLedger) FindByVerificationToken(_ context.Context, token string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.VerificationToken != "" && u.VerificationToken == token {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memLedger) Create(_ context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return nil, repository.ErrDuplicate
		}
	}
	m.nextID++
	cp := *user
	cp.ID = m.nextID
	cp.Credits = models.DefaultCredits
	cp.Plan = models.DefaultPlan
	cp.IsVerified = false
	m.users[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (m *memLedger) MarkVerified(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.IsVerified = true
		u.VerificationToken = ""
	}
	return nil
}

func (m *memLedger) UpdateName(_ context.Context, userID int64, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.Name = name
	}
	return nil
}

func (m *memLedger) UpdatePasswordHash(_ context.Context, userID int64, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.PasswordHash = hash
	}
	return nil
}

func (m *memLedger) debitLocked(userID int64, amount int) bool {
	u, ok := m.users[userID]
	if !ok || u.Credits < amount {
		return false
	}
	u.Credits -= amount
	return true
}

func (m *memLedger) DebitCredits(_ context.Context, userID int64, amount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debitLocked(userID, amount), nil
}

func (m *memLedger) ResetCredits(_ context.Context, userID int64, plan string, credits int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failReset[userID] {
		return false, errors.New("deadlock found when trying to get lock")
	}
	u, ok := m.users[userID]
	if !ok || u.Plan != plan {
		return false, nil
	}
	u.Credits = credits
	return true, nil
}

func (m *memLedger) ListIDsByPlan(_ context.Context, plan string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id, u := range m.users {
		if u.Plan == plan {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memLedger) ChargeAndLog(_ context.Context, userID int64, amount int, prompt *models.Prompt) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCharge != nil {
		return false, m.failCharge
	}
	if !m.debitLocked(userID, amount) {
		return false, nil
	}
	prompt.ID = int64(len(m.prompts) + 1)
	prompt.UserID = userID
	prompt.CreatedAt = time.Now().UTC()
	m.prompts = append(m.prompts, *prompt)
	return true, nil
}

func (m *memLedger) ListByUser(_ context.Context, userID int64, limit int) ([]models.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Prompt, 0)
	for i := len(m.prompts) - 1; i >= 0 && len(out) < limit; i-- {
		if m.prompts[i].UserID == userID {
			out = append(out, m.prompts[i])
		}
	}
	return out, nil
}

func (m *memLedger) ApplyCredit(_ context.Context, payment *models.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[payment.UserID]
	if !ok {
		return sql.ErrNoRows
	}
	if _, seen := m.payments[payment.OrderID]; seen {
		return repository.ErrDuplicate
	}
	u.Credits += payment.Credits
	u.Plan = payment.Plan
	payment.ID = int64(len(m.payments) + 1)
	m.payments[payment.OrderID] = *payment
	return nil
}

func (m *memLedger) FindByOrder(_ context.Context, orderID string) (*models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[orderID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// memOrders implements OrderStore.
type memOrders struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]models.Order)}
}

func (m *memOrders) Create(_ context.Context, order *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return repository.ErrDuplicate
	}
	m.orders[order.ID] = *order
	return nil
}

func (m *memOrders) FindByID(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (m *memOrders) put(order models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[order.ID] = order
}

// memSessions implements SessionStore.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]models.Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]models.Session)}
}

func (m *memSessions) Create(_ context.Context, userID int64, ttl time.Duration) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, err := randomToken()
	if err != nil {
		return nil, err
	}
	s := models.Session{Token: token, UserID: userID, ExpiresAt: time.Now().Add(ttl), CreatedAt: time.Now()}
	m.sessions[token] = s
	return &s, nil
}

func (m *memSessions) FindValid(_ context.Context, token string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok || !s.ExpiresAt.After(time.Now()) {
		return nil, nil
	}
	return &s, nil
}

func (m *memSessions) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

// stubGenerator implements PromptGenerator.
type stubGenerator struct {
	mu          sync.Mutex
	calls       int
	instruction string
	reply       string
	err         error
}

func (g *stubGenerator) Generate(_ context.Context, instruction string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.instruction = instruction
	return g.reply, g.err
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// recordingAlerter implements Alerter.
type recordingAlerter struct {
	mu     sync.Mutex
	alerts []string
}

func (a *recordingAlerter) Alert(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts = append(a.alerts, text)
	return nil
}

func (a *recordingAlerter) sent() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.alerts...)
}

// recordingMailer implements VerificationSender.
type recordingMailer struct {
	mu     sync.Mutex
	tokens map[string]string
	err    error
}

func (r *recordingMailer) SendVerification(_ context.Context, toEmail, _ string, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tokens == nil {
		r.tokens = make(map[string]string)
	}
	r.tokens[toEmail] = token
	return r.err
}

func (r *recordingMailer) tokenFor(email string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens[email]
}

// stubUploader implements HistoryUploader.
type stubUploader struct {
	data        []byte
	contentType string
	err         error
}

func (u *stubUploader) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	u.data = data
	u.contentType = contentType
	if u.err != nil {
		return "", u.err
	}
	return "https://cdn.example.com/exports/history.json", nil
}
