package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/PromptForge/internal/models"
	"github.com/digkill/PromptForge/internal/repository"
)

// bcrypt only looks at the first 72 bytes.
const maxPasswordBytes = 72

type UserStore interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByVerificationToken(ctx context.Context, token string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	MarkVerified(ctx context.Context, userID int64) error
	UpdateName(ctx context.Context, userID int64, name string) error
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
}

type SessionStore interface {
	Create(ctx context.Context, userID int64, ttl time.Duration) (*models.Session, error)
	FindValid(ctx context.Context, token string) (*models.Session, error)
	Delete(ctx context.Context, token string) error
}

// VerificationSender delivers the email verification link.
type VerificationSender interface {
	SendVerification(ctx context.Context, toEmail, name, token string) error
}

type UserService struct {
	log          *slog.Logger
	users        UserStore
	sessions     SessionStore
	mailer       VerificationSender
	sessionTTL   time.Duration
	storeTimeout time.Duration
	hashCost     int
}

func NewUserService(log *slog.Logger, users UserStore, sessions SessionStore, mailer VerificationSender, sessionTTL, storeTimeout time.Duration) *UserService {
	if sessionTTL <= 0 {
		sessionTTL = 5 * time.Hour
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &UserService{
		log:          log,
		users:        users,
		sessions:     sessions,
		mailer:       mailer,
		sessionTTL:   sessionTTL,
		storeTimeout: storeTimeout,
		hashCost:     bcrypt.DefaultCost,
	}
}

func (s *UserService) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Register creates an unverified account with the default balance and plan
// and sends the verification email. A failed email does not fail registration.
func (s *UserService) Register(ctx context.Context, name, email, password string) (*models.User, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, validationError("please provide name, email, and password")
	}
	if len(password) > maxPasswordBytes {
		return nil, validationError("password is too long")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeContext(ctx)
	user, err := s.users.Create(sctx, &models.User{
		Name:              name,
		Email:             email,
		PasswordHash:      string(hash),
		VerificationToken: token,
	})
	cancel()
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: user with this email already exists", ErrConflict)
		}
		return nil, storageError("create user", err)
	}

	if err := s.sendVerification(ctx, user, token); err != nil {
		s.log.Error("send verification email", "user_id", user.ID, "err", err)
	}
	return user, nil
}

func (s *UserService) sendVerification(ctx context.Context, user *models.User, token string) error {
	if s.mailer == nil {
		return errors.New("verification email is not configured")
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	return s.mailer.SendVerification(mctx, user.Email, user.Name, token)
}

func (s *UserService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return validationError("verification token is required")
	}
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.users.FindByVerificationToken(sctx, token)
	if err != nil {
		return storageError("find verification token", err)
	}
	if user == nil {
		return validationError("invalid or expired verification token")
	}
	if err := s.users.MarkVerified(sctx, user.ID); err != nil {
		return storageError("mark verified", err)
	}
	return nil
}

// ResendVerification issues the stored token again for an unverified account.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return validationError("email is required")
	}
	sctx, cancel := s.storeContext(ctx)
	user, err := s.users.FindByEmail(sctx, email)
	cancel()
	if err != nil {
		return storageError("find user", err)
	}
	if user == nil {
		return fmt.Errorf("%w: user with this email does not exist", ErrNotFound)
	}
	if user.IsVerified {
		return validationError("this account is already verified")
	}
	if user.VerificationToken == "" {
		return validationError("no pending verification for this account")
	}
	if err := s.sendVerification(ctx, user, user.VerificationToken); err != nil {
		return fmt.Errorf("resend verification email: %w", err)
	}
	return nil
}

// Login checks the password and opens a session for a verified account.
func (s *UserService) Login(ctx context.Context, email, password string) (*models.Session, *models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, nil, validationError("email and password are required")
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.users.FindByEmail(sctx, email)
	if err != nil {
		return nil, nil, storageError("find user", err)
	}
	if user == nil {
		return nil, nil, ErrAuth
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrAuth
	}
	if !user.IsVerified {
		return nil, nil, ErrUnverified
	}

	sess, err := s.sessions.Create(sctx, user.ID, s.sessionTTL)
	if err != nil {
		return nil, nil, storageError("create session", err)
	}
	return sess, user, nil
}

// Authenticate resolves a bearer token to its account id.
func (s *UserService) Authenticate(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrAuth
	}
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	sess, err := s.sessions.FindValid(sctx, token)
	if err != nil {
		return 0, storageError("find session", err)
	}
	if sess == nil {
		return 0, ErrAuth
	}
	return sess.UserID, nil
}

func (s *UserService) Logout(ctx context.Context, token string) error {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.sessions.Delete(sctx, token); err != nil {
		return storageError("delete session", err)
	}
	return nil
}

func (s *UserService) CurrentAccount(ctx context.Context, userID int64) (*models.User, error) {
	sctx, cancel := s.storeContext(ctx)
	defer cancel()

	user, err := s.users.FindByID(sctx, userID)
	if err != nil {
		return nil, storageError("find user", err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, name string) (*models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("name is required")
	}
	user, err := s.CurrentAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.users.UpdateName(sctx, userID, name); err != nil {
		return nil, storageError("update name", err)
	}
	user.Name = name
	return user, nil
}

func (s *UserService) ChangePassword(ctx context.Context, userID int64, current, next string) error {
	if current == "" || next == "" {
		return validationError("please provide current and new passwords")
	}
	if len(next) > maxPasswordBytes {
		return validationError("password is too long")
	}
	user, err := s.CurrentAccount(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return validationError("incorrect current password")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	sctx, cancel := s.storeContext(ctx)
	defer cancel()
	if err := s.users.UpdatePasswordHash(sctx, userID, string(hash)); err != nil {
		return storageError("update password", err)
	}
	return nil
}
