package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/digkill/PromptForge/internal/metrics"
	"github.com/digkill/PromptForge/internal/models"
	"github.com/digkill/PromptForge/internal/service"
)

type AccountService interface {
	Register(ctx context.Context, name, email, password string) (*models.User, error)
	VerifyEmail(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	Login(ctx context.Context, email, password string) (*models.Session, *models.User, error)
	Authenticate(ctx context.Context, token string) (int64, error)
	Logout(ctx context.Context, token string) error
	CurrentAccount(ctx context.Context, userID int64) (*models.User, error)
	UpdateProfile(ctx context.Context, userID int64, name string) (*models.User, error)
	ChangePassword(ctx context.Context, userID int64, current, next string) error
}

type PaymentService interface {
	CreateOrder(ctx context.Context, accountID int64, plan string) (*models.Order, error)
	VerifyAndCredit(ctx context.Context, accountID int64, req service.VerifyPaymentRequest) (*service.PaymentResult, error)
}

type GenerationService interface {
	Generate(ctx context.Context, accountID int64, text string, category models.PromptType) (*service.GenerationResult, error)
}

type HistoryService interface {
	List(ctx context.Context, userID int64, limit int) ([]models.Prompt, error)
	Export(ctx context.Context, userID int64) (*service.HistoryExport, error)
}

// Options carries the collaborators of the HTTP surface. AuthLimiter and
// Gatherer are optional.
type Options struct {
	Accounts       AccountService
	Payments       PaymentService
	Generator      GenerationService
	History        HistoryService
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AuthLimiter    func(http.Handler) http.Handler
	AllowedOrigins []string
	RequestTimeout time.Duration
}

type Server struct {
	addr      string
	log       *slog.Logger
	accounts  AccountService
	payments  PaymentService
	generator GenerationService
	history   HistoryService
	timeout   time.Duration
	router    *chi.Mux
}

func NewServer(addr string, log *slog.Logger, opts Options) *Server {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
	}
	r.Use(corsMiddleware(opts.AllowedOrigins))

	s := &Server{
		addr:      addr,
		log:       log,
		accounts:  opts.Accounts,
		payments:  opts.Payments,
		generator: opts.Generator,
		history:   opts.History,
		timeout:   timeout,
		router:    r,
	}

	r.Get("/healthz", s.handleHealth)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/plans", s.handlePlans)

		r.Route("/auth", func(r chi.Router) {
			if opts.AuthLimiter != nil {
				r.Use(opts.AuthLimiter)
			}
			r.Post("/register", s.handleRegister)
			r.Post("/verify-email", s.handleVerifyEmail)
			r.Post("/resend-verification", s.handleResendVerification)
			r.Post("/login", s.handleLogin)
			r.With(s.authMiddleware).Get("/user", s.handleCurrentUser)
			r.With(s.authMiddleware).Post("/logout", s.handleLogout)
		})

		r.Group(func(protected chi.Router) {
			protected.Use(s.authMiddleware)
			protected.Put("/user/profile", s.handleUpdateProfile)
			protected.Put("/user/password", s.handleChangePassword)
			protected.Post("/payment/orders", s.handleCreateOrder)
			protected.Post("/payment/verify", s.handleVerifyPayment)
			protected.Get("/prompts", s.handleListPrompts)
			protected.Post("/prompts/export", s.handleExportPrompts)
			protected.Post("/generate", s.handleGenerate)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.timeout + 15*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("api shutdown error", "err", err)
		}
	}()

	s.log.Info("api listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

type ctxKey int

const accountIDKey ctxKey = iota

func accountID(ctx context.Context) int64 {
	id, _ := ctx.Value(accountIDKey).(int64)
	return id
}

func sessionToken(r *http.Request) string {
	if token := r.Header.Get("x-auth-token"); token != "" {
		return token
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := sessionToken(r)
		if token == "" {
			s.writeMessage(w, http.StatusUnauthorized, "No token, authorization denied.")
			return
		}
		id, err := s.accounts.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), accountIDKey, id)))
	})
}

func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin != "" && (allowed == "*" || allowed == origin) {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-auth-token")
					w.Header().Set("Access-Control-Max-Age", "3600")
					w.Header().Add("Vary", "Origin")
					break
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, messageResponse{Message: msg})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeMessage(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// writeError maps service errors onto status codes. Anything unrecognised is
// logged and reported as a generic server error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("api handler error", "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
	}
	s.writeMessage(w, status, msg)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidCategory),
		errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrAuth):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, service.ErrUnverified):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, service.ErrInsufficientCredits):
		return http.StatusPaymentRequired, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, service.ErrGenerationFailed):
		return http.StatusBadGateway, "Failed to generate prompt."
	case errors.Is(err, service.ErrGateway):
		return http.StatusBadGateway, "Payment gateway unavailable."
	case errors.Is(err, service.ErrExportDisabled):
		return http.StatusServiceUnavailable, err.Error()
	default:
		return http.StatusInternalServerError, "Server error"
	}
}
