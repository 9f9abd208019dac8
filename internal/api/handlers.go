package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/digkill/PromptForge/internal/models"
	"github.com/digkill/PromptForge/internal/service"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePlans(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, models.PlanTiers())
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	if _, err := s.accounts.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMessage(w, http.StatusCreated, "Registration successful! Please check your email to verify your account.")
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.accounts.VerifyEmail(r.Context(), req.Token); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMessage(w, http.StatusOK, "Email verified successfully! You can now log in.")
}

type emailRequest struct {
	Email string `json:"email"`
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.accounts.ResendVerification(r.Context(), req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMessage(w, http.StatusOK, "A new verification email has been sent.")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt string       `json:"expiresAt"`
	User      *models.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	session, user, err := s.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, loginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
		User:      user,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Logout(r.Context(), sessionToken(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.accounts.CurrentAccount(r.Context(), accountID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, user)
}

type profileRequest struct {
	Name string `json:"name"`
}

type profileResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user"`
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !s.decode(w, r, &req) {
		return
	}
	user, err := s.accounts.UpdateProfile(r.Context(), accountID(r.Context()), req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, profileResponse{Message: "Profile updated successfully.", User: user})
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.accounts.ChangePassword(r.Context(), accountID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeMessage(w, http.StatusOK, "Password changed successfully.")
}

type orderRequest struct {
	Plan string `json:"plan"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if !s.decode(w, r, &req) {
		return
	}
	order, err := s.payments.CreateOrder(r.Context(), accountID(r.Context()), req.Plan)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	PlanName  string `json:"planName"`
}

type verifyPaymentResponse struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	NewCreditBalance int    `json:"newCreditBalance"`
	CreditsAdded     int    `json:"creditsAdded"`
	Plan             string `json:"plan"`
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.payments.VerifyAndCredit(r.Context(), accountID(r.Context()), service.VerifyPaymentRequest{
		OrderID:   strings.TrimSpace(req.OrderID),
		PaymentID: strings.TrimSpace(req.PaymentID),
		Signature: strings.TrimSpace(req.Signature),
		Plan:      req.PlanName,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := verifyPaymentResponse{
		Success:          true,
		Message:          "Payment successful! Plan updated and credits added.",
		NewCreditBalance: result.User.Credits,
		CreditsAdded:     result.Credits,
		Plan:             result.Plan,
	}
	if !result.Applied {
		resp.Message = "Payment already processed."
		resp.CreditsAdded = 0
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeMessage(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	prompts, err := s.history.List(r.Context(), accountID(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, prompts)
}

func (s *Server) handleExportPrompts(w http.ResponseWriter, r *http.Request) {
	export, err := s.history.Export(r.Context(), accountID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, export)
}

type generateRequest struct {
	Text string `json:"text"`
	Type string `json:"type"`
}

type generateResponse struct {
	Success          bool   `json:"success"`
	GeneratedPrompt  string `json:"generatedPrompt"`
	NewCreditBalance int    `json:"newCreditBalance"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !s.decode(w, r, &req) {
		return
	}
	result, err := s.generator.Generate(r.Context(), accountID(r.Context()), req.Text, models.PromptType(strings.ToLower(strings.TrimSpace(req.Type))))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, generateResponse{
		Success:          true,
		GeneratedPrompt:  result.GeneratedPrompt,
		NewCreditBalance: result.Credits,
	})
}
