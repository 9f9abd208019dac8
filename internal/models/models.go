package models

import "time"

// PromptType is the category of artifact a generated prompt targets.
type PromptType string

const (
	PromptTypeImage   PromptType = "image"
	PromptTypeText    PromptType = "text"
	PromptTypeVideo   PromptType = "video"
	PromptTypeWebsite PromptType = "website"
	PromptTypeCode    PromptType = "code"
)

// PromptTypes lists every recognised category in display order.
var PromptTypes = []PromptType{PromptTypeImage, PromptTypeText, PromptTypeVideo, PromptTypeWebsite, PromptTypeCode}

// Valid reports whether t is one of the recognised categories.
func (t PromptType) Valid() bool {
	for _, known := range PromptTypes {
		if t == known {
			return true
		}
	}
	return false
}

const (
	DefaultCredits = 500
	DefaultPlan    = PlanFree
)

type User struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	PasswordHash      string    `json:"-"`
	Credits           int       `json:"credits"`
	Plan              string    `json:"plan"`
	IsVerified        bool      `json:"isVerified"`
	VerificationToken string    `json:"-"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Prompt is one completed generation. Rows are append-only.
type Prompt struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"userId"`
	OriginalText    string     `json:"originalText"`
	GeneratedPrompt string     `json:"generatedPrompt"`
	PromptType      PromptType `json:"promptType"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// Payment records a verified gateway confirmation that has already been credited.
// (OrderID, PaymentID) is unique.
type Payment struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	OrderID   string    `json:"orderId"`
	PaymentID string    `json:"paymentId"`
	Plan      string    `json:"plan"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
}

type Session struct {
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Order is a checkout intent issued by the payment gateway. It is stored
// when issued so a later confirmation credits exactly what was priced.
type Order struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"-"`
	Plan      string    `json:"plan"`
	Credits   int       `json:"credits"`
	Amount    int       `json:"amount"`
	Currency  string    `json:"currency"`
	Receipt   string    `json:"receipt"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
