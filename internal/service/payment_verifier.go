package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// PaymentVerifier checks that a payment confirmation was signed by the
// gateway holding the shared key secret.
type PaymentVerifier struct {
	secret []byte
}

func NewPaymentVerifier(secret string) *PaymentVerifier {
	return &PaymentVerifier{secret: []byte(secret)}
}

// Sign returns the hex HMAC-SHA256 of orderID|paymentID.
func (v *PaymentVerifier) Sign(orderID, paymentID string) string {
	return hex.EncodeToString(v.mac(orderID, paymentID))
}

// Verify returns ErrInvalidSignature unless signature is exactly the
// gateway's lowercase hex signature for the pair.
func (v *PaymentVerifier) Verify(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || len(signature) != sha256.Size*2 {
		return ErrInvalidSignature
	}
	if !hmac.Equal([]byte(signature), []byte(v.Sign(orderID, paymentID))) {
		return ErrInvalidSignature
	}
	return nil
}

func (v *PaymentVerifier) mac(orderID, paymentID string) []byte {
	h := hmac.New(sha256.New, v.secret)
	h.Write([]byte(orderID + "|" + paymentID))
	return h.Sum(nil)
}
