package clients

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"coursepay/backend/services/settlement-service/internal/errs"
)

// Correlation is what an order carries back to us through the gateway's
// correlation field. It is enough to rebuild a purchase after a restart.
type Correlation struct {
	CourseID       string          `json:"c"`
	PayerID        string          `json:"p"`
	ListedAmount   decimal.Decimal `json:"a"`
	ListedCurrency string          `json:"cur"`
	Nonce          string          `json:"n"`
}

// EncodeCorrelation returns an opaque URL-safe token for c. An empty nonce is
// replaced with a fresh one so equal purchases still get distinct tokens.
func EncodeCorrelation(c Correlation) string {
	if c.Nonce == "" {
		c.Nonce = uuid.NewString()
	}
	data, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCorrelation parses a token produced by EncodeCorrelation.
func DecodeCorrelation(token string) (Correlation, error) {
	var c Correlation
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return c, fmt.Errorf("decode correlation: %w", errs.ErrCorrelationMismatch)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("decode correlation: %w", errs.ErrCorrelationMismatch)
	}
	if c.CourseID == "" || c.PayerID == "" {
		return c, fmt.Errorf("correlation without course or payer: %w", errs.ErrCorrelationMismatch)
	}
	return c, nil
}
