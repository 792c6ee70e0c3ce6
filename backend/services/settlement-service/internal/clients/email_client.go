package clients

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"coursepay/backend/services/settlement-service/internal/errs"
	"coursepay/backend/services/settlement-service/internal/models"
)

// EmailConfig configures the templated email provider. The provider counts as
// configured only when both ServiceID and PublicKey are set.
type EmailConfig struct {
	BaseURL     string
	ServiceID   string
	PublicKey   string
	AccessToken string
	Timeout     time.Duration
	Templates   map[models.NotificationKind]string
}

type emailRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

type emailResponse struct {
	MessageID string `json:"message_id"`
}

// EmailClient sends templated emails through the provider's REST API.
type EmailClient struct {
	base   *BaseClient
	cfg    EmailConfig
	logger *zap.Logger
}

// NewEmailClient returns a client. httpClient may be nil.
func NewEmailClient(cfg EmailConfig, httpClient HTTPDoer, logger *zap.Logger) *EmailClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = NewDefaultHTTPClient(0)
	}
	return &EmailClient{
		base:   NewBaseClient(cfg.BaseURL, httpClient),
		cfg:    cfg,
		logger: logger,
	}
}

// Configured reports whether the provider can be used at all.
func (c *EmailClient) Configured() bool {
	return strings.TrimSpace(c.cfg.ServiceID) != "" && strings.TrimSpace(c.cfg.PublicKey) != ""
}

// Send renders the template bound to kind for the recipient. It returns the
// provider message id, which may be empty when the provider does not echo one.
func (c *EmailClient) Send(ctx context.Context, kind models.NotificationKind, to models.Recipient, params map[string]string) (string, error) {
	if !c.Configured() {
		return "", fmt.Errorf("email provider: %w", errs.ErrConfiguration)
	}
	templateID := strings.TrimSpace(c.cfg.Templates[kind])
	if templateID == "" {
		return "", fmt.Errorf("email %s: %w", kind, errs.ErrTemplateMissing)
	}
	if strings.TrimSpace(to.Email) == "" {
		return "", fmt.Errorf("email %s: recipient %s has no address: %w", kind, to.UserID, errs.ErrNotification)
	}

	templateParams := make(map[string]string, len(params)+2)
	for k, v := range params {
		templateParams[k] = v
	}
	templateParams["to_email"] = to.Email
	if to.Name != "" {
		templateParams["to_name"] = to.Name
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	resp, err := c.base.Do(callCtx, http.MethodPost, "/api/v1.0/email/send", emailRequest{
		ServiceID:      c.cfg.ServiceID,
		TemplateID:     templateID,
		UserID:         c.cfg.PublicKey,
		AccessToken:    c.cfg.AccessToken,
		TemplateParams: templateParams,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("email %s: %w: %v", kind, errs.ErrNotification, err)
	}
	if !resp.OK() {
		return "", fmt.Errorf("email %s: provider status %d: %w", kind, resp.Status, errs.ErrNotification)
	}

	var out emailResponse
	if err := resp.Decode(&out); err != nil || out.MessageID == "" {
		out.MessageID = "email-" + uuid.NewString()
	}

	c.logger.Debug("email sent",
		zap.String("kind", string(kind)),
		zap.String("recipient_id", to.UserID),
		zap.String("message_id", out.MessageID),
	)
	return out.MessageID, nil
}
