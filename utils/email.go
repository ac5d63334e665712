package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"time"

	"go.uber.org/zap"

	config "github.com/phillip/farewell-fund-go/config"
	models "github.com/phillip/farewell-fund-go/models"
)

// email request payload for ZeptoMail API
type emailRequest struct {
	From     emailAddress  `json:"from"`
	To       []toRecipient `json:"to"`
	Subject  string        `json:"subject"`
	HtmlBody string        `json:"htmlbody"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type toRecipient struct {
	Email emailWithName `json:"email_address"`
}

type emailWithName struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Mailer sends HTML mail through the ZeptoMail HTTP API.
type Mailer struct {
	cfg    config.EmailConfig
	client *http.Client
	log    *zap.Logger
}

func NewMailer(cfg config.EmailConfig, log *zap.Logger) *Mailer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mailer{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}, log: log}
}

func (m *Mailer) SendEmail(ctx context.Context, to, toName, subject, body string) error {
	if !m.cfg.Enabled() {
		return fmt.Errorf("missing required email config")
	}

	payload := emailRequest{
		From: emailAddress{Address: m.cfg.From},
		To: []toRecipient{
			{Email: emailWithName{Address: to, Name: toName}},
		},
		Subject:  subject,
		HtmlBody: body,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.APIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", m.cfg.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("zeptomail API error: %s", resp.Status)
	}

	m.log.Debug("email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}

// ContributionApproved tells the contributor their payment was accepted.
func (m *Mailer) ContributionApproved(ctx context.Context, member *models.Member, c *models.Contribution) error {
	name := member.Name
	if name == "" {
		name = "there"
	}
	body := fmt.Sprintf(
		"<p>Hi %s,</p><p>Your contribution of ₹%s via %s has been approved. Thank you!</p>",
		html.EscapeString(name), c.Amount.StringFixed(2), html.EscapeString(string(c.Method)),
	)
	return m.SendEmail(ctx, member.Email, member.Name, "Your contribution was approved", body)
}
