package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

const (
	graphAPIBase   = "https://graph.facebook.com/v21.0"
	defaultTimeout = 15 * time.Second
)

// Sender delivers one text message to a WhatsApp number.
type Sender interface {
	Send(ctx context.Context, toNumber, message string) error
}

// NewSender picks the Cloud API sender or the simulated sender based on config.
func NewSender(cfg config.WhatsAppConfig, logg *logger.Logger) (Sender, error) {
	if cfg.Simulate {
		return &SimulatedSender{logg: logg}, nil
	}
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, fmt.Errorf("whatsapp access token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, fmt.Errorf("whatsapp phone number id is required")
	}
	return &CloudAPISender{
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       graphAPIBase,
		httpClient:    &http.Client{Timeout: defaultTimeout},
	}, nil
}

// CloudAPISender delivers messages through the Meta WhatsApp Cloud API.
type CloudAPISender struct {
	accessToken   string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
}

type cloudMessageRequest struct {
	MessagingProduct string         `json:"messaging_product"`
	To               string         `json:"to"`
	Type             string         `json:"type"`
	Text             cloudTextBlock `json:"text"`
}

type cloudTextBlock struct {
	Body string `json:"body"`
}

func (s *CloudAPISender) Send(ctx context.Context, toNumber, message string) error {
	if strings.TrimSpace(toNumber) == "" {
		return fmt.Errorf("recipient number is required")
	}
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message body is required")
	}

	payload := cloudMessageRequest{
		MessagingProduct: "whatsapp",
		To:               strings.TrimPrefix(toNumber, "+"),
		Type:             "text",
		Text:             cloudTextBlock{Body: message},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", s.baseURL, s.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("whatsapp api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// SimulatedSender logs messages instead of delivering them. It is the
// default in dev so the pipeline can run without Meta credentials.
type SimulatedSender struct {
	logg *logger.Logger
}

func (s *SimulatedSender) Send(ctx context.Context, toNumber, message string) error {
	if strings.TrimSpace(toNumber) == "" {
		return fmt.Errorf("recipient number is required")
	}
	if s.logg != nil {
		ctx = s.logg.WithFields(ctx, map[string]any{
			"to":    toNumber,
			"bytes": len(message),
		})
		s.logg.Info(ctx, "simulated whatsapp delivery")
	}
	return nil
}
