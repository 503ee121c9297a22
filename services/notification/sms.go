package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	notificationRepo "thefesta/database/repository/notification"
	"thefesta/models"

	"go.uber.org/zap"
)

// SMSConfig configures the Africa's Talking messaging client.
type SMSConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	SenderID string
}

const defaultSMSBaseURL = "https://api.africastalking.com"

// SMSNotificationService delivers confirmations over SMS and tracks their
// delivery state in the notifications collection.
type SMSNotificationService struct {
	cfg    SMSConfig
	repo   notificationRepo.NotificationRepository
	client *http.Client
	logger *zap.Logger
}

// NewSMSNotificationService wires the SMS dispatcher.
func NewSMSNotificationService(cfg SMSConfig, repo notificationRepo.NotificationRepository, logger *zap.Logger) *SMSNotificationService {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSMSBaseURL
	}
	return &SMSNotificationService{
		cfg:    cfg,
		repo:   repo,
		client: &http.Client{Timeout: 15 * time.Second},
		logger: logger,
	}
}

type smsRecipient struct {
	Status    string `json:"status"`
	MessageID string `json:"messageId"`
	Number    string `json:"number"`
}

type smsResponse struct {
	SMSMessageData struct {
		Recipients []smsRecipient `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// Dispatch sends one queued notification. Failures mark the record FAILED
// and are logged; they never propagate into the ledger path.
func (s *SMSNotificationService) Dispatch(ctx context.Context, notificationID string) error {
	n, err := s.repo.GetByID(ctx, notificationID)
	if err != nil {
		return fmt.Errorf("failed to load notification %s: %w", notificationID, err)
	}
	if n.Status != models.NotificationQueued {
		// Already dispatched by another worker or a replay.
		return nil
	}
	if n.RecipientPhone == "" {
		s.logger.Warn("notification has no recipient", zap.String("notificationId", n.ID))
		return s.repo.SetStatus(ctx, n.ID, models.NotificationFailed, "")
	}

	messageID, err := s.send(ctx, n.RecipientPhone, n.Message)
	if err != nil {
		s.logger.Error("failed to send confirmation SMS",
			zap.String("notificationId", n.ID),
			zap.String("phone", n.RecipientPhone),
			zap.Error(err))
		return s.repo.SetStatus(ctx, n.ID, models.NotificationFailed, "")
	}

	s.logger.Info("confirmation SMS sent",
		zap.String("notificationId", n.ID),
		zap.String("messageId", messageID))
	return s.repo.SetStatus(ctx, n.ID, models.NotificationSent, messageID)
}

// RedispatchStale picks up notifications that were committed with their
// ledger transition but never dispatched, and sends them now. Dispatch
// skips anything another worker already moved out of QUEUED, so the sweep
// is safe to run concurrently with live traffic.
func (s *SMSNotificationService) RedispatchStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.ListQueuedBefore(ctx, cutoff, 100)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, n := range stale {
		if err := s.Dispatch(ctx, n.ID); err != nil {
			s.logger.Warn("failed to redispatch stale notification",
				zap.String("notificationId", n.ID), zap.Error(err))
			continue
		}
		sent++
	}
	return sent, nil
}

// ApplyDeliveryReport maps an aggregator delivery report onto the stored
// notification.
func (s *SMSNotificationService) ApplyDeliveryReport(ctx context.Context, providerMessageID, providerStatus string) error {
	var status models.NotificationStatus
	switch providerStatus {
	case "Delivered", "Success":
		status = models.NotificationDelivered
	case "Failed", "Rejected":
		status = models.NotificationFailed
	default:
		// Intermediate states (Sent, Submitted, Buffered) carry no new
		// information over what we already recorded.
		return nil
	}
	return s.repo.SetStatusByProviderMessageID(ctx, providerMessageID, status)
}

func (s *SMSNotificationService) send(ctx context.Context, to, message string) (string, error) {
	form := url.Values{}
	form.Set("username", s.cfg.Username)
	form.Set("to", to)
	form.Set("message", message)
	if s.cfg.SenderID != "" {
		form.Set("from", s.cfg.SenderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/version1/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("apiKey", s.cfg.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("messaging API returned %d: %s", resp.StatusCode, body)
	}

	var parsed smsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode messaging response: %w", err)
	}
	if len(parsed.SMSMessageData.Recipients) == 0 {
		return "", fmt.Errorf("messaging API accepted no recipients")
	}
	recipient := parsed.SMSMessageData.Recipients[0]
	if recipient.Status != "Success" {
		return "", fmt.Errorf("messaging API rejected recipient: %s", recipient.Status)
	}
	return recipient.MessageID, nil
}
