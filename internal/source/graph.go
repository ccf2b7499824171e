package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opsdesk-io/servicedesk/internal/config"
	"github.com/opsdesk-io/servicedesk/internal/domain"
)

const graphLoginBase = "https://login.microsoftonline.com"

// GraphSource reads unread mail from a Microsoft Graph mailbox using the
// client credentials flow. Fetched messages are marked read on a best
// effort basis; when marking fails the fingerprint dedup still stops the
// message from turning into a second ticket.
type GraphSource struct {
	cfg    config.GraphConfig
	client *http.Client
	logger *zap.Logger

	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time
}

// NewGraphSource constructs the source.
func NewGraphSource(cfg config.GraphConfig, logger *zap.Logger) *GraphSource {
	return &GraphSource{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Name identifies the source in reports and logs.
func (s *GraphSource) Name() string { return "graph" }

type graphMessage struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	From    struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	Body struct {
		Content string `json:"content"`
	} `json:"body"`
	BodyPreview      string    `json:"bodyPreview"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
}

// Fetch lists unread inbox messages for the configured mailbox.
func (s *GraphSource) Fetch(ctx context.Context) ([]domain.InboundMessage, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf(
		"%s/users/%s/mailFolders/inbox/messages?$filter=isRead%%20eq%%20false&$top=50&$select=id,subject,from,body,bodyPreview,receivedDateTime",
		s.cfg.BaseURL, url.PathEscape(s.cfg.Mailbox),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph list messages: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graph list messages: unexpected status %d", resp.StatusCode)
	}

	var listing struct {
		Value []graphMessage `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("graph decode messages: %w", err)
	}

	messages := make([]domain.InboundMessage, 0, len(listing.Value))
	for _, raw := range listing.Value {
		body := strings.TrimSpace(raw.Body.Content)
		if body == "" {
			body = strings.TrimSpace(raw.BodyPreview)
		}
		messages = append(messages, domain.InboundMessage{
			MessageID:  raw.ID,
			Sender:     raw.From.EmailAddress.Address,
			Subject:    raw.Subject,
			Body:       body,
			ReceivedAt: raw.ReceivedDateTime,
		})
		s.markRead(ctx, token, raw.ID)
	}
	return messages, nil
}

func (s *GraphSource) markRead(ctx context.Context, token, messageID string) {
	endpoint := fmt.Sprintf("%s/users/%s/messages/%s",
		s.cfg.BaseURL, url.PathEscape(s.cfg.Mailbox), url.PathEscape(messageID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, strings.NewReader(`{"isRead": true}`))
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("graph mark read failed", zap.String("message_id", messageID), zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		s.logger.Warn("graph mark read failed",
			zap.String("message_id", messageID),
			zap.Int("status", resp.StatusCode))
	}
}

// token returns a cached app-only access token, refreshing when it is
// within a minute of expiry.
func (s *GraphSource) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accessToken != "" && time.Until(s.expiresAt) > time.Minute {
		return s.accessToken, nil
	}

	form := url.Values{
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
		"scope":         {"https://graph.microsoft.com/.default"},
		"grant_type":    {"client_credentials"},
	}
	endpoint := fmt.Sprintf("%s/%s/oauth2/v2.0/token", graphLoginBase, url.PathEscape(s.cfg.TenantID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("graph token request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("graph token request: unexpected status %d", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("graph token decode: %w", err)
	}
	if token.AccessToken == "" {
		return "", fmt.Errorf("graph token response missing access_token")
	}

	s.accessToken = token.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return s.accessToken, nil
}
