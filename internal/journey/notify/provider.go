package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

//go:generate mockgen -source=provider.go -destination=mocks/provider_mock.go -package=mocks Provider

// Receipt records a successful provider call.
type Receipt struct {
	NotificationID string
	ProviderStatus int
	SentAt         time.Time
}

// Provider is the external email API.
type Provider interface {
	SendEmail(ctx context.Context, templateID, emailAddress, reference string, personalisation map[string]string) (Receipt, error)
}

// ProviderError is a non-2xx provider response, classified for retry.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("notification provider returned %d: %s", e.StatusCode, e.Body)
}

// Retryable classifies rate limiting and server faults as retryable; client
// faults (bad template, revoked key) are terminal.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPProvider calls a GOV-Notify-style email API.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// HTTPProviderOption configures an HTTPProvider.
type HTTPProviderOption func(*HTTPProvider)

// WithHTTPClient overrides the underlying client.
func WithHTTPClient(client *http.Client) HTTPProviderOption {
	return func(p *HTTPProvider) { p.client = client }
}

func NewHTTPProvider(baseURL, apiKey string, opts ...HTTPProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type sendEmailRequest struct {
	EmailAddress    string            `json:"email_address"`
	TemplateID      string            `json:"template_id"`
	Reference       string            `json:"reference"`
	Personalisation map[string]string `json:"personalisation,omitempty"`
}

type sendEmailResponse struct {
	ID string `json:"id"`
}

func (p *HTTPProvider) SendEmail(ctx context.Context, templateID, emailAddress, reference string, personalisation map[string]string) (Receipt, error) {
	body, err := json.Marshal(sendEmailRequest{
		EmailAddress:    emailAddress,
		TemplateID:      templateID,
		Reference:       reference,
		Personalisation: personalisation,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("marshal send request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v2/notifications/email", bytes.NewReader(body))
	if err != nil {
		return Receipt{}, fmt.Errorf("build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.client.Do(req)
	providerLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		// Transport failures are retryable by definition.
		return Receipt{}, &ProviderError{StatusCode: http.StatusServiceUnavailable, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Receipt{}, &ProviderError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed sendEmailResponse
	_ = json.Unmarshal(respBody, &parsed)
	return Receipt{
		NotificationID: parsed.ID,
		ProviderStatus: resp.StatusCode,
		SentAt:         time.Now(),
	}, nil
}
