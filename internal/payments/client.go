package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/irfndi/coinsight-go/internal/config"
)

// ErrCheckoutUnavailable is returned while the breaker is open.
var ErrCheckoutUnavailable = errors.New("checkout provider unavailable")

// CheckoutRequest asks the provider for a hosted subscription checkout page.
type CheckoutRequest struct {
	PriceID           string            `json:"price_id"`
	ClientReferenceID string            `json:"client_reference_id"`
	CustomerEmail     string            `json:"customer_email,omitempty"`
	SuccessURL        string            `json:"success_url"`
	CancelURL         string            `json:"cancel_url"`
	Mode              string            `json:"mode"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// CheckoutSession is the provider's reply.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CheckoutClient talks to the hosted checkout API. Calls go through a circuit
// breaker and are never retried.
type CheckoutClient struct {
	HTTPClient *http.Client
	baseURL    string
	apiKey     string
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewCheckoutClient creates a client; the breaker opens after five
// consecutive failures and probes again after thirty seconds.
func NewCheckoutClient(cfg config.PaymentsConfig, logger *logrus.Logger) *CheckoutClient {
	if logger == nil {
		logger = logrus.New()
	}
	c := &CheckoutClient{
		HTTPClient: &http.Client{Timeout: cfg.GetTimeout()},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payments",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})
	return c
}

// State reports the breaker state for health output.
func (c *CheckoutClient) State() string {
	return c.breaker.State().String()
}

// CreateSession opens a hosted checkout session.
func (c *CheckoutClient) CreateSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	if req.Mode == "" {
		req.Mode = "subscription"
	}
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var session CheckoutSession
		if err := c.makeRequest(ctx, http.MethodPost, "/v1/checkout/sessions", req, &session); err != nil {
			return nil, err
		}
		if session.URL == "" {
			return nil, fmt.Errorf("checkout session %q has no redirect url", session.ID)
		}
		return &session, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		return nil, err
	}
	return out.(*CheckoutSession), nil
}

func (c *CheckoutClient) makeRequest(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Coinsight-Go/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.WithError(err).Warn("Error closing response body")
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return fmt.Errorf("checkout provider error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return fmt.Errorf("checkout provider error (%d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}
	return nil
}
