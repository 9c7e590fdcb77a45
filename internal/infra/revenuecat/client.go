package revenuecat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

var (
	// ErrSubscriberNotFound means the provider has never seen this app user id.
	// It is a business outcome, not a transient failure.
	ErrSubscriberNotFound = errors.New("revenuecat subscriber not found")
	// ErrUnavailable covers transport failures and non-404 error statuses;
	// callers may retry the whole operation.
	ErrUnavailable = errors.New("revenuecat unavailable")
)

type Config struct {
	BaseURL string
	APIKey  string
}

type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:    httpClient,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

func (c *Client) FetchSubscriber(ctx context.Context, appUserID string) (SubscriberResponse, error) {
	if appUserID == "" {
		return SubscriberResponse{}, fmt.Errorf("app user id is required")
	}

	endpoint := c.baseURL + "/subscribers/" + url.PathEscape(appUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return SubscriberResponse{}, fmt.Errorf("build subscriber request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return SubscriberResponse{}, fmt.Errorf("fetch subscriber: %w: %w", ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return SubscriberResponse{}, ErrSubscriberNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return SubscriberResponse{}, fmt.Errorf("fetch subscriber status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	var out SubscriberResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SubscriberResponse{}, fmt.Errorf("decode subscriber response: %w", err)
	}

	return out, nil
}

// CreateAlias links sourceID to targetID on the provider side so future
// webhooks for either id land on the same subscriber.
func (c *Client) CreateAlias(ctx context.Context, sourceID, targetID string) error {
	if sourceID == "" || targetID == "" {
		return fmt.Errorf("alias ids are required")
	}

	body, err := json.Marshal(map[string]string{"new_app_user_id": targetID})
	if err != nil {
		return fmt.Errorf("marshal alias request: %w", err)
	}

	endpoint := c.baseURL + "/subscribers/" + url.PathEscape(sourceID) + "/alias"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alias request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("create alias: %w: %w", ErrUnavailable, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrSubscriberNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("create alias status %d: %w", resp.StatusCode, ErrUnavailable)
	}

	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
}
