package flipr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/joshp123/gohome-flipr/internal/oauth"
	"github.com/joshp123/gohome-flipr/internal/rate"
)

const providerID = "flipr"

// Client talks to the Flipr REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	grant      *oauth.PasswordGrant
	log        *zap.SugaredLogger

	mu    sync.RWMutex
	token string
}

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("flipr api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

func NewClient(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	httpClient := rate.WrapHTTP(providerID, &http.Client{Timeout: 15 * time.Second})
	grant, err := oauth.NewPasswordGrant(oauth.Declaration{
		Provider: providerID,
		TokenURL: baseURL + "/OAuth2/token",
	}, httpClient)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		grant:      grant,
		log:        log,
	}, nil
}

// Authenticate exchanges account credentials for a bearer token and keeps
// it on the client.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	token, err := c.grant.Exchange(ctx, username, password)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.token = token.AccessToken
	c.mu.Unlock()
	return nil
}

// Authenticated reports whether a token is held.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// Modules lists the account's modules. A non-success response yields an
// empty list rather than an error.
func (c *Client) Modules(ctx context.Context) ([]Module, error) {
	body, ok, err := c.fetch(ctx, "/modules")
	if err != nil {
		return nil, err
	}
	if !ok {
		c.log.Debugw("could not fetch flipr modules")
		return []Module{}, nil
	}

	var modules []Module
	if err := json.Unmarshal(body, &modules); err != nil {
		return nil, fmt.Errorf("decode modules: %w", err)
	}
	if modules == nil {
		modules = []Module{}
	}
	return modules, nil
}

// LastSurvey returns the latest reading of a module, or nil when the API
// has none to offer.
func (c *Client) LastSurvey(ctx context.Context, serial string) (*Survey, error) {
	body, ok, err := c.fetch(ctx, "/modules/"+url.PathEscape(serial)+"/survey/last")
	if err != nil {
		return nil, err
	}
	if !ok || isEmptyBody(body) {
		c.log.Debugw("could not fetch survey", "serial", serial)
		return nil, nil
	}

	var survey Survey
	if err := json.Unmarshal(body, &survey); err != nil {
		return nil, fmt.Errorf("decode survey %s: %w", serial, err)
	}
	return &survey, nil
}

// HubState returns the equipment state of a hub, or nil on a non-success response.
func (c *Client) HubState(ctx context.Context, serial string) (*HubState, error) {
	body, ok, err := c.fetch(ctx, "/hub/"+url.PathEscape(serial)+"/state")
	if err != nil {
		return nil, err
	}
	if !ok || isEmptyBody(body) {
		c.log.Debugw("could not fetch hub state", "serial", serial)
		return nil, nil
	}

	var state HubState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode hub state %s: %w", serial, err)
	}
	return &state, nil
}

// SetHubManualState switches the hub equipment on or off.
func (c *Client) SetHubManualState(ctx context.Context, serial string, on bool) bool {
	return c.send(ctx, http.MethodPost, fmt.Sprintf("/hub/%s/Manual/%t", url.PathEscape(serial), on))
}

// SetHubMode changes the hub behaviour. Unknown modes are rejected without a request.
func (c *Client) SetHubMode(ctx context.Context, serial string, mode HubMode) bool {
	if _, err := ParseHubMode(string(mode)); err != nil {
		c.log.Warnw("refusing hub mode change", "serial", serial, "err", err)
		return false
	}
	return c.send(ctx, http.MethodPut, fmt.Sprintf("/hub/%s/mode/%s", url.PathEscape(serial), mode))
}

func (c *Client) StartHub(ctx context.Context, serial string) bool {
	return c.SetHubManualState(ctx, serial, true)
}

func (c *Client) StopHub(ctx context.Context, serial string) bool {
	return c.SetHubManualState(ctx, serial, false)
}

func (c *Client) SetHubAuto(ctx context.Context, serial string) bool {
	return c.SetHubMode(ctx, serial, ModeAuto)
}

func (c *Client) SetHubScheduled(ctx context.Context, serial string) bool {
	return c.SetHubMode(ctx, serial, ModePlanning)
}

func (c *Client) SetHubManual(ctx context.Context, serial string) bool {
	return c.SetHubMode(ctx, serial, ModeManual)
}

// fetch performs a GET. ok is false for non-success responses.
func (c *Client) fetch(ctx context.Context, path string) ([]byte, bool, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode >= 300 {
		c.noteFailure(path, HTTPStatusError{Status: resp.StatusCode, Body: string(body)})
		return nil, false, nil
	}
	return body, true, nil
}

func (c *Client) send(ctx context.Context, method, path string) bool {
	resp, err := c.doRequest(ctx, method, path)
	if err != nil {
		c.log.Warnw("flipr request failed", "method", method, "path", path, "err", err)
		return false
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		c.noteFailure(path, HTTPStatusError{Status: resp.StatusCode, Body: string(body)})
		return false
	}
	return true
}

func (c *Client) doRequest(ctx context.Context, method, path string) (*http.Response, error) {
	var body io.Reader
	if method != http.MethodGet {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}

	if method == http.MethodGet {
		req.Header.Set("Content-Type", "application/json")
	} else {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func (c *Client) noteFailure(path string, err HTTPStatusError) {
	if err.Status == http.StatusUnauthorized {
		oauth.MarkTokenRejected(providerID)
		c.log.Warnw("flipr token rejected", "path", path, "err", err)
		return
	}
	c.log.Debugw("flipr request unsuccessful", "path", path, "err", err)
}

func isEmptyBody(body []byte) bool {
	trimmed := bytes.TrimSpace(body)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
