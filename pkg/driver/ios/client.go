package ios

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Client is an HTTP client for WebDriverAgent.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewClient creates a client for the WDA server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

// CreateSession starts a WDA session, launching bundleID when set.
func (c *Client) CreateSession(ctx context.Context, bundleID string) error {
	match := map[string]interface{}{}
	if bundleID != "" {
		match["bundleId"] = bundleID
	}
	resp, err := c.do(ctx, http.MethodPost, "/session", map[string]interface{}{
		"capabilities": map[string]interface{}{"alwaysMatch": match},
	})
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	var id string
	if value, ok := resp["value"].(map[string]interface{}); ok {
		id, _ = value["sessionId"].(string)
	}
	if id == "" {
		id, _ = resp["sessionId"].(string)
	}
	if id == "" {
		return fmt.Errorf("failed to create session: no session id in response")
	}

	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
	return nil
}

// DeleteSession ends the current session.
func (c *Client) DeleteSession(ctx context.Context) error {
	c.mu.Lock()
	id := c.sessionID
	c.sessionID = ""
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	_, err := c.do(ctx, http.MethodDelete, "/session/"+id, nil)
	return err
}

// SessionID returns the current session ID.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Status checks that WDA is up.
func (c *Client) Status(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/status", nil)
	return err
}

// Source returns the UI hierarchy as XML.
func (c *Client) Source(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.sessionPath("/source"), nil)
	if err != nil {
		return "", err
	}
	if value, ok := resp["value"].(string); ok {
		return value, nil
	}
	return "", fmt.Errorf("invalid source response")
}

// Screenshot captures the screen as PNG.
func (c *Client) Screenshot(ctx context.Context) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, c.sessionPath("/screenshot"), nil)
	if err != nil {
		return nil, err
	}
	if value, ok := resp["value"].(string); ok {
		return base64.StdEncoding.DecodeString(value)
	}
	return nil, fmt.Errorf("invalid screenshot response")
}

// WindowSize returns the screen size in points.
func (c *Client) WindowSize(ctx context.Context) (width, height int, err error) {
	resp, err := c.do(ctx, http.MethodGet, c.sessionPath("/window/size"), nil)
	if err != nil {
		return 0, 0, err
	}
	value, ok := resp["value"].(map[string]interface{})
	if !ok {
		return 0, 0, fmt.Errorf("invalid window size response")
	}
	w, _ := value["width"].(float64)
	h, _ := value["height"].(float64)
	return int(w), int(h), nil
}

// Tap taps at a point.
func (c *Client) Tap(ctx context.Context, x, y float64) error {
	return c.post(ctx, "/wda/tap", map[string]interface{}{"x": x, "y": y})
}

// DoubleTap double-taps at a point.
func (c *Client) DoubleTap(ctx context.Context, x, y float64) error {
	return c.post(ctx, "/wda/doubleTap", map[string]interface{}{"x": x, "y": y})
}

// TouchAndHold presses a point for the given duration.
func (c *Client) TouchAndHold(ctx context.Context, x, y float64, d time.Duration) error {
	return c.post(ctx, "/wda/touchAndHold", map[string]interface{}{
		"x":        x,
		"y":        y,
		"duration": d.Seconds(),
	})
}

// Drag drags between two points.
func (c *Client) Drag(ctx context.Context, fromX, fromY, toX, toY float64, d time.Duration) error {
	return c.post(ctx, "/wda/dragfromtoforduration", map[string]interface{}{
		"fromX":    fromX,
		"fromY":    fromY,
		"toX":      toX,
		"toY":      toY,
		"duration": d.Seconds(),
	})
}

// Keys types text into the focused element.
func (c *Client) Keys(ctx context.Context, text string) error {
	return c.post(ctx, "/wda/keys", map[string]interface{}{"value": strings.Split(text, "")})
}

// ActiveElement returns the focused element's WDA id.
func (c *Client) ActiveElement(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, c.sessionPath("/element/active"), nil)
	if err != nil {
		return "", err
	}
	if value, ok := resp["value"].(map[string]interface{}); ok {
		if id, ok := value["ELEMENT"].(string); ok {
			return id, nil
		}
		// W3C element reference
		for k, v := range value {
			if s, ok := v.(string); ok && strings.HasPrefix(k, "element-") {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("no active element")
}

// ElementClear clears an element's text.
func (c *Client) ElementClear(ctx context.Context, id string) error {
	return c.post(ctx, "/element/"+id+"/clear", nil)
}

func (c *Client) sessionPath(path string) string {
	if id := c.SessionID(); id != "" {
		return "/session/" + id + path
	}
	return path
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	_, err := c.do(ctx, http.MethodPost, c.sessionPath(path), body)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return parseResponse(resp)
}

func parseResponse(resp *http.Response) (map[string]interface{}, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result map[string]interface{}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w (body: %s)", err, string(body))
	}

	if value, ok := result["value"].(map[string]interface{}); ok {
		if errMsg, ok := value["error"].(string); ok {
			message := errMsg
			if msg, ok := value["message"].(string); ok {
				message = msg
			}
			return nil, fmt.Errorf("WDA error: %s", message)
		}
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("WDA error: HTTP %d", resp.StatusCode)
	}
	return result, nil
}
