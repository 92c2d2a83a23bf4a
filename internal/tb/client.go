package tb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"chamber-monitor/internal/config"
	"chamber-monitor/internal/models"
)

const (
	keyTemperature = "temperature"
	keyHumidity    = "humidity"
)

// ErrMissingConfig wraps the list of unset connection settings so handlers
// can name them in the 500 body.
type ErrMissingConfig struct {
	Vars []string
}

func (e ErrMissingConfig) Error() string {
	return "missing required configuration: " + strings.Join(e.Vars, ", ")
}

// Client is a minimal ThingsBoard REST client for a single device. It logs in
// with username/password, caches the bearer token and retries a telemetry
// call once after a 401 with a fresh login. There is no other retry: the poll
// loop reschedules failed fetches.
type Client struct {
	baseURL  string
	username string
	password string
	deviceID string
	client   *http.Client

	mu    sync.Mutex
	token string
}

// New validates the connection settings and constructs a client.
func New(cfg config.ThingsBoard) (*Client, error) {
	if missing := cfg.Missing(); len(missing) > 0 {
		return nil, ErrMissingConfig{Vars: missing}
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		deviceID: cfg.DeviceID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Latest fetches the single most recent value per metric.
func (c *Client) Latest(ctx context.Context) (models.Reading, error) {
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/values/timeseries?keys=%s,%s",
		url.PathEscape(c.deviceID), keyTemperature, keyHumidity)
	var resp seriesResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return models.Reading{}, err
	}

	var r models.Reading
	if pts := resp[keyTemperature]; len(pts) > 0 {
		r.Temperature = parseValue(pts[0].Value)
		r.TS = maxTS(r.TS, pts[0].TS)
	}
	if pts := resp[keyHumidity]; len(pts) > 0 {
		r.Humidity = parseValue(pts[0].Value)
		r.TS = maxTS(r.TS, pts[0].TS)
	}
	return r, nil
}

// History fetches both metric series over [now-window, now], bounded to
// maxPoints per key, and merges them into one ascending sequence joined on
// exact timestamp.
func (c *Client) History(ctx context.Context, window time.Duration, maxPoints int) ([]models.Sample, error) {
	end := time.Now().UnixMilli()
	start := end - window.Milliseconds()
	path := fmt.Sprintf("/api/plugins/telemetry/DEVICE/%s/values/timeseries?keys=%s,%s&startTs=%d&endTs=%d&limit=%d&agg=NONE",
		url.PathEscape(c.deviceID), keyTemperature, keyHumidity, start, end, maxPoints)
	var resp seriesResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return MergeSeries(resp[keyTemperature], resp[keyHumidity]), nil
}

// MergeSeries joins two per-metric series on exact timestamp equality. A
// sample missing one metric carries nil for it. The result has unique,
// ascending timestamps.
func MergeSeries(temps, hums []Point) []models.Sample {
	byTS := make(map[int64]*models.Sample, len(temps)+len(hums))
	for _, p := range temps {
		s := sampleAt(byTS, p.TS)
		s.Temperature = parseValue(p.Value)
	}
	for _, p := range hums {
		s := sampleAt(byTS, p.TS)
		s.Humidity = parseValue(p.Value)
	}

	merged := make([]models.Sample, 0, len(byTS))
	for _, s := range byTS {
		merged = append(merged, *s)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].TS < merged[j].TS })
	return merged
}

func sampleAt(byTS map[int64]*models.Sample, ts int64) *models.Sample {
	if s, ok := byTS[ts]; ok {
		return s
	}
	s := &models.Sample{TS: ts}
	byTS[ts] = s
	return s
}

// parseValue converts the platform's textual value into a float. Non-numeric,
// non-finite or out-of-range readings are treated as absent rather than
// propagated into the aggregates.
func parseValue(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	if v < 0 || v > 100 {
		return nil
	}
	return &v
}

func maxTS(cur *int64, ts int64) *int64 {
	if cur == nil || ts > *cur {
		return &ts
	}
	return cur
}

// Point is one raw time-series entry as ThingsBoard serves it: the value is
// a string regardless of the stored type.
type Point struct {
	TS    int64  `json:"ts"`
	Value string `json:"value"`
}

// seriesResponse maps metric key to its points, newest first for latest-value
// queries.
type seriesResponse map[string][]Point

type loginResponse struct {
	Token string `json:"token"`
}

func (c *Client) login(ctx context.Context) (string, error) {
	body, err := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("tb login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("tb login: http %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return "", fmt.Errorf("tb login: decode response: %w", err)
	}
	if lr.Token == "" {
		return "", fmt.Errorf("tb login: empty token in response")
	}
	return lr.Token, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	status, err := c.doGet(ctx, path, token, out)
	if status == http.StatusUnauthorized {
		// Token expired upstream; one fresh login and retry.
		token, err = c.refreshToken(ctx)
		if err != nil {
			return err
		}
		status, err = c.doGet(ctx, path, token, out)
	}
	return err
}

func (c *Client) doGet(ctx context.Context, path, token string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("tb request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("tb request: http %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("tb request: decode response: %w", err)
	}
	return resp.StatusCode, nil
}

func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.token
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.refreshToken(ctx)
}

func (c *Client) refreshToken(ctx context.Context) (string, error) {
	token, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return token, nil
}

func readErrorBody(r io.Reader) string {
	b, err := io.ReadAll(io.LimitReader(r, 512))
	if err != nil || len(b) == 0 {
		return "no error body"
	}
	return strings.TrimSpace(string(b))
}
