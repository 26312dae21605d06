// Package remote talks to an HTTP inference sidecar that hosts the
// classifiers out of process.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/truthguard/truthguard/internal/analysis"
	"github.com/truthguard/truthguard/internal/logging"
	"github.com/truthguard/truthguard/internal/metrics"
	"github.com/truthguard/truthguard/internal/oracle"
	"github.com/truthguard/truthguard/internal/redact"
)

const (
	defaultTimeout   = 30 * time.Second
	maxResponseBytes = 1 << 20

	// Breaker tuning: open after 5 consecutive failures, probe again after
	// 30s with up to 2 requests.
	breakerFailures    = 5
	breakerOpenTimeout = 30 * time.Second
	breakerHalfOpenMax = 2
)

// errCallerGone marks failures caused by the caller's own context ending.
// They are returned to the caller but not counted against the sidecar.
var errCallerGone = errors.New("caller context done")

// Config describes one sidecar endpoint.
type Config struct {
	// Name labels metrics and logs, e.g. "text" or "image".
	Name    string
	URL     string
	Timeout time.Duration
	APIKey  string
}

// Client implements oracle.TextClassifier and oracle.ImageClassifier over
// HTTP. It is safe for concurrent use and never retries; an open breaker
// fails fast.
type Client struct {
	name   string
	base   string
	apiKey string
	http   *http.Client
	cb     *gobreaker.CircuitBreaker[[]byte]
}

var (
	_ oracle.TextClassifier  = (*Client)(nil)
	_ oracle.ImageClassifier = (*Client)(nil)
)

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("remote oracle url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	name := cfg.Name
	if name == "" {
		name = "remote"
	}

	c := &Client{
		name:   name,
		base:   base,
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: timeout},
	}
	metrics.OracleBreakerState.WithLabelValues(name).Set(0)
	c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: breakerHalfOpenMax,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("oracle", name).Str("from", stateString(from)).Str("to", stateString(to)).Msg("remote oracle: circuit breaker transition")
			metrics.RecordBreakerTransition(name, stateString(from), stateString(to), stateValue(to))
		},
	})
	return c, nil
}

// ClassifyText posts {"text"} to /classify/text and expects {"label","score"}.
func (c *Client) ClassifyText(ctx context.Context, text string) (oracle.Label, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return oracle.Label{}, err
	}
	raw, err := c.do(ctx, "/classify/text", "application/json", body)
	if err != nil {
		return oracle.Label{}, err
	}
	var l oracle.Label
	if err := json.Unmarshal(raw, &l); err != nil {
		return oracle.Label{}, fmt.Errorf("%w: decode text response: %v", analysis.ErrOracle, err)
	}
	if l.Name == "" {
		return oracle.Label{}, fmt.Errorf("%w: text response without label", analysis.ErrOracle)
	}
	l.Score = analysis.Clamp01(l.Score)
	return l, nil
}

// ClassifyImage uploads img as PNG in multipart field "image" to
// /classify/image and expects [{"label","score"}].
func (c *Client) ClassifyImage(ctx context.Context, img image.Image) ([]oracle.Label, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "frame.png")
	if err != nil {
		return nil, err
	}
	if err := png.Encode(part, img); err != nil {
		return nil, fmt.Errorf("%w: encode png: %v", analysis.ErrOracle, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	raw, err := c.do(ctx, "/classify/image", mw.FormDataContentType(), buf.Bytes())
	if err != nil {
		return nil, err
	}
	var labels []oracle.Label
	if err := json.Unmarshal(raw, &labels); err != nil {
		return nil, fmt.Errorf("%w: decode image response: %v", analysis.ErrOracle, err)
	}
	for i := range labels {
		labels[i].Score = analysis.Clamp01(labels[i].Score)
	}
	oracle.SortLabels(labels)
	return labels, nil
}

// Health probes GET /health outside the breaker.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/health", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sidecar health: %s", redact.String(err.Error()))
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("sidecar health: status %d", resp.StatusCode)
	}
	return nil
}

// State reports the breaker state: closed, half-open or open.
func (c *Client) State() string {
	return stateString(c.cb.State())
}

func (c *Client) do(ctx context.Context, path, contentType string, body []byte) ([]byte, error) {
	raw, err := c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		c.authorize(req)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", errCallerGone, ctxErr)
			}
			// http.Client.Timeout expiry lands here and counts as a failure.
			return nil, errors.New(redact.String(err.Error()))
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("%w: %w", errCallerGone, ctxErr)
			}
			return nil, errors.New("read response: " + redact.String(err.Error()))
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode, redact.Preview(string(data), 120))
		}
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", analysis.ErrOracle, c.name, path, err)
	}
	return raw, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func stateString(s gobreaker.State) string {
	switch s {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
