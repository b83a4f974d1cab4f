package deepface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/saturnino-fabrica-de-software/facecheck/internal/domain"
	"github.com/saturnino-fabrica-de-software/facecheck/internal/provider"
)

// BypassHeader skips the interstitial warning page of tunnelling proxies
// (ngrok) that sit in front of the inference service
const BypassHeader = "ngrok-skip-browser-warning"

// Config holds the configuration for the DeepFace client
type Config struct {
	BaseURL string
	Timeout time.Duration
	// HTTPClient overrides the client built from Timeout, so several Clients
	// can share one connection pool
	HTTPClient *http.Client
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:5005",
		Timeout: 30 * time.Second,
	}
}

// Client is the HTTP client for the face-analysis API
type Client struct {
	httpClient *http.Client
	config     Config
}

// NewClient creates a new DeepFace client
func NewClient(config Config) *Client {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}
	return &Client{
		httpClient: httpClient,
		config:     config,
	}
}

// BaseURL returns the service root the client talks to
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// Models calls GET /models
func (c *Client) Models(ctx context.Context) (*domain.Catalog, error) {
	var resp domain.Catalog
	if err := c.fetch(ctx, "/models", &resp); err != nil {
		return nil, err
	}
	if resp.Models == nil {
		return nil, fmt.Errorf("%w: models field missing", ErrInvalidResponse)
	}
	return &resp, nil
}

// Compare calls POST /compare with both images and the active selection
func (c *Client) Compare(ctx context.Context, req provider.CompareRequest) (*domain.ComparisonResult, error) {
	form := NewForm().
		File("image1", req.Image1).
		File("image2", req.Image2).
		Field("model", req.Model).
		Field("distance_metric", string(req.Metric)).
		Field("threshold", strconv.FormatFloat(req.Threshold, 'f', -1, 64)).
		OptionalField("detector_backend", req.Detector)

	var resp domain.ComparisonResult
	if err := c.mutate(ctx, "/compare", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CheckLiveness calls POST /liveness-check
func (c *Client) CheckLiveness(ctx context.Context, req provider.LivenessRequest) (*domain.LivenessResult, error) {
	form := NewForm().
		File("image", req.Image).
		OptionalField("detector_backend", req.Detector)

	var resp domain.LivenessResult
	if err := c.mutate(ctx, "/liveness-check", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Analyze calls POST /analyze. The detector backend is not sent: the service
// picks its own for demographic analysis.
func (c *Client) Analyze(ctx context.Context, image provider.Image) (*provider.AnalyzeResponse, error) {
	form := NewForm().File("image", image)

	var resp provider.AnalyzeResponse
	if err := c.mutate(ctx, "/analyze", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// fetch performs a read request expecting JSON
func (c *Client) fetch(ctx context.Context, path string, result interface{}) error {
	return c.doRequest(ctx, http.MethodGet, path, nil, result, "Fetch error")
}

// mutate performs a POST. body is either a *Form, sent as multipart, or any
// JSON-marshalable value.
func (c *Client) mutate(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.doRequest(ctx, http.MethodPost, path, body, result, "Mutator error")
}

// doRequest executes a single HTTP request. There are no retries, the user
// resubmits.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, result interface{}, label string) error {
	var bodyReader io.Reader
	contentType := ""

	switch b := body.(type) {
	case nil:
	case *Form:
		reader, formType, err := b.encode()
		if err != nil {
			return fmt.Errorf("encode form: %w", err)
		}
		bodyReader = reader
		contentType = formType
	default:
		bodyBytes, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set(BypassHeader, "true")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return provider.NewTransportError(label, resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
	}

	return nil
}

func (c *Client) url(path string) string {
	return strings.TrimRight(c.config.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

var _ provider.Inference = (*Client)(nil)
