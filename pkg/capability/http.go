package capability

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

const (
	defaultMaxResponseBytes = 8 << 20
	defaultInlineBytes      = 16 << 10
)

// AuthStyle selects how the API key is attached to requests.
type AuthStyle int

const (
	AuthBearer AuthStyle = iota
	AuthHeader
	AuthQuery
	AuthRawHeader
)

// Endpoint describes how an HTTPProvider talks to its service.
type Endpoint struct {
	// URL returns the request URL for the given arguments.
	URL func(args map[string]any) (string, error)
	// Body builds the JSON request body.
	Body func(args map[string]any) (any, error)
	// Auth selects where the key goes; HeaderName names the header or query parameter.
	Auth       AuthStyle
	HeaderName string
	// Accept is sent as the Accept header when set.
	Accept string
}

// HTTPProvider invokes a capability over a JSON HTTP API. One provider shares
// its http.Client and rate limiter across all requests.
type HTTPProvider struct {
	spec        Spec
	endpoint    Endpoint
	apiKey      string
	client      *http.Client
	limiter     *rate.Limiter
	maxResponse int64
	maxInline   int
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(p *HTTPProvider) {
		p.client = client
	}
}

// WithRateLimit sets the shared request rate. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) HTTPOption {
	return func(p *HTTPProvider) {
		if perSecond <= 0 {
			p.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithInlineLimit sets the largest binary response returned inline as base64.
func WithInlineLimit(n int) HTTPOption {
	return func(p *HTTPProvider) {
		p.maxInline = n
	}
}

// WithMaxResponseBytes bounds the response body read from the service.
func WithMaxResponseBytes(n int64) HTTPOption {
	return func(p *HTTPProvider) {
		if n > 0 {
			p.maxResponse = n
		}
	}
}

// NewHTTPProvider creates an HTTP-backed provider.
func NewHTTPProvider(spec Spec, endpoint Endpoint, apiKey string, opts ...HTTPOption) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s: API key is required", spec.Name)
	}
	if endpoint.URL == nil || endpoint.Body == nil {
		return nil, fmt.Errorf("%s: endpoint URL and body builders are required", spec.Name)
	}

	p := &HTTPProvider{
		spec:        spec,
		endpoint:    endpoint,
		apiKey:      apiKey,
		client:      http.DefaultClient,
		maxResponse: defaultMaxResponseBytes,
		maxInline:   defaultInlineBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Spec returns the capability description.
func (p *HTTPProvider) Spec() Spec {
	return p.spec
}

// Invoke sends the request and decodes the response.
func (p *HTTPProvider) Invoke(ctx context.Context, args map[string]any) (map[string]any, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: rate limiter: %w", p.spec.Name, err)
		}
	}

	url, err := p.endpoint.URL(args)
	if err != nil {
		return nil, err
	}
	body, err := p.endpoint.Body(args)
	if err != nil {
		return nil, err
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: marshal request: %v", ErrInvalidArguments, p.spec.Name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.spec.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.endpoint.Accept != "" {
		req.Header.Set("Accept", p.endpoint.Accept)
	}
	p.authorize(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.spec.Name, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxResponse+1))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", p.spec.Name, err)
	}
	if int64(len(data)) > p.maxResponse {
		return nil, fmt.Errorf("%w: %s response too large (over %d bytes)", ErrProviderError, p.spec.Name, p.maxResponse)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned status %d: %s", ErrProviderError, p.spec.Name, resp.StatusCode, snippet(data))
	}

	return p.decode(resp.Header.Get("Content-Type"), data)
}

func (p *HTTPProvider) authorize(req *http.Request) {
	switch p.endpoint.Auth {
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	case AuthHeader:
		req.Header.Set(p.endpoint.HeaderName, p.apiKey)
	case AuthRawHeader:
		req.Header.Set("Authorization", p.apiKey)
	case AuthQuery:
		q := req.URL.Query()
		q.Set(p.endpoint.HeaderName, p.apiKey)
		req.URL.RawQuery = q.Encode()
	}
}

// decode returns JSON objects as-is; other content is summarized as metadata.
func (p *HTTPProvider) decode(contentType string, data []byte) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "" || strings.HasSuffix(mediaType, "json") {
		var decoded any
		if err := json.Unmarshal(data, &decoded); err == nil {
			if obj, ok := decoded.(map[string]any); ok {
				return obj, nil
			}
			return map[string]any{"items": decoded}, nil
		}
		if mediaType != "" {
			return nil, fmt.Errorf("%w: %s returned malformed JSON", ErrProviderError, p.spec.Name)
		}
	}

	payload := map[string]any{
		"content_type": mediaType,
		"size_bytes":   len(data),
	}
	if strings.HasPrefix(mediaType, "text/") {
		payload["text"] = string(data)
	} else if len(data) <= p.maxInline {
		payload["data_base64"] = base64.StdEncoding.EncodeToString(data)
	}
	return payload, nil
}

func snippet(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
