package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivlev/storyreel/internal/config"
	"github.com/ivlev/storyreel/internal/retry"
	"github.com/ivlev/storyreel/internal/scene"
)

// ProviderError is a non-2xx reply from the generation service.
type ProviderError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

func (e *ProviderError) RateLimited() bool { return e.StatusCode == http.StatusTooManyRequests }

// Retryable is true for rate limits, timeouts and server errors. Other
// client errors are permanent.
func (e *ProviderError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return true
	}
	return e.StatusCode >= 500
}

// HTTPProvider implements all three collaborators against one JSON service:
//
//	POST {base}/narration {"topic", "scenes"} -> {"scenes": [...]}
//	POST {base}/visual    {"narration", "aspect"} -> {"kind", "uri"}
//	POST {base}/speech    {"text"} -> {"uri"}
type HTTPProvider struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

func NewHTTPProvider(baseURL, token string, log *zap.Logger) *HTTPProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &HTTPProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		log:        log,
	}
}

func (p *HTTPProvider) WriteNarration(ctx context.Context, topic string, scenes int) ([]string, error) {
	var resp struct {
		Scenes []string `json:"scenes"`
	}
	err := p.post(ctx, "narration", map[string]any{"topic": topic, "scenes": scenes}, &resp)
	return resp.Scenes, err
}

func (p *HTTPProvider) GenerateVisual(ctx context.Context, narration string, aspect config.AspectRatio) (scene.Visual, error) {
	var resp struct {
		Kind string `json:"kind"`
		URI  string `json:"uri"`
	}
	if err := p.post(ctx, "visual", map[string]any{"narration": narration, "aspect": string(aspect)}, &resp); err != nil {
		return scene.Visual{}, err
	}
	kind := scene.VisualKind(resp.Kind)
	if kind == scene.VisualNone {
		kind = scene.VisualImage
	}
	return scene.Visual{Kind: kind, URI: resp.URI}, nil
}

func (p *HTTPProvider) Synthesize(ctx context.Context, text string) (string, error) {
	var resp struct {
		URI string `json:"uri"`
	}
	err := p.post(ctx, "speech", map[string]any{"text": text}, &resp)
	return resp.URI, err
}

// post sends one request. Errors that retrying cannot fix come back marked
// permanent.
func (p *HTTPProvider) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal %s request: %w", endpoint, err))
	}
	url := fmt.Sprintf("%s/%s", p.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	p.log.Debug("provider request", zap.String("url", url), zap.Int("body_bytes", len(body)))
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		perr := &ProviderError{Endpoint: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
		if !perr.Retryable() {
			return retry.Permanent(perr)
		}
		return perr
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return retry.Permanent(fmt.Errorf("decode %s response: %w", endpoint, err))
	}
	return nil
}
