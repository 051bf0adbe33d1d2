package plausibility

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/warp/weg-settlement/weg"
)

// =============================================================================
// PROVIDER - External heuristic assessor
// =============================================================================

// Assessment is the provider's structured answer.
type Assessment struct {
	OverallAssessment Status   `json:"overall_assessment"`
	Confidence        float64  `json:"confidence"`
	IssuesFound       []string `json:"issues_found"`
	Summary           string   `json:"summary"`
}

// Validate rejects answers the verdict merge cannot interpret.
func (a Assessment) Validate() error {
	switch a.OverallAssessment {
	case StatusPass, StatusWarning, StatusCritical:
	default:
		return fmt.Errorf("overall_assessment %q not one of pass, warning, critical", a.OverallAssessment)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return fmt.Errorf("confidence %v out of range [0, 1]", a.Confidence)
	}
	return nil
}

// Provider analyzes a prompt. Implementations must honour ctx cancellation.
type Provider interface {
	Analyze(ctx context.Context, prompt string) (Assessment, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, prompt string) (Assessment, error)

func (f ProviderFunc) Analyze(ctx context.Context, prompt string) (Assessment, error) {
	return f(ctx, prompt)
}

// =============================================================================
// HTTP PROVIDER - OpenAI-compatible chat completions
// =============================================================================

const systemPrompt = `You audit annual condominium (WEG) cost settlements for one unit.
Answer with a single JSON object and nothing else:
{"overall_assessment": "pass|warning|critical", "confidence": 0.0-1.0, "issues_found": ["..."], "summary": "..."}`

// HTTPProviderConfig configures HTTPProvider.
type HTTPProviderConfig struct {
	// URL is the full chat completions endpoint.
	URL    string
	APIKey string
	Model  string

	HTTPClient *http.Client
}

// HTTPProvider calls an OpenAI-compatible chat completions endpoint and
// expects the message content to be an Assessment as JSON.
type HTTPProvider struct {
	cfg HTTPProviderConfig
}

func NewHTTPProvider(cfg HTTPProviderConfig) *HTTPProvider {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	return &HTTPProvider{cfg: cfg}
}

func (p *HTTPProvider) Analyze(ctx context.Context, prompt string) (Assessment, error) {
	url := strings.TrimSpace(p.cfg.URL)
	model := strings.TrimSpace(p.cfg.Model)
	if url == "" {
		return Assessment{}, fmt.Errorf("%w: url is required", weg.ErrProviderUnavailable)
	}
	if model == "" {
		return Assessment{}, fmt.Errorf("%w: model is required", weg.ErrProviderUnavailable)
	}

	requestBody, err := json.Marshal(map[string]any{
		"model": model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("marshal analyze request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return Assessment{}, fmt.Errorf("build analyze request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(p.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	res, err := p.cfg.HTTPClient.Do(req)
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: analyze request failed: %w", weg.ErrProviderUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, err := io.ReadAll(io.LimitReader(res.Body, 4096))
		if err != nil {
			return Assessment{}, fmt.Errorf("%w: read analyze error body: %w", weg.ErrProviderUnavailable, err)
		}
		return Assessment{}, fmt.Errorf("%w: analyze request status %d: %s", weg.ErrProviderUnavailable, res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Assessment{}, fmt.Errorf("%w: decode analyze response: %w", weg.ErrProviderUnavailable, err)
	}
	content := ""
	for _, choice := range payload.Choices {
		if c := strings.TrimSpace(choice.Message.Content); c != "" {
			content = c
			break
		}
	}
	if content == "" {
		return Assessment{}, fmt.Errorf("%w: analyze response missing content", weg.ErrProviderUnavailable)
	}

	return ParseAssessment(content)
}

// ParseAssessment decodes model output, tolerating a fenced code block.
func ParseAssessment(content string) (Assessment, error) {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	}

	var a Assessment
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return Assessment{}, fmt.Errorf("%w: malformed assessment: %w", weg.ErrProviderUnavailable, err)
	}
	a.OverallAssessment = Status(strings.ToLower(strings.TrimSpace(string(a.OverallAssessment))))
	if err := a.Validate(); err != nil {
		return Assessment{}, fmt.Errorf("%w: %w", weg.ErrProviderUnavailable, err)
	}
	return a, nil
}
