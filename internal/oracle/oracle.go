// File: internal/oracle/oracle.go
// Description: Vision/planning oracle adapter. Wraps one Gemini
// generateContent call per analysis and repackages the deterministic
// classifier output whenever the remote path is unavailable or misbehaves.
// The fallback is total: Analyze never propagates a remote failure.

package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot-cli/api/schemas"
	"github.com/xkilldash9x/webpilot-cli/internal/classifier"
	"github.com/xkilldash9x/webpilot-cli/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Adapter implements schemas.Oracle against the Gemini generateContent API.
type Adapter struct {
	cfg        config.OracleConfig
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// New creates the adapter. An empty API key is valid; the adapter then serves
// every analysis from the classifier fallback.
func New(cfg config.OracleConfig, logger *zap.Logger) *Adapter {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://generativelanguage.googleapis.com/v1beta/models/%s:generateContent", cfg.Model)
	}

	perMinute := cfg.RatePerMinute
	if perMinute <= 0 {
		perMinute = 10
	}

	return &Adapter{
		cfg:      cfg,
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		// The limiter spaces analyses across runs; a single analysis still
		// makes at most one remote attempt.
		limiter: rate.NewLimiter(rate.Limit(perMinute/60.0), 1),
		logger:  logger.Named("oracle"),
	}
}

// Analyze maps a (screenshot, goal) pair to elements, a summary, and a
// suggested plan. Any remote problem (credential, network, rate, parse)
// resolves locally to the classifier's deterministic output.
func (a *Adapter) Analyze(ctx context.Context, screenshot []byte, goal string) (schemas.Analysis, error) {
	if a.cfg.APIKey == "" {
		a.logger.Debug("No oracle credential configured; using classifier fallback")
		return a.fallback(goal), nil
	}
	if !a.limiter.Allow() {
		a.logger.Warn("Oracle rate limit reached; using classifier fallback")
		return a.fallback(goal), nil
	}

	analysis, err := a.analyzeRemote(ctx, screenshot, goal)
	if err != nil {
		a.logger.Warn("Remote analysis failed; using classifier fallback", zap.Error(err))
		return a.fallback(goal), nil
	}
	return analysis, nil
}

// fallback repackages the classifier plan into the oracle response shape.
func (a *Adapter) fallback(goal string) schemas.Analysis {
	plan := classifier.Classify(goal)

	elements := make([]schemas.UIElement, 0, len(plan))
	for _, action := range plan {
		if action.Target != nil {
			elements = append(elements, *action.Target)
		}
	}

	summary := fmt.Sprintf("Planned %d action(s) from the goal vocabulary.", len(plan))
	if len(plan) == 0 {
		summary = "The goal matched no known vocabulary; nothing to execute."
	}

	return schemas.Analysis{
		Elements: elements,
		Summary:  summary,
		Actions:  plan,
	}
}

// -- Remote Path --

// Gemini API request/response structures (internal to this file).
type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiSystemInstruction struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequestPayload struct {
	Contents          []geminiContent          `json:"contents"`
	SystemInstruction *geminiSystemInstruction `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig   `json:"generationConfig,omitempty"`
}

type geminiResponsePayload struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

const systemPrompt = `You are the planning oracle of 'webpilot-cli', a browser automation agent.
You receive a screenshot of the current page and the user's goal.
Respond ONLY with a single JSON object of this exact shape:
{
  "summary": "<one sentence describing the plan>",
  "elements": [{"tag": "button", "text": "Add to Cart", "box": {"x": 0, "y": 0, "width": 0, "height": 0}, "clickable": true, "inputable": false}],
  "actions": [{"kind": "click|type|select|wait|navigate|scroll", "element": 0, "value": "", "description": "..."}]
}
Box values are percentages of the viewport (0-100). "element" is an index into
"elements"; use -1 for actions with no target (wait, navigate, scroll).
List actions in the order they must be executed.`

// analyzeRemote performs exactly one generateContent attempt. No retries: any
// failure is the caller's cue to fall back.
func (a *Adapter) analyzeRemote(ctx context.Context, screenshot []byte, goal string) (schemas.Analysis, error) {
	userParts := []geminiPart{
		{Text: fmt.Sprintf("Goal: %s\n\nPlan the UI actions for the attached screenshot.", goal)},
	}
	if len(screenshot) > 0 {
		userParts = append(userParts, geminiPart{
			InlineData: &geminiInlineData{
				MimeType: "image/png",
				Data:     base64.StdEncoding.EncodeToString(screenshot),
			},
		})
	}

	payload := geminiRequestPayload{
		Contents: []geminiContent{{Role: "user", Parts: userParts}},
		SystemInstruction: &geminiSystemInstruction{
			Parts: []geminiPart{{Text: systemPrompt}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:      0.2,
			ResponseMimeType: "application/json",
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.Analysis{}, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, a.endpoint, bytes.NewReader(body))
	if err != nil {
		return schemas.Analysis{}, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", a.cfg.APIKey)

	startTime := time.Now()
	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return schemas.Analysis{}, fmt.Errorf("failed to execute HTTP request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return schemas.Analysis{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return schemas.Analysis{}, fmt.Errorf("oracle API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var responsePayload geminiResponsePayload
	if err := json.Unmarshal(respBody, &responsePayload); err != nil {
		return schemas.Analysis{}, fmt.Errorf("failed to decode response payload: %w", err)
	}
	if len(responsePayload.Candidates) == 0 {
		return schemas.Analysis{}, fmt.Errorf("oracle API returned no candidates")
	}
	candidate := responsePayload.Candidates[0]
	if len(candidate.Content.Parts) == 0 {
		return schemas.Analysis{}, fmt.Errorf("oracle API returned empty content parts (reason: %s)", candidate.FinishReason)
	}

	a.logger.Info("Oracle analysis complete",
		zap.Duration("duration", time.Since(startTime)),
		zap.Int("prompt_tokens", responsePayload.UsageMetadata.PromptTokenCount),
		zap.Int("completion_tokens", responsePayload.UsageMetadata.CandidatesTokenCount),
	)

	return parseAnalysis(candidate.Content.Parts[0].Text)
}
