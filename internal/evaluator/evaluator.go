// Package evaluator scores (opportunity, company) pairs with Claude.
package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/internal/resilience"
	"github.com/sells-group/contract-radar/pkg/anthropic"
)

// systemPrompt instructs the model to act as a capture analyst and return
// strictly structured JSON.
const systemPrompt = `You are a federal contracting capture analyst. Given a company profile and a contract opportunity, assess how well the opportunity fits the company and how likely the company is to win it.

All numeric scores are integers from 0 to 100. The recommendation must be exactly one of BID, NO_BID, RESEARCH.

Respond with ONLY valid JSON, no other text:
{"fit_score": 0, "win_probability": 0, "recommendation": "RESEARCH", "strengths": [], "weaknesses": [], "reasoning": "", "risk_factors": [], "naics_match": 0, "set_aside_match": 0, "geographic_match": 0, "contract_value_match": 0}`

// maxDescriptionChars is the truncation limit for the opportunity description
// sent to Claude.
const maxDescriptionChars = 16000 // ~4K tokens

// Evaluator scores one pair per call. Implementations must be safe for
// concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, opp *model.Opportunity, profile *model.CompanyProfile) (*model.ScoreResult, error)
}

// Config tunes the Claude-backed evaluator.
type Config struct {
	Model             string
	MaxTokens         int64
	RequestsPerSecond float64
	Burst             int
	Retry             resilience.RetryConfig
}

// ClaudeEvaluator implements Evaluator against the Anthropic API with a
// shared rate limiter and retry on transient failures.
type ClaudeEvaluator struct {
	client  anthropic.Client
	cfg     Config
	limiter *rate.Limiter
}

// NewClaude creates a ClaudeEvaluator. Zero config fields get sane defaults.
func NewClaude(client anthropic.Client, cfg Config) *ClaudeEvaluator {
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5-20250929"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}
	cfg.Retry.OnRetry = resilience.RetryLogger("anthropic", "create_message")

	return &ClaudeEvaluator{
		client:  client,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// WarmCache sends a primer request so that subsequent worker requests during
// a bulk re-score hit the prompt cache for the profile context. Failures are
// non-fatal; callers should log and continue.
func (e *ClaudeEvaluator) WarmCache(ctx context.Context, profile *model.CompanyProfile) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "evaluator: rate limit wait")
	}

	_, err := anthropic.PrimerRequest(ctx, e.client, anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: 16,
		System:    e.systemBlocks(profile),
		Messages:  []anthropic.Message{{Role: "user", Content: "ready"}},
	})
	return err
}

// Evaluate sends one scoring request and parses the structured result.
func (e *ClaudeEvaluator) Evaluate(ctx context.Context, opp *model.Opportunity, profile *model.CompanyProfile) (*model.ScoreResult, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "evaluator: rate limit wait")
	}

	req := anthropic.MessageRequest{
		Model:     e.cfg.Model,
		MaxTokens: e.cfg.MaxTokens,
		System:    e.systemBlocks(profile),
		Messages:  []anthropic.Message{{Role: "user", Content: buildOpportunityPrompt(opp)}},
	}

	resp, err := resilience.DoVal(ctx, e.cfg.Retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return e.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return nil, eris.Wrap(err, "evaluator: claude request")
	}

	resp.Usage.LogCost(e.cfg.Model, "evaluate")

	result, err := parseScoreResult(resp)
	if err != nil {
		zap.L().Warn("evaluator: unusable response",
			zap.String("opportunity_id", opp.ID),
			zap.Error(err),
		)
		return nil, err
	}

	return result, nil
}

// systemBlocks returns the static instructions plus the profile context as a
// cacheable block shared across a bulk run.
func (e *ClaudeEvaluator) systemBlocks(profile *model.CompanyProfile) []anthropic.SystemBlock {
	return []anthropic.SystemBlock{
		{Text: systemPrompt},
		{
			Text:         buildProfileContext(profile),
			CacheControl: &anthropic.CacheControl{TTL: "1h"},
		},
	}
}

// buildProfileContext renders the scoring-relevant profile fields.
func buildProfileContext(p *model.CompanyProfile) string {
	var b strings.Builder
	b.WriteString("COMPANY PROFILE\n")
	fmt.Fprintf(&b, "Name: %s\n", p.Name)
	fmt.Fprintf(&b, "NAICS codes: %s\n", strings.Join(p.NAICSCodes, ", "))
	fmt.Fprintf(&b, "Set-aside certifications: %s\n", strings.Join(p.SetAsideCodes, ", "))
	fmt.Fprintf(&b, "Capabilities: %s\n", p.Capabilities)
	if p.ContractValueMin > 0 || p.ContractValueMax > 0 {
		fmt.Fprintf(&b, "Target contract value: $%d - $%d\n", p.ContractValueMin, p.ContractValueMax)
	}
	if len(p.GeographicPreferences) > 0 {
		fmt.Fprintf(&b, "Geographic preferences: %s\n", strings.Join(p.GeographicPreferences, ", "))
	}
	if len(p.Certifications) > 0 {
		fmt.Fprintf(&b, "Other certifications: %s\n", strings.Join(p.Certifications, ", "))
	}
	return b.String()
}

// buildOpportunityPrompt renders the opportunity for the user message.
func buildOpportunityPrompt(o *model.Opportunity) string {
	desc := o.Description
	if len(desc) > maxDescriptionChars {
		desc = desc[:maxDescriptionChars]
	}

	var b strings.Builder
	b.WriteString("OPPORTUNITY\n")
	fmt.Fprintf(&b, "Title: %s\n", o.Title)
	fmt.Fprintf(&b, "Agency: %s\n", o.Agency)
	fmt.Fprintf(&b, "NAICS code: %s\n", o.NAICSCode)
	fmt.Fprintf(&b, "Set-aside: %s\n", o.SetAside)
	if o.ValueMin > 0 || o.ValueMax > 0 {
		fmt.Fprintf(&b, "Estimated value: $%d - $%d\n", o.ValueMin, o.ValueMax)
	}
	if o.PlaceOfPerformance != "" {
		fmt.Fprintf(&b, "Place of performance: %s\n", o.PlaceOfPerformance)
	}
	if o.Deadline != nil {
		fmt.Fprintf(&b, "Response deadline: %s\n", o.Deadline.Format("2006-01-02"))
	}
	if desc != "" {
		fmt.Fprintf(&b, "\nDescription:\n%s\n", desc)
	}
	return b.String()
}

// parseScoreResult extracts and validates the JSON score from a response.
// Any parse or validation failure rejects the whole result.
func parseScoreResult(resp *anthropic.MessageResponse) (*model.ScoreResult, error) {
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, eris.New("evaluator: empty claude response")
	}

	// Find JSON in the response (it may have surrounding text or fences).
	jsonStart := strings.Index(text, "{")
	jsonEnd := strings.LastIndex(text, "}")
	if jsonStart < 0 || jsonEnd < 0 || jsonEnd <= jsonStart {
		return nil, eris.Errorf("evaluator: no JSON in response: %s", text)
	}

	var result model.ScoreResult
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &result); err != nil {
		return nil, eris.Wrap(err, "evaluator: parse response JSON")
	}

	if err := result.Validate(); err != nil {
		return nil, eris.Wrap(err, "evaluator: invalid score result")
	}

	result.ModelVersion = resp.Model
	return &result, nil
}
