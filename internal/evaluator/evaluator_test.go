package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-radar/internal/model"
	"github.com/sells-group/contract-radar/internal/resilience"
	"github.com/sells-group/contract-radar/pkg/anthropic"
)

// fakeClient implements anthropic.Client with a programmable response.
type fakeClient struct {
	calls     int
	createFn  func(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
	lastReq   anthropic.MessageRequest
	gotSystem []anthropic.SystemBlock
}

func (f *fakeClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	f.lastReq = req
	f.gotSystem = req.System
	return f.createFn(ctx, req)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:      "msg_1",
		Model:   "claude-sonnet-4-5-20250929",
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}
}

const goodJSON = `{"fit_score": 82, "win_probability": 61, "recommendation": "BID",
"strengths": ["NAICS match"], "weaknesses": ["tight timeline"], "reasoning": "solid fit",
"risk_factors": ["incumbent"], "naics_match": 95, "set_aside_match": 80,
"geographic_match": 70, "contract_value_match": 60}`

func testPair() (*model.Opportunity, *model.CompanyProfile) {
	deadline := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	opp := &model.Opportunity{
		ID:        "opp-1",
		Title:     "Cloud Modernization BPA",
		Agency:    "GSA",
		NAICSCode: "541511",
		SetAside:  "SBA",
		ValueMin:  1_000_000,
		ValueMax:  5_000_000,
		Deadline:  &deadline,
	}
	profile := &model.CompanyProfile{
		ID:            "co-1",
		Name:          "Acme Federal",
		NAICSCodes:    []string{"541511", "541512"},
		SetAsideCodes: []string{"SBA"},
		Capabilities:  "cloud migration, devsecops",
		Version:       4,
	}
	return opp, profile
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func newTestEvaluator(fc *fakeClient) *ClaudeEvaluator {
	return NewClaude(fc, Config{
		Model:             "claude-sonnet-4-5-20250929",
		RequestsPerSecond: 1000,
		Burst:             1000,
		Retry:             fastRetry(),
	})
}

func TestEvaluate_ParsesScores(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(goodJSON), nil
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	res, err := e.Evaluate(context.Background(), opp, profile)
	require.NoError(t, err)
	assert.Equal(t, 82, res.FitScore)
	assert.Equal(t, 61, res.WinProbability)
	assert.Equal(t, model.RecommendationBid, res.Recommendation)
	assert.Equal(t, []string{"NAICS match"}, res.Strengths)
	assert.Equal(t, "claude-sonnet-4-5-20250929", res.ModelVersion)
}

func TestEvaluate_StripsSurroundingText(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse("Here is the assessment:\n```json\n" + goodJSON + "\n```\n"), nil
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	res, err := e.Evaluate(context.Background(), opp, profile)
	require.NoError(t, err)
	assert.Equal(t, 82, res.FitScore)
}

func TestEvaluate_EmptyResponse(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return &anthropic.MessageResponse{ID: "msg_1"}, nil
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	_, err := e.Evaluate(context.Background(), opp, profile)
	require.Error(t, err)
}

func TestEvaluate_MalformedJSON(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{"fit_score": "very high"}`), nil
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	_, err := e.Evaluate(context.Background(), opp, profile)
	require.Error(t, err)
}

func TestEvaluate_OutOfRangeScoreRejected(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{"fit_score": 140, "win_probability": 50, "recommendation": "BID",
			"naics_match": 0, "set_aside_match": 0, "geographic_match": 0, "contract_value_match": 0}`), nil
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	_, err := e.Evaluate(context.Background(), opp, profile)
	require.Error(t, err)
}

func TestEvaluate_UnknownRecommendationRejected(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(`{"fit_score": 50, "win_probability": 50, "recommendation": "MAYBE"}`), nil
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	_, err := e.Evaluate(context.Background(), opp, profile)
	require.Error(t, err)
}

func TestEvaluate_RetriesTransientFailure(t *testing.T) {
	fc := &fakeClient{}
	fc.createFn = func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if fc.calls < 2 {
			return nil, resilience.NewTransientError(errors.New("overloaded"), 529)
		}
		return textResponse(goodJSON), nil
	}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	res, err := e.Evaluate(context.Background(), opp, profile)
	require.NoError(t, err)
	assert.Equal(t, 82, res.FitScore)
	assert.Equal(t, 2, fc.calls)
}

func TestEvaluate_NonTransientFailureNotRetried(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return nil, errors.New("invalid_request_error")
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	_, err := e.Evaluate(context.Background(), opp, profile)
	require.Error(t, err)
	assert.Equal(t, 1, fc.calls)
}

func TestEvaluate_ProfileContextInSystemBlocks(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(goodJSON), nil
	}}
	e := newTestEvaluator(fc)
	opp, profile := testPair()

	_, err := e.Evaluate(context.Background(), opp, profile)
	require.NoError(t, err)

	require.Len(t, fc.gotSystem, 2)
	assert.Contains(t, fc.gotSystem[1].Text, "Acme Federal")
	assert.Contains(t, fc.gotSystem[1].Text, "541511")
	require.NotNil(t, fc.gotSystem[1].CacheControl, "profile block should be cacheable")

	user := fc.lastReq.Messages[0].Content
	assert.Contains(t, user, "Cloud Modernization BPA")
	assert.Contains(t, user, "2026-10-01")
}

func TestWarmCache_SendsPrimer(t *testing.T) {
	fc := &fakeClient{createFn: func(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		assert.EqualValues(t, 16, req.MaxTokens)
		return textResponse("ok"), nil
	}}
	e := newTestEvaluator(fc)
	_, profile := testPair()

	require.NoError(t, e.WarmCache(context.Background(), profile))
	assert.Equal(t, 1, fc.calls)
}

func TestEvaluate_TruncatesLongDescription(t *testing.T) {
	opp, profile := testPair()
	long := make([]byte, maxDescriptionChars+500)
	for i := range long {
		long[i] = 'x'
	}
	opp.Description = string(long)

	fc := &fakeClient{createFn: func(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		return textResponse(goodJSON), nil
	}}
	e := newTestEvaluator(fc)

	_, err := e.Evaluate(context.Background(), opp, profile)
	require.NoError(t, err)
	assert.Less(t, len(fc.lastReq.Messages[0].Content), maxDescriptionChars+1000)
}
