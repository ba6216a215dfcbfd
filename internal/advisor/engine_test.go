package advisor

import (
	"context"
	"errors"
	"sync"
	"testing"

	"aurum/internal/gateway/provider"
	"aurum/internal/gateway/research"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeModel 按调用顺序回放脚本化响应；errs 以 1 起始的调用序号指定失败。
type fakeModel struct {
	mu        sync.Mutex
	responses []string
	errs      map[int]error
	calls     int
	prompts   []string
	onCall    func(n int)
}

func (m *fakeModel) ID() string { return "fake-model" }

func (m *fakeModel) Call(_ context.Context, payload provider.ChatPayload) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.prompts = append(m.prompts, payload.User)
	if m.onCall != nil {
		m.onCall(m.calls)
	}
	if err, ok := m.errs[m.calls]; ok {
		return "", err
	}
	if m.calls <= len(m.responses) {
		return m.responses[m.calls-1], nil
	}
	return "", errors.New("unexpected model call")
}

func (m *fakeModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type fakeEngineOracle struct {
	mu     sync.Mutex
	prices map[string]float64
	calls  []string
}

func (o *fakeEngineOracle) FetchPrice(_ context.Context, sym string) (float64, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, sym)
	p, ok := o.prices[sym]
	return p, ok
}

func (o *fakeEngineOracle) fetched(sym string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, s := range o.calls {
		if s == sym {
			return true
		}
	}
	return false
}

func (o *fakeEngineOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.calls)
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []string
}

func (s *fakeSearch) Search(_ context.Context, query string) research.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return research.Result{Snippets: []research.Snippet{
		{Title: "headline", URL: "https://news.example.com/a", Content: "market is moving"},
	}}
}

const (
	auditResponse = "Looks risky.\n```json\n{\"findings\": \"concentrated in BTC\", \"recommended_adjustments\": [\"trim BTC\"]}\n```"
	planResponse  = "```json\n{\"steps\": [{\"description\": \"news\", \"search_query\": \"btc news\"}, {\"description\": \"macro\", \"search_query\": \"fed rates\"}]}\n```"
	discoveryResp = "```json\n{\"symbols\": [\"SOLUSDT\"]}\n```"
	synthesisResp = "Overall the book is fine.\n```json\n{\"type\": \"analysis_result\", \"data\": {\"text\": \"Narrative here.\", " +
		"\"recommendations\": [{\"action\": \"BUY\", \"asset\": \"BTCUSDT\", \"leverage\": 3, \"suggested_quantity\": 0.01, " +
		"\"confidence\": 0.7, \"reasoning_summary\": \"momentum\"}]}}\n```"
)

func newTestEngine(model *fakeModel, oracle *fakeEngineOracle, search *fakeSearch) *Engine {
	return NewEngine(Config{}, model, oracle, search)
}

func defaultOracle() *fakeEngineOracle {
	return &fakeEngineOracle{prices: map[string]float64{
		"BTCUSDT": 50000,
		"ETHUSDT": 3000,
		"SOLUSDT": 150,
	}}
}

func TestEngineRun_HappyPath(t *testing.T) {
	model := &fakeModel{responses: []string{auditResponse, planResponse, discoveryResp, synthesisResp}}
	oracle := defaultOracle()
	search := &fakeSearch{}
	engine := newTestEngine(model, oracle, search)

	res, err := engine.Run(context.Background(), Request{
		Goal:     "grow steadily",
		Balances: []Balance{{Asset: "USDT", Free: 1000}},
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.NotEmpty(t, res.TraceID)
	assert.Equal(t, "Narrative here.", res.Narrative)
	assert.Equal(t, "concentrated in BTC", res.Audit.Findings)
	require.Len(t, res.Plan.Steps, 2)
	assert.Equal(t, []string{"btc news", "fed rates"}, search.queries)
	require.Len(t, res.Research, 2)

	require.Len(t, res.Recommendations, 1)
	rec := res.Recommendations[0]
	assert.Equal(t, "BTCUSDT", rec.Symbol)
	assert.Equal(t, "BUY", rec.Action)
	assert.InDelta(t, 0.01, rec.Quantity, 1e-12)
	assert.Equal(t, 3, rec.Leverage)
	assert.InDelta(t, 50000, rec.Price, 1e-9)

	// 动态选币阶段应为不在价格簿里的候选补价。
	assert.True(t, oracle.fetched("SOLUSDT"))
	assert.Equal(t, 4, model.callCount())
}

func TestEngineRun_PreCanceledContext(t *testing.T) {
	model := &fakeModel{}
	oracle := defaultOracle()
	engine := newTestEngine(model, oracle, &fakeSearch{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, Request{})
	require.ErrorIs(t, err, ErrCanceled)
	assert.Zero(t, model.callCount())
	assert.Zero(t, oracle.callCount())
}

func TestEngineRun_CancelMidFlight(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	model := &fakeModel{
		errs: map[int]error{1: context.Canceled},
		onCall: func(n int) {
			if n == 1 {
				cancel()
			}
		},
	}
	search := &fakeSearch{}
	engine := newTestEngine(model, defaultOracle(), search)

	_, err := engine.Run(ctx, Request{Goal: "test"})
	require.ErrorIs(t, err, ErrCanceled)
	// 取消后不得再发起任何模型或检索调用。
	assert.Equal(t, 1, model.callCount())
	assert.Empty(t, search.queries)
}

func TestEngineRun_AuditParseFailureFallsBackNeutral(t *testing.T) {
	model := &fakeModel{responses: []string{
		"sorry, I cannot produce structured output today",
		planResponse, discoveryResp, synthesisResp,
	}}
	engine := newTestEngine(model, defaultOracle(), &fakeSearch{})

	res, err := engine.Run(context.Background(), Request{Goal: "test"})
	require.NoError(t, err)
	assert.Empty(t, res.Audit.Findings)
	assert.Empty(t, res.Audit.RecommendedAdjustments)
	assert.Equal(t, "Narrative here.", res.Narrative)
}

func TestEngineRun_PlanParseFailureUsesDeterministicFallback(t *testing.T) {
	model := &fakeModel{responses: []string{
		auditResponse,
		"no plan from me",
		discoveryResp, synthesisResp,
	}}
	search := &fakeSearch{}
	engine := newTestEngine(model, defaultOracle(), search)

	res, err := engine.Run(context.Background(), Request{Goal: "grow steadily"})
	require.NoError(t, err)
	require.Len(t, res.Plan.Steps, 2)
	assert.Equal(t, []string{
		"crypto market news grow steadily",
		"crypto risk events this week",
	}, search.queries)
}

func TestEngineRun_ReasoningServiceErrorIsFatal(t *testing.T) {
	model := &fakeModel{errs: map[int]error{1: &provider.ServiceError{Status: 500, Body: "boom"}}}
	search := &fakeSearch{}
	engine := newTestEngine(model, defaultOracle(), search)

	_, err := engine.Run(context.Background(), Request{Goal: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit:")
	var svcErr *provider.ServiceError
	assert.ErrorAs(t, err, &svcErr)
	assert.Empty(t, search.queries)
}

func TestEngineRun_SynthesisParseFailureIsFatal(t *testing.T) {
	model := &fakeModel{responses: []string{
		auditResponse, planResponse, discoveryResp,
		"narrative only, no structured tail",
	}}
	engine := newTestEngine(model, defaultOracle(), &fakeSearch{})

	_, err := engine.Run(context.Background(), Request{Goal: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "synthesis extraction")
}

func TestEngineRun_SynthesisEnvelopeTypeMismatchIsFatal(t *testing.T) {
	model := &fakeModel{responses: []string{
		auditResponse, planResponse, discoveryResp,
		`{"type": "something_else", "data": {"text": "t", "recommendations": []}}`,
	}}
	engine := newTestEngine(model, defaultOracle(), &fakeSearch{})

	_, err := engine.Run(context.Background(), Request{Goal: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "envelope type")
}

func TestEngineRun_DiscoveryFailureIsSwallowed(t *testing.T) {
	model := &fakeModel{responses: []string{
		auditResponse, planResponse,
		"I could not identify any candidates",
		synthesisResp,
	}}
	engine := newTestEngine(model, defaultOracle(), &fakeSearch{})

	res, err := engine.Run(context.Background(), Request{Goal: "test"})
	require.NoError(t, err)
	assert.Equal(t, "Narrative here.", res.Narrative)
}

func TestEngineRun_ResearchStepsCapped(t *testing.T) {
	plan3 := "```json\n{\"steps\": [" +
		"{\"description\": \"a\", \"search_query\": \"q1\"}, " +
		"{\"description\": \"b\", \"search_query\": \"q2\"}, " +
		"{\"description\": \"c\", \"search_query\": \"q3\"}]}\n```"
	model := &fakeModel{responses: []string{auditResponse, plan3, discoveryResp, synthesisResp}}
	search := &fakeSearch{}
	engine := newTestEngine(model, defaultOracle(), search)

	res, err := engine.Run(context.Background(), Request{Goal: "test"})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, search.queries)
	assert.Len(t, res.Research, 2)
}

func TestEngineRun_PlaceholderGoalReplaced(t *testing.T) {
	model := &fakeModel{responses: []string{auditResponse, planResponse, discoveryResp, synthesisResp}}
	engine := newTestEngine(model, defaultOracle(), &fakeSearch{})

	_, err := engine.Run(context.Background(), Request{Goal: "none"})
	require.NoError(t, err)
	require.NotEmpty(t, model.prompts)
	assert.Contains(t, model.prompts[0], "Review my portfolio")
	assert.NotContains(t, model.prompts[0], "# Goal\nnone")
}

func TestEngineRun_PositionSymbolsPriced(t *testing.T) {
	oracle := defaultOracle()
	oracle.prices["DOGEUSDT"] = 0.2
	model := &fakeModel{responses: []string{auditResponse, planResponse, discoveryResp, synthesisResp}}
	engine := newTestEngine(model, oracle, &fakeSearch{})

	_, err := engine.Run(context.Background(), Request{
		Goal:      "test",
		Positions: []Position{{Symbol: "doge/usdt", UnrealizedProfit: 5}},
	})
	require.NoError(t, err)
	assert.True(t, oracle.fetched("DOGEUSDT"))
	// 价格簿内容应进入审计提示词。
	assert.Contains(t, model.prompts[0], "DOGEUSDT: 0.2")
}
