package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"aurum/internal/gateway/provider"
	"aurum/internal/gateway/research"
	"aurum/internal/logger"
	"aurum/internal/pkg/jsonx"
	"aurum/internal/pkg/symbol"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrCanceled 表示调用方取消了本次分析；与普通失败区分上报。
var ErrCanceled = errors.New("analysis canceled")

// SearchClient 抽象检索服务；实现必须降级而非报错。
type SearchClient interface {
	Search(ctx context.Context, query string) research.Result
}

// Config 是编排器的全部可调参数；构造后只读。
type Config struct {
	Benchmarks          []string
	Temperature         float64
	MaxResearchSteps    int
	MaxDiscoverySymbols int
	PriceConcurrency    int
	ResponseLanguage    string
	DefaultGoal         string
	Validator           ValidatorConfig
}

func (c *Config) withDefaults() Config {
	out := *c
	if len(out.Benchmarks) == 0 {
		out.Benchmarks = []string{"BTCUSDT", "ETHUSDT"}
	}
	if out.Temperature <= 0 {
		out.Temperature = 0.4
	}
	if out.MaxResearchSteps <= 0 {
		out.MaxResearchSteps = 2
	}
	if out.MaxDiscoverySymbols <= 0 {
		out.MaxDiscoverySymbols = 5
	}
	if out.PriceConcurrency <= 0 {
		out.PriceConcurrency = 4
	}
	if strings.TrimSpace(out.ResponseLanguage) == "" {
		out.ResponseLanguage = "en"
	}
	if strings.TrimSpace(out.DefaultGoal) == "" {
		out.DefaultGoal = "Review my portfolio and optimize risk-adjusted returns over the next week."
	}
	return out
}

// Engine 驱动五个分析阶段：价格注入 → 审计 → 检索规划 → 检索执行 →
// 动态选币 → 汇总。阶段严格顺序执行，后一阶段的提示词嵌入前一阶段的产出。
type Engine struct {
	cfg       Config
	model     provider.ModelProvider
	oracle    PriceOracle
	search    SearchClient
	validator *Validator
}

func NewEngine(cfg Config, model provider.ModelProvider, oracle PriceOracle, search SearchClient) *Engine {
	final := cfg.withDefaults()
	return &Engine{
		cfg:       final,
		model:     model,
		oracle:    oracle,
		search:    search,
		validator: NewValidator(final.Validator, oracle),
	}
}

type analysisEnvelope struct {
	Type string `json:"type"`
	Data struct {
		Text            string              `json:"text"`
		Recommendations []RawRecommendation `json:"recommendations"`
	} `json:"data"`
}

// Run 执行一次完整分析。取消返回 ErrCanceled；推理服务失败与汇总阶段
// 解析失败为致命错误；审计/规划阶段的解析失败走本地兜底，不上抛。
func (e *Engine) Run(ctx context.Context, req Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	trace := uuid.NewString()
	goal := resolveGoal(req.Goal, e.cfg.DefaultGoal)
	book := NewPriceBook()

	// Phase 1: 价格注入（基准币 + 持仓币）。
	e.fetchPrices(ctx, append(append([]string{}, e.cfg.Benchmarks...), positionSymbols(req)...), book)
	if ctx.Err() != nil {
		return nil, ErrCanceled
	}
	logger.Infof("[advisor] %s price injection done: %d symbols", trace, book.Len())

	// Phase 2: 审计。
	audit, err := e.runAudit(ctx, req, goal, book)
	if err != nil {
		return nil, err
	}

	// Phase 3: 检索规划。
	plan, err := e.runPlanning(ctx, goal, audit)
	if err != nil {
		return nil, err
	}

	// Phase 4: 检索执行。
	results, err := e.runResearch(ctx, plan)
	if err != nil {
		return nil, err
	}

	// Phase 5: 动态选币。
	if err := e.runDiscovery(ctx, results, book); err != nil {
		return nil, err
	}

	// Phase 6: 汇总。
	narrative, recs, err := e.runSynthesis(ctx, req, goal, book, audit, plan, results)
	if err != nil {
		return nil, err
	}

	if len(recs) > 0 {
		logger.Infof("[advisor] %s recommendations:\n%s", trace, FormatRecommendationTable(recs))
	} else {
		logger.Infof("[advisor] %s no actionable recommendations", trace)
	}

	return &Result{
		TraceID:         trace,
		Narrative:       narrative,
		Recommendations: recs,
		Plan:            plan,
		Audit:           audit,
		Research:        results,
	}, nil
}

// complete 统一处理取消语义：取消优先于其他任何错误。
func (e *Engine) complete(ctx context.Context, system, user string) (string, error) {
	if ctx.Err() != nil {
		return "", ErrCanceled
	}
	out, err := e.model.Call(ctx, provider.ChatPayload{
		System:      system,
		User:        user,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return "", ErrCanceled
		}
		return "", err
	}
	return out, nil
}

// fetchPrices 并发拉取一组 symbol 的现价；单个失败直接跳过。
func (e *Engine) fetchPrices(ctx context.Context, symbols []string, book *PriceBook) {
	seen := make(map[string]struct{}, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.PriceConcurrency)
	for _, raw := range symbols {
		sym := symbol.Normalize(raw)
		if sym == "" || book.Has(sym) {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if price, ok := e.oracle.FetchPrice(gctx, sym); ok {
				book.Set(sym, price)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (e *Engine) runAudit(ctx context.Context, req Request, goal string, book *PriceBook) (AuditResult, error) {
	system, user := buildAuditPrompts(req, goal, book.Render())
	text, err := e.complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			return AuditResult{}, err
		}
		return AuditResult{}, fmt.Errorf("audit: %w", err)
	}
	raw, err := jsonx.Extract(text)
	if err != nil {
		// 审计只是参考，解析失败退回中性结果继续跑。
		logger.Warnf("[advisor] audit extraction failed, using neutral fallback: %v", err)
		return AuditResult{}, nil
	}
	var audit AuditResult
	if err := json.Unmarshal(raw, &audit); err != nil {
		logger.Warnf("[advisor] audit decode failed, using neutral fallback: %v", err)
		return AuditResult{}, nil
	}
	return audit, nil
}

func (e *Engine) runPlanning(ctx context.Context, goal string, audit AuditResult) (ResearchPlan, error) {
	system, user := buildPlanPrompts(goal, audit)
	text, err := e.complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			return ResearchPlan{}, err
		}
		return ResearchPlan{}, fmt.Errorf("research planning: %w", err)
	}
	plan, ok := decodePlan(text)
	if !ok {
		logger.Warnf("[advisor] plan extraction failed, using deterministic fallback")
		return fallbackPlan(goal), nil
	}
	return plan, nil
}

func decodePlan(text string) (ResearchPlan, bool) {
	raw, err := jsonx.Extract(text)
	if err != nil {
		return ResearchPlan{}, false
	}
	var plan ResearchPlan
	if err := json.Unmarshal(raw, &plan); err != nil {
		return ResearchPlan{}, false
	}
	steps := plan.Steps[:0]
	for _, s := range plan.Steps {
		if strings.TrimSpace(s.SearchQuery) == "" {
			continue
		}
		steps = append(steps, s)
	}
	plan.Steps = steps
	if len(plan.Steps) == 0 {
		return ResearchPlan{}, false
	}
	return plan, true
}

func (e *Engine) runResearch(ctx context.Context, plan ResearchPlan) ([]StepResult, error) {
	out := make([]StepResult, 0, e.cfg.MaxResearchSteps)
	for i, step := range plan.Steps {
		if i >= e.cfg.MaxResearchSteps {
			// 超出部分静默丢弃。
			break
		}
		if ctx.Err() != nil {
			return nil, ErrCanceled
		}
		res := e.search.Search(ctx, step.SearchQuery)
		if res.Err != "" {
			logger.Warnf("[advisor] research step %d degraded: %s", i+1, res.Err)
		}
		out = append(out, StepResult{
			Step:     step.Description,
			Query:    step.SearchQuery,
			Snippets: res.Snippets,
		})
	}
	return out, nil
}

// runDiscovery 让模型从检索片段里挖掘候选币并补齐价格；本阶段任何失败
// 都记日志后吞掉，唯独取消要如实上报。
func (e *Engine) runDiscovery(ctx context.Context, results []StepResult, book *PriceBook) error {
	if len(results) == 0 {
		return nil
	}
	system, user := buildDiscoveryPrompts(results, e.cfg.MaxDiscoverySymbols)
	text, err := e.complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			return err
		}
		logger.Warnf("[advisor] ticker discovery failed, skipping: %v", err)
		return nil
	}
	raw, err := jsonx.Extract(text)
	if err != nil {
		logger.Warnf("[advisor] ticker discovery extraction failed, skipping: %v", err)
		return nil
	}
	var payload struct {
		Symbols []string `json:"symbols"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		logger.Warnf("[advisor] ticker discovery decode failed, skipping: %v", err)
		return nil
	}
	candidates := make([]string, 0, e.cfg.MaxDiscoverySymbols)
	for _, s := range payload.Symbols {
		if len(candidates) >= e.cfg.MaxDiscoverySymbols {
			break
		}
		if sym := symbol.Normalize(s); sym != "" && !book.Has(sym) {
			candidates = append(candidates, sym)
		}
	}
	e.fetchPrices(ctx, candidates, book)
	if ctx.Err() != nil {
		return ErrCanceled
	}
	return nil
}

func (e *Engine) runSynthesis(ctx context.Context, req Request, goal string, book *PriceBook, audit AuditResult, plan ResearchPlan, results []StepResult) (string, []TradeRecommendation, error) {
	cons := synthesisConstraints{
		AvailableBalance: e.validator.AvailableQuote(req.Balances),
		PerTradeCap:      e.validator.Budget(e.validator.TotalEquity(req)),
		MinNotional:      e.validator.MinNotional(),
		MaxLeverage:      e.validator.MaxLeverage(),
	}
	system, user := buildSynthesisPrompts(req, goal, book.Render(), audit, plan, results, cons, e.cfg.ResponseLanguage)
	text, err := e.complete(ctx, system, user)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("synthesis: %w", err)
	}
	// 汇总阶段没有兜底结果集，解析失败即整体失败。
	raw, err := jsonx.Extract(text, synthesisMarker)
	if err != nil {
		return "", nil, fmt.Errorf("synthesis extraction: %w", err)
	}
	var env analysisEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", nil, fmt.Errorf("synthesis decode: %w (preview=%q)", err, jsonx.Preview(string(raw), 160))
	}
	if env.Type != synthesisMarker {
		return "", nil, fmt.Errorf("synthesis envelope type %q is not %q", env.Type, synthesisMarker)
	}
	recs := e.validator.Validate(ctx, env.Data.Recommendations, req, book)
	if ctx.Err() != nil {
		return "", nil, ErrCanceled
	}
	return strings.TrimSpace(env.Data.Text), recs, nil
}

func positionSymbols(req Request) []string {
	out := make([]string, 0, len(req.Positions))
	for _, p := range req.Positions {
		out = append(out, p.Symbol)
	}
	return out
}

var placeholderGoals = map[string]struct{}{
	"": {}, "-": {}, "none": {}, "n/a": {}, "null": {}, "string": {},
}

func resolveGoal(goal, fallback string) string {
	g := strings.TrimSpace(goal)
	if _, placeholder := placeholderGoals[strings.ToLower(g)]; placeholder {
		return fallback
	}
	return g
}
