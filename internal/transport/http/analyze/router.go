package analyze

import (
	"context"
	"errors"
	"net/http"
	"time"

	"aurum/internal/advisor"
	"aurum/internal/gateway/database"
	"aurum/internal/logger"

	"github.com/gin-gonic/gin"
)

// clientClosedRequest：nginx 在客户端断开时使用的状态码，取消结果专用。
const clientClosedRequest = 499

// Analyzer 抽象分析引擎，便于测试注入。
type Analyzer interface {
	Run(ctx context.Context, req advisor.Request) (*advisor.Result, error)
}

// RunStore 抽象运行日志存储；nil 表示不落库。
type RunStore interface {
	SaveRun(ctx context.Context, rec database.RunRecord) error
}

// RunHistory 抽象运行历史查询；nil 表示不暴露历史接口。
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]database.RunRecord, error)
}

// Router 暴露分析 API。
type Router struct {
	engine  Analyzer
	store   RunStore
	history RunHistory
}

func NewRouter(engine Analyzer, store RunStore, history RunHistory) *Router {
	return &Router{engine: engine, store: store, history: history}
}

// Register 注册分析路由。
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.POST("/analyze", r.handleAnalyze)
	if r.history != nil {
		group.GET("/runs", r.handleRecentRuns)
	}
}

// AnalyzeRequest 是入站请求体。
type AnalyzeRequest struct {
	Goal      string             `json:"goal"`
	UserID    string             `json:"user_id"`
	Balances  []advisor.Balance  `json:"balances"`
	Positions []advisor.Position `json:"positions"`
}

// AnalyzeResponse 是成功响应体。
type AnalyzeResponse struct {
	TraceID         string                        `json:"trace_id"`
	Narrative       string                        `json:"narrative"`
	Recommendations []advisor.TradeRecommendation `json:"recommendations"`
	Plan            advisor.ResearchPlan          `json:"plan"`
}

func (r *Router) handleAnalyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	// 请求上下文随客户端断开而取消，整条流水线共用这一个信号。
	res, err := r.engine.Run(c.Request.Context(), advisor.Request{
		Goal:      req.Goal,
		UserID:    req.UserID,
		Balances:  req.Balances,
		Positions: req.Positions,
	})
	if err != nil {
		if errors.Is(err, advisor.ErrCanceled) {
			logger.Infof("[analyze-api] run canceled by client (user=%s)", req.UserID)
			c.JSON(clientClosedRequest, gin.H{"status": "canceled"})
			return
		}
		logger.Errorf("[analyze-api] run failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	r.persist(req.UserID, req.Goal, res)

	c.JSON(http.StatusOK, AnalyzeResponse{
		TraceID:         res.TraceID,
		Narrative:       res.Narrative,
		Recommendations: res.Recommendations,
		Plan:            res.Plan,
	})
}

// persist 在响应组装完成后落库；失败仅记日志。
func (r *Router) persist(userID, goal string, res *advisor.Result) {
	if r.store == nil || res == nil {
		return
	}
	rec := database.RunRecord{
		TraceID:   res.TraceID,
		UserID:    userID,
		Goal:      goal,
		Narrative: res.Narrative,
	}
	for _, t := range res.Recommendations {
		rec.Recommendations = append(rec.Recommendations, database.RecommendationRecord{
			Symbol:         t.Symbol,
			Action:         t.Action,
			OriginalAction: t.OriginalAction,
			Quantity:       t.Quantity,
			Leverage:       t.Leverage,
			StopLoss:       t.StopLoss,
			TakeProfit:     t.TakeProfit,
			Price:          t.Price,
			Confidence:     t.Confidence,
			Reason:         t.Reason,
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.store.SaveRun(ctx, rec); err != nil {
		logger.Warnf("[analyze-api] run log write failed: %v", err)
	}
}

// RegisterHealth 注册健康检查。
func RegisterHealth(router *gin.Engine) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
