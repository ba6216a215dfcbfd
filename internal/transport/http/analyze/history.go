package analyze

import (
	"net/http"
	"strconv"
	"strings"

	"aurum/internal/logger"

	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 100

// RunSummary 是历史列表中的单条摘要，不含建议明细。
type RunSummary struct {
	TraceID   string `json:"trace_id"`
	UserID    string `json:"user_id,omitempty"`
	Goal      string `json:"goal"`
	Narrative string `json:"narrative"`
	CreatedAt int64  `json:"created_at"`
}

func (r *Router) handleRecentRuns(c *gin.Context) {
	limit := 20
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是正整数"})
			return
		}
		limit = n
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := r.history.RecentRuns(c.Request.Context(), limit)
	if err != nil {
		logger.Errorf("[analyze-api] run history read failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	runs := make([]RunSummary, 0, len(records))
	for _, rec := range records {
		runs = append(runs, RunSummary{
			TraceID:   rec.TraceID,
			UserID:    rec.UserID,
			Goal:      rec.Goal,
			Narrative: rec.Narrative,
			CreatedAt: rec.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
