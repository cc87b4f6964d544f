package leaderboard

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	agg *Aggregator
}

func NewHandler(agg *Aggregator) *Handler {
	return &Handler{agg: agg}
}

// GET /leaderboard?metric=wins|profit&limit=20
func (h *Handler) Get(c *gin.Context) {
	metric := MetricWins
	if c.Query("metric") == string(MetricProfit) {
		metric = MetricProfit
	}

	limit := 20
	if v, err := strconv.Atoi(c.Query("limit")); err == nil {
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}

	c.JSON(http.StatusOK, gin.H{"entries": h.agg.Top(metric, limit)})
}
