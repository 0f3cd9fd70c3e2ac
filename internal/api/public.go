package api

import (
	"net/http"

	"binarynet/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type publicRoutes struct {
	s service.StatsServiceI
}

func NewPublicRoutes(handler *gin.RouterGroup, s service.StatsServiceI) {
	r := &publicRoutes{s: s}
	h := handler.Group("/public")
	{
		h.GET("/stats", r.Stats)
	}
}

type PublicStatsResponse struct {
	TotalUsers  int             `json:"total_users"`
	TotalVolume decimal.Decimal `json:"total_volume"`
}

// Stats exposes only the headline numbers; the full set stays behind /admin/stats.
func (r *publicRoutes) Stats(c *gin.Context) {
	stats, err := r.s.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "failed to get public stats", err)
		return
	}

	c.JSON(http.StatusOK, PublicStatsResponse{
		TotalUsers:  stats.TotalUsers,
		TotalVolume: stats.TotalVolume,
	})
}
