package api

import (
	"net/http"

	"binarynet/internal/service"
	"binarynet/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type investmentRoutes struct {
	is service.InvestmentServiceI
}

func NewInvestmentRoutes(handler *gin.RouterGroup, is service.InvestmentServiceI, a *auth.JWTAuth) {
	r := &investmentRoutes{is: is}
	handler.GET("/packages", r.Packages)

	h := handler.Group("/investments")
	h.Use(a.JWTAuthMiddleware())
	{
		h.POST("/request", r.Request)
		h.GET("/mine", r.Mine)
	}
}

type PackageResponse struct {
	Key              string          `json:"key"`
	Name             string          `json:"name"`
	Amount           decimal.Decimal `json:"amount"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	WeeklyProfitRate decimal.Decimal `json:"weekly_profit_rate"`
}

func (r *investmentRoutes) Packages(c *gin.Context) {
	pkgs := r.is.Packages()
	out := make([]PackageResponse, len(pkgs))
	for i, p := range pkgs {
		out[i] = PackageResponse{
			Key:              p.Key,
			Name:             p.Name,
			Amount:           p.Amount,
			CommissionRate:   p.CommissionRate,
			WeeklyProfitRate: p.WeeklyProfitRate,
		}
	}
	c.JSON(http.StatusOK, out)
}

type InvestmentRequestBody struct {
	Package  string `json:"package" binding:"required"`
	FullName string `json:"full_name" binding:"required"`
	Username string `json:"username"`
	Email    string `json:"email" binding:"required,email"`
	Whatsapp string `json:"whatsapp"`
	Platform string `json:"platform"`
}

func (r *investmentRoutes) Request(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req InvestmentRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	out, err := r.is.Request(c.Request.Context(), userID, service.InvestmentRequestInput{
		Package:  req.Package,
		FullName: req.FullName,
		Username: req.Username,
		Email:    req.Email,
		Whatsapp: req.Whatsapp,
		Platform: req.Platform,
	})
	if err != nil {
		respondError(c, "failed to request investment", err)
		return
	}

	c.JSON(http.StatusCreated, toInvestmentRequestResponse(out))
}

func (r *investmentRoutes) Mine(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	reqs, err := r.is.ListForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "failed to list investment requests", err)
		return
	}

	out := make([]InvestmentRequestResponse, len(reqs))
	for i, req := range reqs {
		out[i] = toInvestmentRequestResponse(req)
	}
	c.JSON(http.StatusOK, out)
}
