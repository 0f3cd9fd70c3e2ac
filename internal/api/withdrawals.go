package api

import (
	"net/http"

	"binarynet/internal/model"
	"binarynet/internal/service"
	"binarynet/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type withdrawalRoutes struct {
	ws service.WithdrawalServiceI
}

func NewWithdrawalRoutes(handler *gin.RouterGroup, ws service.WithdrawalServiceI, a *auth.JWTAuth) {
	r := &withdrawalRoutes{ws: ws}
	h := handler.Group("/withdrawals")
	h.Use(a.JWTAuthMiddleware())
	{
		h.POST("/request", r.Request)
		h.GET("/mine", r.Mine)
	}
}

type WithdrawalRequestBody struct {
	Amount        decimal.Decimal `json:"amount"`
	WalletAddress string          `json:"wallet_address" binding:"required"`
	CryptoType    string          `json:"crypto_type" binding:"required"`
}

func (r *withdrawalRoutes) Request(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req WithdrawalRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	t, err := r.ws.RequestWithdrawal(c.Request.Context(), userID, service.WithdrawalInput{
		Amount:        req.Amount,
		WalletAddress: req.WalletAddress,
		CryptoType:    req.CryptoType,
	})
	if err != nil {
		respondError(c, "failed to request withdrawal", err)
		return
	}

	c.JSON(http.StatusCreated, toTransactionResponses([]*model.Transaction{t})[0])
}

func (r *withdrawalRoutes) Mine(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	txs, err := r.ws.ListWithdrawals(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "failed to list withdrawals", err)
		return
	}

	c.JSON(http.StatusOK, toTransactionResponses(txs))
}
