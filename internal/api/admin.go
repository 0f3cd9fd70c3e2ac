package api

import (
	"net/http"

	"binarynet/internal/middleware"
	"binarynet/internal/model"
	"binarynet/internal/service"
	"binarynet/pkg/auth"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type AdminServices struct {
	Investments service.InvestmentServiceI
	Withdrawals service.WithdrawalServiceI
	Profit      service.ProfitServiceI
	Placement   service.PlacementServiceI
	Admin       service.AdminServiceI
}

type adminRoutes struct {
	s AdminServices
}

func NewAdminRoutes(handler *gin.RouterGroup, s AdminServices, a *auth.JWTAuth, authz *middleware.Authorization) {
	r := &adminRoutes{s: s}
	h := handler.Group("/admin")
	h.Use(a.JWTAuthMiddleware(), authz.AdminOnly())
	{
		h.GET("/investments", r.ListInvestments)
		h.POST("/investments/:id/approve", r.ApproveInvestment)
		h.POST("/investments/:id/reject", r.RejectInvestment)

		h.POST("/withdrawals/:id/approve", r.ApproveWithdrawal)
		h.POST("/withdrawals/:id/reject", r.RejectWithdrawal)

		h.POST("/weekly-profit", r.DistributeWeeklyProfit)

		h.GET("/users", r.ListUsers)
		h.POST("/users/:id/make-admin", r.MakeAdmin)
		h.DELETE("/users/:id", r.PurgeUser)
		h.POST("/place", placeHandler(s.Placement))

		h.GET("/transactions", r.ListTransactions)
		h.GET("/stats", r.Stats)
	}
}

func (r *adminRoutes) ListInvestments(c *gin.Context) {
	reqs, err := r.s.Investments.ListAll(c.Request.Context())
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

type CommissionResponse struct {
	Rate    decimal.Decimal          `json:"rate"`
	Total   decimal.Decimal          `json:"total"`
	Payouts []model.CommissionPayout `json:"payouts"`
	Stopped string                   `json:"stopped"`
}

type ApprovalResponse struct {
	Investment  *InvestmentResponse  `json:"investment"`
	Commissions *CommissionResponse  `json:"commissions"`
	Propagation *PropagationResponse `json:"propagation"`
}

func (r *adminRoutes) ApproveInvestment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	report, err := r.s.Investments.Approve(c.Request.Context(), id)
	if err != nil {
		respondError(c, "failed to approve investment", err)
		return
	}

	out := ApprovalResponse{
		Investment:  toInvestmentResponse(report.Investment),
		Propagation: toPropagationResponse(report.Propagation),
	}
	if report.Commissions != nil {
		out.Commissions = &CommissionResponse{
			Rate:    report.Commissions.Rate,
			Total:   report.Commissions.Total(),
			Payouts: report.Commissions.Payouts,
			Stopped: report.Commissions.Stopped,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (r *adminRoutes) RejectInvestment(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	req, err := r.s.Investments.Reject(c.Request.Context(), id)
	if err != nil {
		respondError(c, "failed to reject investment", err)
		return
	}

	c.JSON(http.StatusOK, toInvestmentRequestResponse(req))
}

type ApproveWithdrawalRequest struct {
	TxHash string `json:"tx_hash"`
}

func (r *adminRoutes) ApproveWithdrawal(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var req ApproveWithdrawalRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	t, err := r.s.Withdrawals.ApproveWithdrawal(c.Request.Context(), id, req.TxHash)
	if err != nil {
		respondError(c, "failed to approve withdrawal", err)
		return
	}

	c.JSON(http.StatusOK, toTransactionResponses([]*model.Transaction{t})[0])
}

func (r *adminRoutes) RejectWithdrawal(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	t, err := r.s.Withdrawals.RejectWithdrawal(c.Request.Context(), id)
	if err != nil {
		respondError(c, "failed to reject withdrawal", err)
		return
	}

	c.JSON(http.StatusOK, toTransactionResponses([]*model.Transaction{t})[0])
}

func (r *adminRoutes) DistributeWeeklyProfit(c *gin.Context) {
	report, err := r.s.Profit.DistributeWeekly(c.Request.Context())
	if err != nil {
		respondError(c, "failed to distribute weekly profit", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"distributed_to": report.DistributedTo,
		"skipped":        report.Skipped,
		"total_amount":   report.TotalAmount,
	})
}

func (r *adminRoutes) ListUsers(c *gin.Context) {
	users, err := r.s.Admin.ListUsers(c.Request.Context())
	if err != nil {
		respondError(c, "failed to list users", err)
		return
	}

	out := make([]UserResponse, len(users))
	for i, u := range users {
		out[i] = toUserResponse(u)
	}
	c.JSON(http.StatusOK, out)
}

func (r *adminRoutes) MakeAdmin(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := r.s.Admin.MakeAdmin(c.Request.Context(), id); err != nil {
		respondError(c, "failed to grant admin", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "user is now an admin"})
}

func (r *adminRoutes) PurgeUser(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := r.s.Admin.PurgeUser(c.Request.Context(), id); err != nil {
		respondError(c, "failed to purge user", err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (r *adminRoutes) ListTransactions(c *gin.Context) {
	var txType *model.TransactionType
	if raw := c.Query("type"); raw != "" {
		t := model.TransactionType(raw)
		txType = &t
	}

	txs, err := r.s.Admin.ListTransactions(c.Request.Context(), txType)
	if err != nil {
		respondError(c, "failed to list transactions", err)
		return
	}

	c.JSON(http.StatusOK, toTransactionResponses(txs))
}

func (r *adminRoutes) Stats(c *gin.Context) {
	stats, err := r.s.Admin.Stats(c.Request.Context())
	if err != nil {
		respondError(c, "failed to get stats", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total_users":         stats.TotalUsers,
		"active_investments":  stats.ActiveInvestments,
		"total_volume":        stats.TotalVolume,
		"pending_withdrawals": stats.PendingWithdrawals,
	})
}
