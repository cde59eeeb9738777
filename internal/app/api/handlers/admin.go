package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/app/service/statistics"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/response"
	"github.com/pixmuse/billing/pkg/types"
)

type GrantCreditsRequest struct {
	UserID        string `json:"user_id"`
	Amount        int64  `json:"amount"`
	ExpiresInDays int    `json:"expires_in_days"`
	Description   string `json:"description"`
	OperatorID    string `json:"operator_id"`
}

// @Summary      Grant Credits (Admin)
// @Description  Grants free credits to a user, optionally with an expiry.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body GrantCreditsRequest true "Grant credits request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/admin/grant_credits [post]
func ApiGrantCredits(lg *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GrantCreditsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.UserID == "" || req.Amount <= 0 || req.OperatorID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id, operator_id or non-positive amount"))
			return
		}
		var expiresAt *time.Time
		if req.ExpiresInDays > 0 {
			expiresAt = lo.ToPtr(time.Now().AddDate(0, 0, req.ExpiresInDays))
		}
		desc := req.Description
		if desc == "" {
			desc = "admin credit grant"
		}
		_, err := lg.Grant(c.Request.Context(), ledger.GrantParams{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Type:        types.TransactionTypePurchase,
			ExpiresAt:   expiresAt,
			Description: fmt.Sprintf("%s (operator: %s)", desc, req.OperatorID),
		})
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

type ListTransactionsRequest struct {
	UserID string `json:"user_id"`
	From   int    `json:"from"`
	Size   int    `json:"size"`
}

type ListTransactionsResponse struct {
	Items []*CreditTransactionItem `json:"items"`
}

// @Summary      List Credit Transactions (Admin)
// @Description  Pages through the credit ledger, optionally filtered by user.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body ListTransactionsRequest true "List request with pagination"
// @Success      200  {object}  handlers.RespListTransactions
// @Router       /api/v1/admin/list_transactions [post]
func ApiListTransactions(lg *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ListTransactionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		rows, err := lg.ListAll(c.Request.Context(), req.UserID, req.Size, req.From)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		items := lo.Map(rows, func(m *models.CreditTransaction, _ int) *CreditTransactionItem {
			return toCreditTransactionItem(m)
		})
		c.JSON(http.StatusOK, response.OKT(&ListTransactionsResponse{Items: items}))
	}
}

// @Summary      Get Billing Statistics (Admin)
// @Description  Retrieves daily credit and subscription statistics.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Param        request body statistics.Request true "Statistic request parameters"
// @Success      200  {object}  handlers.RespStatistics
// @Router       /api/v1/admin/get_statistics [post]
func ApiGetStatistics(svc *statistics.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req statistics.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		res, err := svc.GetStatistics(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

func RegisterAdminRoutes(r gin.IRouter, lg *ledger.Service, stats *statistics.Service) {
	r.POST("/grant_credits", ApiGrantCredits(lg))
	r.POST("/list_transactions", ApiListTransactions(lg))
	r.POST("/get_statistics", ApiGetStatistics(stats))
}
