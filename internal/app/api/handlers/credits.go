package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	subsvc "github.com/pixmuse/billing/internal/app/service/subscription"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/response"
	"github.com/pixmuse/billing/pkg/types"
)

const expiringSoonWindow = 7 * 24 * time.Hour

type CreditTransactionItem struct {
	ID              string                `json:"id"`
	TransactionType types.TransactionType `json:"transaction_type"`
	Amount          int64                 `json:"amount"`
	RemainingAmount int64                 `json:"remaining_amount"`
	RelatedEntityID string                `json:"related_entity_id,omitempty"`
	ExpiresAt       *time.Time            `json:"expires_at,omitempty"`
	IsFrozen        bool                  `json:"is_frozen"`
	Description     string                `json:"description,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

func toCreditTransactionItem(m *models.CreditTransaction) *CreditTransactionItem {
	return &CreditTransactionItem{
		ID:              m.ID,
		TransactionType: m.TransactionType,
		Amount:          m.Amount,
		RemainingAmount: m.RemainingAmount,
		RelatedEntityID: m.RelatedEntityID,
		ExpiresAt:       m.ExpiresAt,
		IsFrozen:        m.IsFrozen,
		Description:     m.Description,
		CreatedAt:       m.CreatedAt,
	}
}

type CreditsResponse struct {
	UserID             string                   `json:"user_id"`
	Balance            int64                    `json:"balance"`
	ExpiringSoon       int64                    `json:"expiring_soon"`
	PlanTier           types.PlanTier           `json:"plan_tier,omitempty"`
	RecentTransactions []*CreditTransactionItem `json:"recent_transactions"`
}

// @Summary      Get Credits
// @Description  Returns the user's spendable balance, credits expiring within 7 days, and recent ledger entries.
// @Tags         Credits
// @Produce      json
// @Param        user_id query string true "User ID"
// @Success      200  {object}  handlers.RespCredits
// @Router       /api/v1/credits [get]
func ApiGetCredits(lg *ledger.Service, sub *subsvc.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("user_id")
		if userID == "" {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id"))
			return
		}
		ctx := c.Request.Context()

		balance, err := lg.Balance(ctx, userID)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		expiring, err := lg.ExpiringSoon(ctx, userID, expiringSoonWindow)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		recent, err := lg.History(ctx, userID, 10, 0)
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}

		res := &CreditsResponse{
			UserID:  userID,
			Balance: balance,
			ExpiringSoon: lo.SumBy(expiring, func(m *models.CreditTransaction) int64 {
				return m.RemainingAmount
			}),
			RecentTransactions: lo.Map(recent, func(m *models.CreditTransaction, _ int) *CreditTransactionItem {
				return toCreditTransactionItem(m)
			}),
		}
		if active, err := sub.ActiveByUser(ctx, userID); err == nil && active != nil {
			res.PlanTier = active.PlanTier
		}
		c.JSON(http.StatusOK, response.OKT(res))
	}
}

type DeductCreditsRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// @Summary      Deduct Credits
// @Description  Consumes credits from the user's balance, oldest package first.
// @Tags         Credits
// @Accept       json
// @Produce      json
// @Param        request body DeductCreditsRequest true "Deduction request"
// @Success      200  {object}  handlers.RespOK
// @Router       /api/v1/credits/deduct [post]
func ApiDeductCredits(lg *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DeductCreditsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if req.UserID == "" || req.Amount <= 0 {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, "missing user_id or non-positive amount"))
			return
		}
		err := lg.Deduct(c.Request.Context(), req.UserID, req.Amount, req.Reason)
		if errors.Is(err, ledger.ErrInsufficientCredits) {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeBadRequest, err.Error()))
			return
		}
		if err != nil {
			c.JSON(http.StatusOK, response.ErrorT[any](response.APIResponseCodeError, err.Error()))
			return
		}
		c.JSON(http.StatusOK, response.OKT[any](nil))
	}
}

func RegisterCreditRoutes(r gin.IRouter, lg *ledger.Service, sub *subsvc.Service) {
	r.GET("/credits", ApiGetCredits(lg, sub))
	r.POST("/credits/deduct", ApiDeductCredits(lg))
}
