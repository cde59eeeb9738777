package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/pixmuse/billing/internal/app/service/eventlog"
	"github.com/pixmuse/billing/internal/app/service/webhook"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/config"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/metrics"
	"github.com/pixmuse/billing/pkg/types"
)

const providerCreem = "creem"

// The webhook endpoint speaks Creem's wire contract, not our response
// envelope: bare JSON objects with provider-defined status codes.

// @Summary      Creem Webhook
// @Description  Handles Creem billing webhook notifications. The body must be signed with HMAC-SHA256 in the creem-signature header.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        payload body webhook.Event true "Creem webhook event"
// @Success      200  {object}  map[string]bool
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/webhooks/creem [post]
func ApiCreemWebhook(cfg *config.Config, svc *webhook.Service, logs *eventlog.Service, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		l := logctx.FromGin(c, log)
		l.Infow("webhook_creem_received")

		// secret is read per request so rotation needs no restart
		secret := cfg.WebhookSecret()
		if secret == "" {
			l.Errorw("webhook_creem_secret_not_configured")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook not configured"})
			return
		}

		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			l.Errorw("webhook_creem_body_read_failed", "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
			return
		}

		signature := c.GetHeader(webhook.SignatureHeader)
		if err := webhook.VerifySignature(rawBody, signature, secret); err != nil {
			switch {
			case errors.Is(err, webhook.ErrSignatureMissing):
				l.Errorw("webhook_creem_signature_missing")
				c.JSON(http.StatusBadRequest, gin.H{"error": "Missing signature"})
			default:
				l.Errorw("webhook_creem_signature_invalid")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			}
			return
		}

		ev, err := webhook.ParseEvent(rawBody)
		if err != nil {
			l.Errorw("webhook_creem_payload_invalid", "err", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
			return
		}

		// each log write is its own row; rows of one event share the event id
		traceID := c.GetString("traceID")
		logs.Save(c.Request.Context(), &models.WebhookEventLog{
			Provider:  providerCreem,
			EventID:   ev.ID,
			EventType: ev.EventType,
			TraceID:   traceID,
			Payload:   datatypes.JSON(rawBody),
			Status:    models.WebhookEventLogStatusReceived,
		})

		if err := svc.Handle(c.Request.Context(), ev); err != nil {
			l.Errorw("webhook_creem_handle_error", "event_type", ev.EventType, "err", err)
			metrics.ObserveWebhookEvent(ev.EventType, "failed")
			logs.Save(c.Request.Context(), &models.WebhookEventLog{
				Provider:  providerCreem,
				EventID:   ev.ID,
				EventType: ev.EventType,
				TraceID:   traceID,
				Payload:   datatypes.JSON(rawBody),
				Result:    jsonResult(err.Error()),
				Status:    models.WebhookEventLogStatusHandleFailed,
			})
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Webhook processing failed"})
			return
		}

		outcome := "handled"
		if types.ParseEventKind(ev.EventType) == types.EventKindUnknown {
			outcome = "unknown"
		}
		metrics.ObserveWebhookEvent(ev.EventType, outcome)
		logs.Save(c.Request.Context(), &models.WebhookEventLog{
			Provider:  providerCreem,
			EventID:   ev.ID,
			EventType: ev.EventType,
			TraceID:   traceID,
			Payload:   datatypes.JSON(rawBody),
			Status:    models.WebhookEventLogStatusHandled,
		})

		l.Infow("webhook_creem_handled", "event_type", ev.EventType)
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func jsonResult(msg string) *datatypes.JSON {
	raw, _ := json.Marshal(gin.H{"error": msg})
	j := datatypes.JSON(raw)
	return &j
}

func RegisterWebhookRoutes(r gin.IRouter, cfg *config.Config, svc *webhook.Service, logs *eventlog.Service, log *zap.SugaredLogger) {
	// Mounted under "/api/webhooks"
	r.POST("/creem", ApiCreemWebhook(cfg, svc, logs, log))
}
