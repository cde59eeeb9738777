package webhook

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/app/service/order"
	"github.com/pixmuse/billing/internal/app/service/subscription"
	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/internal/platform/memstore"
	"github.com/pixmuse/billing/pkg/clock"
	"github.com/pixmuse/billing/pkg/types"
)

type routerFixture struct {
	svc      *Service
	ledStore *memstore.Ledger
	subStore *memstore.Subscriptions
	ordStore *memstore.Orders
	clk      *clock.Mock
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	clk := clock.NewMock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	ledStore := memstore.NewLedger()
	subStore := memstore.NewSubscriptions()
	ordStore := memstore.NewOrders()
	lg := ledger.NewService(ledStore, clk, log)
	subs := subscription.NewService(subStore, lg, clk, log)
	orders := order.NewService(ordStore, clk, log)
	return &routerFixture{
		svc:      NewService(subs, lg, orders, clk, log),
		ledStore: ledStore,
		subStore: subStore,
		ordStore: ordStore,
		clk:      clk,
	}
}

func event(t *testing.T, eventType string, object any) *Event {
	t.Helper()
	raw, err := json.Marshal(object)
	require.NoError(t, err)
	return &Event{ID: "evt_1", EventType: eventType, Object: raw}
}

func TestHandleUnknownEventTypeIsNoop(t *testing.T) {
	f := newRouterFixture(t)
	ev := event(t, "dispute.created", map[string]any{"id": "dp_1"})
	require.NoError(t, f.svc.Handle(context.Background(), ev))
	assert.Empty(t, f.ledStore.Rows())
	assert.Empty(t, f.subStore.Rows())
	assert.Empty(t, f.ordStore.Rows())
}

func TestHandleCheckoutCompletedCreditPackage(t *testing.T) {
	f := newRouterFixture(t)
	ev := event(t, "checkout.completed", map[string]any{
		"id":         "ch_1",
		"order_id":   "order_456",
		"product_id": "prod_credits_small",
		"amount":     990,
		"currency":   "USD",
		"metadata": map[string]any{
			"type":         "credit_package",
			"user_id":      "u1",
			"package_code": "starter",
			"credits":      100,
		},
	})
	require.NoError(t, f.svc.Handle(context.Background(), ev))

	grants := f.ledStore.RowsOfType(types.TransactionTypePurchase)
	require.Len(t, grants, 1)
	assert.EqualValues(t, 100, grants[0].Amount)
	assert.Equal(t, "order_456", grants[0].RelatedEntityID)
	require.NotNil(t, grants[0].ExpiresAt)
	assert.True(t, grants[0].ExpiresAt.Equal(f.clk.Now().AddDate(1, 0, 0)),
		"credit packages are valid for one year")

	orders := f.ordStore.Rows()
	require.Len(t, orders, 1)
	assert.Equal(t, "order_456", orders[0].CreemOrderID)
	assert.Equal(t, models.OrderStatusCompleted, orders[0].Status)
}

func TestHandleCheckoutCompletedMissingMetadataIsNoop(t *testing.T) {
	f := newRouterFixture(t)
	ev := event(t, "checkout.completed", map[string]any{
		"id": "ch_1",
		"metadata": map[string]any{
			"type":    "credit_package",
			"user_id": "u1",
			// package_code and credits absent
		},
	})
	require.NoError(t, f.svc.Handle(context.Background(), ev))
	assert.Empty(t, f.ledStore.Rows())
	assert.Empty(t, f.ordStore.Rows())
}

func TestHandleCheckoutFallsBackToObjectID(t *testing.T) {
	f := newRouterFixture(t)
	ev := event(t, "checkout.completed", map[string]any{
		"id": "ch_no_order",
		"metadata": map[string]any{
			"type":         "credit_package",
			"user_id":      "u1",
			"package_code": "starter",
			"credits":      50,
		},
	})
	require.NoError(t, f.svc.Handle(context.Background(), ev))

	grants := f.ledStore.RowsOfType(types.TransactionTypePurchase)
	require.Len(t, grants, 1)
	assert.Equal(t, "ch_no_order", grants[0].RelatedEntityID)
}

func TestHandleCheckoutCompletedSubscription(t *testing.T) {
	f := newRouterFixture(t)
	ev := event(t, "checkout.completed", map[string]any{
		"id":              "ch_1",
		"order_id":        "order_789",
		"subscription_id": "creem_sub_1",
		"product_id":      "prod_pro_monthly",
		"amount":          1990,
		"metadata": map[string]any{
			"type":          "subscription",
			"user_id":       "u1",
			"plan_tier":     "pro",
			"billing_cycle": "monthly",
			"action":        "purchase",
		},
	})
	require.NoError(t, f.svc.Handle(context.Background(), ev))

	subs := f.subStore.Rows()
	require.Len(t, subs, 1)
	assert.Equal(t, types.PlanTierPro, subs[0].PlanTier)

	grants := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant)
	require.Len(t, grants, 1)
	assert.EqualValues(t, 500, grants[0].Amount)

	require.Len(t, f.ordStore.Rows(), 1)
}

func TestHandleSubscriptionSettledGatesOnMetadataType(t *testing.T) {
	f := newRouterFixture(t)

	// a subscription.paid without our metadata tag is acknowledged and skipped
	ev := event(t, "subscription.paid", map[string]any{
		"id":          "creem_sub_1",
		"customer_id": "u1",
		"metadata":    map[string]any{},
	})
	require.NoError(t, f.svc.Handle(context.Background(), ev))
	assert.Empty(t, f.subStore.Rows())
	assert.Empty(t, f.ledStore.Rows())

	// tagged ones go through the purchase flow
	ev = event(t, "subscription.active", map[string]any{
		"id": "creem_sub_1",
		"metadata": map[string]any{
			"type":          "subscription",
			"user_id":       "u1",
			"plan_tier":     "basic",
			"billing_cycle": "monthly",
		},
	})
	require.NoError(t, f.svc.Handle(context.Background(), ev))
	require.Len(t, f.subStore.Rows(), 1)
	grants := f.ledStore.RowsOfType(types.TransactionTypeSubscriptionGrant)
	require.Len(t, grants, 1)
	assert.EqualValues(t, 100, grants[0].Amount)
}

func TestHandleSubscriptionCreatedUpserts(t *testing.T) {
	f := newRouterFixture(t)
	ev := event(t, "subscription.created", map[string]any{
		"id":                   "creem_sub_1",
		"customer_id":          "u1",
		"product_id":           "prod_basic_monthly",
		"status":               "active",
		"billing_cycle":        "monthly",
		"current_period_start": "2025-06-01T12:00:00Z",
		"current_period_end":   "2025-07-01T12:00:00Z",
	})
	require.NoError(t, f.svc.Handle(context.Background(), ev))

	subs := f.subStore.Rows()
	require.Len(t, subs, 1)
	assert.Equal(t, types.PlanTierBasic, subs[0].PlanTier)
	require.NotNil(t, subs[0].CreemSubscriptionID)
	assert.Equal(t, "creem_sub_1", *subs[0].CreemSubscriptionID)
	assert.Equal(t, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC), subs[0].CurrentPeriodEnd.UTC())
}

func TestHandleSubscriptionCancelled(t *testing.T) {
	f := newRouterFixture(t)
	require.NoError(t, f.svc.Handle(context.Background(), event(t, "subscription.created", map[string]any{
		"id":          "creem_sub_1",
		"customer_id": "u1",
		"product_id":  "prod_basic_monthly",
		"status":      "active",
	})))

	require.NoError(t, f.svc.Handle(context.Background(), event(t, "subscription.cancelled", map[string]any{
		"id":           "creem_sub_1",
		"cancelled_at": "2025-06-10T00:00:00Z",
	})))

	subs := f.subStore.Rows()
	require.Len(t, subs, 1)
	assert.Equal(t, types.SubscriptionStatusCancelled, subs[0].Status)
	require.NotNil(t, subs[0].CancelledAt)
}

func TestHandlePaymentSucceededAndFailed(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, event(t, "checkout.completed", map[string]any{
		"id":       "ch_1",
		"order_id": "order_456",
		"metadata": map[string]any{
			"type": "credit_package", "user_id": "u1", "package_code": "starter", "credits": 100,
		},
	})))

	require.NoError(t, f.svc.Handle(ctx, event(t, "payment.succeeded", map[string]any{
		"order_id":    "order_456",
		"customer_id": "u1",
		"amount":      990,
		"paid_at":     "2025-06-01T12:05:00Z",
	})))

	orders := f.ordStore.Rows()
	require.Len(t, orders, 1)
	assert.Equal(t, models.OrderStatusPaid, orders[0].Status)
	require.NotNil(t, orders[0].PaidAt)

	history := f.ordStore.HistoryRows()
	require.Len(t, history, 1)
	assert.Equal(t, "success", history[0].Status)

	// a failure for an unknown order still records history
	require.NoError(t, f.svc.Handle(ctx, event(t, "payment.failed", map[string]any{
		"order_id":      "order_999",
		"customer_id":   "u1",
		"error_message": "card declined",
	})))
	history = f.ordStore.HistoryRows()
	require.Len(t, history, 2)
	assert.Equal(t, "failed", history[1].Status)
	assert.Equal(t, "card declined", history[1].ErrorMessage)
}

func TestHandleSubscriptionExpired(t *testing.T) {
	f := newRouterFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Handle(ctx, event(t, "subscription.created", map[string]any{
		"id":          "creem_sub_1",
		"customer_id": "u1",
		"product_id":  "prod_pro_monthly",
		"status":      "active",
	})))

	require.NoError(t, f.svc.Handle(ctx, event(t, "subscription.expired", map[string]any{
		"id":          "creem_sub_1",
		"customer_id": "u1",
	})))

	subs := f.subStore.Rows()
	require.Len(t, subs, 1)
	assert.Equal(t, types.SubscriptionStatusExpired, subs[0].Status)
}
