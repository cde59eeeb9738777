package app

import (
	"time"

	"github.com/pixmuse/billing/internal/app/api/server"
	"github.com/pixmuse/billing/internal/app/service/eventlog"
	"github.com/pixmuse/billing/internal/app/service/ledger"
	"github.com/pixmuse/billing/internal/app/service/order"
	"github.com/pixmuse/billing/internal/app/service/statistics"
	"github.com/pixmuse/billing/internal/app/service/subscription"
	"github.com/pixmuse/billing/internal/app/service/webhook"
	"github.com/pixmuse/billing/internal/platform/db"
	"github.com/pixmuse/billing/pkg/clock"
	"github.com/pixmuse/billing/pkg/config"
	"github.com/pixmuse/billing/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	clock.Module,
	db.Module,
	server.Module,
	ledger.Module,
	subscription.Module,
	order.Module,
	webhook.Module,
	eventlog.Module,
	statistics.Module,
)
