package eventlog

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/tool"
)

// Store persists webhook event log rows.
type Store interface {
	Insert(ctx context.Context, entry *models.WebhookEventLog) error
}

type GormStore struct{ db *gorm.DB }

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db} }

func (s *GormStore) Insert(ctx context.Context, entry *models.WebhookEventLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

type Service struct {
	store Store
	log   *zap.SugaredLogger
}

func New(store Store, log *zap.SugaredLogger) *Service { return &Service{store: store, log: log} }

// Save asynchronously appends a webhook event log row. Each call writes its
// own row so concurrent received/handled writes can never clobber each other;
// rows of one event share the event_id. Nil input is ignored.
func (s *Service) Save(ctx context.Context, entry *models.WebhookEventLog) {
	if entry == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = tool.GenerateUUIDV7()
	}
	go func() {
		if err := s.store.Insert(context.WithoutCancel(ctx), entry); err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save webhook event log: %v", err)
		}
	}()
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(NewGormStore, fx.As(new(Store))),
		New,
	),
)
