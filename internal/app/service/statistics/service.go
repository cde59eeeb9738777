package statistics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/types"
)

type StatisticType string

const (
	// Credits moved through the ledger per day
	StatisticTypeDailyCreditsGranted  StatisticType = "daily_credits_granted"
	StatisticTypeDailyCreditsDeducted StatisticType = "daily_credits_deducted"

	// Subscription counts
	StatisticTypeDailyNewSubscriptions    StatisticType = "daily_new_subscriptions"
	StatisticTypeTotalActiveSubscriptions StatisticType = "total_active_subscriptions"
)

type DataItem struct {
	ID StatisticType `json:"id"`
}

type Request struct {
	DataItems []*DataItem `json:"data_items"`
}

type ResponseDataItem struct {
	Date  string `json:"date"`
	Label string `json:"label,omitempty"`
	Value int64  `json:"value"`
}

type Response struct {
	DataItems map[StatisticType][]ResponseDataItem `json:"data_items"`
}

// Service answers admin statistics queries over the ledger and the
// subscription table.
type Service struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Service { return &Service{db: db} }

func (s *Service) getDailyCreditsGranted(ctx context.Context) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.db.WithContext(ctx).Table((models.CreditTransaction{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, transaction_type AS label, sum(amount) as value").
		Where("amount > 0").
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Group("transaction_type").
		Order("date desc")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyCreditsDeducted(ctx context.Context) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.db.WithContext(ctx).Table((models.CreditTransaction{}).TableName()).
		Select("TO_CHAR(created_at, 'YYYY-MM-DD') as date, sum(-amount) as value").
		Where("transaction_type = ?", types.TransactionTypeDeduction).
		Group("TO_CHAR(created_at, 'YYYY-MM-DD')").
		Order("date desc")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getDailyNewSubscriptions(ctx context.Context) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	err := s.db.WithContext(ctx).Raw(`
SELECT TO_CHAR(DATE(created_at), 'YYYY-MM-DD') as date, COUNT(DISTINCT user_id) as value
FROM user_subscriptions
GROUP BY DATE(created_at)
ORDER BY date DESC
`).Scan(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getTotalActiveSubscriptions(ctx context.Context) ([]ResponseDataItem, error) {
	var results []ResponseDataItem
	q := s.db.WithContext(ctx).Table((models.Subscription{}).TableName()).
		Select("plan_tier AS label, count(*) as value").
		Where("status = ?", types.SubscriptionStatusActive).
		Where("current_period_end >= ?", time.Now()).
		Group("plan_tier")
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Service) getStatistic(ctx context.Context, item *DataItem) ([]ResponseDataItem, error) {
	switch item.ID {
	case StatisticTypeDailyCreditsGranted:
		return s.getDailyCreditsGranted(ctx)
	case StatisticTypeDailyCreditsDeducted:
		return s.getDailyCreditsDeducted(ctx)
	case StatisticTypeDailyNewSubscriptions:
		return s.getDailyNewSubscriptions(ctx)
	case StatisticTypeTotalActiveSubscriptions:
		return s.getTotalActiveSubscriptions(ctx)
	default:
		return nil, fmt.Errorf("invalid data item id: %s", item.ID)
	}
}

// GetStatistics resolves the requested items concurrently.
func (s *Service) GetStatistics(ctx context.Context, request *Request) (*Response, error) {
	var wg sync.WaitGroup
	errChan := make(chan error, len(request.DataItems))
	resChan := make(chan *lo.Entry[StatisticType, []ResponseDataItem], len(request.DataItems))

	for _, item := range request.DataItems {
		wg.Add(1)
		go func(di *DataItem) {
			defer wg.Done()
			res, err := s.getStatistic(ctx, di)
			if err != nil {
				errChan <- err
				return
			}
			resChan <- &lo.Entry[StatisticType, []ResponseDataItem]{Key: di.ID, Value: res}
		}(item)
	}

	go func() { wg.Wait(); close(errChan); close(resChan) }()

	results := make(map[StatisticType][]ResponseDataItem)
	for i := 0; i < len(request.DataItems); i++ {
		select {
		case err := <-errChan:
			if err != nil {
				return nil, err
			}
		case entry := <-resChan:
			results[entry.Key] = entry.Value
		}
	}
	return &Response{DataItems: results}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
