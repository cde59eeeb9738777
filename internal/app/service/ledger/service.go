package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/pixmuse/billing/internal/models"
	"github.com/pixmuse/billing/pkg/clock"
	"github.com/pixmuse/billing/pkg/logctx"
	"github.com/pixmuse/billing/pkg/metrics"
	"github.com/pixmuse/billing/pkg/tool"
	"github.com/pixmuse/billing/pkg/types"
)

// DuplicateRefillWindow is how long after a subscription refill an identical
// refill request is treated as a provider retry and skipped.
const DuplicateRefillWindow = 5 * time.Minute

// Service owns the append-only credit ledger. Balance is never stored, it is
// always derived from the eligible grant rows.
type Service struct {
	store Store
	clk   clock.Clock
	log   *zap.SugaredLogger
}

func NewService(store Store, clk clock.Clock, log *zap.SugaredLogger) *Service {
	return &Service{store: store, clk: clk, log: log}
}

type GrantParams struct {
	UserID          string
	Amount          int64
	Type            types.TransactionType
	RelatedEntityID string
	ExpiresAt       *time.Time
	Description     string
}

// Grant appends a credit package. The full amount is immediately spendable.
func (s *Service) Grant(ctx context.Context, p GrantParams) (string, error) {
	if p.Amount <= 0 {
		return "", ErrInvalidAmount
	}
	if !p.Type.Grants() {
		return "", fmt.Errorf("transaction type %q does not grant credits", p.Type)
	}
	row := &models.CreditTransaction{
		ID:              tool.GenerateUUIDV7(),
		UserID:          p.UserID,
		TransactionType: p.Type,
		Amount:          p.Amount,
		RemainingAmount: p.Amount,
		RelatedEntityID: p.RelatedEntityID,
		ExpiresAt:       p.ExpiresAt,
		Description:     p.Description,
		CreatedAt:       s.clk.Now(),
	}
	if err := s.store.Insert(ctx, row); err != nil {
		return "", fmt.Errorf("failed to grant credits: %w", err)
	}
	metrics.ObserveCreditsGranted(string(p.Type), p.Amount)
	logctx.FromCtx(ctx, s.log).Infow("credits_granted",
		"user_id", p.UserID, "amount", p.Amount, "type", p.Type, "related_entity_id", p.RelatedEntityID)
	return row.ID, nil
}

// Deduct consumes credits oldest-package-first. When the eligible balance is
// short it returns ErrInsufficientCredits and writes nothing.
func (s *Service) Deduct(ctx context.Context, userID string, amount int64, reason string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	now := s.clk.Now()
	grants, err := s.store.GrantsAsc(ctx, userID)
	if err != nil {
		return err
	}
	eligible := lo.Filter(grants, func(g *models.CreditTransaction, _ int) bool {
		return g.EligibleAt(now)
	})
	total := lo.SumBy(eligible, func(g *models.CreditTransaction) int64 { return g.RemainingAmount })
	if total < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, total, amount)
	}

	remaining := amount
	var consumed []string
	for _, g := range eligible {
		if remaining == 0 {
			break
		}
		take := g.RemainingAmount
		if take > remaining {
			take = remaining
		}
		g.RemainingAmount -= take
		if err := s.store.Update(ctx, g); err != nil {
			return fmt.Errorf("failed to consume package %s: %w", g.ID, err)
		}
		consumed = append(consumed, g.ID)
		remaining -= take
	}

	row := &models.CreditTransaction{
		ID:              tool.GenerateUUIDV7(),
		UserID:          userID,
		TransactionType: types.TransactionTypeDeduction,
		Amount:          -amount,
		RelatedEntityID: strings.Join(consumed, ","),
		Description:     reason,
		CreatedAt:       now,
	}
	if err := s.store.Insert(ctx, row); err != nil {
		return fmt.Errorf("failed to record deduction: %w", err)
	}
	metrics.ObserveCreditsDeducted(amount)
	logctx.FromCtx(ctx, s.log).Infow("credits_deducted",
		"user_id", userID, "amount", amount, "packages", len(consumed))
	return nil
}

// Balance sums the remaining credits of eligible packages.
func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	now := s.clk.Now()
	grants, err := s.store.GrantsAsc(ctx, userID)
	if err != nil {
		return 0, err
	}
	return lo.SumBy(grants, func(g *models.CreditTransaction) int64 { return g.SpendableAt(now) }), nil
}

// FrozenPackage describes a package freeze for the caller's follow-up.
type FrozenPackage struct {
	ID                     string
	RemainingAmount        int64
	FrozenRemainingSeconds int64
}

// FreezeOldest freezes the user's oldest eligible package, remembering how
// much of its expiry clock was left so Unfreeze can restore it. A non-empty
// relatedEntityID restricts the candidates to packages of that entity.
// Returns (nil, nil) when there is nothing to freeze.
func (s *Service) FreezeOldest(ctx context.Context, userID, relatedEntityID string, frozenUntil time.Time, reason string) (*FrozenPackage, error) {
	now := s.clk.Now()
	grants, err := s.store.GrantsAsc(ctx, userID)
	if err != nil {
		return nil, err
	}
	var pkg *models.CreditTransaction
	for _, g := range grants {
		if !g.EligibleAt(now) {
			continue
		}
		if relatedEntityID != "" && g.RelatedEntityID != relatedEntityID {
			continue
		}
		pkg = g
		break
	}
	if pkg == nil {
		return nil, nil
	}

	var frozenSeconds int64
	if pkg.ExpiresAt != nil {
		frozenSeconds = int64(pkg.ExpiresAt.Sub(now) / time.Second)
		if frozenSeconds < 0 {
			frozenSeconds = 0
		}
	}
	pkg.OriginalExpiresAt = pkg.ExpiresAt
	pkg.IsFrozen = true
	pkg.FrozenUntil = lo.ToPtr(frozenUntil)
	pkg.FrozenRemainingSecond = lo.ToPtr(frozenSeconds)
	pkg.FrozenReason = reason
	if err := s.store.Update(ctx, pkg); err != nil {
		return nil, fmt.Errorf("failed to freeze package %s: %w", pkg.ID, err)
	}

	s.appendAudit(ctx, userID, types.TransactionTypeFreeze, pkg.ID,
		fmt.Sprintf("freeze package %s until %s: %s", pkg.ID, frozenUntil.Format(time.RFC3339), reason))

	logctx.FromCtx(ctx, s.log).Infow("credit_package_frozen",
		"user_id", userID, "package_id", pkg.ID,
		"remaining", pkg.RemainingAmount, "frozen_seconds", frozenSeconds)
	return &FrozenPackage{
		ID:                     pkg.ID,
		RemainingAmount:        pkg.RemainingAmount,
		FrozenRemainingSeconds: frozenSeconds,
	}, nil
}

// UnfrozenPackage describes a package restored by Unfreeze.
type UnfrozenPackage struct {
	ID              string
	RemainingAmount int64
	ExpiresAt       *time.Time
}

// Unfreeze releases frozen packages whose freeze has run out as of asOf.
// The expiry clock resumes where it stopped: expires_at = asOf + the seconds
// that were left when the package was frozen. Per-package write failures are
// logged and skipped.
func (s *Service) Unfreeze(ctx context.Context, userID string, asOf time.Time) ([]UnfrozenPackage, error) {
	frozen, err := s.store.Frozen(ctx, userID)
	if err != nil {
		return nil, err
	}
	log := logctx.FromCtx(ctx, s.log)
	var out []UnfrozenPackage
	for _, pkg := range frozen {
		if pkg.FrozenUntil != nil && pkg.FrozenUntil.After(asOf) {
			continue
		}
		if pkg.FrozenRemainingSecond != nil && *pkg.FrozenRemainingSecond > 0 {
			pkg.ExpiresAt = lo.ToPtr(asOf.Add(time.Duration(*pkg.FrozenRemainingSecond) * time.Second))
		} else if pkg.OriginalExpiresAt == nil {
			pkg.ExpiresAt = nil
		}
		pkg.IsFrozen = false
		pkg.FrozenUntil = nil
		pkg.FrozenRemainingSecond = nil
		if err := s.store.Update(ctx, pkg); err != nil {
			log.Errorw("unfreeze_package_failed", "package_id", pkg.ID, "err", err)
			continue
		}
		s.appendAudit(ctx, userID, types.TransactionTypeUnfreeze, pkg.ID,
			fmt.Sprintf("unfreeze package %s", pkg.ID))
		out = append(out, UnfrozenPackage{ID: pkg.ID, RemainingAmount: pkg.RemainingAmount, ExpiresAt: pkg.ExpiresAt})
	}
	if len(out) > 0 {
		log.Infow("credit_packages_unfrozen", "user_id", userID, "count", len(out))
	}
	return out, nil
}

// RecentGrantExists reports whether a subscription refill landed for the user
// within the window, used to drop provider retries before re-granting.
func (s *Service) RecentGrantExists(ctx context.Context, userID, relatedEntityID string, window time.Duration) (bool, error) {
	since := s.clk.Now().Add(-window)
	n, err := s.store.CountRecentSubscriptionGrants(ctx, userID, relatedEntityID, since)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// History returns the user's ledger rows newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.History(ctx, userID, limit, offset)
}

// ListAll pages the whole ledger, optionally filtered by user. Admin use.
func (s *Service) ListAll(ctx context.Context, userID string, limit, offset int) ([]*models.CreditTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.History(ctx, userID, limit, offset)
}

// ExpiringSoon returns eligible packages whose expiry falls within the window.
func (s *Service) ExpiringSoon(ctx context.Context, userID string, within time.Duration) ([]*models.CreditTransaction, error) {
	now := s.clk.Now()
	deadline := now.Add(within)
	grants, err := s.store.GrantsAsc(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Filter(grants, func(g *models.CreditTransaction, _ int) bool {
		return g.EligibleAt(now) && g.ExpiresAt != nil && !g.ExpiresAt.After(deadline)
	}), nil
}

// LatestUnexpiredGrantExpiry returns the furthest expiry among the user's
// unexpired subscription refill rows for the given entity, nil when none
// carries an expiry. Renewals extend from this point instead of from now.
// Only refill-type rows count: bonus and purchase packages have their own
// validity and must not stretch the renewal clock.
func (s *Service) LatestUnexpiredGrantExpiry(ctx context.Context, userID, relatedEntityID string) (*time.Time, error) {
	now := s.clk.Now()
	grants, err := s.store.GrantsAsc(ctx, userID)
	if err != nil {
		return nil, err
	}
	var latest *time.Time
	for _, g := range grants {
		if !g.TransactionType.SubscriptionGrant() {
			continue
		}
		if relatedEntityID != "" && g.RelatedEntityID != relatedEntityID {
			continue
		}
		if g.ExpiresAt == nil || !g.ExpiresAt.After(now) {
			continue
		}
		if latest == nil || g.ExpiresAt.After(*latest) {
			latest = g.ExpiresAt
		}
	}
	return latest, nil
}

// OldestEligiblePackageID is the read-only half of FreezeOldest: it reports
// which package a later freeze would pick, "" when none qualifies.
func (s *Service) OldestEligiblePackageID(ctx context.Context, userID, relatedEntityID string) (string, error) {
	now := s.clk.Now()
	grants, err := s.store.GrantsAsc(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, g := range grants {
		if !g.EligibleAt(now) {
			continue
		}
		if relatedEntityID != "" && g.RelatedEntityID != relatedEntityID {
			continue
		}
		return g.ID, nil
	}
	return "", nil
}

// appendAudit writes a zero-amount freeze/unfreeze marker; failures only log.
func (s *Service) appendAudit(ctx context.Context, userID string, t types.TransactionType, relatedID, description string) {
	row := &models.CreditTransaction{
		ID:              tool.GenerateUUIDV7(),
		UserID:          userID,
		TransactionType: t,
		Amount:          0,
		RelatedEntityID: relatedID,
		Description:     description,
		CreatedAt:       s.clk.Now(),
	}
	if err := s.store.Insert(ctx, row); err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("ledger_audit_write_failed", "type", t, "err", err)
	}
}
