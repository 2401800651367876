package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"post-studio/internal/domain"
	"post-studio/internal/infra/metrics"
)

// TryConsume атомарно резервирует слот генерации за месяц. Upsert-инкремент
// в одном стейтменте защищает от двойного клика того же пользователя.
func (p *Postgres) TryConsume(ctx context.Context, userID int64, month time.Time, limit int) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	month = domain.MonthKey(month)
	start := time.Now()
	var used int
	err := p.pool.QueryRow(ctx, `
INSERT INTO monthly_usage (user_id, month, posts_used)
VALUES ($1, $2, 1)
ON CONFLICT (user_id, month) DO UPDATE
SET posts_used = monthly_usage.posts_used + 1
WHERE $3 <= 0 OR monthly_usage.posts_used < $3
RETURNING posts_used
`, userID, month, limit).Scan(&used)
	metrics.ObserveNetworkRequest("postgres", "usage_try_consume", "monthly_usage", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrQuotaExceeded
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}

// CurrentUsage возвращает использованные слоты за месяц.
func (p *Postgres) CurrentUsage(ctx context.Context, userID int64, month time.Time) (int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	month = domain.MonthKey(month)
	start := time.Now()
	var used int
	err := p.pool.QueryRow(ctx, `
SELECT posts_used FROM monthly_usage WHERE user_id=$1 AND month=$2
`, userID, month).Scan(&used)
	metrics.ObserveNetworkRequest("postgres", "usage_current", "monthly_usage", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return used, nil
}
