package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"post-studio/internal/domain"
	"post-studio/internal/infra/metrics"
)

// GetSession возвращает активную сессию пользователя.
func (p *Postgres) GetSession(ctx context.Context, userID int64) (domain.Session, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var (
		snapshot  []byte
		createdAt time.Time
		updatedAt time.Time
	)
	err := p.pool.QueryRow(ctx, `
SELECT snapshot, created_at, updated_at FROM sessions WHERE user_id=$1
`, userID).Scan(&snapshot, &createdAt, &updatedAt)
	metrics.ObserveNetworkRequest("postgres", "sessions_get", "sessions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	var session domain.Session
	if err := json.Unmarshal(snapshot, &session); err != nil {
		return domain.Session{}, fmt.Errorf("распаковка сессии: %w", err)
	}
	session.CreatedAt = createdAt
	session.UpdatedAt = updatedAt
	return session, nil
}

// CreateSession заменяет предыдущую сессию пользователя новой: первичный ключ
// по user_id гарантирует не более одной активной записи.
func (p *Postgres) CreateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	snapshot, err := json.Marshal(session)
	if err != nil {
		return domain.Session{}, fmt.Errorf("сериализация сессии: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO sessions (user_id, id, current_step, topic, snapshot, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $6)
ON CONFLICT (user_id) DO UPDATE SET
	id = EXCLUDED.id,
	current_step = EXCLUDED.current_step,
	topic = EXCLUDED.topic,
	snapshot = EXCLUDED.snapshot,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at
`, session.UserID, session.ID, int(session.CurrentStep), session.Briefing.Topic, snapshot, now)
	metrics.ObserveNetworkRequest("postgres", "sessions_create", "sessions", start, err)
	if err != nil {
		return domain.Session{}, err
	}
	return session, nil
}

// SaveSession записывает полный снимок сессии. Последняя запись выигрывает,
// логики слияния нет.
func (p *Postgres) SaveSession(ctx context.Context, session domain.Session) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	session.UpdatedAt = time.Now().UTC()
	snapshot, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("сериализация сессии: %w", err)
	}

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE sessions SET id=$2, current_step=$3, topic=$4, snapshot=$5, updated_at=$6 WHERE user_id=$1
`, session.UserID, session.ID, int(session.CurrentStep), session.Briefing.Topic, snapshot, session.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "sessions_save", "sessions", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// DeleteSession удаляет активную сессию пользователя.
func (p *Postgres) DeleteSession(ctx context.Context, userID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id=$1`, userID)
	metrics.ObserveNetworkRequest("postgres", "sessions_delete", "sessions", start, err)
	return err
}
