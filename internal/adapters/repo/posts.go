package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"post-studio/internal/domain"
	"post-studio/internal/infra/metrics"
)

// CreatePost сохраняет новый пост.
func (p *Postgres) CreatePost(ctx context.Context, post domain.Post) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.Status == "" {
		post.Status = domain.PostStatusInProgress
	}
	now := time.Now().UTC()
	post.CreatedAt = now
	post.UpdatedAt = now

	scoreJSON, err := marshalNullable(post.Score)
	if err != nil {
		return domain.Post{}, fmt.Errorf("сериализация оценки: %w", err)
	}
	transcriptJSON, err := marshalNullable(post.Transcript)
	if err != nil {
		return domain.Post{}, fmt.Errorf("сериализация транскрипта: %w", err)
	}

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO posts (id, user_id, hook, body, cta, structure, content_type, score, status, transcript, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
`, post.ID, post.UserID, post.Hook, post.Body, post.CTA, post.Structure, post.ContentType,
		scoreJSON, string(post.Status), transcriptJSON, now)
	metrics.ObserveNetworkRequest("postgres", "posts_create", "posts", start, err)
	if err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

// GetPost возвращает пост владельца.
func (p *Postgres) GetPost(ctx context.Context, id string, userID int64) (domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	row := p.pool.QueryRow(ctx, `
SELECT id, user_id, hook, body, cta, structure, content_type, score, feedback, status, transcript, created_at, updated_at
FROM posts WHERE id=$1 AND user_id=$2
`, id, userID)
	post, err := scanPost(row)
	metrics.ObserveNetworkRequest("postgres", "posts_get", "posts", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Post{}, domain.ErrPostNotFound
	}
	if err != nil {
		return domain.Post{}, err
	}
	return post, nil
}

// PatchPost выполняет частичное обновление: затрагиваются только ненулевые
// поля патча, поздняя запись выигрывает.
func (p *Postgres) PatchPost(ctx context.Context, id string, userID int64, patch domain.PostPatch) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	sets := make([]string, 0, 6)
	args := []any{id, userID}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+"=$"+strconv.Itoa(len(args)))
	}
	if patch.Hook != nil {
		add("hook", *patch.Hook)
	}
	if patch.Body != nil {
		add("body", *patch.Body)
	}
	if patch.CTA != nil {
		add("cta", *patch.CTA)
	}
	if patch.Score != nil {
		scoreJSON, err := json.Marshal(patch.Score)
		if err != nil {
			return fmt.Errorf("сериализация оценки: %w", err)
		}
		add("score", scoreJSON)
	}
	if patch.Status != nil {
		add("status", string(*patch.Status))
	}
	if patch.Transcript != nil {
		transcriptJSON, err := json.Marshal(patch.Transcript)
		if err != nil {
			return fmt.Errorf("сериализация транскрипта: %w", err)
		}
		add("transcript", transcriptJSON)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at=now()")

	start := time.Now()
	tag, err := p.pool.Exec(ctx,
		"UPDATE posts SET "+strings.Join(sets, ", ")+" WHERE id=$1 AND user_id=$2", args...)
	metrics.ObserveNetworkRequest("postgres", "posts_patch", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// DeletePost удаляет пост владельца. Слот месячного лимита не возвращается.
func (p *Postgres) DeletePost(ctx context.Context, id string, userID int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM posts WHERE id=$1 AND user_id=$2`, id, userID)
	metrics.ObserveNetworkRequest("postgres", "posts_delete", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

// ListPostsByUser возвращает посты пользователя, новые первыми.
func (p *Postgres) ListPostsByUser(ctx context.Context, userID int64, limit int) ([]domain.Post, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, hook, body, cta, structure, content_type, score, feedback, status, transcript, created_at, updated_at
FROM posts WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "posts_list", "posts", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

// SetPostFeedback записывает реакцию up/down либо снимает её.
func (p *Postgres) SetPostFeedback(ctx context.Context, id string, userID int64, feedback *domain.PostFeedback) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var value sql.NullString
	if feedback != nil {
		value = sql.NullString{String: string(*feedback), Valid: true}
	}
	start := time.Now()
	tag, err := p.pool.Exec(ctx, `
UPDATE posts SET feedback=$3, updated_at=now() WHERE id=$1 AND user_id=$2
`, id, userID, value)
	metrics.ObserveNetworkRequest("postgres", "posts_set_feedback", "posts", start, err)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPostNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (domain.Post, error) {
	var (
		post           domain.Post
		scoreJSON      []byte
		transcriptJSON []byte
		feedback       sql.NullString
		status         string
	)
	err := row.Scan(&post.ID, &post.UserID, &post.Hook, &post.Body, &post.CTA,
		&post.Structure, &post.ContentType, &scoreJSON, &feedback, &status,
		&transcriptJSON, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return domain.Post{}, err
	}
	post.Status = domain.PostStatus(status)
	if feedback.Valid {
		fb := domain.PostFeedback(feedback.String)
		post.Feedback = &fb
	}
	if len(scoreJSON) > 0 {
		var score domain.ScoreResult
		if err := json.Unmarshal(scoreJSON, &score); err != nil {
			return domain.Post{}, fmt.Errorf("распаковка оценки: %w", err)
		}
		post.Score = &score
	}
	if len(transcriptJSON) > 0 {
		if err := json.Unmarshal(transcriptJSON, &post.Transcript); err != nil {
			return domain.Post{}, fmt.Errorf("распаковка транскрипта: %w", err)
		}
	}
	return post, nil
}

func marshalNullable(v any) ([]byte, error) {
	switch value := v.(type) {
	case *domain.ScoreResult:
		if value == nil {
			return nil, nil
		}
	case []domain.ChatMessage:
		if value == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
