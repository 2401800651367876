package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"post-studio/internal/domain"
	"post-studio/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.UserRepo    = (*Postgres)(nil)
	_ domain.ProfileRepo = (*Postgres)(nil)
	_ domain.SessionRepo = (*Postgres)(nil)
	_ domain.PostRepo    = (*Postgres)(nil)
	_ domain.UsageRepo   = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Ping проверяет доступность БД.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// UpsertBySubject реализует domain.UserRepo: создаёт пользователя по subject
// OIDC-провайдера при первом входе.
func (p *Postgres) UpsertBySubject(ctx context.Context, subject, email, name string) (domain.User, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return domain.User{}, false, errors.New("пустой subject")
	}

	start := time.Now()
	var (
		user    domain.User
		created bool
	)
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (subject, email, name)
VALUES ($1, $2, $3)
ON CONFLICT (subject) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = now()
RETURNING id, subject, email, name, role, created_at, updated_at, (xmax = 0) AS inserted
`, subject, strings.TrimSpace(email), strings.TrimSpace(name)).
		Scan(&user.ID, &user.Subject, &user.Email, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt, &created)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	if err != nil {
		return domain.User{}, false, err
	}
	if created {
		// профиль по умолчанию для нового пользователя
		start = time.Now()
		_, err = p.pool.Exec(ctx, `
INSERT INTO content_profiles (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING
`, user.ID)
		metrics.ObserveNetworkRequest("postgres", "profiles_init", "content_profiles", start, err)
		if err != nil {
			return domain.User{}, false, err
		}
	}
	return user, created, nil
}

// GetBySubject возвращает пользователя по subject.
func (p *Postgres) GetBySubject(ctx context.Context, subject string) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var user domain.User
	err := p.pool.QueryRow(ctx, `
SELECT id, subject, email, name, role, created_at, updated_at FROM users WHERE subject=$1
`, subject).Scan(&user.ID, &user.Subject, &user.Email, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_subject", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetByID возвращает пользователя по внутреннему идентификатору.
func (p *Postgres) GetByID(ctx context.Context, id int64) (domain.User, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var user domain.User
	err := p.pool.QueryRow(ctx, `
SELECT id, subject, email, name, role, created_at, updated_at FROM users WHERE id=$1
`, id).Scan(&user.ID, &user.Subject, &user.Email, &user.Name, &user.Role, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_id", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// GetProfile возвращает профиль контента пользователя.
func (p *Postgres) GetProfile(ctx context.Context, userID int64) (domain.ContentProfile, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	var profile domain.ContentProfile
	err := p.pool.QueryRow(ctx, `
SELECT user_id, industry, audience, archetype, tone_formal, tone_emotional, tone_bold, updated_at
FROM content_profiles WHERE user_id=$1
`, userID).Scan(&profile.UserID, &profile.Industry, &profile.Audience, &profile.Archetype,
		&profile.ToneFormal, &profile.ToneEmotional, &profile.ToneBold, &profile.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "profiles_get", "content_profiles", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ContentProfile{UserID: userID, ToneFormal: 50, ToneEmotional: 50, ToneBold: 50}, nil
	}
	if err != nil {
		return domain.ContentProfile{}, err
	}
	return profile, nil
}

// SaveProfile сохраняет профиль контента.
func (p *Postgres) SaveProfile(ctx context.Context, profile domain.ContentProfile) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO content_profiles (user_id, industry, audience, archetype, tone_formal, tone_emotional, tone_bold, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (user_id) DO UPDATE SET
	industry = EXCLUDED.industry,
	audience = EXCLUDED.audience,
	archetype = EXCLUDED.archetype,
	tone_formal = EXCLUDED.tone_formal,
	tone_emotional = EXCLUDED.tone_emotional,
	tone_bold = EXCLUDED.tone_bold,
	updated_at = now()
`, profile.UserID, profile.Industry, profile.Audience, profile.Archetype,
		profile.ToneFormal, profile.ToneEmotional, profile.ToneBold)
	metrics.ObserveNetworkRequest("postgres", "profiles_save", "content_profiles", start, err)
	return err
}
