package domain

import (
	"context"
	"time"
)

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertBySubject(ctx context.Context, subject, email, name string) (User, bool, error)
	GetBySubject(ctx context.Context, subject string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
}

// ProfileRepo хранит профиль контента пользователя.
type ProfileRepo interface {
	GetProfile(ctx context.Context, userID int64) (ContentProfile, error)
	SaveProfile(ctx context.Context, profile ContentProfile) error
}

// SessionRepo хранит единственную активную сессию пользователя.
type SessionRepo interface {
	GetSession(ctx context.Context, userID int64) (Session, error)
	// CreateSession заменяет предыдущую сессию пользователя новой.
	CreateSession(ctx context.Context, session Session) (Session, error)
	SaveSession(ctx context.Context, session Session) error
	DeleteSession(ctx context.Context, userID int64) error
}

// PostRepo управляет постами.
type PostRepo interface {
	CreatePost(ctx context.Context, post Post) (Post, error)
	GetPost(ctx context.Context, id string, userID int64) (Post, error)
	PatchPost(ctx context.Context, id string, userID int64, patch PostPatch) error
	DeletePost(ctx context.Context, id string, userID int64) error
	ListPostsByUser(ctx context.Context, userID int64, limit int) ([]Post, error)
	SetPostFeedback(ctx context.Context, id string, userID int64, feedback *PostFeedback) error
}

// UsageRepo отвечает за месячный счётчик слотов генерации.
type UsageRepo interface {
	// TryConsume атомарно резервирует слот: инкремент выполняется только если
	// использовано меньше limit. limit <= 0 снимает ограничение.
	// Возвращает новое значение счётчика либо ErrQuotaExceeded.
	TryConsume(ctx context.Context, userID int64, month time.Time, limit int) (int, error)
	CurrentUsage(ctx context.Context, userID int64, month time.Time) (int, error)
}

// GenerationInput — общий контекст вызова генерации.
type GenerationInput struct {
	Profile     ContentProfile
	Topic       string
	Objective   string
	Audience    string
	Feeling     string
	Structure   string
	ContentType string
	Hook        string
	Body        string
}

// ScoreInput — вход скоринга готовой комбинации полей.
type ScoreInput struct {
	Hook        string
	Body        string
	CTA         string
	Structure   string
	ContentType string
}

// RefineInput — запрос точечной доработки одного поля.
type RefineInput struct {
	Profile     ContentProfile
	Field       FieldKind
	CurrentText string
	Instruction string
	Context     string
}

// Generator оборачивает вызовы внешней языковой модели. Все операции могут
// завершиться ошибкой; выбор запасного поведения остаётся за вызывающим.
type Generator interface {
	GenerateHooks(ctx context.Context, input GenerationInput) ([]string, error)
	GenerateBody(ctx context.Context, input GenerationInput) (string, error)
	GenerateCTAs(ctx context.Context, input GenerationInput) ([]string, error)
	ScorePost(ctx context.Context, input ScoreInput) (ScoreResult, error)
	RefineContent(ctx context.Context, input RefineInput) (string, error)
	GenerateTopicSuggestions(ctx context.Context, profile ContentProfile, templateID string) ([]TopicSuggestion, error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(key string, ttl time.Duration, fn func() error) error
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, error)
}
