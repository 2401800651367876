package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"post-studio/internal/domain"
	"post-studio/internal/infra/metrics"
)

var (
	// ErrScoreTooLow — оценка поста ниже порога сохранения.
	ErrScoreTooLow = errors.New("оценка поста ниже порога сохранения")
	// ErrFeedbackInvalid — недопустимое значение реакции.
	ErrFeedbackInvalid = errors.New("недопустимое значение реакции")
)

// Service — операции над записями постов: создание с учётом месячной квоты,
// частичные обновления, завершение, список и экспорт.
type Service struct {
	posts domain.PostRepo
	usage domain.UsageRepo
	users domain.UserRepo
	now   func() time.Time
	log   zerolog.Logger
}

// NewService создаёт сервис постов.
func NewService(posts domain.PostRepo, usage domain.UsageRepo, users domain.UserRepo, log zerolog.Logger) *Service {
	return &Service{posts: posts, usage: usage, users: users, now: time.Now, log: log}
}

// CreateFromSession атомарно списывает слот квоты и создаёт запись поста из
// текущего состояния сессии. При исчерпанной квоте возвращает
// domain.ErrQuotaExceeded, слот при этом не списывается.
func (s *Service) CreateFromSession(ctx context.Context, sess domain.Session) (domain.Post, error) {
	user, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return domain.Post{}, fmt.Errorf("пользователь: %w", err)
	}
	plan := user.Plan()
	if _, err := s.usage.TryConsume(ctx, user.ID, domain.MonthKey(s.now()), plan.MonthlyPosts); err != nil {
		if errors.Is(err, domain.ErrQuotaExceeded) {
			metrics.QuotaRejectionsTotal.Inc()
			s.log.Info().Int64("user_id", user.ID).Str("plan", plan.Name).Msg("квота постов исчерпана")
		}
		return domain.Post{}, err
	}

	post := domain.Post{
		UserID:      user.ID,
		Structure:   sess.Structure,
		ContentType: sess.ContentType,
		Hook:        sess.SelectedHookText(),
		Status:      domain.PostStatusInProgress,
		Transcript:  sess.Transcript,
	}
	created, err := s.posts.CreatePost(ctx, post)
	if err != nil {
		return domain.Post{}, fmt.Errorf("создание поста: %w", err)
	}
	metrics.PostsCreatedTotal.Inc()
	return created, nil
}

// Patch применяет частичное обновление поста.
func (s *Service) Patch(ctx context.Context, id string, userID int64, patch domain.PostPatch) error {
	return s.posts.PatchPost(ctx, id, userID, patch)
}

// Complete записывает итоговый контент версии и переводит пост в completed.
// Порог по совокупной оценке проверяется здесь, у единственной точки выхода.
func (s *Service) Complete(ctx context.Context, id string, userID int64, version domain.ContentVersion, transcript []domain.ChatMessage) (domain.Post, error) {
	if version.ScoreState != domain.ScoreStateReady || version.Score == nil {
		return domain.Post{}, ErrScoreTooLow
	}
	if version.Score.Aggregate < domain.MinPublishScore {
		return domain.Post{}, ErrScoreTooLow
	}
	status := domain.PostStatusCompleted
	patch := domain.PostPatch{
		Hook:       &version.Hook,
		Body:       &version.Body,
		CTA:        &version.CTA,
		Score:      version.Score,
		Status:     &status,
		Transcript: transcript,
	}
	if err := s.posts.PatchPost(ctx, id, userID, patch); err != nil {
		return domain.Post{}, err
	}
	metrics.PostsCompletedTotal.Inc()
	return s.posts.GetPost(ctx, id, userID)
}

// Get возвращает пост пользователя.
func (s *Service) Get(ctx context.Context, id string, userID int64) (domain.Post, error) {
	return s.posts.GetPost(ctx, id, userID)
}

// Delete удаляет пост. Списанный при создании слот квоты не возвращается.
func (s *Service) Delete(ctx context.Context, id string, userID int64) error {
	return s.posts.DeletePost(ctx, id, userID)
}

// List возвращает посты пользователя, новые первыми.
func (s *Service) List(ctx context.Context, userID int64, limit int) ([]domain.Post, error) {
	return s.posts.ListPostsByUser(ctx, userID, limit)
}

// SetFeedback сохраняет реакцию на пост: up, down или пусто для сброса.
func (s *Service) SetFeedback(ctx context.Context, id string, userID int64, value string) error {
	var fb *domain.PostFeedback
	switch value {
	case "":
	case string(domain.PostFeedbackUp):
		v := domain.PostFeedbackUp
		fb = &v
	case string(domain.PostFeedbackDown):
		v := domain.PostFeedbackDown
		fb = &v
	default:
		return ErrFeedbackInvalid
	}
	return s.posts.SetPostFeedback(ctx, id, userID, fb)
}

// Export возвращает готовый к публикации текст поста.
func (s *Service) Export(ctx context.Context, id string, userID int64) (string, error) {
	post, err := s.posts.GetPost(ctx, id, userID)
	if err != nil {
		return "", err
	}
	return post.FullContent(), nil
}

// Usage возвращает состояние месячной квоты пользователя.
func (s *Service) Usage(ctx context.Context, userID int64) (domain.UsageState, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return domain.UsageState{}, err
	}
	used, err := s.usage.CurrentUsage(ctx, userID, domain.MonthKey(s.now()))
	if err != nil {
		return domain.UsageState{}, err
	}
	return domain.UsageState{Plan: user.Plan(), PostsUsed: used}, nil
}
