package suggestions

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"post-studio/internal/domain"
)

// Service выдаёт подсказки тем для брифинга. Результат кэшируется на
// календарный день по ключу (пользователь, день, шаблон): повторные заходы
// в течение дня видят те же карточки без нового вызова модели.
type Service struct {
	gen      domain.Generator
	profiles domain.ProfileRepo
	cache    domain.Cache
	timeout  time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewService создаёт сервис подсказок. timeout ограничивает ожидание модели.
func NewService(gen domain.Generator, profiles domain.ProfileRepo, cache domain.Cache, timeout time.Duration, log zerolog.Logger) *Service {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Service{gen: gen, profiles: profiles, cache: cache, timeout: timeout, now: time.Now, log: log}
}

// TopicSuggestions возвращает до пяти подсказок под шаблон. Для «своей темы»
// подсказок нет. Сбой модели или таймаут деградируют до пустого списка.
func (s *Service) TopicSuggestions(ctx context.Context, userID int64, templateID string) ([]domain.TopicSuggestion, error) {
	if templateID == "" || templateID == domain.FreeTopicTemplateID {
		return nil, nil
	}

	day := s.now().UTC()
	key := fmt.Sprintf("topic_suggestions:%d:%s:%s", userID, day.Format("2006-01-02"), templateID)
	if raw, err := s.cache.Get(key); err == nil && len(raw) > 0 {
		var cached []domain.TopicSuggestion
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("профиль: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	list, err := s.gen.GenerateTopicSuggestions(genCtx, profile, templateID)
	if err != nil {
		s.log.Warn().Err(err).Str("template", templateID).Msg("генерация подсказок не удалась")
		return nil, nil
	}
	if len(list) == 0 {
		return nil, nil
	}

	if raw, err := json.Marshal(list); err == nil {
		if err := s.cache.Set(key, raw, untilMidnight(day)); err != nil {
			s.log.Warn().Err(err).Msg("кэш подсказок недоступен")
		}
	}
	return list, nil
}

// untilMidnight — TTL до конца текущих суток UTC.
func untilMidnight(now time.Time) time.Duration {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	return midnight.Sub(now)
}
