package suggestions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"post-studio/internal/domain"
)

type stubProfiles struct{}

func (stubProfiles) GetProfile(context.Context, int64) (domain.ContentProfile, error) {
	return domain.ContentProfile{UserID: 1, Industry: "SaaS"}, nil
}
func (stubProfiles) SaveProfile(context.Context, domain.ContentProfile) error { return nil }

type stubGen struct {
	domain.Generator
	list  []domain.TopicSuggestion
	err   error
	calls int
}

func (g *stubGen) GenerateTopicSuggestions(context.Context, domain.ContentProfile, string) ([]domain.TopicSuggestion, error) {
	g.calls++
	return g.list, g.err
}

type memCache struct {
	data map[string][]byte
	sets int
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Once(string, time.Duration, func() error) error { return nil }

func (c *memCache) Set(key string, value []byte, _ time.Duration) error {
	c.sets++
	c.data[key] = value
	return nil
}

func (c *memCache) Get(key string) ([]byte, error) {
	if v, ok := c.data[key]; ok {
		return v, nil
	}
	return nil, errors.New("ключ не найден")
}

func TestSuggestionsCachedPerDay(t *testing.T) {
	gen := &stubGen{list: []domain.TopicSuggestion{{Title: "Делегирование", Angle: "опыт", Why: "боль"}}}
	cache := newMemCache()
	svc := NewService(gen, stubProfiles{}, cache, time.Minute, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.TopicSuggestions(ctx, 1, "practical-tip")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(first) != 1 || first[0].Title != "Делегирование" {
		t.Fatalf("неожиданный результат: %+v", first)
	}

	second, err := svc.TopicSuggestions(ctx, 1, "practical-tip")
	if err != nil {
		t.Fatalf("повторный вызов: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("повтор в тот же день должен идти из кэша, вызовов модели %d", gen.calls)
	}
	if len(second) != 1 || second[0].Title != first[0].Title {
		t.Fatalf("кэш должен возвращать те же карточки")
	}
}

func TestSuggestionsSkipFreeTopic(t *testing.T) {
	gen := &stubGen{list: []domain.TopicSuggestion{{Title: "не должно появиться"}}}
	svc := NewService(gen, stubProfiles{}, newMemCache(), time.Minute, zerolog.Nop())

	list, err := svc.TopicSuggestions(context.Background(), 1, domain.FreeTopicTemplateID)
	if err != nil || list != nil {
		t.Fatalf("для своей темы подсказок быть не должно: %v %v", list, err)
	}
	if gen.calls != 0 {
		t.Fatalf("модель не должна вызываться для своей темы")
	}
}

func TestSuggestionsDegradeOnGeneratorError(t *testing.T) {
	gen := &stubGen{err: errors.New("таймаут")}
	cache := newMemCache()
	svc := NewService(gen, stubProfiles{}, cache, time.Minute, zerolog.Nop())

	list, err := svc.TopicSuggestions(context.Background(), 1, "industry-trend")
	if err != nil {
		t.Fatalf("сбой модели не должен отдавать ошибку наружу: %v", err)
	}
	if list != nil {
		t.Fatalf("ожидали пустой список, получили %+v", list)
	}
	if cache.sets != 0 {
		t.Fatalf("пустой результат не должен кэшироваться")
	}
}

func TestSuggestionsSeparateUsers(t *testing.T) {
	gen := &stubGen{list: []domain.TopicSuggestion{{Title: "Тема"}}}
	svc := NewService(gen, stubProfiles{}, newMemCache(), time.Minute, zerolog.Nop())
	ctx := context.Background()

	svc.TopicSuggestions(ctx, 1, "practical-tip")
	svc.TopicSuggestions(ctx, 2, "practical-tip")
	if gen.calls != 2 {
		t.Fatalf("кэш не должен делиться между пользователями, вызовов %d", gen.calls)
	}
}
