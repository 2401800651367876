package studio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"post-studio/internal/domain"
	"post-studio/internal/usecase/posts"
)

type memStore struct {
	mu       sync.Mutex
	user     domain.User
	sessions map[int64]domain.Session
	posts    map[string]domain.Post
	usage    map[int64]int
	saves    int
}

func newMemStore(role domain.UserRole) *memStore {
	return &memStore{
		user:     domain.User{ID: 1, Subject: "auth0|42", Role: role},
		sessions: make(map[int64]domain.Session),
		posts:    make(map[string]domain.Post),
		usage:    make(map[int64]int),
	}
}

func (m *memStore) UpsertBySubject(context.Context, string, string, string) (domain.User, bool, error) {
	return m.user, false, nil
}
func (m *memStore) GetBySubject(context.Context, string) (domain.User, error) { return m.user, nil }
func (m *memStore) GetByID(context.Context, int64) (domain.User, error)       { return m.user, nil }

func (m *memStore) GetProfile(context.Context, int64) (domain.ContentProfile, error) {
	return domain.ContentProfile{UserID: m.user.ID, Industry: "SaaS", ToneFormal: 50, ToneEmotional: 50, ToneBold: 50}, nil
}
func (m *memStore) SaveProfile(context.Context, domain.ContentProfile) error { return nil }

func (m *memStore) GetSession(_ context.Context, userID int64) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[userID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (m *memStore) CreateSession(_ context.Context, session domain.Session) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.UserID] = session
	return session, nil
}

func (m *memStore) SaveSession(_ context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[session.UserID]; !ok {
		return domain.ErrSessionNotFound
	}
	m.sessions[session.UserID] = session
	m.saves++
	return nil
}

func (m *memStore) DeleteSession(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *memStore) CreatePost(_ context.Context, post domain.Post) (domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post.ID = "post-1"
	m.posts[post.ID] = post
	return post, nil
}

func (m *memStore) GetPost(_ context.Context, id string, _ int64) (domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return post, nil
}

func (m *memStore) PatchPost(_ context.Context, id string, _ int64, patch domain.PostPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return domain.ErrPostNotFound
	}
	if patch.Hook != nil {
		post.Hook = *patch.Hook
	}
	if patch.Body != nil {
		post.Body = *patch.Body
	}
	if patch.CTA != nil {
		post.CTA = *patch.CTA
	}
	if patch.Score != nil {
		post.Score = patch.Score
	}
	if patch.Status != nil {
		post.Status = *patch.Status
	}
	if patch.Transcript != nil {
		post.Transcript = patch.Transcript
	}
	m.posts[id] = post
	return nil
}

func (m *memStore) DeletePost(_ context.Context, id string, _ int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.posts, id)
	return nil
}

func (m *memStore) ListPostsByUser(context.Context, int64, int) ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Post, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) SetPostFeedback(_ context.Context, id string, _ int64, feedback *domain.PostFeedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	post := m.posts[id]
	post.Feedback = feedback
	m.posts[id] = post
	return nil
}

func (m *memStore) TryConsume(_ context.Context, userID int64, _ time.Time, limit int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > 0 && m.usage[userID] >= limit {
		return 0, domain.ErrQuotaExceeded
	}
	m.usage[userID]++
	return m.usage[userID], nil
}

func (m *memStore) CurrentUsage(_ context.Context, userID int64, _ time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[userID], nil
}

type fakeGen struct {
	hooks     []string
	hooksErr  error
	body      string
	bodyErr   error
	ctas      []string
	ctasErr   error
	score     domain.ScoreResult
	scoreErr  error
	refined   string
	refineErr error
	calls     map[string]int
}

func newFakeGen() *fakeGen {
	return &fakeGen{
		hooks:   []string{"Хук А", "Хук Б", "Хук В"},
		body:    "Основной текст поста о тайм-менеджменте.",
		ctas:    []string{"Напишите в комментариях", "Сохраните пост", "Поделитесь с коллегой"},
		score:   domain.NewScoreResult(domain.ScoreBreakdown{Hook: 9, Structure: 9, Data: 9, CTA: 9, Algorithm: 9}),
		refined: "Переписанный текст поля.",
		calls:   map[string]int{},
	}
}

func (g *fakeGen) GenerateHooks(context.Context, domain.GenerationInput) ([]string, error) {
	g.calls["hooks"]++
	return g.hooks, g.hooksErr
}
func (g *fakeGen) GenerateBody(context.Context, domain.GenerationInput) (string, error) {
	g.calls["body"]++
	return g.body, g.bodyErr
}
func (g *fakeGen) GenerateCTAs(context.Context, domain.GenerationInput) ([]string, error) {
	g.calls["ctas"]++
	return g.ctas, g.ctasErr
}
func (g *fakeGen) ScorePost(context.Context, domain.ScoreInput) (domain.ScoreResult, error) {
	g.calls["score"]++
	return g.score, g.scoreErr
}
func (g *fakeGen) RefineContent(context.Context, domain.RefineInput) (string, error) {
	g.calls["refine"]++
	return g.refined, g.refineErr
}
func (g *fakeGen) GenerateTopicSuggestions(context.Context, domain.ContentProfile, string) ([]domain.TopicSuggestion, error) {
	g.calls["suggestions"]++
	return []domain.TopicSuggestion{{Title: "Делегирование", Angle: "личный опыт", Why: "частая боль"}}, nil
}

type fakeSuggester struct {
	list []domain.TopicSuggestion
	err  error
}

func (f *fakeSuggester) TopicSuggestions(context.Context, int64, string) ([]domain.TopicSuggestion, error) {
	return f.list, f.err
}

func newStudio(store *memStore, gen *fakeGen) *Service {
	log := zerolog.Nop()
	postSvc := posts.NewService(store, store, store, log)
	suggester := &fakeSuggester{list: []domain.TopicSuggestion{{Title: "Делегирование"}}}
	// большие задержки: записи в тестах выполняются только явным Flush
	return NewService(store, store, gen, postSvc, suggester, time.Hour, time.Hour, log)
}

func advanceToHooks(t *testing.T, svc *Service) domain.Session {
	t.Helper()
	ctx := context.Background()
	if _, err := svc.StartFresh(ctx, 1); err != nil {
		t.Fatalf("не ожидали ошибку старта: %v", err)
	}
	if _, err := svc.ChooseTemplate(ctx, 1, "practical-tip"); err != nil {
		t.Fatalf("шаблон: %v", err)
	}
	if _, err := svc.SetTopic(ctx, 1, "Тайм-менеджмент для руководителей"); err != nil {
		t.Fatalf("тема: %v", err)
	}
	if _, err := svc.SetObjective(ctx, 1, "привлечь клиентов", "руководители продукта"); err != nil {
		t.Fatalf("цель: %v", err)
	}
	if _, err := svc.SetFeeling(ctx, 1, "уверенность"); err != nil {
		t.Fatalf("чувство: %v", err)
	}
	if _, err := svc.ChooseStructure(ctx, 1, "PAS"); err != nil {
		t.Fatalf("структура: %v", err)
	}
	sess, err := svc.ChooseContentType(ctx, 1, "how-to")
	if err != nil {
		t.Fatalf("формат: %v", err)
	}
	return sess
}

func advanceToScoring(t *testing.T, svc *Service) domain.Session {
	t.Helper()
	ctx := context.Background()
	advanceToHooks(t, svc)
	if _, err := svc.SelectHook(ctx, 1, 2); err != nil {
		t.Fatalf("выбор хука: %v", err)
	}
	sess, err := svc.SelectCTA(ctx, 1, 1)
	if err != nil {
		t.Fatalf("выбор призыва: %v", err)
	}
	return sess
}

func TestHappyPathToCompletedPost(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	sess := advanceToHooks(t, svc)
	if sess.CurrentStep != domain.StepHook {
		t.Fatalf("ожидали шаг 4, получили %d", sess.CurrentStep)
	}
	if len(sess.Hooks) != 3 {
		t.Fatalf("ожидали 3 хука, получили %d", len(sess.Hooks))
	}

	sess, err := svc.SelectHook(ctx, 1, 2)
	if err != nil {
		t.Fatalf("выбор хука: %v", err)
	}
	if sess.CurrentStep != domain.StepCTA {
		t.Fatalf("после хука ожидали шаг 6, получили %d", sess.CurrentStep)
	}
	if sess.PostID == "" {
		t.Fatalf("ожидали созданный пост")
	}
	if sess.Body == "" {
		t.Fatalf("ожидали сгенерированное тело")
	}
	if store.usage[1] != 1 {
		t.Fatalf("ожидали списанный слот квоты, счётчик %d", store.usage[1])
	}
	if _, ok := store.posts[sess.PostID]; !ok {
		t.Fatalf("пост не записан в хранилище")
	}

	sess, err = svc.SelectCTA(ctx, 1, 1)
	if err != nil {
		t.Fatalf("выбор призыва: %v", err)
	}
	if sess.CurrentStep != domain.StepScoring {
		t.Fatalf("ожидали шаг 7, получили %d", sess.CurrentStep)
	}
	if sess.Score == nil || sess.Score.Aggregate != 9.0 {
		t.Fatalf("ожидали оценку 9.0, получили %+v", sess.Score)
	}
	if len(sess.Versions) != 1 || !sess.Versions[0].Original {
		t.Fatalf("ожидали одну исходную версию")
	}
	if sess.ActiveVersion != sess.Versions[0].ID {
		t.Fatalf("исходная версия должна быть активной")
	}

	post, err := svc.SaveFinal(ctx, 1)
	if err != nil {
		t.Fatalf("финал: %v", err)
	}
	if post.Status != domain.PostStatusCompleted {
		t.Fatalf("ожидали статус completed, получили %s", post.Status)
	}
	if post.Hook != "Хук Б" {
		t.Fatalf("ожидали выбранный хук в посте, получили %q", post.Hook)
	}
	if _, err := store.GetSession(ctx, 1); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("сессия должна быть удалена после финала")
	}
}

func TestRegenerateHooksKeepsNumbering(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToHooks(t, svc)
	gen.hooks = []string{"Хук Г", "Хук Д", "Хук Е"}
	sess, err := svc.GenerateHooks(ctx, 1)
	if err != nil {
		t.Fatalf("повторная генерация: %v", err)
	}
	if len(sess.Hooks) != 6 {
		t.Fatalf("ожидали 6 кандидатов, получили %d", len(sess.Hooks))
	}

	last := sess.Transcript[len(sess.Transcript)-1]
	if last.Kind != domain.MessageKindOptions {
		t.Fatalf("ожидали сообщение с вариантами")
	}
	if last.Options[0].Number != 4 || last.Options[2].Number != 6 {
		t.Fatalf("ожидали сквозную нумерацию 4..6, получили %d..%d", last.Options[0].Number, last.Options[2].Number)
	}

	sess, err = svc.SelectHook(ctx, 1, 5)
	if err != nil {
		t.Fatalf("выбор из второго раунда: %v", err)
	}
	if sess.SelectedHookText() != "Хук Д" {
		t.Fatalf("номер 5 должен указывать на второй раунд, получили %q", sess.SelectedHookText())
	}
}

func TestHookGenerationFailureKeepsStep(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	gen.hooksErr = errors.New("таймаут модели")
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	if _, err := svc.StartFresh(ctx, 1); err != nil {
		t.Fatalf("старт: %v", err)
	}
	svc.ChooseTemplate(ctx, 1, "practical-tip")
	svc.SetTopic(ctx, 1, "тема")
	svc.SetObjective(ctx, 1, "цель", "")
	svc.SetFeeling(ctx, 1, "интерес")
	svc.ChooseStructure(ctx, 1, "AIDA")

	if _, err := svc.ChooseContentType(ctx, 1, "story"); err == nil {
		t.Fatalf("ожидали ошибку генерации")
	}
	sess, err := svc.Current(ctx, 1)
	if err != nil {
		t.Fatalf("сессия пропала: %v", err)
	}
	if sess.CurrentStep != domain.StepContentType {
		t.Fatalf("шаг должен остаться 3, получили %d", sess.CurrentStep)
	}
	if sess.ContentType != "story" {
		t.Fatalf("выбранный формат должен сохраниться")
	}

	// после восстановления связи повторный запрос доводит до шага 4
	gen.hooksErr = nil
	sess, err = svc.GenerateHooks(ctx, 1)
	if err != nil {
		t.Fatalf("повтор после сбоя: %v", err)
	}
	if sess.CurrentStep != domain.StepHook {
		t.Fatalf("ожидали шаг 4, получили %d", sess.CurrentStep)
	}
}

func TestQuotaExceededBlocksHookSelection(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	store.usage[1] = 8 // лимит Free
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToHooks(t, svc)
	_, err := svc.SelectHook(ctx, 1, 1)
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("ожидали ErrQuotaExceeded, получили %v", err)
	}
	sess, _ := svc.Current(ctx, 1)
	if sess.CurrentStep != domain.StepHook || sess.SelectedHook != 0 {
		t.Fatalf("отказ по квоте не должен менять сессию")
	}
	if store.usage[1] != 8 {
		t.Fatalf("счётчик не должен расти при отказе, получили %d", store.usage[1])
	}
	if len(store.posts) != 0 {
		t.Fatalf("пост не должен создаваться при отказе")
	}
}

func TestUnlimitedPlanIgnoresCounter(t *testing.T) {
	store := newMemStore(domain.UserRoleDeveloper)
	store.usage[1] = 1000
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()

	advanceToHooks(t, svc)
	if _, err := svc.SelectHook(context.Background(), 1, 1); err != nil {
		t.Fatalf("безлимит не должен упираться в счётчик: %v", err)
	}
}

func TestStructureIsImmutable(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	svc := newStudio(store, newFakeGen())
	defer svc.Stop()
	ctx := context.Background()

	svc.StartFresh(ctx, 1)
	svc.ChooseTemplate(ctx, 1, "free-topic")
	svc.SetTopic(ctx, 1, "своя тема")
	svc.SetObjective(ctx, 1, "цель", "")
	svc.SetFeeling(ctx, 1, "интерес")
	if _, err := svc.ChooseStructure(ctx, 1, "PAS"); err != nil {
		t.Fatalf("первый выбор: %v", err)
	}
	if _, err := svc.ChooseStructure(ctx, 1, "AIDA"); !errors.Is(err, ErrWrongStep) && !errors.Is(err, ErrStructureLocked) {
		t.Fatalf("повторный выбор структуры должен отклоняться, получили %v", err)
	}
}

func TestStepsRejectOutOfOrderActions(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	svc := newStudio(store, newFakeGen())
	defer svc.Stop()
	ctx := context.Background()

	svc.StartFresh(ctx, 1)
	if _, err := svc.SelectHook(ctx, 1, 1); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("выбор хука на шаге 1 должен отклоняться, получили %v", err)
	}
	if _, err := svc.ChooseStructure(ctx, 1, "PAS"); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("выбор структуры на шаге 1 должен отклоняться, получили %v", err)
	}
	if _, err := svc.SetTopic(ctx, 1, "тема"); !errors.Is(err, ErrWrongStep) {
		t.Fatalf("тема до выбора шаблона должна отклоняться, получили %v", err)
	}
}

func TestRecoveryReadsPendingSnapshot(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	svc := newStudio(store, newFakeGen())
	defer svc.Stop()
	ctx := context.Background()

	svc.StartFresh(ctx, 1)
	svc.ChooseTemplate(ctx, 1, "practical-tip")
	if _, err := svc.SetTopic(ctx, 1, "ещё не сохранённая тема"); err != nil {
		t.Fatalf("тема: %v", err)
	}

	// запись отложена, но Current обязан видеть последний снимок
	sess, err := svc.Current(ctx, 1)
	if err != nil {
		t.Fatalf("восстановление: %v", err)
	}
	if sess.Briefing.Topic != "ещё не сохранённая тема" {
		t.Fatalf("потерян несохранённый снимок: %+v", sess.Briefing)
	}

	stored, _ := store.GetSession(ctx, 1)
	if stored.Briefing.Topic != "" {
		t.Fatalf("в базе тема ещё не должна появиться")
	}
	if err := svc.saver.Flush(ctx, 1); err != nil {
		t.Fatalf("flush: %v", err)
	}
	stored, _ = store.GetSession(ctx, 1)
	if stored.Briefing.Topic != "ещё не сохранённая тема" {
		t.Fatalf("после flush тема должна быть в базе")
	}
}

func TestRefineCreatesVersionAndRescores(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToScoring(t, svc)
	gen.score = domain.NewScoreResult(domain.ScoreBreakdown{Hook: 8, Structure: 8, Data: 8, CTA: 8, Algorithm: 8})
	sess, err := svc.Refine(ctx, 1, domain.FieldHook, "сделай короче и дерзче")
	if err != nil {
		t.Fatalf("доработка: %v", err)
	}
	if len(sess.Versions) != 2 {
		t.Fatalf("ожидали 2 версии, получили %d", len(sess.Versions))
	}
	v := sess.Versions[1]
	if v.Hook != "Переписанный текст поля." {
		t.Fatalf("новая версия должна нести переписанный хук, получили %q", v.Hook)
	}
	if v.Body != sess.Versions[0].Body || v.CTA != sess.Versions[0].CTA {
		t.Fatalf("остальные поля должны копироваться из базовой версии")
	}
	if v.ScoreState != domain.ScoreStateReady || v.Score == nil {
		t.Fatalf("оценка версии должна быть готова, состояние %s", v.ScoreState)
	}
	if sess.ActiveVersion != v.ID {
		t.Fatalf("новая версия должна стать активной")
	}
	if sess.Score.Aggregate != 8.0 {
		t.Fatalf("оценка сессии должна обновиться, получили %.1f", sess.Score.Aggregate)
	}
}

func TestRefineScoreFailureMarksVersionFailed(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToScoring(t, svc)
	gen.scoreErr = errors.New("модель недоступна")
	sess, err := svc.Refine(ctx, 1, domain.FieldBody, "добавь цифр")
	if err != nil {
		t.Fatalf("сбой скоринга не должен ронять доработку: %v", err)
	}
	v := sess.Versions[len(sess.Versions)-1]
	if v.ScoreState != domain.ScoreStateFailed {
		t.Fatalf("ожидали состояние failed, получили %s", v.ScoreState)
	}
	if sess.ActiveVersion != v.ID {
		t.Fatalf("версия активируется и без оценки")
	}
	if sess.Score == nil || sess.Score.Aggregate != 9.0 {
		t.Fatalf("оценка сессии не должна затираться при сбое")
	}
}

func TestSwitchVersionRestoresScoreWithoutGeneration(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToScoring(t, svc)
	gen.score = domain.NewScoreResult(domain.ScoreBreakdown{Hook: 6, Structure: 6, Data: 6, CTA: 6, Algorithm: 6})
	sess, err := svc.Refine(ctx, 1, domain.FieldCTA, "мягче")
	if err != nil {
		t.Fatalf("доработка: %v", err)
	}
	if sess.Score.Aggregate != 6.0 {
		t.Fatalf("ожидали 6.0 после доработки, получили %.1f", sess.Score.Aggregate)
	}

	calls := gen.calls["score"] + gen.calls["hooks"] + gen.calls["body"] + gen.calls["ctas"] + gen.calls["refine"]
	original := sess.Versions[0]
	sess, err = svc.SwitchVersion(ctx, 1, original.ID)
	if err != nil {
		t.Fatalf("переключение: %v", err)
	}
	if sess.ActiveVersion != original.ID {
		t.Fatalf("активной должна стать исходная версия")
	}
	if sess.Score.Aggregate != 9.0 {
		t.Fatalf("переключение должно вернуть сохранённую оценку, получили %.1f", sess.Score.Aggregate)
	}
	after := gen.calls["score"] + gen.calls["hooks"] + gen.calls["body"] + gen.calls["ctas"] + gen.calls["refine"]
	if after != calls {
		t.Fatalf("переключение версий не должно звать генерацию")
	}
}

func TestSaveFinalRejectsLowScore(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	gen.score = domain.NewScoreResult(domain.ScoreBreakdown{Hook: 5, Structure: 5, Data: 5, CTA: 5, Algorithm: 5})
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToScoring(t, svc)
	if _, err := svc.SaveFinal(ctx, 1); !errors.Is(err, posts.ErrScoreTooLow) {
		t.Fatalf("ожидали отказ по порогу, получили %v", err)
	}
	if _, err := store.GetSession(ctx, 1); err != nil {
		t.Fatalf("сессия должна остаться после отказа: %v", err)
	}
	if store.posts["post-1"].Status != domain.PostStatusInProgress {
		t.Fatalf("пост должен остаться в работе")
	}
}

func TestStartFreshReplacesSession(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	svc := newStudio(store, newFakeGen())
	defer svc.Stop()
	ctx := context.Background()

	first, _ := svc.StartFresh(ctx, 1)
	svc.ChooseTemplate(ctx, 1, "practical-tip")
	second, err := svc.StartFresh(ctx, 1)
	if err != nil {
		t.Fatalf("повторный старт: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("новая сессия должна получить новый ID")
	}
	sess, _ := svc.Current(ctx, 1)
	if sess.Briefing.TemplateID != "" {
		t.Fatalf("старый брифинг не должен пережить рестарт")
	}
}

func TestRescoreRecoversFailedVersion(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToScoring(t, svc)
	gen.scoreErr = errors.New("модель недоступна")
	if _, err := svc.Refine(ctx, 1, domain.FieldHook, "короче"); err != nil {
		t.Fatalf("доработка: %v", err)
	}

	gen.scoreErr = nil
	gen.score = domain.NewScoreResult(domain.ScoreBreakdown{Hook: 8, Structure: 8, Data: 8, CTA: 8, Algorithm: 8})
	sess, err := svc.Rescore(ctx, 1)
	if err != nil {
		t.Fatalf("повторный скоринг: %v", err)
	}
	v := sess.Versions[len(sess.Versions)-1]
	if v.ScoreState != domain.ScoreStateReady || v.Score == nil {
		t.Fatalf("версия должна получить оценку, состояние %s", v.ScoreState)
	}
	if sess.Score.Aggregate != 8.0 {
		t.Fatalf("ожидали 8.0, получили %.1f", sess.Score.Aggregate)
	}
}

func TestScoringFallsBackToNeutral(t *testing.T) {
	store := newMemStore(domain.UserRoleFree)
	gen := newFakeGen()
	gen.scoreErr = errors.New("модель недоступна")
	svc := newStudio(store, gen)
	defer svc.Stop()
	ctx := context.Background()

	advanceToHooks(t, svc)
	if _, err := svc.SelectHook(ctx, 1, 1); err != nil {
		t.Fatalf("выбор хука: %v", err)
	}
	sess, err := svc.SelectCTA(ctx, 1, 1)
	if err != nil {
		t.Fatalf("сбой скоринга не должен блокировать шаг 7: %v", err)
	}
	if sess.CurrentStep != domain.StepScoring {
		t.Fatalf("ожидали шаг 7, получили %d", sess.CurrentStep)
	}
	if sess.Score == nil || sess.Score.Aggregate != 5.0 {
		t.Fatalf("ожидали нейтральную оценку 5.0, получили %+v", sess.Score)
	}
}
