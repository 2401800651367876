package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"post-studio/internal/domain"
	apphttp "post-studio/internal/infra/http"
	"post-studio/internal/usecase/posts"
	"post-studio/internal/usecase/studio"
)

const devSecret = "test-secret"

type apiStore struct {
	mu       sync.Mutex
	user     domain.User
	sessions map[int64]domain.Session
	posts    map[string]domain.Post
	usage    map[int64]int
}

func newAPIStore() *apiStore {
	return &apiStore{
		user:     domain.User{ID: 1, Subject: "auth0|42", Role: domain.UserRoleFree},
		sessions: make(map[int64]domain.Session),
		posts:    make(map[string]domain.Post),
		usage:    make(map[int64]int),
	}
}

func (s *apiStore) UpsertBySubject(context.Context, string, string, string) (domain.User, bool, error) {
	return s.user, false, nil
}
func (s *apiStore) GetBySubject(context.Context, string) (domain.User, error) { return s.user, nil }
func (s *apiStore) GetByID(context.Context, int64) (domain.User, error)       { return s.user, nil }

func (s *apiStore) GetProfile(context.Context, int64) (domain.ContentProfile, error) {
	return domain.ContentProfile{UserID: 1, ToneFormal: 50, ToneEmotional: 50, ToneBold: 50}, nil
}
func (s *apiStore) SaveProfile(context.Context, domain.ContentProfile) error { return nil }

func (s *apiStore) GetSession(_ context.Context, userID int64) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return sess, nil
}

func (s *apiStore) CreateSession(_ context.Context, session domain.Session) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = session
	return session, nil
}

func (s *apiStore) SaveSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.UserID] = session
	return nil
}

func (s *apiStore) DeleteSession(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func (s *apiStore) CreatePost(_ context.Context, post domain.Post) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post.ID = "post-1"
	s.posts[post.ID] = post
	return post, nil
}

func (s *apiStore) GetPost(_ context.Context, id string, _ int64) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return domain.Post{}, domain.ErrPostNotFound
	}
	return post, nil
}

func (s *apiStore) PatchPost(_ context.Context, id string, _ int64, patch domain.PostPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post, ok := s.posts[id]
	if !ok {
		return domain.ErrPostNotFound
	}
	if patch.Status != nil {
		post.Status = *patch.Status
	}
	s.posts[id] = post
	return nil
}

func (s *apiStore) DeletePost(_ context.Context, id string, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, id)
	return nil
}

func (s *apiStore) ListPostsByUser(context.Context, int64, int) ([]domain.Post, error) {
	return nil, nil
}

func (s *apiStore) SetPostFeedback(context.Context, string, int64, *domain.PostFeedback) error {
	return nil
}

func (s *apiStore) TryConsume(_ context.Context, userID int64, _ time.Time, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && s.usage[userID] >= limit {
		return 0, domain.ErrQuotaExceeded
	}
	s.usage[userID]++
	return s.usage[userID], nil
}

func (s *apiStore) CurrentUsage(_ context.Context, userID int64, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[userID], nil
}

type apiGen struct{}

func (apiGen) GenerateHooks(context.Context, domain.GenerationInput) ([]string, error) {
	return []string{"Хук А", "Хук Б", "Хук В"}, nil
}
func (apiGen) GenerateBody(context.Context, domain.GenerationInput) (string, error) {
	return "Тело", nil
}
func (apiGen) GenerateCTAs(context.Context, domain.GenerationInput) ([]string, error) {
	return []string{"Призыв"}, nil
}
func (apiGen) ScorePost(context.Context, domain.ScoreInput) (domain.ScoreResult, error) {
	return domain.NewScoreResult(domain.ScoreBreakdown{Hook: 9, Structure: 9, Data: 9, CTA: 9, Algorithm: 9}), nil
}
func (apiGen) RefineContent(context.Context, domain.RefineInput) (string, error) {
	return "Переписано", nil
}
func (apiGen) GenerateTopicSuggestions(context.Context, domain.ContentProfile, string) ([]domain.TopicSuggestion, error) {
	return nil, nil
}

type apiSuggester struct{}

func (apiSuggester) TopicSuggestions(context.Context, int64, string) ([]domain.TopicSuggestion, error) {
	return []domain.TopicSuggestion{{Title: "Тема"}}, nil
}

func newTestAPI(t *testing.T, store *apiStore) (http.Handler, *studio.Service) {
	t.Helper()
	log := zerolog.Nop()
	postSvc := posts.NewService(store, store, store, log)
	studioSvc := studio.NewService(store, store, apiGen{}, postSvc, apiSuggester{}, time.Hour, time.Hour, log)
	t.Cleanup(studioSvc.Stop)

	verifier, err := apphttp.NewTokenVerifier(nil, devSecret, "")
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	r := chi.NewRouter()
	NewHandler(store, store, studioSvc, postSvc, log).Register(r, verifier)
	return r, studioSvc
}

func signToken(t *testing.T) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "auth0|42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(devSecret))
	if err != nil {
		t.Fatalf("подпись токена: %v", err)
	}
	return token
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("кодирование тела: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAPIRejectsMissingToken(t *testing.T) {
	h, _ := newTestAPI(t, newAPIStore())
	rec := doRequest(t, h, http.MethodGet, "/api/v1/catalog", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("без токена ожидали 401, получили %d", rec.Code)
	}
}

func TestAPICatalog(t *testing.T) {
	h, _ := newTestAPI(t, newAPIStore())
	rec := doRequest(t, h, http.MethodGet, "/api/v1/catalog", signToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Templates  []domain.BriefingTemplate `json:"templates"`
		Structures []domain.CopyStructure    `json:"structures"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не разобрался: %v", err)
	}
	if len(resp.Templates) != 5 || len(resp.Structures) != 5 {
		t.Fatalf("неполный каталог: %d шаблонов, %d структур", len(resp.Templates), len(resp.Structures))
	}
}

func TestAPISessionFlow(t *testing.T) {
	h, _ := newTestAPI(t, newAPIStore())
	token := signToken(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/session", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("без сессии ожидали 404, получили %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("старт: ожидали 200, получили %d: %s", rec.Code, rec.Body.String())
	}
	var view struct {
		Session   domain.Session `json:"session"`
		StepLabel string         `json:"step_label"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("ответ не разобрался: %v", err)
	}
	if view.Session.CurrentStep != domain.StepBriefing || view.StepLabel == "" {
		t.Fatalf("новая сессия должна стоять на шаге 1: %+v", view)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/session/template", token, map[string]string{"template_id": "неизвестный"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("неизвестный шаблон: ожидали 400, получили %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/session/hook", token, map[string]int{"number": 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("выбор хука на шаге 1: ожидали 409, получили %d", rec.Code)
	}

	rec = doRequest(t, h, http.MethodPost, "/api/v1/session/template", token, map[string]string{"template_id": "practical-tip"})
	if rec.Code != http.StatusOK {
		t.Fatalf("шаблон: ожидали 200, получили %d", rec.Code)
	}
}

func TestAPIQuotaExceededMapsToForbidden(t *testing.T) {
	store := newAPIStore()
	store.usage[1] = 8
	h, svc := newTestAPI(t, store)
	token := signToken(t)
	ctx := context.Background()

	svc.StartFresh(ctx, 1)
	svc.ChooseTemplate(ctx, 1, "practical-tip")
	svc.SetTopic(ctx, 1, "тема")
	svc.SetObjective(ctx, 1, "цель", "")
	svc.SetFeeling(ctx, 1, "интерес")
	svc.ChooseStructure(ctx, 1, "PAS")
	if _, err := svc.ChooseContentType(ctx, 1, "how-to"); err != nil {
		t.Fatalf("подготовка: %v", err)
	}

	rec := doRequest(t, h, http.MethodPost, "/api/v1/session/hook", token, map[string]int{"number": 1})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("исчерпанная квота: ожидали 403, получили %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAPIUsage(t *testing.T) {
	store := newAPIStore()
	store.usage[1] = 3
	h, _ := newTestAPI(t, store)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/usage", signToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидали 200, получили %d", rec.Code)
	}
	var resp struct {
		Plan      string `json:"plan"`
		Limit     int    `json:"monthly_limit"`
		Used      int    `json:"posts_used"`
		Remaining int    `json:"remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("ответ не разобрался: %v", err)
	}
	if resp.Plan != "Free" || resp.Used != 3 || resp.Remaining != 5 {
		t.Fatalf("неожиданное состояние квоты: %+v", resp)
	}
}
