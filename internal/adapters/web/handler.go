package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"post-studio/internal/domain"
	apphttp "post-studio/internal/infra/http"
	"post-studio/internal/usecase/posts"
	"post-studio/internal/usecase/studio"
)

// Handler собирает REST API студии постов поверх chi-роутера.
type Handler struct {
	users  domain.UserRepo
	prof   domain.ProfileRepo
	studio *studio.Service
	posts  *posts.Service
	log    zerolog.Logger
}

// NewHandler создаёт обработчик API.
func NewHandler(users domain.UserRepo, prof domain.ProfileRepo, studioSvc *studio.Service, postSvc *posts.Service, log zerolog.Logger) *Handler {
	return &Handler{users: users, prof: prof, studio: studioSvc, posts: postSvc, log: log}
}

// Register навешивает маршруты API на роутер. verifier охраняет все маршруты.
func (h *Handler) Register(r chi.Router, verifier *apphttp.TokenVerifier) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(apphttp.AuthMiddleware(verifier))

		r.Get("/catalog", h.catalog)
		r.Get("/profile", h.getProfile)
		r.Put("/profile", h.putProfile)
		r.Get("/usage", h.usage)
		r.Get("/suggestions", h.suggestions)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.currentSession)
			r.Post("/", h.startSession)
			r.Delete("/", h.abandonSession)
			r.Post("/template", h.chooseTemplate)
			r.Post("/topic", h.setTopic)
			r.Post("/objective", h.setObjective)
			r.Post("/feeling", h.setFeeling)
			r.Post("/structure", h.chooseStructure)
			r.Post("/content-type", h.chooseContentType)
			r.Post("/hook", h.selectHook)
			r.Post("/cta", h.selectCTA)
			r.Post("/generate", h.generate)
			r.Post("/refine", h.refine)
			r.Post("/version", h.switchVersion)
			r.Post("/save", h.saveFinal)
		})

		r.Route("/posts", func(r chi.Router) {
			r.Get("/", h.listPosts)
			r.Get("/{id}", h.getPost)
			r.Delete("/{id}", h.deletePost)
			r.Post("/{id}/feedback", h.setFeedback)
			r.Get("/{id}/export", h.exportPost)
		})
	})
}

// resolveUser находит или создаёт пользователя по личности из токена.
func (h *Handler) resolveUser(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	identity, ok := apphttp.IdentityFromContext(r.Context())
	if !ok {
		apphttp.WriteError(w, http.StatusUnauthorized, apphttp.ErrTokenInvalid)
		return domain.User{}, false
	}
	user, _, err := h.users.UpsertBySubject(r.Context(), identity.Subject, identity.Email, identity.Name)
	if err != nil {
		h.log.Error().Err(err).Str("subject", identity.Subject).Msg("не удалось разрешить пользователя")
		apphttp.WriteError(w, http.StatusInternalServerError, errors.New("внутренняя ошибка"))
		return domain.User{}, false
	}
	return user, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		apphttp.WriteError(w, http.StatusBadRequest, errors.New("некорректное тело запроса"))
		return false
	}
	return true
}

// writeFailure переводит доменные ошибки в HTTP-статусы.
func (h *Handler) writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrPostNotFound),
		errors.Is(err, domain.ErrUserNotFound), errors.Is(err, studio.ErrVersionNotFound):
		apphttp.WriteError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrQuotaExceeded):
		apphttp.WriteError(w, http.StatusForbidden, err)
	case errors.Is(err, studio.ErrWrongStep), errors.Is(err, studio.ErrStructureLocked):
		apphttp.WriteError(w, http.StatusConflict, err)
	case errors.Is(err, studio.ErrTemplateInvalid), errors.Is(err, studio.ErrStructureInvalid),
		errors.Is(err, studio.ErrContentTypeInvalid), errors.Is(err, studio.ErrOptionInvalid),
		errors.Is(err, studio.ErrInputEmpty), errors.Is(err, studio.ErrFieldInvalid),
		errors.Is(err, posts.ErrFeedbackInvalid):
		apphttp.WriteError(w, http.StatusBadRequest, err)
	case errors.Is(err, posts.ErrScoreTooLow):
		apphttp.WriteError(w, http.StatusUnprocessableEntity, err)
	default:
		h.log.Error().Err(err).Msg("ошибка обработки запроса")
		apphttp.WriteError(w, http.StatusBadGateway, errors.New("генерация временно недоступна"))
	}
}

// sessionView — ответ с сессией и данными для плашки восстановления.
type sessionView struct {
	Session   domain.Session `json:"session"`
	StepLabel string         `json:"step_label"`
}

func (h *Handler) writeSession(w http.ResponseWriter, sess domain.Session) {
	apphttp.WriteJSON(w, sessionView{Session: sess, StepLabel: sess.CurrentStep.Label()})
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	sess, err := h.studio.Current(r.Context(), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	sess, err := h.studio.StartFresh(r.Context(), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) abandonSession(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	if err := h.studio.Abandon(r.Context(), user.ID); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) chooseTemplate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		TemplateID string `json:"template_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.ChooseTemplate(r.Context(), user.ID, req.TemplateID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) setTopic(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Topic string `json:"topic"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.SetTopic(r.Context(), user.ID, req.Topic)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) setObjective(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Objective string `json:"objective"`
		Audience  string `json:"audience"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.SetObjective(r.Context(), user.ID, req.Objective, req.Audience)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) setFeeling(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Feeling string `json:"feeling"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.SetFeeling(r.Context(), user.ID, req.Feeling)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) chooseStructure(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.ChooseStructure(r.Context(), user.ID, req.Code)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) chooseContentType(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.ChooseContentType(r.Context(), user.ID, req.Code)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) selectHook(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Number int `json:"number"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.SelectHook(r.Context(), user.ID, req.Number)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) selectCTA(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Number int `json:"number"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.SelectCTA(r.Context(), user.ID, req.Number)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

// generate повторяет или дополняет генерацию контента текущего шага:
// 4 — хуки, 5 — тело, 6 — призывы к действию, 7 — повторный скоринг.
func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Step int `json:"step"`
	}
	if !decode(w, r, &req) {
		return
	}
	var (
		sess domain.Session
		err  error
	)
	switch domain.Step(req.Step) {
	case domain.StepHook:
		sess, err = h.studio.GenerateHooks(r.Context(), user.ID)
	case domain.StepBody:
		sess, err = h.studio.GenerateBody(r.Context(), user.ID)
	case domain.StepCTA:
		sess, err = h.studio.GenerateCTAs(r.Context(), user.ID)
	case domain.StepScoring:
		sess, err = h.studio.Rescore(r.Context(), user.ID)
	default:
		apphttp.WriteError(w, http.StatusBadRequest, errors.New("шаг не поддерживает генерацию"))
		return
	}
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) refine(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Field       string `json:"field"`
		Instruction string `json:"instruction"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.Refine(r.Context(), user.ID, domain.FieldKind(req.Field), req.Instruction)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) switchVersion(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		VersionID string `json:"version_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	sess, err := h.studio.SwitchVersion(r.Context(), user.ID, req.VersionID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	h.writeSession(w, sess)
}

func (h *Handler) saveFinal(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	post, err := h.studio.SaveFinal(r.Context(), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	apphttp.WriteJSON(w, post)
}

func (h *Handler) suggestions(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	list, err := h.studio.TopicSuggestions(r.Context(), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if list == nil {
		list = []domain.TopicSuggestion{}
	}
	apphttp.WriteJSON(w, map[string]any{"suggestions": list})
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request) {
	apphttp.WriteJSON(w, map[string]any{
		"templates":     domain.BriefingTemplates,
		"structures":    domain.CopyStructures,
		"content_types": domain.ContentTypes,
	})
}

type profileView struct {
	Industry      string `json:"industry"`
	Audience      string `json:"audience"`
	Archetype     string `json:"archetype"`
	ToneFormal    int    `json:"tone_formal"`
	ToneEmotional int    `json:"tone_emotional"`
	ToneBold      int    `json:"tone_bold"`
}

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	profile, err := h.prof.GetProfile(r.Context(), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	apphttp.WriteJSON(w, profileView{
		Industry:      profile.Industry,
		Audience:      profile.Audience,
		Archetype:     profile.Archetype,
		ToneFormal:    profile.ToneFormal,
		ToneEmotional: profile.ToneEmotional,
		ToneBold:      profile.ToneBold,
	})
}

func clampTone(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func (h *Handler) putProfile(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req profileView
	if !decode(w, r, &req) {
		return
	}
	profile := domain.ContentProfile{
		UserID:        user.ID,
		Industry:      req.Industry,
		Audience:      req.Audience,
		Archetype:     req.Archetype,
		ToneFormal:    clampTone(req.ToneFormal),
		ToneEmotional: clampTone(req.ToneEmotional),
		ToneBold:      clampTone(req.ToneBold),
	}
	if err := h.prof.SaveProfile(r.Context(), profile); err != nil {
		h.writeFailure(w, err)
		return
	}
	apphttp.WriteJSON(w, req)
}

func (h *Handler) usage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	state, err := h.posts.Usage(r.Context(), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	apphttp.WriteJSON(w, map[string]any{
		"plan":          state.Plan.Name,
		"monthly_limit": state.Plan.MonthlyPosts,
		"posts_used":    state.PostsUsed,
		"remaining":     state.Remaining(),
	})
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	list, err := h.posts.List(r.Context(), user.ID, limit)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	apphttp.WriteJSON(w, map[string]any{"posts": list})
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	post, err := h.posts.Get(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	apphttp.WriteJSON(w, post)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	if err := h.posts.Delete(r.Context(), chi.URLParam(r, "id"), user.ID); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setFeedback(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.posts.SetFeedback(r.Context(), chi.URLParam(r, "id"), user.ID, req.Value); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) exportPost(w http.ResponseWriter, r *http.Request) {
	user, ok := h.resolveUser(w, r)
	if !ok {
		return
	}
	text, err := h.posts.Export(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}
