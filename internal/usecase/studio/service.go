package studio

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"post-studio/internal/domain"
	"post-studio/internal/infra/metrics"
	"post-studio/internal/usecase/posts"
)

var (
	// ErrWrongStep — операция недоступна на текущем шаге мастера.
	ErrWrongStep = errors.New("действие недоступно на текущем шаге")
	// ErrTemplateInvalid — неизвестный шаблон брифинга.
	ErrTemplateInvalid = errors.New("неизвестный шаблон брифинга")
	// ErrStructureInvalid — неизвестная структура поста.
	ErrStructureInvalid = errors.New("неизвестная структура поста")
	// ErrStructureLocked — структура уже выбрана и не меняется.
	ErrStructureLocked = errors.New("структура уже выбрана")
	// ErrContentTypeInvalid — неизвестный формат поста.
	ErrContentTypeInvalid = errors.New("неизвестный формат поста")
	// ErrOptionInvalid — номер варианта вне списка кандидатов.
	ErrOptionInvalid = errors.New("выбран несуществующий вариант")
	// ErrInputEmpty — пустой ответ на вопрос брифинга.
	ErrInputEmpty = errors.New("ответ не может быть пустым")
	// ErrVersionNotFound — версия не принадлежит сессии.
	ErrVersionNotFound = errors.New("версия не найдена")
	// ErrFieldInvalid — неизвестное поле для доработки.
	ErrFieldInvalid = errors.New("неизвестное поле для доработки")
)

const welcomeText = "Привет! Соберём пост за семь шагов. Начнём с брифинга: выберите шаблон."

// TopicSuggester выдаёт подсказки тем для брифинга.
type TopicSuggester interface {
	TopicSuggestions(ctx context.Context, userID int64, templateID string) ([]domain.TopicSuggestion, error)
}

// Service — конечный автомат мастера создания поста. Состояние живёт в
// сессии, записи откладываются через Autosaver и PostPatcher; синхронно
// пишутся только создание, восстановление после выбора хука и финал.
type Service struct {
	sessions domain.SessionRepo
	profiles domain.ProfileRepo
	gen      domain.Generator
	posts    *posts.Service
	suggest  TopicSuggester
	saver    *Autosaver
	patcher  *PostPatcher
	log      zerolog.Logger

	mu       sync.Mutex
	inFlight map[int64]bool
}

// NewService создаёт сервис мастера. Autosaver строится внутри, чтобы его
// gate видел флаг «идёт генерация».
func NewService(
	sessions domain.SessionRepo,
	profiles domain.ProfileRepo,
	gen domain.Generator,
	postSvc *posts.Service,
	suggest TopicSuggester,
	saveDelay, patchDelay time.Duration,
	log zerolog.Logger,
) *Service {
	s := &Service{
		sessions: sessions,
		profiles: profiles,
		gen:      gen,
		posts:    postSvc,
		suggest:  suggest,
		log:      log,
		inFlight: make(map[int64]bool),
	}
	s.saver = NewAutosaver(saveDelay, sessions.SaveSession, s.canAutosave, log)
	s.patcher = NewPostPatcher(patchDelay, postSvc.Patch, log)
	return s
}

// Stop останавливает отложенные записи.
func (s *Service) Stop() {
	s.saver.Stop()
	s.patcher.Stop()
}

// canAutosave — gate автосейва: в сессии есть диалог и генерация не идёт.
func (s *Service) canAutosave(sess domain.Session) bool {
	s.mu.Lock()
	busy := s.inFlight[sess.UserID]
	s.mu.Unlock()
	return len(sess.Transcript) > 1 && !busy
}

func (s *Service) setInFlight(userID int64, v bool) {
	s.mu.Lock()
	s.inFlight[userID] = v
	s.mu.Unlock()
}

// load возвращает актуальную сессию: несохранённый снимок автосейва имеет
// приоритет над записью в базе, иначе быстрый клик терял бы данные.
func (s *Service) load(ctx context.Context, userID int64) (domain.Session, error) {
	if sess, ok := s.saver.Pending(userID); ok {
		return sess, nil
	}
	return s.sessions.GetSession(ctx, userID)
}

func (s *Service) schedule(sess *domain.Session) {
	sess.UpdatedAt = time.Now().UTC()
	s.saver.Schedule(*sess)
}

// Current возвращает активную сессию пользователя для восстановления.
func (s *Service) Current(ctx context.Context, userID int64) (domain.Session, error) {
	return s.load(ctx, userID)
}

// StartFresh начинает мастер заново, затирая предыдущую сессию.
func (s *Service) StartFresh(ctx context.Context, userID int64) (domain.Session, error) {
	s.saver.Cancel(userID)
	now := time.Now().UTC()
	sess := domain.Session{
		ID:          uuid.NewString(),
		UserID:      userID,
		CurrentStep: domain.StepBriefing,
		Transcript:  []domain.ChatMessage{domain.TextMessage(domain.MessageRoleAssistant, welcomeText)},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return s.sessions.CreateSession(ctx, sess)
}

// Abandon удаляет активную сессию. Уже созданный пост остаётся «в работе».
func (s *Service) Abandon(ctx context.Context, userID int64) error {
	s.saver.Cancel(userID)
	return s.sessions.DeleteSession(ctx, userID)
}

// ChooseTemplate фиксирует шаблон брифинга и задаёт вопрос о теме.
func (s *Service) ChooseTemplate(ctx context.Context, userID int64, templateID string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepBriefing || sess.Briefing.TemplateID != "" {
		return sess, ErrWrongStep
	}
	if !domain.ValidTemplate(templateID) {
		return sess, ErrTemplateInvalid
	}
	sess.Briefing.TemplateID = templateID
	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleUser, templateName(templateID)),
		domain.TextMessage(domain.MessageRoleAssistant, "О чём будет пост? Опишите тему одним-двумя предложениями."),
	)
	s.schedule(&sess)
	return sess, nil
}

func templateName(id string) string {
	for _, t := range domain.BriefingTemplates {
		if t.ID == id {
			return t.Name
		}
	}
	return id
}

// TopicSuggestions запрашивает подсказки тем под выбранный шаблон и
// подшивает карточки в транскрипт. Для «своей темы» подсказок нет. Сбой
// поставщика деградирует до пустого списка: брифинг продолжается вручную.
func (s *Service) TopicSuggestions(ctx context.Context, userID int64) ([]domain.TopicSuggestion, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	templateID := sess.Briefing.TemplateID
	if templateID == "" || templateID == domain.FreeTopicTemplateID {
		return nil, nil
	}
	list, err := s.suggest.TopicSuggestions(ctx, userID, templateID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("подсказки тем недоступны")
		return nil, nil
	}
	if len(list) == 0 {
		return nil, nil
	}
	if sess.CurrentStep == domain.StepBriefing && sess.Briefing.Topic == "" {
		sess.Transcript = append(sess.Transcript, domain.SuggestionsMessage(list))
		s.schedule(&sess)
	}
	return list, nil
}

// SetTopic записывает тему и спрашивает цель поста.
func (s *Service) SetTopic(ctx context.Context, userID int64, topic string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepBriefing || sess.Briefing.TemplateID == "" || sess.Briefing.Topic != "" {
		return sess, ErrWrongStep
	}
	if topic == "" {
		return sess, ErrInputEmpty
	}
	sess.Briefing.Topic = topic
	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleUser, topic),
		domain.TextMessage(domain.MessageRoleAssistant, "Какова цель поста и для кого он? Например: «привлечь клиентов, аудитория — руководители продукта»."),
	)
	s.schedule(&sess)
	return sess, nil
}

// SetObjective записывает цель и аудиторию, затем спрашивает про эмоцию.
func (s *Service) SetObjective(ctx context.Context, userID int64, objective, audience string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepBriefing || sess.Briefing.Topic == "" || sess.Briefing.Objective != "" {
		return sess, ErrWrongStep
	}
	if objective == "" {
		return sess, ErrInputEmpty
	}
	sess.Briefing.Objective = objective
	sess.Briefing.Audience = audience
	userText := objective
	if audience != "" {
		userText += " — " + audience
	}
	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleUser, userText),
		domain.TextMessage(domain.MessageRoleAssistant, "Какое чувство должно остаться у читателя после поста?"),
	)
	s.schedule(&sess)
	return sess, nil
}

// SetFeeling завершает брифинг и переводит мастер к выбору структуры.
func (s *Service) SetFeeling(ctx context.Context, userID int64, feeling string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepBriefing || sess.Briefing.Objective == "" || sess.Briefing.Feeling != "" {
		return sess, ErrWrongStep
	}
	if feeling == "" {
		return sess, ErrInputEmpty
	}
	sess.Briefing.Feeling = feeling
	sess.CurrentStep = domain.StepStructure
	metrics.IncStudioStep(strconv.Itoa(int(domain.StepStructure)))

	options := make([]domain.MessageOption, 0, len(domain.CopyStructures))
	for i, st := range domain.CopyStructures {
		options = append(options, domain.MessageOption{Number: i + 1, Text: st.Code + " — " + st.Description})
	}
	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleUser, feeling),
		domain.OptionsMessage("Брифинг готов. Выберите структуру поста:", options),
	)
	s.schedule(&sess)
	return sess, nil
}

// ChooseStructure фиксирует структуру. Выбор окончательный: смена структуры
// обесценила бы все последующие генерации.
func (s *Service) ChooseStructure(ctx context.Context, userID int64, code string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepStructure {
		return sess, ErrWrongStep
	}
	if sess.Structure != "" {
		return sess, ErrStructureLocked
	}
	if !domain.ValidStructure(code) {
		return sess, ErrStructureInvalid
	}
	sess.Structure = code
	sess.CurrentStep = domain.StepContentType
	metrics.IncStudioStep(strconv.Itoa(int(domain.StepContentType)))

	options := make([]domain.MessageOption, 0, len(domain.ContentTypes))
	for i, ct := range domain.ContentTypes {
		options = append(options, domain.MessageOption{Number: i + 1, Text: ct.Name + " — " + ct.Description})
	}
	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleUser, code),
		domain.OptionsMessage("Теперь формат поста:", options),
	)
	s.schedule(&sess)
	return sess, nil
}

// ChooseContentType фиксирует формат и сразу запускает генерацию хуков.
// При сбое генерации формат сохраняется, шаг не меняется: повторный запрос
// хуков доступен без повторного выбора.
func (s *Service) ChooseContentType(ctx context.Context, userID int64, code string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepContentType {
		return sess, ErrWrongStep
	}
	if !domain.ValidContentType(code) {
		return sess, ErrContentTypeInvalid
	}
	sess.ContentType = code
	sess.Transcript = append(sess.Transcript, domain.TextMessage(domain.MessageRoleUser, code))
	s.schedule(&sess)

	if err := s.generateHooks(ctx, &sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// GenerateHooks повторяет генерацию хуков: первая попытка после сбоя на
// шаге 3 либо новый раунд кандидатов на шаге 4 со сквозной нумерацией.
func (s *Service) GenerateHooks(ctx context.Context, userID int64) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	switch sess.CurrentStep {
	case domain.StepContentType:
		if sess.ContentType == "" {
			return sess, ErrWrongStep
		}
	case domain.StepHook:
		metrics.IncRegeneration("hooks")
	default:
		return sess, ErrWrongStep
	}
	if err := s.generateHooks(ctx, &sess); err != nil {
		return sess, err
	}
	return sess, nil
}

func (s *Service) generateHooks(ctx context.Context, sess *domain.Session) error {
	input, err := s.generationInput(ctx, *sess)
	if err != nil {
		return err
	}
	s.setInFlight(sess.UserID, true)
	hooks, err := s.gen.GenerateHooks(ctx, input)
	s.setInFlight(sess.UserID, false)
	if err != nil {
		return fmt.Errorf("генерация хуков: %w", err)
	}

	from := len(sess.Hooks) + 1
	sess.Hooks = append(sess.Hooks, hooks...)
	if sess.CurrentStep == domain.StepContentType {
		sess.CurrentStep = domain.StepHook
		metrics.IncStudioStep(strconv.Itoa(int(domain.StepHook)))
	}
	sess.Transcript = append(sess.Transcript,
		domain.OptionsMessage("Выберите хук — первую строку поста:", domain.NumberedOptions(from, hooks)),
	)
	s.schedule(sess)
	return nil
}

// SelectHook — точка невозврата мастера: списывается слот квоты, создаётся
// запись поста, затем генерируется тело. При исчерпанной квоте выбор не
// сохраняется и шаг не меняется.
func (s *Service) SelectHook(ctx context.Context, userID int64, number int) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepHook {
		return sess, ErrWrongStep
	}
	if number < 1 || number > len(sess.Hooks) {
		return sess, ErrOptionInvalid
	}

	candidate := sess
	candidate.SelectedHook = number
	candidate.Transcript = append(candidate.Transcript,
		domain.TextMessage(domain.MessageRoleUser, candidate.SelectedHookText()),
	)

	post, err := s.posts.CreateFromSession(ctx, candidate)
	if err != nil {
		return sess, err
	}
	sess = candidate
	sess.PostID = post.ID
	sess.CurrentStep = domain.StepBody
	metrics.IncStudioStep(strconv.Itoa(int(domain.StepBody)))

	// пост уже существует, снимок с его ID должен пережить любой сбой дальше
	s.schedule(&sess)
	if err := s.saver.Flush(ctx, userID); err != nil {
		return sess, fmt.Errorf("сохранение сессии: %w", err)
	}

	if err := s.generateBody(ctx, &sess); err != nil {
		return sess, err
	}
	if err := s.generateCTAs(ctx, &sess); err != nil {
		return sess, err
	}
	return sess, nil
}

// GenerateBody повторяет генерацию тела после сбоя на шаге 5.
func (s *Service) GenerateBody(ctx context.Context, userID int64) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepBody || sess.SelectedHook == 0 {
		return sess, ErrWrongStep
	}
	if err := s.generateBody(ctx, &sess); err != nil {
		return sess, err
	}
	if err := s.generateCTAs(ctx, &sess); err != nil {
		return sess, err
	}
	return sess, nil
}

func (s *Service) generateBody(ctx context.Context, sess *domain.Session) error {
	if sess.Body != "" {
		return nil
	}
	input, err := s.generationInput(ctx, *sess)
	if err != nil {
		return err
	}
	s.setInFlight(sess.UserID, true)
	body, err := s.gen.GenerateBody(ctx, input)
	s.setInFlight(sess.UserID, false)
	if err != nil {
		return fmt.Errorf("генерация тела: %w", err)
	}
	sess.Body = body
	sess.Transcript = append(sess.Transcript, domain.TextMessage(domain.MessageRoleAssistant, body))
	s.patcher.Schedule(sess.PostID, sess.UserID, domain.PostPatch{Body: &body})
	s.schedule(sess)
	return nil
}

// GenerateCTAs запускает новый раунд призывов к действию на шаге 6.
func (s *Service) GenerateCTAs(ctx context.Context, userID int64) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	switch sess.CurrentStep {
	case domain.StepBody:
		if sess.Body == "" {
			return sess, ErrWrongStep
		}
	case domain.StepCTA:
		metrics.IncRegeneration("ctas")
	default:
		return sess, ErrWrongStep
	}
	if err := s.generateCTAs(ctx, &sess); err != nil {
		return sess, err
	}
	return sess, nil
}

func (s *Service) generateCTAs(ctx context.Context, sess *domain.Session) error {
	input, err := s.generationInput(ctx, *sess)
	if err != nil {
		return err
	}
	s.setInFlight(sess.UserID, true)
	ctas, err := s.gen.GenerateCTAs(ctx, input)
	s.setInFlight(sess.UserID, false)
	if err != nil {
		return fmt.Errorf("генерация призывов: %w", err)
	}

	from := len(sess.CTAs) + 1
	sess.CTAs = append(sess.CTAs, ctas...)
	if sess.CurrentStep == domain.StepBody {
		sess.CurrentStep = domain.StepCTA
		metrics.IncStudioStep(strconv.Itoa(int(domain.StepCTA)))
	}
	sess.Transcript = append(sess.Transcript,
		domain.OptionsMessage("Тело готово. Выберите призыв к действию:", domain.NumberedOptions(from, ctas)),
	)
	s.schedule(sess)
	return nil
}

// SelectCTA фиксирует призыв к действию, переводит мастер на шаг оценки и
// запускает скоринг. Сбой скоринга не блокирует шаг: подставляется
// нейтральная оценка.
func (s *Service) SelectCTA(ctx context.Context, userID int64, number int) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepCTA {
		return sess, ErrWrongStep
	}
	if number < 1 || number > len(sess.CTAs) {
		return sess, ErrOptionInvalid
	}
	sess.SelectedCTA = number
	cta := sess.SelectedCTAText()
	sess.Transcript = append(sess.Transcript, domain.TextMessage(domain.MessageRoleUser, cta))
	s.patcher.Schedule(sess.PostID, sess.UserID, domain.PostPatch{CTA: &cta})

	sess.CurrentStep = domain.StepScoring
	metrics.IncStudioStep(strconv.Itoa(int(domain.StepScoring)))

	score := s.scorePost(ctx, userID, domain.ScoreInput{
		Hook:        sess.SelectedHookText(),
		Body:        sess.Body,
		CTA:         cta,
		Structure:   sess.Structure,
		ContentType: sess.ContentType,
	})
	sess.Score = &score

	original := domain.ContentVersion{
		ID:         uuid.NewString(),
		Hook:       sess.SelectedHookText(),
		Body:       sess.Body,
		CTA:        cta,
		ScoreState: domain.ScoreStateReady,
		Score:      &score,
		Original:   true,
		CreatedAt:  time.Now().UTC(),
	}
	sess.Versions = append(sess.Versions, original)
	sess.ActiveVersion = original.ID

	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleAssistant, scoreSummary(score)),
	)
	s.patcher.Schedule(sess.PostID, sess.UserID, domain.PostPatch{Score: &score, Transcript: sess.Transcript})
	s.schedule(&sess)
	return sess, nil
}

// Rescore повторяет скоринг активной версии, например после сбоя.
func (s *Service) Rescore(ctx context.Context, userID int64) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepScoring {
		return sess, ErrWrongStep
	}
	idx := -1
	for i := range sess.Versions {
		if sess.Versions[i].ID == sess.ActiveVersion {
			idx = i
			break
		}
	}
	if idx < 0 {
		return sess, ErrVersionNotFound
	}
	version := sess.Versions[idx]

	s.setInFlight(userID, true)
	score, err := s.gen.ScorePost(ctx, domain.ScoreInput{
		Hook:        version.Hook,
		Body:        version.Body,
		CTA:         version.CTA,
		Structure:   sess.Structure,
		ContentType: sess.ContentType,
	})
	s.setInFlight(userID, false)
	if err != nil {
		sess.Versions[idx].ScoreState = domain.ScoreStateFailed
		s.schedule(&sess)
		return sess, fmt.Errorf("скоринг: %w", err)
	}
	sess.Versions[idx].ScoreState = domain.ScoreStateReady
	sess.Versions[idx].Score = &score
	sess.Score = &score
	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleAssistant, scoreSummary(score)),
	)
	s.patcher.Schedule(sess.PostID, sess.UserID, domain.PostPatch{Score: &score, Transcript: sess.Transcript})
	s.schedule(&sess)
	return sess, nil
}

func (s *Service) scorePost(ctx context.Context, userID int64, input domain.ScoreInput) domain.ScoreResult {
	s.setInFlight(userID, true)
	score, err := s.gen.ScorePost(ctx, input)
	s.setInFlight(userID, false)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("скоринг недоступен, подставлена нейтральная оценка")
		return domain.NeutralScore()
	}
	return score
}

func scoreSummary(score domain.ScoreResult) string {
	text := fmt.Sprintf("Оценка поста: %.1f из 10.", score.Aggregate)
	if score.Feedback != "" {
		text += " " + score.Feedback
	}
	if score.Aggregate < domain.MinPublishScore {
		text += fmt.Sprintf(" Для сохранения нужно не меньше %.0f — доработайте пост через «редактировать с ИИ».", domain.MinPublishScore)
	}
	return text
}

// Refine — итерация «редактировать с ИИ»: переписывает одно поле, создаёт
// новую версию (старые не удаляются) и пересчитывает оценку всей связки.
// Новая версия активируется сразу, до прихода оценки.
func (s *Service) Refine(ctx context.Context, userID int64, field domain.FieldKind, instruction string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepScoring {
		return sess, ErrWrongStep
	}
	if !domain.ValidFieldKind(field) {
		return sess, ErrFieldInvalid
	}
	if instruction == "" {
		return sess, ErrInputEmpty
	}
	base, ok := findVersion(sess.Versions, sess.ActiveVersion)
	if !ok {
		return sess, ErrVersionNotFound
	}

	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return sess, fmt.Errorf("профиль: %w", err)
	}
	current := map[domain.FieldKind]string{
		domain.FieldHook: base.Hook,
		domain.FieldBody: base.Body,
		domain.FieldCTA:  base.CTA,
	}[field]

	s.setInFlight(userID, true)
	text, err := s.gen.RefineContent(ctx, domain.RefineInput{
		Profile:     profile,
		Field:       field,
		CurrentText: current,
		Instruction: instruction,
		Context:     base.Hook + "\n\n" + base.Body + "\n\n" + base.CTA,
	})
	s.setInFlight(userID, false)
	if err != nil {
		return sess, fmt.Errorf("доработка поля: %w", err)
	}
	metrics.IncRegeneration("refine_" + string(field))

	version := domain.ContentVersion{
		ID:          uuid.NewString(),
		Field:       field,
		Instruction: instruction,
		Hook:        base.Hook,
		Body:        base.Body,
		CTA:         base.CTA,
		ScoreState:  domain.ScoreStatePending,
		CreatedAt:   time.Now().UTC(),
	}
	var patch domain.PostPatch
	switch field {
	case domain.FieldHook:
		version.Hook = text
		patch.Hook = &text
	case domain.FieldBody:
		version.Body = text
		patch.Body = &text
	case domain.FieldCTA:
		version.CTA = text
		patch.CTA = &text
	}

	sess.Versions = append(sess.Versions, version)
	sess.ActiveVersion = version.ID
	sess.Transcript = append(sess.Transcript,
		domain.TextMessage(domain.MessageRoleUser, instruction),
		domain.TextMessage(domain.MessageRoleAssistant, text),
	)
	s.patcher.Schedule(sess.PostID, sess.UserID, patch)

	// правка одного поля меняет восприятие целого, пересчитываем всю связку
	idx := len(sess.Versions) - 1
	score, err := s.gen.ScorePost(ctx, domain.ScoreInput{
		Hook:        version.Hook,
		Body:        version.Body,
		CTA:         version.CTA,
		Structure:   sess.Structure,
		ContentType: sess.ContentType,
	})
	if err != nil {
		sess.Versions[idx].ScoreState = domain.ScoreStateFailed
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("скоринг версии не удался")
	} else {
		sess.Versions[idx].ScoreState = domain.ScoreStateReady
		sess.Versions[idx].Score = &score
		sess.Score = &score
		sess.Transcript = append(sess.Transcript,
			domain.TextMessage(domain.MessageRoleAssistant, scoreSummary(score)),
		)
		s.patcher.Schedule(sess.PostID, sess.UserID, domain.PostPatch{Score: &score, Transcript: sess.Transcript})
	}
	s.schedule(&sess)
	return sess, nil
}

// SwitchVersion активирует ранее созданную версию. Операция локальная:
// никакой генерации, только подстановка сохранённых полей и оценки.
func (s *Service) SwitchVersion(ctx context.Context, userID int64, versionID string) (domain.Session, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Session{}, err
	}
	if sess.CurrentStep != domain.StepScoring {
		return sess, ErrWrongStep
	}
	version, ok := findVersion(sess.Versions, versionID)
	if !ok {
		return sess, ErrVersionNotFound
	}
	sess.ActiveVersion = version.ID
	sess.Score = version.Score
	s.patcher.Schedule(sess.PostID, sess.UserID, domain.PostPatch{
		Hook:  &version.Hook,
		Body:  &version.Body,
		CTA:   &version.CTA,
		Score: version.Score,
	})
	s.schedule(&sess)
	return sess, nil
}

// SaveFinal завершает мастер: активная версия с оценкой не ниже порога
// записывается в пост, пост помечается completed, сессия удаляется.
func (s *Service) SaveFinal(ctx context.Context, userID int64) (domain.Post, error) {
	sess, err := s.load(ctx, userID)
	if err != nil {
		return domain.Post{}, err
	}
	if sess.CurrentStep != domain.StepScoring {
		return domain.Post{}, ErrWrongStep
	}
	version, ok := findVersion(sess.Versions, sess.ActiveVersion)
	if !ok {
		return domain.Post{}, ErrVersionNotFound
	}

	// отложенные патчи теряют смысл, финал пишет всё целиком
	s.patcher.Cancel(sess.PostID)
	post, err := s.posts.Complete(ctx, sess.PostID, userID, version, sess.Transcript)
	if err != nil {
		return domain.Post{}, err
	}
	s.saver.Cancel(userID)
	if err := s.sessions.DeleteSession(ctx, userID); err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("сессия не удалилась после финала")
	}
	return post, nil
}

func findVersion(versions []domain.ContentVersion, id string) (domain.ContentVersion, bool) {
	for _, v := range versions {
		if v.ID == id {
			return v, true
		}
	}
	return domain.ContentVersion{}, false
}

func (s *Service) generationInput(ctx context.Context, sess domain.Session) (domain.GenerationInput, error) {
	profile, err := s.profiles.GetProfile(ctx, sess.UserID)
	if err != nil {
		return domain.GenerationInput{}, fmt.Errorf("профиль: %w", err)
	}
	return domain.GenerationInput{
		Profile:     profile,
		Topic:       sess.Briefing.Topic,
		Objective:   sess.Briefing.Objective,
		Audience:    sess.Briefing.Audience,
		Feeling:     sess.Briefing.Feeling,
		Structure:   sess.Structure,
		ContentType: sess.ContentType,
		Hook:        sess.SelectedHookText(),
		Body:        sess.Body,
	}, nil
}
