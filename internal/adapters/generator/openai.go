package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"post-studio/internal/domain"
	openai "post-studio/internal/infra/openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI реализует domain.Generator через OpenAI Chat Completions.
type OpenAI struct {
	client  chatClient
	model   string
	timeout time.Duration
}

var _ domain.Generator = (*OpenAI)(nil)

// NewOpenAI создаёт провайдер генерации.
func NewOpenAI(client chatClient, model string, timeout time.Duration) *OpenAI {
	if model == "" {
		model = "gpt-4.1-mini"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAI{client: client, model: model, timeout: timeout}
}

const systemPrompt = "Ты опытный копирайтер LinkedIn. Пиши живым профессиональным языком, без канцелярита и пустых общих слов. Отвечай строго в запрошенном формате JSON."

func (g *OpenAI) complete(ctx context.Context, userPrompt string, maxTokens int, out any) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: 0.7,
		MaxTokens:   maxTokens,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}
	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return fmt.Errorf("openai completion: пустой ответ")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("распаковка ответа LLM: %w", err)
	}
	return nil
}

func profileBlock(profile domain.ContentProfile) string {
	var b strings.Builder
	if profile.Industry != "" {
		fmt.Fprintf(&b, "Сфера автора: %s.\n", profile.Industry)
	}
	if profile.Audience != "" {
		fmt.Fprintf(&b, "Аудитория: %s.\n", profile.Audience)
	}
	if profile.Archetype != "" {
		fmt.Fprintf(&b, "Архетип автора: %s.\n", profile.Archetype)
	}
	fmt.Fprintf(&b, "Тон (0–100): формальность %d, эмоциональность %d, смелость %d.\n",
		profile.ToneFormal, profile.ToneEmotional, profile.ToneBold)
	return b.String()
}

func briefBlock(input domain.GenerationInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Тема: %s.\n", input.Topic)
	if input.Objective != "" {
		fmt.Fprintf(&b, "Цель поста: %s.\n", input.Objective)
	}
	if input.Audience != "" {
		fmt.Fprintf(&b, "Для кого: %s.\n", input.Audience)
	}
	if input.Feeling != "" {
		fmt.Fprintf(&b, "Желаемое ощущение читателя: %s.\n", input.Feeling)
	}
	fmt.Fprintf(&b, "Структура: %s. Формат: %s.\n", input.Structure, input.ContentType)
	return b.String()
}

type hooksPayload struct {
	Hooks []string `json:"hooks"`
}

// GenerateHooks возвращает три варианта хука.
func (g *OpenAI) GenerateHooks(ctx context.Context, input domain.GenerationInput) ([]string, error) {
	prompt := fmt.Sprintf(`Придумай 3 хука (первые 1-2 строки) для поста LinkedIn, каждый останавливает скролл.
%s%s
Верни JSON формата {"hooks": ["...", "...", "..."]} без пояснений.`,
		profileBlock(input.Profile), briefBlock(input))

	var parsed hooksPayload
	if err := g.complete(ctx, prompt, 400, &parsed); err != nil {
		return nil, err
	}
	hooks := filterValues(parsed.Hooks)
	if len(hooks) == 0 {
		return nil, fmt.Errorf("генерация хуков: пустой список")
	}
	if len(hooks) > 3 {
		hooks = hooks[:3]
	}
	return hooks, nil
}

type bodyPayload struct {
	Body string `json:"body"`
}

// GenerateBody возвращает основной текст поста под выбранный хук.
func (g *OpenAI) GenerateBody(ctx context.Context, input domain.GenerationInput) (string, error) {
	prompt := fmt.Sprintf(`Напиши основной текст поста LinkedIn под выбранный хук. Короткие абзацы, конкретика, 120-220 слов, без призыва к действию в конце.
%s%sХук: %s
Верни JSON формата {"body": "..."} без пояснений.`,
		profileBlock(input.Profile), briefBlock(input), input.Hook)

	var parsed bodyPayload
	if err := g.complete(ctx, prompt, 900, &parsed); err != nil {
		return "", err
	}
	body := strings.TrimSpace(parsed.Body)
	if body == "" {
		return "", fmt.Errorf("генерация текста: пустой ответ")
	}
	return body, nil
}

type ctasPayload struct {
	CTAs []string `json:"ctas"`
}

// GenerateCTAs возвращает три варианта призыва к действию.
func (g *OpenAI) GenerateCTAs(ctx context.Context, input domain.GenerationInput) ([]string, error) {
	prompt := fmt.Sprintf(`Придумай 3 призыва к действию (1-2 строки) для финала поста LinkedIn: вопрос к читателям, приглашение к обсуждению или просьба поделиться опытом.
%sХук: %s
Текст поста:
%s
Верни JSON формата {"ctas": ["...", "...", "..."]} без пояснений.`,
		profileBlock(input.Profile), input.Hook, clipRunes(input.Body, 2000))

	var parsed ctasPayload
	if err := g.complete(ctx, prompt, 400, &parsed); err != nil {
		return nil, err
	}
	ctas := filterValues(parsed.CTAs)
	if len(ctas) == 0 {
		return nil, fmt.Errorf("генерация CTA: пустой список")
	}
	if len(ctas) > 3 {
		ctas = ctas[:3]
	}
	return ctas, nil
}

type scorePayload struct {
	Hook            float64 `json:"hook_score"`
	Structure       float64 `json:"structure_score"`
	Data            float64 `json:"data_score"`
	CTA             float64 `json:"cta_score"`
	Algorithm       float64 `json:"algorithm_score"`
	Top1Probability float64 `json:"top1_probability"`
	Top5Probability float64 `json:"top5_probability"`
	BestDay         string  `json:"best_day"`
	BestTime        string  `json:"best_time"`
	Feedback        string  `json:"feedback"`
}

// ScorePost оценивает пост целиком. При любом сбое возвращает нейтральную
// оценку вместо ошибки, чтобы мастер не блокировался.
func (g *OpenAI) ScorePost(ctx context.Context, input domain.ScoreInput) (domain.ScoreResult, error) {
	prompt := fmt.Sprintf(`Оцени пост LinkedIn по пяти критериям по шкале 0-10: hook_score (сила хука), structure_score (соответствие структуре %s), data_score (конкретика и факты), cta_score (призыв к действию), algorithm_score (шансы в ленте).
Дай top1_probability и top5_probability (доли 0-1, что пост попадёт в топ ленты), best_day (день недели) и best_time (время HH:MM), и короткий feedback одним-двумя предложениями.
Хук: %s
Текст:
%s
CTA: %s
Формат: %s
Верни JSON с полями hook_score, structure_score, data_score, cta_score, algorithm_score, top1_probability, top5_probability, best_day, best_time, feedback.`,
		input.Structure, input.Hook, clipRunes(input.Body, 3000), input.CTA, input.ContentType)

	var parsed scorePayload
	if err := g.complete(ctx, prompt, 500, &parsed); err != nil {
		return domain.NeutralScore(), nil
	}
	breakdown := domain.ScoreBreakdown{
		Hook:      clampScore(parsed.Hook),
		Structure: clampScore(parsed.Structure),
		Data:      clampScore(parsed.Data),
		CTA:       clampScore(parsed.CTA),
		Algorithm: clampScore(parsed.Algorithm),
	}
	result := domain.NewScoreResult(breakdown)
	result.Top1Probability = clampProbability(parsed.Top1Probability)
	result.Top5Probability = clampProbability(parsed.Top5Probability)
	result.BestDay = strings.TrimSpace(parsed.BestDay)
	result.BestTime = strings.TrimSpace(parsed.BestTime)
	result.Feedback = strings.TrimSpace(parsed.Feedback)
	return result, nil
}

type refinePayload struct {
	Text string `json:"text"`
}

// RefineContent дорабатывает одно поле поста по инструкции пользователя.
func (g *OpenAI) RefineContent(ctx context.Context, input domain.RefineInput) (string, error) {
	fieldName := map[domain.FieldKind]string{
		domain.FieldHook: "хук",
		domain.FieldBody: "основной текст",
		domain.FieldCTA:  "призыв к действию",
	}[input.Field]

	prompt := fmt.Sprintf(`Перепиши %s поста LinkedIn по инструкции, сохранив смысл и тон автора.
%sИнструкция: %s
Текущий вариант:
%s
Контекст остального поста:
%s
Верни JSON формата {"text": "..."} без пояснений.`,
		fieldName, profileBlock(input.Profile), input.Instruction,
		clipRunes(input.CurrentText, 2000), clipRunes(input.Context, 2000))

	var parsed refinePayload
	if err := g.complete(ctx, prompt, 900, &parsed); err != nil {
		return "", err
	}
	text := strings.TrimSpace(parsed.Text)
	if text == "" {
		return "", fmt.Errorf("доработка: пустой ответ")
	}
	return text, nil
}

type suggestionsPayload struct {
	Suggestions []domain.TopicSuggestion `json:"suggestions"`
}

// GenerateTopicSuggestions возвращает до пяти подсказок тем под шаблон брифинга.
func (g *OpenAI) GenerateTopicSuggestions(ctx context.Context, profile domain.ContentProfile, templateID string) ([]domain.TopicSuggestion, error) {
	prompt := fmt.Sprintf(`Предложи 5 тем для поста LinkedIn по шаблону «%s».
%s
Для каждой темы: title (короткое название), angle (угол подачи одним предложением), why (почему тема сработает для этой аудитории).
Верни JSON формата {"suggestions": [{"title": "...", "angle": "...", "why": "..."}]} без пояснений.`,
		templateID, profileBlock(profile))

	var parsed suggestionsPayload
	if err := g.complete(ctx, prompt, 700, &parsed); err != nil {
		return nil, err
	}
	suggestions := make([]domain.TopicSuggestion, 0, len(parsed.Suggestions))
	for _, s := range parsed.Suggestions {
		s.Title = strings.TrimSpace(s.Title)
		if s.Title == "" {
			continue
		}
		s.Angle = strings.TrimSpace(s.Angle)
		s.Why = strings.TrimSpace(s.Why)
		suggestions = append(suggestions, s)
	}
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions, nil
}

func filterValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func clipRunes(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func clampProbability(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
