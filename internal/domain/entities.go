package domain

import "time"

// User описывает пользователя сервиса.
type User struct {
	ID        int64
	Subject   string
	Email     string
	Name      string
	Role      UserRole
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContentProfile хранит предпочтения генерации контента пользователя.
// Читается при каждом вызове генерации, меняется через настройки.
type ContentProfile struct {
	UserID        int64
	Industry      string
	Audience      string
	Archetype     string
	ToneFormal    int
	ToneEmotional int
	ToneBold      int
	UpdatedAt     time.Time
}

// BriefingData накапливает ответы брифинга по под-шагам.
type BriefingData struct {
	TemplateID string `json:"template_id,omitempty"`
	Topic      string `json:"topic,omitempty"`
	Objective  string `json:"objective,omitempty"`
	Audience   string `json:"audience,omitempty"`
	Feeling    string `json:"feeling,omitempty"`
}

// Session — активная (незавершённая) сессия мастера.
// У пользователя в один момент существует не более одной такой записи.
type Session struct {
	ID            string           `json:"id"`
	UserID        int64            `json:"user_id"`
	CurrentStep   Step             `json:"current_step"`
	Briefing      BriefingData     `json:"briefing"`
	Structure     string           `json:"structure,omitempty"`
	ContentType   string           `json:"content_type,omitempty"`
	Hooks         []string         `json:"hooks,omitempty"`
	SelectedHook  int              `json:"selected_hook,omitempty"`
	Body          string           `json:"body,omitempty"`
	CTAs          []string         `json:"ctas,omitempty"`
	SelectedCTA   int              `json:"selected_cta,omitempty"`
	Score         *ScoreResult     `json:"score,omitempty"`
	Transcript    []ChatMessage    `json:"transcript,omitempty"`
	Versions      []ContentVersion `json:"versions,omitempty"`
	ActiveVersion string           `json:"active_version,omitempty"`
	PostID        string           `json:"post_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// SelectedHookText возвращает текст выбранного хука. Номера кандидатов
// сквозные: после двух раундов генерации допустим «хук 4».
func (s Session) SelectedHookText() string {
	if s.SelectedHook < 1 || s.SelectedHook > len(s.Hooks) {
		return ""
	}
	return s.Hooks[s.SelectedHook-1]
}

// SelectedCTAText возвращает текст выбранного призыва к действию.
func (s Session) SelectedCTAText() string {
	if s.SelectedCTA < 1 || s.SelectedCTA > len(s.CTAs) {
		return ""
	}
	return s.CTAs[s.SelectedCTA-1]
}

// PostStatus описывает состояние черновика.
type PostStatus string

const (
	PostStatusInProgress PostStatus = "in_progress"
	PostStatusCompleted  PostStatus = "completed"
)

// PostFeedback — реакция пользователя на готовый пост.
type PostFeedback string

const (
	PostFeedbackUp   PostFeedback = "up"
	PostFeedbackDown PostFeedback = "down"
)

// Post — долговечный артефакт сессии. Создаётся при выборе хука (шаг 4),
// поэтому полузаконченный пост виден в списке как «в работе».
type Post struct {
	ID          string
	UserID      int64
	Hook        string
	Body        string
	CTA         string
	Structure   string
	ContentType string
	Score       *ScoreResult
	Feedback    *PostFeedback
	Status      PostStatus
	Transcript  []ChatMessage
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FullContent склеивает хук, тело и призыв к действию в готовый текст.
func (p Post) FullContent() string {
	out := ""
	for _, part := range []string{p.Hook, p.Body, p.CTA} {
		if part == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += part
	}
	return out
}

// PostPatch описывает частичное обновление поста. nil-поля не трогаются.
type PostPatch struct {
	Hook       *string
	Body       *string
	CTA        *string
	Score      *ScoreResult
	Status     *PostStatus
	Transcript []ChatMessage
}

// FieldKind — какое из полей поста меняет итерация доработки.
type FieldKind string

const (
	FieldHook FieldKind = "hook"
	FieldBody FieldKind = "body"
	FieldCTA  FieldKind = "cta"
)

// ValidFieldKind проверяет допустимость значения.
func ValidFieldKind(kind FieldKind) bool {
	switch kind {
	case FieldHook, FieldBody, FieldCTA:
		return true
	}
	return false
}

// ScoreState — явное три-состояние оценки версии, чтобы «ещё считается»
// нельзя было спутать с «нет оценки» после перезагрузки.
type ScoreState string

const (
	ScoreStatePending ScoreState = "pending"
	ScoreStateReady   ScoreState = "ready"
	ScoreStateFailed  ScoreState = "failed"
)

// ContentVersion — одна итерация правки «редактировать с ИИ».
// Созданные версии внутри сессии никогда не удаляются.
type ContentVersion struct {
	ID          string       `json:"id"`
	Field       FieldKind    `json:"field,omitempty"`
	Instruction string       `json:"instruction,omitempty"`
	Hook        string       `json:"hook"`
	Body        string       `json:"body"`
	CTA         string       `json:"cta"`
	ScoreState  ScoreState   `json:"score_state"`
	Score       *ScoreResult `json:"score,omitempty"`
	Original    bool         `json:"original,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// MonthlyUsage — счётчик использованных слотов генерации за календарный месяц.
// Удаление поста слот не возвращает.
type MonthlyUsage struct {
	UserID    int64
	Month     time.Time
	PostsUsed int
}

// MonthKey нормализует время к первому дню месяца в UTC.
func MonthKey(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// TopicSuggestion — подсказка темы для брифинга.
type TopicSuggestion struct {
	Title string `json:"title"`
	Angle string `json:"angle"`
	Why   string `json:"why"`
}
