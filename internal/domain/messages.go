package domain

import "time"

// MessageKind различает формы сообщений чата. Размеченное объединение вместо
// одного типа с кучей опциональных полей: состояние «ещё загружается» в
// транскрипте непредставимо и потому не может пережить перезагрузку.
type MessageKind string

const (
	// MessageKindText — обычная реплика.
	MessageKindText MessageKind = "text"
	// MessageKindOptions — список пронумерованных вариантов (хуки, CTA, структуры).
	MessageKindOptions MessageKind = "options"
	// MessageKindSuggestions — карточки подсказок тем.
	MessageKindSuggestions MessageKind = "suggestions"
)

// MessageRole — автор сообщения.
type MessageRole string

const (
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleUser      MessageRole = "user"
)

// MessageOption — один пронумерованный вариант в сообщении вида options.
// Номера сквозные между раундами генерации.
type MessageOption struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// ChatMessage — запись транскрипта. Заполняется только поле своего Kind.
type ChatMessage struct {
	Kind        MessageKind       `json:"kind"`
	Role        MessageRole       `json:"role"`
	Text        string            `json:"text,omitempty"`
	Options     []MessageOption   `json:"options,omitempty"`
	Suggestions []TopicSuggestion `json:"suggestions,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TextMessage создаёт обычную реплику.
func TextMessage(role MessageRole, text string) ChatMessage {
	return ChatMessage{Kind: MessageKindText, Role: role, Text: text, CreatedAt: time.Now().UTC()}
}

// OptionsMessage создаёт сообщение со списком вариантов.
func OptionsMessage(text string, options []MessageOption) ChatMessage {
	return ChatMessage{
		Kind:      MessageKindOptions,
		Role:      MessageRoleAssistant,
		Text:      text,
		Options:   options,
		CreatedAt: time.Now().UTC(),
	}
}

// SuggestionsMessage создаёт сообщение с карточками подсказок.
func SuggestionsMessage(suggestions []TopicSuggestion) ChatMessage {
	return ChatMessage{
		Kind:        MessageKindSuggestions,
		Role:        MessageRoleAssistant,
		Suggestions: suggestions,
		CreatedAt:   time.Now().UTC(),
	}
}

// NumberedOptions нумерует кандидатов начиная с from.
func NumberedOptions(from int, texts []string) []MessageOption {
	options := make([]MessageOption, 0, len(texts))
	for i, text := range texts {
		options = append(options, MessageOption{Number: from + i, Text: text})
	}
	return options
}
