package domain

// Step — позиция мастера. Шаги проходятся строго вперёд: 1→2→…→7.
// Регенерация на шагах 4 и 6 шаг не меняет, только дописывает кандидатов.
type Step int

const (
	StepBriefing    Step = 1
	StepStructure   Step = 2
	StepContentType Step = 3
	StepHook        Step = 4
	StepBody        Step = 5
	StepCTA         Step = 6
	StepScoring     Step = 7
)

// Valid проверяет, что шаг входит в последовательность мастера.
func (s Step) Valid() bool {
	return s >= StepBriefing && s <= StepScoring
}

// CanAdvanceTo разрешает только переход на следующий шаг.
func (s Step) CanAdvanceTo(next Step) bool {
	return next.Valid() && next == s+1
}

// Label возвращает человекочитаемое название шага для экрана восстановления.
func (s Step) Label() string {
	switch s {
	case StepBriefing:
		return "Брифинг"
	case StepStructure:
		return "Выбор структуры"
	case StepContentType:
		return "Выбор формата"
	case StepHook:
		return "Выбор хука"
	case StepBody:
		return "Генерация текста"
	case StepCTA:
		return "Выбор призыва к действию"
	case StepScoring:
		return "Оценка и доработка"
	}
	return "Неизвестный шаг"
}
