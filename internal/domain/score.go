package domain

import "math"

// Весовые коэффициенты итоговой оценки поста.
const (
	scoreWeightHook      = 0.25
	scoreWeightStructure = 0.20
	scoreWeightData      = 0.20
	scoreWeightCTA       = 0.15
	scoreWeightAlgorithm = 0.20
)

// MinPublishScore — порог, после которого доступно сохранение поста.
const MinPublishScore = 8.0

// ScoreBreakdown — пять под-оценок поста по шкале 0–10.
type ScoreBreakdown struct {
	Hook      float64 `json:"hook"`
	Structure float64 `json:"structure"`
	Data      float64 `json:"data"`
	CTA       float64 `json:"cta"`
	Algorithm float64 `json:"algorithm"`
}

// Aggregate считает взвешенную итоговую оценку, округлённую до одного знака.
// Итог никогда не задаётся независимо от под-оценок.
func (b ScoreBreakdown) Aggregate() float64 {
	total := b.Hook*scoreWeightHook +
		b.Structure*scoreWeightStructure +
		b.Data*scoreWeightData +
		b.CTA*scoreWeightCTA +
		b.Algorithm*scoreWeightAlgorithm
	return math.Round(total*10) / 10
}

// ScoreResult — полный результат оценки поста.
type ScoreResult struct {
	Breakdown       ScoreBreakdown `json:"breakdown"`
	Aggregate       float64        `json:"aggregate"`
	Top1Probability float64        `json:"top1_probability"`
	Top5Probability float64        `json:"top5_probability"`
	BestDay         string         `json:"best_day,omitempty"`
	BestTime        string         `json:"best_time,omitempty"`
	Feedback        string         `json:"feedback,omitempty"`
}

// NewScoreResult собирает результат, выводя итог из под-оценок.
func NewScoreResult(breakdown ScoreBreakdown) ScoreResult {
	return ScoreResult{Breakdown: breakdown, Aggregate: breakdown.Aggregate()}
}

// NeutralScore — консервативная оценка-заглушка на случай сбоя скоринга,
// чтобы мастер не застревал в ожидании.
func NeutralScore() ScoreResult {
	breakdown := ScoreBreakdown{Hook: 5, Structure: 5, Data: 5, CTA: 5, Algorithm: 5}
	return ScoreResult{
		Breakdown: breakdown,
		Aggregate: breakdown.Aggregate(),
		Feedback:  "Автоматическая оценка недоступна, показано нейтральное значение.",
	}
}
