// Package scoring computes the assessment result from raw answers. It is
// intentionally dependency-free: it imports nothing from internal/ and can be
// tested without a database.
package scoring

import "math"

// MaxScore is the assessment ceiling: 10 questions × 4 points.
const MaxScore = 40

// ─── TYPES ────────────────────────────────────────────────────────────────────

// Answer is one submitted (question, value) pair. Value is clamped nowhere —
// boundary validation happens at the HTTP layer.
type Answer struct {
	QuestionID int `json:"question_id"`
	Value      int `json:"value"`
}

// RiskLevel is the four-bucket classification of the total score. String
// values deliberately match the Postgres risk_level enum.
type RiskLevel string

const (
	LevelBajo     RiskLevel = "bajo"
	LevelModerado RiskLevel = "moderado"
	LevelAlto     RiskLevel = "alto"
	LevelExtremo  RiskLevel = "extremo"
)

// CategoryScore is the computed breakdown for one category.
type CategoryScore struct {
	Category   Category `json:"category"`
	Label      string   `json:"label"`
	Emoji      string   `json:"emoji"`
	Score      int      `json:"score"`
	MaxScore   int      `json:"maxScore"`
	Percentage int      `json:"percentage"`
}

// Result is the full computed outcome for one quiz attempt.
type Result struct {
	TotalScore     int
	MaxScore       int
	Percentage     int
	Level          RiskLevel
	LevelLabel     string
	CategoryScores []CategoryScore
}

// ─── LEVEL MAPPING ────────────────────────────────────────────────────────────

// GetRiskLevel maps a total score to its level. Boundaries are closed
// intervals: 10 is still bajo, 20 still moderado, 30 still alto.
func GetRiskLevel(score int) RiskLevel {
	switch {
	case score <= 10:
		return LevelBajo
	case score <= 20:
		return LevelModerado
	case score <= 30:
		return LevelAlto
	default:
		return LevelExtremo
	}
}

// LevelLabel returns the Spanish display label for a level.
func LevelLabel(level RiskLevel) string {
	switch level {
	case LevelBajo:
		return "Riesgo Bajo"
	case LevelModerado:
		return "Riesgo Moderado"
	case LevelAlto:
		return "Riesgo Alto"
	case LevelExtremo:
		return "Riesgo Extremo"
	}
	return "Sin clasificar"
}

// LevelColor returns the hex accent color used in result emails.
func LevelColor(level RiskLevel) string {
	switch level {
	case LevelBajo:
		return "#22c55e"
	case LevelModerado:
		return "#ffd900"
	case LevelAlto:
		return "#f97316"
	case LevelExtremo:
		return "#ef4444"
	}
	return "#ffd900"
}

// ─── CORE FUNCTIONS ───────────────────────────────────────────────────────────

// CalculateResults scores a full answer set. Answers referencing unknown
// question ids are skipped. The category breakdown always contains all five
// categories in the fixed order, even when a category has no answers.
func CalculateResults(answers []Answer) Result {
	total := 0
	for _, a := range answers {
		total += a.Value
	}

	level := GetRiskLevel(total)

	return Result{
		TotalScore:     total,
		MaxScore:       MaxScore,
		Percentage:     roundPct(total, MaxScore),
		Level:          level,
		LevelLabel:     LevelLabel(level),
		CategoryScores: CalculateCategoryScores(answers),
	}
}

// CalculateCategoryScores computes the per-category breakdown. A category's
// maxScore is 4 × its answered question count; a category with no answers
// reports maxScore 8 and percentage 0 so the display bars stay proportioned.
func CalculateCategoryScores(answers []Answer) []CategoryScore {
	sums := make(map[Category]int, len(Categories))
	counts := make(map[Category]int, len(Categories))

	for _, a := range answers {
		q, ok := questionByID(a.QuestionID)
		if !ok {
			continue
		}
		sums[q.Category] += a.Value
		counts[q.Category]++
	}

	out := make([]CategoryScore, 0, len(Categories))
	for _, info := range Categories {
		score := sums[info.ID]
		maxScore := counts[info.ID] * 4
		pct := 0
		if maxScore > 0 {
			pct = roundPct(score, maxScore)
		}
		if maxScore == 0 {
			maxScore = 8
		}
		out = append(out, CategoryScore{
			Category:   info.ID,
			Label:      info.Label,
			Emoji:      info.Emoji,
			Score:      score,
			MaxScore:   maxScore,
			Percentage: pct,
		})
	}
	return out
}

// TopCategory returns the highest-percentage category from a breakdown. Ties
// break in favour of the earliest entry, which callers guarantee follows the
// fixed category order. A nil or empty breakdown yields a generic fallback so
// template personalization never panics on legacy rows.
func TopCategory(scores []CategoryScore) CategoryScore {
	if len(scores) == 0 {
		return CategoryScore{
			Category: CategoryManipulacion,
			Label:    "General",
		}
	}
	top := scores[0]
	for _, cs := range scores[1:] {
		if cs.Percentage > top.Percentage {
			top = cs
		}
	}
	return top
}

func roundPct(n, max int) int {
	return int(math.Round(float64(n) / float64(max) * 100))
}
