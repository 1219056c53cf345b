package scoring_test

import (
	"testing"

	"github.com/historiasdelamente/detectar-backend/internal/scoring"
)

// ─── GetRiskLevel — closed-interval boundaries ───────────────────────────────

func TestGetRiskLevel_Boundaries(t *testing.T) {
	tests := []struct {
		score int
		want  scoring.RiskLevel
	}{
		{0, scoring.LevelBajo},
		{10, scoring.LevelBajo},
		{11, scoring.LevelModerado},
		{20, scoring.LevelModerado},
		{21, scoring.LevelAlto},
		{30, scoring.LevelAlto},
		{31, scoring.LevelExtremo},
		{40, scoring.LevelExtremo},
	}
	for _, tt := range tests {
		if got := scoring.GetRiskLevel(tt.score); got != tt.want {
			t.Errorf("GetRiskLevel(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestLevelLabel_UnknownLevel(t *testing.T) {
	if got := scoring.LevelLabel(scoring.RiskLevel("nope")); got != "Sin clasificar" {
		t.Errorf("got %q, want %q", got, "Sin clasificar")
	}
}

// ─── CalculateResults ─────────────────────────────────────────────────────────

func allAnswers(value int) []scoring.Answer {
	answers := make([]scoring.Answer, 0, len(scoring.Questions))
	for _, q := range scoring.Questions {
		answers = append(answers, scoring.Answer{QuestionID: q.ID, Value: value})
	}
	return answers
}

func TestCalculateResults_AllZeros(t *testing.T) {
	res := scoring.CalculateResults(allAnswers(0))

	if res.TotalScore != 0 {
		t.Errorf("TotalScore = %d, want 0", res.TotalScore)
	}
	if res.Level != scoring.LevelBajo {
		t.Errorf("Level = %q, want bajo", res.Level)
	}
	if res.MaxScore != 40 {
		t.Errorf("MaxScore = %d, want 40", res.MaxScore)
	}
	if len(res.CategoryScores) != 5 {
		t.Fatalf("CategoryScores length = %d, want 5", len(res.CategoryScores))
	}
}

func TestCalculateResults_AllMax(t *testing.T) {
	res := scoring.CalculateResults(allAnswers(4))

	if res.TotalScore != 40 {
		t.Errorf("TotalScore = %d, want 40", res.TotalScore)
	}
	if res.Level != scoring.LevelExtremo {
		t.Errorf("Level = %q, want extremo", res.Level)
	}
	if res.Percentage != 100 {
		t.Errorf("Percentage = %d, want 100", res.Percentage)
	}
}

func TestCalculateResults_UnknownQuestionIgnored(t *testing.T) {
	res := scoring.CalculateResults([]scoring.Answer{
		{QuestionID: 1, Value: 3},
		{QuestionID: 999, Value: 4}, // not in the bank
	})
	if res.TotalScore != 7 {
		// Unknown questions still count toward the raw total — only the
		// category breakdown skips them, matching the original behaviour.
		t.Errorf("TotalScore = %d, want 7", res.TotalScore)
	}
}

// ─── CalculateCategoryScores ─────────────────────────────────────────────────

func TestCategoryScores_FullCategory(t *testing.T) {
	// Both manipulación questions answered 4 → score 8, max 8, 100%.
	scores := scoring.CalculateCategoryScores([]scoring.Answer{
		{QuestionID: 1, Value: 4},
		{QuestionID: 2, Value: 4},
	})

	m := scores[0]
	if m.Category != scoring.CategoryManipulacion {
		t.Fatalf("first category = %q, want manipulacion", m.Category)
	}
	if m.Score != 8 || m.MaxScore != 8 || m.Percentage != 100 {
		t.Errorf("got score=%d max=%d pct=%d, want 8/8/100", m.Score, m.MaxScore, m.Percentage)
	}
}

func TestCategoryScores_EmptyCategoryFallback(t *testing.T) {
	scores := scoring.CalculateCategoryScores(nil)
	if len(scores) != 5 {
		t.Fatalf("length = %d, want 5", len(scores))
	}
	for _, cs := range scores {
		if cs.MaxScore != 8 || cs.Percentage != 0 || cs.Score != 0 {
			t.Errorf("%s: got score=%d max=%d pct=%d, want 0/8/0",
				cs.Category, cs.Score, cs.MaxScore, cs.Percentage)
		}
	}
}

func TestCategoryScores_FixedOrder(t *testing.T) {
	scores := scoring.CalculateCategoryScores(allAnswers(2))
	want := []scoring.Category{
		scoring.CategoryManipulacion,
		scoring.CategoryEmpatia,
		scoring.CategoryControl,
		scoring.CategoryGaslighting,
		scoring.CategoryGrandiosidad,
	}
	for i, cs := range scores {
		if cs.Category != want[i] {
			t.Errorf("position %d = %q, want %q", i, cs.Category, want[i])
		}
	}
}

// ─── TopCategory ─────────────────────────────────────────────────────────────

func TestTopCategory_HighestPercentageWins(t *testing.T) {
	scores := scoring.CalculateCategoryScores([]scoring.Answer{
		{QuestionID: 1, Value: 1}, // manipulacion 1/8
		{QuestionID: 2, Value: 1},
		{QuestionID: 7, Value: 4}, // gaslighting 8/8
		{QuestionID: 8, Value: 4},
	})
	top := scoring.TopCategory(scores)
	if top.Category != scoring.CategoryGaslighting {
		t.Errorf("top = %q, want gaslighting", top.Category)
	}
}

func TestTopCategory_TieBreaksByCategoryOrder(t *testing.T) {
	// All categories tied at the same percentage — the first in the fixed
	// order must win.
	top := scoring.TopCategory(scoring.CalculateCategoryScores(allAnswers(2)))
	if top.Category != scoring.CategoryManipulacion {
		t.Errorf("top = %q, want manipulacion (first in fixed order)", top.Category)
	}
}

func TestTopCategory_EmptyBreakdownFallback(t *testing.T) {
	top := scoring.TopCategory(nil)
	if top.Label != "General" {
		t.Errorf("fallback label = %q, want General", top.Label)
	}
}
