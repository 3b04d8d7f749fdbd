package reputation

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func submitScore(t *testing.T, l *Ledger, clock *testClock, task common.Hash, score uint8, skill string, signed bool) {
	t.Helper()
	authorize(t, l, clock, task)
	p := proofFor(signed)
	if _, err := l.SubmitFeedback(client, testAgent, task, score, skill, "", "", common.Hash{}, p); err != nil {
		t.Fatalf("SubmitFeedback: %v", err)
	}
}

func TestAverageScoreSignedProofs(t *testing.T) {
	l, clock := newTestLedger(t)
	submitScore(t, l, clock, taskRef(1), 80, "research", true)
	submitScore(t, l, clock, taskRef(2), 100, "research", true)

	// Both weight 10, decay 1.0: (80×10 + 100×10) / 20 = 90.
	score, count := l.CalculateAverageScore(testAgent)
	if score != 90 || count != 2 {
		t.Fatalf("CalculateAverageScore = (%d, %d), want (90, 2)", score, count)
	}
}

func TestAverageScoreNoEntries(t *testing.T) {
	l, _ := newTestLedger(t)
	if score, count := l.CalculateAverageScore(testAgent); score != 0 || count != 0 {
		t.Fatalf("CalculateAverageScore = (%d, %d), want (0, 0)", score, count)
	}
}

func TestAverageScoreProofWeighting(t *testing.T) {
	l, clock := newTestLedger(t)
	submitScore(t, l, clock, taskRef(1), 100, "research", true)
	submitScore(t, l, clock, taskRef(2), 0, "research", false)

	// (100×10 + 0×1) / 11 = 90 after truncation.
	score, _ := l.CalculateAverageScore(testAgent)
	if score != 90 {
		t.Fatalf("score = %d, want 90", score)
	}
}

func TestDecayCurve(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	day := 24 * time.Hour

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{0, 1.0},
		{90 * day, 1.0},
		{135 * day, 0.75},
		{180 * day, 0.5},
		{200 * day, 0.5}, // clamped at the floor, never below
	}
	for _, tc := range cases {
		if got := decayAt(base.Add(-tc.age), base); got != tc.want {
			t.Fatalf("decayAt(age %v) = %v, want %v", tc.age, got, tc.want)
		}
	}
}

func TestAverageScoreAppliesDecay(t *testing.T) {
	l, clock := newTestLedger(t)
	submitScore(t, l, clock, taskRef(1), 0, "research", true)
	clock.advance(200 * 24 * time.Hour)
	submitScore(t, l, clock, taskRef(2), 100, "research", true)

	// Old entry: weight 10 × decay 0.5 = 5; fresh entry: 10.
	// (0×5 + 100×10) / 15 = 66.
	score, _ := l.CalculateAverageScore(testAgent)
	if score != 66 {
		t.Fatalf("score = %d, want 66", score)
	}
}

func TestSkillScoreIgnoresDecay(t *testing.T) {
	l, clock := newTestLedger(t)
	submitScore(t, l, clock, taskRef(1), 0, "research", true)
	clock.advance(200 * 24 * time.Hour)
	submitScore(t, l, clock, taskRef(2), 100, "research", true)

	// Raw weights only: (0×10 + 100×10) / 20 = 50.
	score, count := l.CalculateScoreBySkill(testAgent, "research")
	if score != 50 || count != 2 {
		t.Fatalf("CalculateScoreBySkill = (%d, %d), want (50, 2)", score, count)
	}
}

func TestSkillScoreFiltersBySkill(t *testing.T) {
	l, clock := newTestLedger(t)
	submitScore(t, l, clock, taskRef(1), 40, "research", false)
	submitScore(t, l, clock, taskRef(2), 100, "summarize", false)

	if score, count := l.CalculateScoreBySkill(testAgent, "summarize"); score != 100 || count != 1 {
		t.Fatalf("summarize = (%d, %d), want (100, 1)", score, count)
	}
	if score, count := l.CalculateScoreBySkill(testAgent, "translate"); score != 0 || count != 0 {
		t.Fatalf("unknown skill = (%d, %d), want (0, 0)", score, count)
	}
}
