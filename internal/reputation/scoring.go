package reputation

import (
	"time"

	"github.com/agoramarket/backend/internal/models"
)

// Feedback weighting: a valid signed payment proof multiplies the entry's
// influence by 10. Decay is piecewise-linear from full weight at 90 days to
// half weight at 180 days, with a hard floor at 0.5.
const (
	signedProofWeight = 10
	baseWeight        = 1

	decayGrace = 90 * 24 * time.Hour
	decayRamp  = 90 * 24 * time.Hour
	decayFloor = 0.5
)

// rawWeight is the proof-based multiplier without decay.
func (l *Ledger) rawWeight(e *models.FeedbackEntry, now time.Time) float64 {
	if l.verifier.HasValidSignature(e.Proof, now, l.networkID) {
		return signedProofWeight
	}
	return baseWeight
}

// decayAt returns the age-based multiplier for an entry submitted at ts.
func decayAt(ts, now time.Time) float64 {
	age := now.Sub(ts)
	if age <= decayGrace {
		return 1.0
	}
	d := 1.0 - float64(age-decayGrace)/float64(decayRamp)*0.5
	if d < decayFloor {
		return decayFloor
	}
	return d
}

// CalculateAverageScore returns the agent's aggregate score and entry count.
// The aggregate is Σ(score×weight×decay)/Σ(weight×decay), integer-truncated.
// Zero entries yield (0, 0).
func (l *Ledger) CalculateAverageScore(agentID uint64) (int, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	var weighted, total float64
	ids := l.byAgent[agentID]
	for _, id := range ids {
		e := l.entries[id]
		w := l.rawWeight(e, now) * decayAt(e.Timestamp, now)
		weighted += float64(e.Score) * w
		total += w
	}
	if total == 0 {
		return 0, 0
	}
	return int(weighted / total), len(ids)
}

// CalculateScoreBySkill restricts the aggregate to entries matching skill,
// using the raw proof weight without decay. The missing decay term mirrors
// the original system; review before "fixing" (it keeps skill lookups cheap
// but is asymmetric with CalculateAverageScore on purpose).
func (l *Ledger) CalculateScoreBySkill(agentID uint64, skill string) (int, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	now := l.now()
	var weighted, total float64
	count := 0
	for _, id := range l.byAgent[agentID] {
		e := l.entries[id]
		if e.Skill != skill {
			continue
		}
		w := l.rawWeight(e, now)
		weighted += float64(e.Score) * w
		total += w
		count++
	}
	if total == 0 {
		return 0, 0
	}
	return int(weighted / total), count
}
