// Package services holds the supporting logic around the engines: agent
// discovery and card schema checking.
package services

import (
	"sort"
	"strings"

	"github.com/agoramarket/backend/internal/models"
)

// Routing selects how discovery ranks matching agents.
type Routing string

const (
	RoutingAuto      Routing = "auto"
	RoutingCheapest  Routing = "cheapest"
	RoutingBestRated Routing = "best_rated"
)

// ListingSource enumerates active listings. Satisfied by
// *marketplace.Engine.
type ListingSource interface {
	ActiveListings() []models.AgentListing
}

// ScoreSource reads reputation aggregates. Satisfied by
// *reputation.Ledger.
type ScoreSource interface {
	CalculateAverageScore(agentID uint64) (int, int)
	CalculateScoreBySkill(agentID uint64, skill string) (int, int)
}

// Query filters the listing catalog.
type Query struct {
	Skill    string
	MaxPrice int64 // 0 means no cap
	Routing  Routing
}

// RankedAgent is one discovery result.
type RankedAgent struct {
	AgentID    uint64 `json:"agent_id"`
	Category   string `json:"category"`
	BasePrice  int64  `json:"base_price"`
	Score      int    `json:"score"`
	Samples    int    `json:"samples"`
	SkillScore int    `json:"skill_score"`
	Completed  int64  `json:"tasks_completed"`
}

// Finder ranks listed agents for a skill by price and reputation.
type Finder struct {
	listings ListingSource
	scores   ScoreSource
}

// NewFinder returns a new Finder.
func NewFinder(listings ListingSource, scores ScoreSource) *Finder {
	return &Finder{listings: listings, scores: scores}
}

// RankAgents returns the agents offering the queried skill, best first
// according to the routing preference.
func (f *Finder) RankAgents(q Query) []RankedAgent {
	candidates := f.buildCandidates(q)
	f.scoreAndSort(candidates, q.Routing)
	return candidates
}

// buildCandidates filters listings by skill and price cap.
func (f *Finder) buildCandidates(q Query) []RankedAgent {
	candidates := []RankedAgent{}
	for _, listing := range f.listings.ActiveListings() {
		if !offersSkill(listing.Skills, q.Skill) {
			continue
		}
		if q.MaxPrice > 0 && listing.BasePrice > q.MaxPrice {
			continue
		}
		c := RankedAgent{
			AgentID:   listing.AgentID,
			Category:  listing.Category,
			BasePrice: listing.BasePrice,
			Completed: listing.TotalTasksCompleted,
		}
		c.Score, c.Samples = f.scores.CalculateAverageScore(listing.AgentID)
		c.SkillScore, _ = f.scores.CalculateScoreBySkill(listing.AgentID, q.Skill)
		candidates = append(candidates, c)
	}
	return candidates
}

// scoreAndSort sorts candidates by the routing preference (best first).
func (f *Finder) scoreAndSort(candidates []RankedAgent, routing Routing) {
	switch routing {
	case RoutingCheapest:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].BasePrice < candidates[j].BasePrice
		})
		return
	case RoutingBestRated:
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].Score > candidates[j].Score
		})
		return
	}

	// "auto": weighted blend of reputation and price.
	maxPrice := int64(0)
	for i := range candidates {
		if candidates[i].BasePrice > maxPrice {
			maxPrice = candidates[i].BasePrice
		}
	}
	if maxPrice <= 0 {
		maxPrice = 1
	}
	weight := make(map[uint64]float64, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		rep := 0.5 // unknown agents rank mid-field
		if c.Samples > 0 {
			rep = float64(c.Score) / float64(models.MaxFeedbackScore)
		}
		priceNorm := 1.0 - float64(c.BasePrice)/float64(maxPrice)
		weight[c.AgentID] = rep*0.6 + float64(c.SkillScore)/float64(models.MaxFeedbackScore)*0.2 + priceNorm*0.2
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return weight[candidates[i].AgentID] > weight[candidates[j].AgentID]
	})
}

func offersSkill(skills []string, skill string) bool {
	for _, s := range skills {
		if strings.EqualFold(s, skill) {
			return true
		}
	}
	return false
}
