package services

import (
	"testing"

	"github.com/agoramarket/backend/internal/models"
)

type stubListings []models.AgentListing

func (s stubListings) ActiveListings() []models.AgentListing { return s }

type stubScores map[uint64]int

func (s stubScores) CalculateAverageScore(agentID uint64) (int, int) {
	score, ok := s[agentID]
	if !ok {
		return 0, 0
	}
	return score, 3
}

func (s stubScores) CalculateScoreBySkill(agentID uint64, _ string) (int, int) {
	return s.CalculateAverageScore(agentID)
}

func testFinder() *Finder {
	listings := stubListings{
		{AgentID: 1, IsActive: true, Category: "coding", BasePrice: 10_000000, Skills: []string{"golang", "rust"}},
		{AgentID: 2, IsActive: true, Category: "coding", BasePrice: 5_000000, Skills: []string{"golang"}},
		{AgentID: 3, IsActive: true, Category: "coding", BasePrice: 30_000000, Skills: []string{"golang"}},
		{AgentID: 4, IsActive: true, Category: "writing", BasePrice: 1_000000, Skills: []string{"copywriting"}, TotalTasksCompleted: 12},
	}
	scores := stubScores{1: 95, 2: 40, 3: 80}
	return NewFinder(listings, scores)
}

func TestRankAgentsFiltersBySkill(t *testing.T) {
	got := testFinder().RankAgents(Query{Skill: "copywriting"})
	if len(got) != 1 || got[0].AgentID != 4 {
		t.Fatalf("copywriting results = %+v", got)
	}
	if got[0].Completed != 12 {
		t.Fatalf("completed = %d, want the listing's completion counter", got[0].Completed)
	}

	if got := testFinder().RankAgents(Query{Skill: "cobol"}); len(got) != 0 {
		t.Fatalf("unknown skill results = %+v", got)
	}
}

func TestRankAgentsPriceCap(t *testing.T) {
	got := testFinder().RankAgents(Query{Skill: "golang", MaxPrice: 10_000000, Routing: RoutingCheapest})
	if len(got) != 2 {
		t.Fatalf("capped results = %+v", got)
	}
	if got[0].AgentID != 2 || got[1].AgentID != 1 {
		t.Fatalf("cheapest order = [%d, %d], want [2, 1]", got[0].AgentID, got[1].AgentID)
	}
}

func TestRankAgentsBestRated(t *testing.T) {
	got := testFinder().RankAgents(Query{Skill: "golang", Routing: RoutingBestRated})
	if len(got) != 3 {
		t.Fatalf("results = %+v", got)
	}
	if got[0].AgentID != 1 || got[0].Score != 95 {
		t.Fatalf("top rated = %+v, want agent 1 at 95", got[0])
	}
}

func TestRankAgentsAutoPrefersReputationOverPrice(t *testing.T) {
	// Agent 1 scores 95 at price 10; agent 2 scores 40 at price 5. The
	// reputation weight dominates the blend.
	got := testFinder().RankAgents(Query{Skill: "golang", Routing: RoutingAuto})
	if len(got) != 3 {
		t.Fatalf("results = %+v", got)
	}
	if got[0].AgentID != 1 {
		t.Fatalf("auto top = agent %d, want 1", got[0].AgentID)
	}
}

func TestRankAgentsSkipsCaseInSkillMatch(t *testing.T) {
	got := testFinder().RankAgents(Query{Skill: "GoLang", Routing: RoutingCheapest})
	if len(got) != 3 {
		t.Fatalf("case-insensitive match results = %+v", got)
	}
}
