package app

import (
	"sort"

	"live-assessment-service/internal/domain"
)

// Rank derives the leaderboard from participant state. The order is total:
// score desc, accuracy desc, response count asc, joinedAt asc, then id. Ranks
// are dense and never shared.
func Rank(participants []domain.Participant) []domain.LeaderboardEntry {
	ordered := make([]domain.Participant, len(participants))
	copy(ordered, participants)
	sort.Slice(ordered, func(i, j int) bool {
		return ranksAhead(ordered[i], ordered[j])
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:          i + 1,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			Accuracy:      p.Accuracy(),
			ResponseCount: p.ResponseCount,
		})
	}
	return entries
}

func ranksAhead(a, b domain.Participant) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if accA, accB := a.Accuracy(), b.Accuracy(); accA != accB {
		return accA > accB
	}
	if a.ResponseCount != b.ResponseCount {
		return a.ResponseCount < b.ResponseCount
	}
	if !a.JoinedAt.Equal(b.JoinedAt) {
		return a.JoinedAt.Before(b.JoinedAt)
	}
	return a.ID < b.ID
}

// Top trims a ranked leaderboard to n entries; n <= 0 keeps everyone.
func Top(entries []domain.LeaderboardEntry, n int) []domain.LeaderboardEntry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[:n]
}
