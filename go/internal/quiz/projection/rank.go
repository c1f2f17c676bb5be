package projection

import (
	"cmp"
	"slices"

	"github.com/mcdev12/quizsync/go/internal/models"
)

// Roster lists players in join order.
func Roster(players map[string]models.Player) []RosterEntry {
	entries := make([]RosterEntry, 0, len(players))
	for id, p := range players {
		entries = append(entries, RosterEntry{
			PlayerID:  id,
			Name:      p.Name,
			Score:     p.Score,
			Answered:  p.Answered,
			JoinOrder: p.JoinOrder,
		})
	}
	slices.SortFunc(entries, func(a, b RosterEntry) int {
		if c := cmp.Compare(a.JoinOrder, b.JoinOrder); c != 0 {
			return c
		}
		return cmp.Compare(a.PlayerID, b.PlayerID)
	})
	return entries
}

// Rank orders players by score, highest first. Ties keep join order.
// Equal scores share a rank.
func Rank(players map[string]models.Player) []RosterEntry {
	entries := Roster(players)
	slices.SortStableFunc(entries, func(a, b RosterEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})
	for i := range entries {
		if i > 0 && entries[i].Score == entries[i-1].Score {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}
	return entries
}
