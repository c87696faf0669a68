// Package network implements the group-formation core: balanced random
// partitioning, group-conversation provisioning, and per-conversation
// message-count ("Honey Score") tracking.
package network

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"
)

// Member is one human participant, as resolved from the chat platform.
// Immutable for the duration of a partitioning run.
type Member struct {
	ID          string
	DisplayName string
}

// Team is an ephemeral partition slot produced by Partition and consumed by
// the provisioner.
type Team struct {
	Index   int
	Members []Member
}

// GroupRequest is one group-formation submission. Consumed once, never
// persisted.
type GroupRequest struct {
	GroupName string
	TeamCount int
	Members   []Member
	Note      string
}

// ErrInvalidRequest rejects a group request before any side effect.
var ErrInvalidRequest = errors.New("network: invalid group request")

func (r GroupRequest) Validate() error {
	if strings.TrimSpace(r.GroupName) == "" {
		return fmt.Errorf("%w: group name is required", ErrInvalidRequest)
	}
	if r.TeamCount < 1 {
		return fmt.Errorf("%w: team count must be at least 1, got %d", ErrInvalidRequest, r.TeamCount)
	}
	if len(r.Members) < r.TeamCount {
		return fmt.Errorf("%w: %d members cannot fill %d teams", ErrInvalidRequest, len(r.Members), r.TeamCount)
	}
	return nil
}

// Partition splits members into teamCount balanced teams: a uniform shuffle
// followed by round-robin assignment, so team sizes differ by at most one
// and every member lands in exactly one team. The caller supplies the random
// source so tests can fix the seed.
func Partition(members []Member, teamCount int, rng *rand.Rand) ([]Team, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if teamCount < 1 {
		return nil, fmt.Errorf("%w: team count must be at least 1, got %d", ErrInvalidRequest, teamCount)
	}
	if len(members) < teamCount {
		return nil, fmt.Errorf("%w: %d members cannot fill %d teams", ErrInvalidRequest, len(members), teamCount)
	}

	shuffled := append([]Member(nil), members...)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	teams := make([]Team, teamCount)
	for i := range teams {
		teams[i].Index = i
	}
	for i, member := range shuffled {
		slot := i % teamCount
		teams[slot].Members = append(teams[slot].Members, member)
	}
	return teams, nil
}
