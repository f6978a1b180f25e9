package backend

import (
	"fmt"
	"sort"

	"github.com/workledger/workledger/pkg/constants"
)

// Strategy is a selection policy.
type Strategy string

const (
	StrategyPriority       Strategy = "priority"
	StrategyRoundRobin     Strategy = "round_robin"
	StrategyStickyFailover Strategy = "sticky_failover"
)

// ParseStrategy validates a strategy name.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyPriority, StrategyRoundRobin, StrategyStickyFailover:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", constants.ErrUnknownStrategy, s)
}

// Candidate is the view of one store the selection policy works on.
type Candidate struct {
	ID       string
	Kind     Kind
	Status   Status
	Priority int
	Enabled  bool
	// Order is the registration index, the final tie breaker.
	Order int
}

// SelectActive picks the store that should serve the next operation.
//
// It returns the elected store id, the round-robin cursor to store for the next
// call, and false when no enabled candidate can be elected. It has no side effects
// and no randomness: identical inputs always give identical outputs.
//
// Under every strategy an OFFLINE real store is never elected and the stub ranks after
// every usable real store. STICKY_FAILOVER never sticks to the stub, so traffic returns
// to a real store as soon as one is usable.
func SelectActive(candidates []Candidate, strategy Strategy, currentID string, cursor int) (string, int, bool) {
	if cursor < 0 {
		cursor = 0
	}

	enabled := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Enabled {
			enabled = append(enabled, c)
		}
	}
	if len(enabled) == 0 {
		return "", cursor, false
	}

	switch strategy {
	case StrategyRoundRobin:
		var online []Candidate
		for _, c := range enabled {
			if c.Kind == KindReal && c.Status == StatusOnline {
				online = append(online, c)
			}
		}
		if len(online) > 0 {
			sort.SliceStable(online, func(i, j int) bool { return lessByPriority(online[i], online[j]) })
			return online[cursor%len(online)].ID, cursor + 1, true
		}
	case StrategyStickyFailover:
		for _, c := range enabled {
			if c.ID == currentID && c.Kind == KindReal &&
				(c.Status == StatusOnline || c.Status == StatusDegraded) {
				return c.ID, cursor, true
			}
		}
	}

	id, ok := selectByPriority(enabled)
	return id, cursor, ok
}

func selectByPriority(enabled []Candidate) (string, bool) {
	ranked := make([]Candidate, 0, len(enabled))
	for _, c := range enabled {
		if c.Kind == KindReal && !c.Status.usable() {
			continue
		}
		ranked = append(ranked, c)
	}
	if len(ranked) == 0 {
		return "", false
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Kind != b.Kind {
			return a.Kind == KindReal
		}
		if ra, rb := statusRank(a.Status), statusRank(b.Status); ra != rb {
			return ra < rb
		}
		return lessByPriority(a, b)
	})
	return ranked[0].ID, true
}

func lessByPriority(a, b Candidate) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Order < b.Order
}

func statusRank(s Status) int {
	switch s {
	case StatusOnline:
		return 0
	case StatusDegraded:
		return 1
	case StatusUnknown:
		return 2
	default:
		return 3
	}
}
