package frontier

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// Strategy decides which end of the queue Pop takes from.
// It is the percentage of pops served from the back: 0 is BFS, 100 is DFS.
type Strategy int

const (
	BFS Strategy = 0
	DFS Strategy = 100
)

// ParseStrategy accepts "bfs", "dfs" or "mixedNN" (NN in 0..100, clamped).
// Empty means BFS.
func ParseStrategy(s string) (Strategy, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "" || s == "bfs":
		return BFS, nil
	case s == "dfs":
		return DFS, nil
	case strings.HasPrefix(s, "mixed"):
		n, err := strconv.Atoi(s[len("mixed"):])
		if err != nil {
			return BFS, fmt.Errorf("invalid mixed strategy %q: %w", s, err)
		}
		if n < 0 {
			n = 0
		}
		if n > 100 {
			n = 100
		}
		return Strategy(n), nil
	default:
		return BFS, fmt.Errorf("unknown strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s {
	case BFS:
		return "bfs"
	case DFS:
		return "dfs"
	default:
		return fmt.Sprintf("mixed%d", int(s))
	}
}

func (s Strategy) popBack(rng *rand.Rand) bool {
	switch {
	case s <= BFS:
		return false
	case s >= DFS:
		return true
	default:
		return rng.Intn(100) < int(s)
	}
}
