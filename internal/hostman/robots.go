package hostman

import (
	"bufio"
	"io"
	"slices"
	"strings"
)

// RuleSet maps a user-agent token to the paths it may not fetch.
type RuleSet map[string][]string

// ParseRobots reads User-agent / Disallow lines. Everything else
// (Allow, Crawl-delay, Sitemap, ...) is ignored. Consecutive User-agent
// lines share the Disallow lines that follow them.
func ParseRobots(r io.Reader) (RuleSet, error) {
	rules := make(RuleSet)
	var agents []string
	inGroup := false

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if i := strings.Index(value, "#"); i >= 0 {
			value = strings.TrimSpace(value[:i])
		}

		switch strings.ToLower(strings.TrimSpace(key)) {
		case "user-agent":
			if inGroup {
				agents = agents[:0]
				inGroup = false
			}
			if value != "" {
				agents = append(agents, value)
			}
		case "disallow":
			inGroup = true
			if value == "" {
				continue
			}
			for _, a := range agents {
				rules[a] = append(rules[a], value)
			}
		default:
			inGroup = len(agents) > 0
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return rules, nil
}

// Allows reports whether path may be crawled by agent. A path is denied only
// when it is listed verbatim under "*" or under agent.
func (rs RuleSet) Allows(agent, path string) bool {
	if slices.Contains(rs["*"], path) {
		return false
	}
	if agent != "*" && slices.Contains(rs[agent], path) {
		return false
	}
	return true
}
