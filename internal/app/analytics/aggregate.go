package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/sifan077/shortener/internal/app/model"
)

const topN = 10

type ReferrerCount struct {
	Referrer string `json:"referrer"`
	Count    int64  `json:"count"`
}

type UserAgentCount struct {
	UserAgent string `json:"user_agent"`
	Count     int64  `json:"count"`
}

// URLStats aggregates the click events of a single mapping.
type URLStats struct {
	TotalClicks   int64            `json:"total_clicks"`
	UniqueClicks  int64            `json:"unique_clicks"`
	ClicksByDay   map[string]int64 `json:"clicks_by_day"`
	ClicksByHour  map[int]int64    `json:"clicks_by_hour"`
	TopReferrers  []ReferrerCount  `json:"top_referrers"`
	TopUserAgents []UserAgentCount `json:"top_user_agents"`
}

type TimeStats struct {
	ClicksByDay  map[string]int64 `json:"clicks_by_day"`
	ClicksByHour map[int]int64    `json:"clicks_by_hour"`
	ClicksByWeek map[string]int64 `json:"clicks_by_week"`
}

type ReferrerStats struct {
	TopReferrers      []ReferrerCount `json:"top_referrers"`
	DirectClicks      int64           `json:"direct_clicks"`
	TotalWithReferrer int64           `json:"total_with_referrer"`
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// counter keeps counts together with the order in which keys were first seen.
type counter struct {
	order  []string
	counts map[string]int64
}

func newCounter() *counter { return &counter{counts: make(map[string]int64)} }

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

// top returns up to n keys by descending count; ties keep first-seen order.
func (c *counter) top(n int) []string {
	keys := append([]string(nil), c.order...)
	sort.SliceStable(keys, func(i, j int) bool { return c.counts[keys[i]] > c.counts[keys[j]] })
	if len(keys) > n {
		keys = keys[:n]
	}
	return keys
}

func topReferrers(c *counter) []ReferrerCount {
	out := make([]ReferrerCount, 0, topN)
	for _, k := range c.top(topN) {
		out = append(out, ReferrerCount{Referrer: k, Count: c.counts[k]})
	}
	return out
}

func topUserAgents(c *counter) []UserAgentCount {
	out := make([]UserAgentCount, 0, topN)
	for _, k := range c.top(topN) {
		out = append(out, UserAgentCount{UserAgent: k, Count: c.counts[k]})
	}
	return out
}

// aggregateURL summarises the events of one mapping. Unique clicks count the
// distinct identities seen in events, so they never exceed TotalClicks.
func aggregateURL(events []model.ClickEvent) URLStats {
	stats := URLStats{
		TotalClicks:  int64(len(events)),
		ClicksByDay:  map[string]int64{},
		ClicksByHour: map[int]int64{},
	}
	refs, agents := newCounter(), newCounter()
	users := make(map[string]struct{})
	for _, e := range events {
		if e.UserID != "" {
			users[e.UserID] = struct{}{}
		}
		stats.ClicksByDay[dayKey(e.Timestamp)]++
		stats.ClicksByHour[e.Timestamp.UTC().Hour()]++
		if e.Referrer != "" {
			refs.add(e.Referrer)
		}
		if e.UserAgent != "" {
			agents.add(e.UserAgent)
		}
	}
	stats.UniqueClicks = int64(len(users))
	stats.TopReferrers = topReferrers(refs)
	stats.TopUserAgents = topUserAgents(agents)
	return stats
}

func aggregateTime(events []model.ClickEvent) TimeStats {
	stats := TimeStats{
		ClicksByDay:  map[string]int64{},
		ClicksByHour: map[int]int64{},
		ClicksByWeek: map[string]int64{},
	}
	for _, e := range events {
		stats.ClicksByDay[dayKey(e.Timestamp)]++
		stats.ClicksByHour[e.Timestamp.UTC().Hour()]++
		stats.ClicksByWeek[weekKey(e.Timestamp)]++
	}
	return stats
}

func aggregateReferrers(events []model.ClickEvent) ReferrerStats {
	refs := newCounter()
	var direct int64
	for _, e := range events {
		if e.Referrer == "" {
			direct++
			continue
		}
		refs.add(e.Referrer)
	}
	return ReferrerStats{
		TopReferrers:      topReferrers(refs),
		DirectClicks:      direct,
		TotalWithReferrer: int64(len(events)) - direct,
	}
}
