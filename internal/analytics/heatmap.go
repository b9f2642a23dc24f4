package analytics

import (
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/commit-stats/internal/table"
)

// ZonePolicy decides which clock a commit instant is read in before bucketing.
type ZonePolicy struct {
	location *time.Location
}

var (
	// ZoneCommit reads each commit in the offset it was recorded with.
	ZoneCommit = ZonePolicy{}
	// ZoneUTC converts every commit to UTC.
	ZoneUTC = ZonePolicy{location: time.UTC}
)

// ZoneIn converts every commit to loc. A nil loc means ZoneCommit.
func ZoneIn(loc *time.Location) ZonePolicy {
	return ZonePolicy{location: loc}
}

// ParseZonePolicy maps a configured name to a policy. Empty and "commit" select ZoneCommit;
// anything else is loaded as an IANA location name.
func ParseZonePolicy(name string) (ZonePolicy, error) {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "", "commit":
		return ZoneCommit, nil
	case "utc":
		return ZoneUTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return ZonePolicy{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return ZoneIn(loc), nil
}

// String returns "commit" or the location name.
func (z ZonePolicy) String() string {
	if z.location == nil {
		return "commit"
	}
	return z.location.String()
}

// Location returns the target location, or nil for ZoneCommit.
func (z ZonePolicy) Location() *time.Location {
	return z.location
}

func (z ZonePolicy) apply(t time.Time) time.Time {
	if z.location == nil {
		return t
	}
	return t.In(z.location)
}

// Heatmap counts commits per weekday (Monday first) and three-hour block.
type Heatmap [table.WeekdayCount][table.BlockCount]int

// Total returns the sum of all cells.
func (h Heatmap) Total() int {
	total := 0
	for _, day := range h {
		for _, count := range day {
			total += count
		}
	}
	return total
}

// BuildHeatmap buckets every row, attributed or not.
func BuildHeatmap(t *table.Table, zone ZonePolicy) Heatmap {
	var heatmap Heatmap
	for _, row := range t.All() {
		local := zone.apply(row.Date)
		heatmap[table.WeekdayIndex(local.Weekday())][table.BlockIndex(local.Hour())]++
	}
	return heatmap
}
