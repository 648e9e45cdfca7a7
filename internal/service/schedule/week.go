package schedule

import (
	"sort"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/activity"
)

// GroupByWeek buckets days into Monday-Sunday weeks ordered by date. Days without a date go
// to one trailing bucket in their original order. Every day appears exactly once.
func GroupByWeek(days []activity.ScheduleDay) []activity.Week {
	dated := make([]activity.ScheduleDay, 0, len(days))
	var undated []activity.ScheduleDay
	for _, d := range days {
		if d.HasDate() {
			dated = append(dated, d)
		} else {
			undated = append(undated, d)
		}
	}

	sort.SliceStable(dated, func(i, j int) bool {
		if !dated[i].Date.Equal(dated[j].Date) {
			return dated[i].Date.Before(dated[j].Date)
		}
		return dated[i].DayNumber < dated[j].DayNumber
	})

	var weeks []activity.Week
	for _, d := range dated {
		start := weekStart(d.Date)
		if n := len(weeks); n > 0 && weeks[n-1].Start.Equal(start) {
			weeks[n-1].Days = append(weeks[n-1].Days, d)
			continue
		}
		weeks = append(weeks, activity.Week{
			Start: start,
			End:   start.AddDate(0, 0, 6),
			Days:  []activity.ScheduleDay{d},
		})
	}

	if len(undated) > 0 {
		weeks = append(weeks, activity.Week{Days: undated})
	}
	return weeks
}

// weekStart returns midnight of the Monday on or before t, in t's location.
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	monday := t.AddDate(0, 0, -offset)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, t.Location())
}
