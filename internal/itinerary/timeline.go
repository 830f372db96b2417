package itinerary

import (
	"fmt"

	"tripsync/internal/domain"
)

// Timeline defaults, in minutes
const (
	DayStart     Clock = 9 * 60
	DefaultStay        = 90
	TravelBuffer       = 30
)

// Clock is a time of day in minutes since midnight. It does not wrap: a
// schedule running past midnight renders as 24:30, 25:00 and so on.
type Clock int

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText renders the clock as HH:MM
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// TimelineEntry is one scheduled stop
type TimelineEntry struct {
	Spot          domain.Spot `json:"spot"`
	Start         Clock       `json:"start_time"`
	End           Clock       `json:"end_time"`
	StayMinutes   int         `json:"stay_minutes"`
	TravelMinutes int         `json:"travel_minutes"` // to the next stop
	IsLast        bool        `json:"is_last"`
}

// BuildTimeline schedules spots back to back in the given order, starting at
// 09:00 with each stay followed by a fixed travel buffer
func BuildTimeline(spots []domain.Spot) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(spots))
	clock := DayStart
	for i, sp := range spots {
		stay := DefaultStay
		if sp.StayTime != nil && *sp.StayTime > 0 {
			stay = *sp.StayTime
		}
		last := i == len(spots)-1
		travel := TravelBuffer
		if last {
			travel = 0
		}

		entry := TimelineEntry{
			Spot:          sp,
			Start:         clock,
			End:           clock + Clock(stay),
			StayMinutes:   stay,
			TravelMinutes: travel,
			IsLast:        last,
		}
		entries = append(entries, entry)
		clock = entry.End + TravelBuffer
	}
	return entries
}

// DayPlan is the timeline of one trip day
type DayPlan struct {
	Day     int             `json:"day"`
	Entries []TimelineEntry `json:"entries"`
}

// DayTimelines builds one timeline per trip day from the confirmed spots.
// Days run from 1 to the highest assigned day; unassigned confirmed spots
// appear on every day.
func DayTimelines(spots []domain.Spot) []DayPlan {
	maxDay := 1
	for _, sp := range spots {
		if sp.Status == domain.StatusConfirmed && sp.Day > maxDay {
			maxDay = sp.Day
		}
	}

	plans := make([]DayPlan, 0, maxDay)
	for day := 1; day <= maxDay; day++ {
		var daySpots []domain.Spot
		for _, sp := range spots {
			if sp.OnDay(day) {
				daySpots = append(daySpots, sp)
			}
		}
		plans = append(plans, DayPlan{Day: day, Entries: BuildTimeline(daySpots)})
	}
	return plans
}
