package domain

import (
	"sort"
	"time"
)

// Flood event types as recorded by the NWS storm events database.
const (
	EventTypeFlashFlood = "flash_flood"
	EventTypeFlood      = "flood"
)

// FloodEvent is a historical flood occurrence tied to a county, annotated with
// its distance from the query point.
type FloodEvent struct {
	EventType              string    `json:"event_type"`
	Date                   time.Time `json:"date"`
	WarningZone            string    `json:"warning_zone"`
	County                 string    `json:"county"`
	Latitude               float64   `json:"latitude"`
	Longitude              float64   `json:"longitude"`
	DistanceFromQueryMiles float64   `json:"distance_from_query_miles"`
	NearestAddress         *string   `json:"nearest_address"`
}

// NormalizeEventType maps store labels ("Flash Flood", "FLOOD") to the two
// canonical event types. Unknown labels are returned lower-cased.
func NormalizeEventType(label string) string {
	switch normalizeLabel(label) {
	case "flash_flood", "flashflood":
		return EventTypeFlashFlood
	case "flood", "coastal_flood", "lakeshore_flood":
		return EventTypeFlood
	default:
		return normalizeLabel(label)
	}
}

// SortByDistance returns a copy of events ordered nearest first. The sort is
// stable so equidistant events keep their store order.
func SortByDistance(events []FloodEvent) []FloodEvent {
	out := make([]FloodEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistanceFromQueryMiles < out[j].DistanceFromQueryMiles
	})
	return out
}

// DedupFloodEvents drops repeated reports of the same event (same type, date,
// and coordinates), keeping the first occurrence.
func DedupFloodEvents(events []FloodEvent) []FloodEvent {
	type key struct {
		eventType string
		date      string
		lat, lon  float64
	}
	seen := make(map[key]struct{}, len(events))
	out := make([]FloodEvent, 0, len(events))
	for _, e := range events {
		k := key{e.EventType, e.Date.Format(time.DateOnly), e.Latitude, e.Longitude}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, e)
	}
	return out
}

// IsSortedByDistance reports whether events are in non-decreasing distance order.
func IsSortedByDistance(events []FloodEvent) bool {
	return sort.SliceIsSorted(events, func(i, j int) bool {
		return events[i].DistanceFromQueryMiles < events[j].DistanceFromQueryMiles
	})
}
