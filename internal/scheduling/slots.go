package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// DefaultHorizonDays is how far ahead slots are generated: today plus the
// next 14 days, the 16th day excluded.
const DefaultHorizonDays = 15

const dateLayout = "2006-01-02"

type timeOfDay struct {
	hour, minute int
}

// parseTimeOfDay accepts "HH:MM" or "HH:MM:SS"; the seconds are dropped.
func parseTimeOfDay(s string) (timeOfDay, error) {
	var t timeOfDay
	var sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &t.hour, &t.minute, &sec); err != nil {
		if _, err := fmt.Sscanf(s, "%d:%d", &t.hour, &t.minute); err != nil {
			return timeOfDay{}, fmt.Errorf("malformed time of day %q", s)
		}
	}
	if t.hour < 0 || t.hour > 23 || t.minute < 0 || t.minute > 59 {
		return timeOfDay{}, fmt.Errorf("time of day %q out of range", s)
	}
	return t, nil
}

func (t timeOfDay) minutes() int {
	return t.hour*60 + t.minute
}

func minutesToClock(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// GenerateSlots expands the given availability windows over the horizon and
// removes every candidate present in the occupied set (keyed by Slot.Key).
// Pure and side-effect free: both input sets are fetched once by the caller.
//
// A step is emitted iff its start is strictly before the window's end time,
// so a window whose span is not an exact multiple of the slot length simply
// truncates the last partial step. Windows with malformed times or a
// non-positive slot length are skipped rather than failing the whole run.
func GenerateSlots(windows []AvailabilityWindow, occupied map[string]struct{}, horizonStart time.Time, horizonDays int) []Slot {
	if len(windows) == 0 || horizonDays <= 0 {
		return nil
	}

	var slots []Slot
	for i := 0; i < horizonDays; i++ {
		day := horizonStart.AddDate(0, 0, i)
		date := day.Format(dateLayout)
		weekday := day.Weekday()

		for _, w := range windows {
			if !w.Active || w.Weekday != weekday {
				continue
			}
			from, err := parseTimeOfDay(w.StartTime)
			if err != nil {
				continue
			}
			until, err := parseTimeOfDay(w.EndTime)
			if err != nil {
				continue
			}
			if w.SlotMinutes <= 0 {
				continue
			}

			for m := from.minutes(); m < until.minutes(); m += w.SlotMinutes {
				s := Slot{Date: date, Time: minutesToClock(m)}
				if _, taken := occupied[s.Key()]; taken {
					continue
				}
				slots = append(slots, s)
			}
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Key() < slots[j].Key()
	})
	return slots
}

// occupiedSet builds the lookup set from appointments in occupying status.
func occupiedSet(appointments []Appointment) map[string]struct{} {
	set := make(map[string]struct{}, len(appointments))
	for _, a := range appointments {
		if !a.Status.Occupying() {
			continue
		}
		set[Slot{Date: a.Date, Time: a.Time}.Key()] = struct{}{}
	}
	return set
}
