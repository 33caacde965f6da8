package booking

import "time"

// WorkingHours is the clinic's bookable window and slot granularity.
// It is static configuration, not user-editable state.
type WorkingHours struct {
	Start       string // HH:MM, first slot of the day
	End         string // HH:MM, exclusive upper bound
	SlotMinutes int
}

// Slots expands the working hours into the ordered slot grid for a
// single day, e.g. 09:00-11:00 at 30 minutes yields
// ["09:00" "09:30" "10:00" "10:30"].
//
// A zero or misconfigured window yields an empty grid rather than an
// error: a doctor without working hours simply has nothing bookable.
func (wh WorkingHours) Slots() []string {
	if wh.SlotMinutes <= 0 {
		return nil
	}
	start, err := time.Parse(SlotLayout, wh.Start)
	if err != nil {
		return nil
	}
	end, err := time.Parse(SlotLayout, wh.End)
	if err != nil {
		return nil
	}

	var slots []string
	step := time.Duration(wh.SlotMinutes) * time.Minute
	for cur := start; cur.Before(end); cur = cur.Add(step) {
		slots = append(slots, cur.Format(SlotLayout))
	}
	return slots
}

// Contains reports whether label is a member of the grid.
func (wh WorkingHours) Contains(label string) bool {
	for _, s := range wh.Slots() {
		if s == label {
			return true
		}
	}
	return false
}

// Subtract returns grid minus booked, preserving grid order.
func Subtract(grid, booked []string) []string {
	if len(booked) == 0 {
		out := make([]string, len(grid))
		copy(out, grid)
		return out
	}

	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		taken[b] = struct{}{}
	}

	free := make([]string, 0, len(grid))
	for _, s := range grid {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}
