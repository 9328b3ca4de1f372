package puzzle

import (
	"encoding/json"
	"time"
)

// Clock is a deterministic function of wall-clock time: it publishes a
// value derived from `now` modulo Period, scaled/clamped to [0, Max], with
// Shift seconds applied before the modulo (spec.md §4.1 "Clock(period, max,
// shift)"; §9 Open Question: shift is in seconds).
type Clock struct {
	Base
	Period time.Duration
	Max    int64
	Shift  time.Duration
}

func NewClock(period time.Duration, max int64, shiftSeconds int64) *Clock {
	return &Clock{Period: period, Max: max, Shift: time.Duration(shiftSeconds) * time.Second}
}

func (c *Clock) valueAt(now time.Time) int64 {
	if c.Period <= 0 {
		return 0
	}
	elapsed := now.Add(c.Shift).UnixNano() % int64(c.Period)
	if elapsed < 0 {
		elapsed += int64(c.Period)
	}
	frac := float64(elapsed) / float64(c.Period)
	return int64(frac * float64(c.Max+1))
}

func (c *Clock) Tick(now time.Time) []OutputEvent {
	return []OutputEvent{emit(EventChanged, NumVal(float64(c.valueAt(now))))}
}

// NextWake returns the time until the clock's value next advances to the
// following discrete step.
func (c *Clock) NextWake(now time.Time) (time.Duration, bool) {
	if c.Period <= 0 || c.Max <= 0 {
		return 0, false
	}
	step := c.Period / time.Duration(c.Max+1)
	if step <= 0 {
		return 0, false
	}
	elapsed := now.Add(c.Shift).UnixNano() % int64(c.Period)
	if elapsed < 0 {
		elapsed += int64(c.Period)
	}
	remainder := int64(step) - elapsed%int64(step)
	return time.Duration(remainder), true
}

// Metronome emits Changed(Empty) at a fixed wall-clock cadence, remembering
// the last emit time so it never double-fires within one period (spec.md
// §4.1 "Metronome(freq)").
type Metronome struct {
	Base
	Period   time.Duration
	lastTick time.Time
}

func NewMetronome(period time.Duration) *Metronome { return &Metronome{Period: period} }

func (m *Metronome) Tick(now time.Time) []OutputEvent {
	if m.Period <= 0 {
		return nil
	}
	if !m.lastTick.IsZero() && now.Sub(m.lastTick) < m.Period {
		return nil
	}
	m.lastTick = now
	return []OutputEvent{emit(EventChanged, Empty())}
}

func (m *Metronome) NextWake(now time.Time) (time.Duration, bool) {
	if m.Period <= 0 {
		return 0, false
	}
	if m.lastTick.IsZero() {
		return 0, true
	}
	next := m.lastTick.Add(m.Period)
	if !next.After(now) {
		return 0, true
	}
	return next.Sub(now), true
}

type metronomeState struct {
	LastTick int64 `json:"last_tick"`
}

func (m *Metronome) Serialize() (json.RawMessage, error) {
	return json.Marshal(metronomeState{LastTick: m.lastTick.UnixNano()})
}
func (m *Metronome) Load(data json.RawMessage) error {
	var s metronomeState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.LastTick != 0 {
		m.lastTick = time.Unix(0, s.LastTick)
	}
	return nil
}

// Timer counts down from a Set(Num) duration (in seconds) and emits
// AtMin(Empty) when it expires; an Up/Down-style Counter with wall-clock
// progression instead of discrete steps.
type Timer struct {
	Base
	deadline time.Time
	running  bool
	fired    bool
}

func NewTimer() *Timer { return &Timer{} }

func (t *Timer) Accept(cause CommandName, value Value, now time.Time) []OutputEvent {
	if cause != CommandSet || value.Kind != ValueNum {
		return nil
	}
	t.deadline = now.Add(time.Duration(value.Num * float64(time.Second)))
	t.running = true
	t.fired = false
	return nil
}

func (t *Timer) Tick(now time.Time) []OutputEvent {
	if !t.running || t.fired || now.Before(t.deadline) {
		return nil
	}
	t.fired = true
	t.running = false
	return []OutputEvent{emit(EventAtMin, Empty())}
}

func (t *Timer) NextWake(now time.Time) (time.Duration, bool) {
	if !t.running || t.fired {
		return 0, false
	}
	if !t.deadline.After(now) {
		return 0, true
	}
	return t.deadline.Sub(now), true
}

type timerState struct {
	Deadline int64 `json:"deadline"`
	Running  bool  `json:"running"`
	Fired    bool  `json:"fired"`
}

func (t *Timer) Serialize() (json.RawMessage, error) {
	return json.Marshal(timerState{Deadline: t.deadline.UnixNano(), Running: t.running, Fired: t.fired})
}
func (t *Timer) Load(data json.RawMessage) error {
	var s timerState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s.Deadline != 0 {
		t.deadline = time.Unix(0, s.Deadline)
	}
	t.running, t.fired = s.Running, s.Fired
	return nil
}

// HolidayCalendar publishes whether `now`'s date (UTC) falls on one of a
// fixed set of year-independent month/day holidays.
type HolidayCalendar struct {
	Base
	Holidays map[[2]int]bool // [month, day] -> observed
}

func NewHolidayCalendar(days [][2]int) *HolidayCalendar {
	h := &HolidayCalendar{Holidays: map[[2]int]bool{}}
	for _, d := range days {
		h.Holidays[d] = true
	}
	return h
}

func (h *HolidayCalendar) isHoliday(now time.Time) bool {
	return h.Holidays[[2]int{int(now.UTC().Month()), now.UTC().Day()}]
}

func (h *HolidayCalendar) Tick(now time.Time) []OutputEvent {
	return []OutputEvent{emit(EventChanged, BoolVal(h.isHoliday(now)))}
}

func (h *HolidayCalendar) NextWake(now time.Time) (time.Duration, bool) {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
	return next.Sub(now.UTC()), true
}
