package alarm

import "time"

// Machine debounces filtered motion into the alarm lifecycle:
//
//	IDLE -> PENDING -> ACTIVE -> CLEARING -> IDLE
//
// with CLEARING -> ACTIVE when motion resumes before the clear timeout.
type Machine struct {
	state       State
	since       time.Time
	motionStart time.Time
	triggeredAt time.Time
	stoppedAt   time.Time
	motion      bool
	counts      Counts
}

// NewMachine creates a machine in IDLE.
func NewMachine(now time.Time) *Machine {
	return &Machine{state: StateIdle, since: now}
}

// Tick advances the machine with one sample and returns the events it
// produced, in order: the motion edge (if any) first, then the lifecycle
// event (if any). Timing is applied to the time already elapsed, so a
// changed delay shortens or extends the current wait rather than
// restarting it.
func (m *Machine) Tick(in Input, timing Timing) []Event {
	var events []Event
	emit := func(t EventType, d time.Duration) {
		events = append(events, Event{
			Timestamp: in.Time,
			Type:      t,
			State:     m.state,
			Duration:  d,
			Counts:    m.counts,
		})
	}

	var lifecycle EventType
	var duration time.Duration

	switch m.state {
	case StateIdle:
		if in.Motion {
			m.enter(StatePending, in.Time)
			m.motionStart = in.Time
			m.counts.MotionEvents++
		}

	case StatePending:
		if !in.Motion {
			// False start, no alarm
			m.enter(StateIdle, in.Time)
			break
		}
		if in.Time.Sub(m.since) >= timing.TripDelay {
			m.enter(StateActive, in.Time)
			m.triggeredAt = in.Time
			m.counts.AlarmEvents++
			lifecycle = EventAlarmTriggered
		}

	case StateActive:
		if !in.Motion {
			m.enter(StateClearing, in.Time)
			m.stoppedAt = in.Time
		}

	case StateClearing:
		if in.Motion {
			// Resumed; still the same alarm
			m.enter(StateActive, in.Time)
			break
		}
		if in.Time.Sub(m.stoppedAt) >= timing.ClearTimeout {
			m.enter(StateIdle, in.Time)
			lifecycle = EventAlarmCleared
			duration = m.stoppedAt.Sub(m.motionStart)
		}
	}

	if in.Motion != m.motion {
		m.motion = in.Motion
		if in.Motion {
			emit(EventMotionDetected, 0)
		} else {
			emit(EventMotionCleared, 0)
		}
	}
	if lifecycle != "" {
		emit(lifecycle, duration)
	}
	return events
}

func (m *Machine) enter(s State, now time.Time) {
	m.state = s
	m.since = now
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Counts returns the event counters.
func (m *Machine) Counts() Counts {
	return m.counts
}

// Snapshot returns a copy of the machine state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:       m.state,
		Since:       m.since,
		MotionStart: m.motionStart,
		TriggeredAt: m.triggeredAt,
		StoppedAt:   m.stoppedAt,
		Motion:      m.motion,
		Counts:      m.counts,
	}
}

// Reset returns the machine to IDLE with zeroed counters.
func (m *Machine) Reset(now time.Time) {
	*m = Machine{state: StateIdle, since: now}
}
