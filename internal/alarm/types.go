// Package alarm contains the alarm lifecycle state machine.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package alarm

import "time"

// State is the alarm lifecycle state.
type State string

const (
	StateIdle     State = "IDLE"
	StatePending  State = "PENDING"
	StateActive   State = "ACTIVE"
	StateClearing State = "CLEARING"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventMotionDetected EventType = "MOTION_DETECTED"
	EventMotionCleared  EventType = "MOTION_CLEARED"
	EventAlarmTriggered EventType = "ALARM_TRIGGERED"
	EventAlarmCleared   EventType = "ALARM_CLEARED"
)

// Event is emitted by Machine.Tick. It is the only way consumers learn
// about state changes.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State // state after the event
	// Duration is the motion span from the start of the pending phase to
	// the last motion stop. Set on EventAlarmCleared only.
	Duration time.Duration
	Counts   Counts
}

// Counts are monotonic counters since boot or factory reset.
type Counts struct {
	MotionEvents uint64
	AlarmEvents  uint64
}

// Input is a single filtered motion sample.
type Input struct {
	Motion bool
	Time   time.Time
}

// Timing carries the live timing parameters, read from configuration on
// every tick.
type Timing struct {
	TripDelay    time.Duration
	ClearTimeout time.Duration
}

// TimingSeconds builds a Timing from whole seconds.
func TimingSeconds(tripDelay, clearTimeout int) Timing {
	return Timing{
		TripDelay:    time.Duration(tripDelay) * time.Second,
		ClearTimeout: time.Duration(clearTimeout) * time.Second,
	}
}

// Snapshot is a point-in-time copy of the machine state.
type Snapshot struct {
	State       State
	Since       time.Time // when State was entered
	MotionStart time.Time // start of the current pending/active cycle
	TriggeredAt time.Time
	StoppedAt   time.Time
	Motion      bool
	Counts      Counts
}
