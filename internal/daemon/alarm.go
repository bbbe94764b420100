package daemon

import "time"

// Alarm is a resettable wake-up for the next phase deadline. The loop
// treats it as advisory: a late or missed fire only delays the catch-up
// to the next event, it never corrupts the timer.
type Alarm interface {
	// Set schedules the next fire, replacing any pending one.
	Set(at time.Time)

	// Stop cancels the pending fire.
	Stop()

	// C returns the fire channel.
	C() <-chan time.Time
}

// timerAlarm implements Alarm over a stdlib timer.
type timerAlarm struct {
	timer *time.Timer
	ch    chan time.Time
}

// NewAlarm creates an unarmed alarm.
func NewAlarm() Alarm {
	a := &timerAlarm{ch: make(chan time.Time, 1)}
	a.timer = time.AfterFunc(time.Hour, a.fire)
	a.timer.Stop()
	return a
}

func (a *timerAlarm) fire() {
	select {
	case a.ch <- time.Now():
	default:
	}
}

func (a *timerAlarm) Set(at time.Time) {
	a.timer.Stop()
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	a.timer.Reset(d)
}

func (a *timerAlarm) Stop() {
	a.timer.Stop()
}

func (a *timerAlarm) C() <-chan time.Time {
	return a.ch
}
