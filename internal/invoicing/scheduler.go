package invoicing

import "time"

// Scheduler runs f once after d. The returned stop function cancels the call if it
// has not started. Callbacks must be serialised with the engine's other calls by
// the engine owner.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

// TimerScheduler schedules with time.AfterFunc. Callbacks run on their own goroutine,
// so it is only suitable when the owner has no other concurrent callers.
type TimerScheduler struct{}

// AfterFunc implements Scheduler.
func (TimerScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// deferredTasks keeps at most one pending task per key. Rescheduling or cancelling a
// key supersedes the earlier task even when its timer has already fired and the
// callback is waiting to run.
type deferredTasks struct {
	sched  Scheduler
	seq    uint64
	tokens map[string]uint64
	stops  map[string]func() bool
	closed bool
}

func newDeferredTasks(sched Scheduler) *deferredTasks {
	if sched == nil {
		sched = TimerScheduler{}
	}
	return &deferredTasks{
		sched:  sched,
		tokens: make(map[string]uint64),
		stops:  make(map[string]func() bool),
	}
}

func (d *deferredTasks) schedule(key string, delay time.Duration, f func()) {
	if d.closed {
		return
	}
	d.cancel(key)
	d.seq++
	token := d.seq
	d.tokens[key] = token
	d.stops[key] = d.sched.AfterFunc(delay, func() {
		if d.closed || d.tokens[key] != token {
			return
		}
		delete(d.tokens, key)
		delete(d.stops, key)
		f()
	})
}

func (d *deferredTasks) cancel(key string) {
	if stop, ok := d.stops[key]; ok {
		stop()
	}
	delete(d.stops, key)
	delete(d.tokens, key)
}

func (d *deferredTasks) pending(key string) bool {
	_, ok := d.tokens[key]
	return ok
}

func (d *deferredTasks) cancelAll() {
	for key := range d.stops {
		d.cancel(key)
	}
}

func (d *deferredTasks) close() {
	d.cancelAll()
	d.closed = true
}
