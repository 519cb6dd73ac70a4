package pipeline

import (
	"sync"
	"time"
)

// Progress is one checkpoint event for a job.
type Progress struct {
	JobID     string    `json:"jobId"`
	Stage     Stage     `json:"stage"`
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Time      time.Time `json:"time"`
}

// Observer receives progress events. Implementations must not block for long;
// they run on the job's goroutine.
type Observer interface {
	OnProgress(Progress)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Progress)

// OnProgress implements Observer.
func (f ObserverFunc) OnProgress(p Progress) {
	if f != nil {
		f(p)
	}
}

// MultiObserver fans events out to every non-nil observer.
func MultiObserver(observers ...Observer) Observer {
	list := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			list = append(list, o)
		}
	}
	return ObserverFunc(func(p Progress) {
		for _, o := range list {
			o.OnProgress(p)
		}
	})
}

// ChannelObserver delivers events on a buffered channel. When the buffer is
// full the oldest pending event is discarded so the job never blocks on a
// slow reader. Close ends the stream.
type ChannelObserver struct {
	mu     sync.Mutex
	ch     chan Progress
	closed bool
}

// NewChannelObserver allocates an observer with the given buffer size.
func NewChannelObserver(buffer int) *ChannelObserver {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChannelObserver{ch: make(chan Progress, buffer)}
}

// Events returns the receive side of the stream.
func (c *ChannelObserver) Events() <-chan Progress {
	return c.ch
}

// OnProgress implements Observer.
func (c *ChannelObserver) OnProgress(p Progress) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.ch <- p:
			return
		default:
		}
		select {
		case <-c.ch:
		default:
		}
	}
}

// Close closes the channel. Further events are ignored.
func (c *ChannelObserver) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.ch)
}

// tracker enforces non-decreasing progress for one job.
type tracker struct {
	jobID    string
	observer Observer
	stage    Stage
	percent  float64
}

func newTracker(jobID string, observer Observer) *tracker {
	return &tracker{jobID: jobID, observer: observer, stage: StageIdle}
}

// emit forwards a checkpoint unless it would move progress backwards.
// Terminal stages are always delivered.
func (t *tracker) emit(stage Stage, percent float64, message string) bool {
	if percent < t.percent && !stage.Terminal() {
		return false
	}
	if percent < t.percent {
		percent = t.percent
	}
	t.stage = stage
	t.percent = percent
	if message == "" {
		message = stage.Label()
	}
	if t.observer != nil {
		t.observer.OnProgress(Progress{
			JobID:   t.jobID,
			Stage:   stage,
			Percent: percent,
			Message: message,
			Time:    time.Now().UTC(),
		})
	}
	return true
}

func (t *tracker) fail(kind, message string) {
	t.stage = StageFailed
	if t.observer != nil {
		t.observer.OnProgress(Progress{
			JobID:     t.jobID,
			Stage:     StageFailed,
			Percent:   t.percent,
			Message:   message,
			ErrorKind: kind,
			Time:      time.Now().UTC(),
		})
	}
}
