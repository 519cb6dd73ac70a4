package workflow

import (
	"sync"

	"subforge/internal/pipeline"
)

const subscriberBuffer = 32

// eventBus fans job progress out to subscribers. A job must be opened before
// events are published and closed when it reaches a terminal state; closing
// ends every subscriber stream for that job.
type eventBus struct {
	mu     sync.Mutex
	jobs   map[string]*jobTopic
	nextID int
}

type jobTopic struct {
	last        *pipeline.Progress
	subscribers map[int]*pipeline.ChannelObserver
}

func newEventBus() *eventBus {
	return &eventBus{jobs: make(map[string]*jobTopic)}
}

func (b *eventBus) open(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[jobID]; !ok {
		b.jobs[jobID] = &jobTopic{subscribers: make(map[int]*pipeline.ChannelObserver)}
	}
}

func (b *eventBus) publish(p pipeline.Progress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.jobs[p.JobID]
	if !ok {
		return
	}
	snapshot := p
	topic.last = &snapshot
	for _, sub := range topic.subscribers {
		sub.OnProgress(p)
	}
}

func (b *eventBus) close(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.jobs[jobID]
	if !ok {
		return
	}
	for _, sub := range topic.subscribers {
		sub.Close()
	}
	delete(b.jobs, jobID)
}

// subscribe returns a stream for an open job. The latest event, if any, is
// replayed first. ok is false when the job is not in flight.
func (b *eventBus) subscribe(jobID string) (<-chan pipeline.Progress, func(), bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	topic, ok := b.jobs[jobID]
	if !ok {
		return nil, func() {}, false
	}
	b.nextID++
	id := b.nextID
	sub := pipeline.NewChannelObserver(subscriberBuffer)
	if topic.last != nil {
		sub.OnProgress(*topic.last)
	}
	topic.subscribers[id] = sub
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if t, ok := b.jobs[jobID]; ok {
			delete(t.subscribers, id)
		}
		sub.Close()
	}
	return sub.Events(), cancel, true
}

func (b *eventBus) active(jobID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.jobs[jobID]
	return ok
}
