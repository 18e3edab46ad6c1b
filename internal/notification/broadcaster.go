package notification

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/stanstork/reconciler/internal/models"
)

// ErrSubscriberFull is reported when a subscriber's buffer is full and the
// event was dropped for it.
var ErrSubscriberFull = errors.New("subscriber buffer full")

// Broadcaster is an in-process Notifier delivering events to channel
// subscribers. A slow subscriber loses events rather than blocking the job.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
	buffer int
}

type subscription struct {
	jobID string
	ch    chan models.ProgressEvent
}

func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{subs: map[int]subscription{}, buffer: buffer}
}

func (b *Broadcaster) String() string { return "broadcaster" }

// Subscribe registers a subscriber. An empty jobID receives every job's
// events. The returned cancel func closes the channel.
func (b *Broadcaster) Subscribe(jobID string) (<-chan models.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan models.ProgressEvent, b.buffer)
	b.subs[id] = subscription{jobID: jobID, ch: ch}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

func (b *Broadcaster) Notify(_ context.Context, evt models.ProgressEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for _, sub := range b.subs {
		if sub.jobID != "" && sub.jobID != evt.JobID {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		return errors.Wrapf(ErrSubscriberFull, "%d subscriber(s)", dropped)
	}
	return nil
}
