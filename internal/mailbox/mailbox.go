package mailbox

import (
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the slot count used for every station mailbox.
const DefaultCapacity = 10

var ErrFull = errors.New("mailbox full")

// Mailbox is a bounded FIFO feeding exactly one consumer. Any number of
// producers may send to it.
type Mailbox struct {
	name string
	ch   chan Item

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type Stats struct {
	Sent    uint64
	Dropped uint64
}

func New(name string, capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Mailbox{
		name: name,
		ch:   make(chan Item, capacity),
	}
}

func (m *Mailbox) Name() string { return m.name }

func (m *Mailbox) Cap() int { return cap(m.ch) }

func (m *Mailbox) Len() int { return len(m.ch) }

func (m *Mailbox) Stats() Stats {
	return Stats{Sent: m.sent.Load(), Dropped: m.dropped.Load()}
}

// Send enqueues item, waiting at most timeout for a free slot. On ErrFull the
// mailbox holds no reference to item.
func (m *Mailbox) Send(item Item, timeout time.Duration) error {
	if item == nil {
		return errors.New("mailbox: nil item")
	}

	select {
	case m.ch <- item:
		m.sent.Add(1)
		return nil
	default:
	}
	if timeout <= 0 {
		m.dropped.Add(1)
		return ErrFull
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case m.ch <- item:
		m.sent.Add(1)
		return nil
	case <-t.C:
		m.dropped.Add(1)
		return ErrFull
	}
}

// Receive waits at most timeout for one item.
func (m *Mailbox) Receive(timeout time.Duration) (Item, bool) {
	select {
	case it := <-m.ch:
		return it, true
	default:
	}
	if timeout <= 0 {
		return nil, false
	}

	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case it := <-m.ch:
		return it, true
	case <-t.C:
		return nil, false
	}
}

// Drain yields the items queued at the moment iteration starts and never
// blocks. Items sent while draining are left for the next call.
func (m *Mailbox) Drain() iter.Seq[Item] {
	return func(yield func(Item) bool) {
		n := len(m.ch)
		for range n {
			var it Item
			select {
			case it = <-m.ch:
			default:
				return
			}
			if !yield(it) {
				return
			}
		}
	}
}

// SendEach delivers item to every mailbox independently. A full mailbox
// does not stop delivery to the rest; the returned error joins every
// failure.
func SendEach(item Item, timeout time.Duration, boxes ...*Mailbox) error {
	var errs []error
	for _, m := range boxes {
		if err := m.Send(item, timeout); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", m.name, err))
		}
	}
	return errors.Join(errs...)
}
