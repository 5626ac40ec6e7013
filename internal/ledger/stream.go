package ledger

import (
	"sync"

	"github.com/blockon/contracts-service/internal/model"
)

// Subscription is a cancelable stream of confirmation events. Events are
// delivered deduplicated by contract index and in non-decreasing block
// order; the underlying transport may redeliver on reconnect, so both are
// enforced here rather than trusted.
type Subscription interface {
	Events() <-chan model.ConfirmationEvent
	Err() <-chan error
	Unsubscribe()
}

type confirmationStream struct {
	src    <-chan model.ConfirmationEvent
	srcErr <-chan error

	events chan model.ConfirmationEvent
	errs   chan error
	done   chan struct{}
	once   sync.Once
	stop   func()
}

func newConfirmationStream(src <-chan model.ConfirmationEvent, srcErr <-chan error, stop func()) *confirmationStream {
	s := &confirmationStream{
		src:    src,
		srcErr: srcErr,
		events: make(chan model.ConfirmationEvent, 1),
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
		stop:   stop,
	}
	go s.run()
	return s
}

func (s *confirmationStream) run() {
	defer close(s.events)

	seen := make(map[int64]struct{})
	var lastBlock uint64

	for {
		select {
		case <-s.done:
			return
		case err, ok := <-s.srcErr:
			if ok && err != nil {
				select {
				case s.errs <- err:
				case <-s.done:
				}
			}
			return
		case event, ok := <-s.src:
			if !ok {
				return
			}
			if event.BlockNumber < lastBlock {
				continue
			}
			if _, dup := seen[event.ContractIndex]; dup {
				continue
			}
			seen[event.ContractIndex] = struct{}{}
			lastBlock = event.BlockNumber

			select {
			case s.events <- event:
			case <-s.done:
				return
			}
		}
	}
}

func (s *confirmationStream) Events() <-chan model.ConfirmationEvent {
	return s.events
}

func (s *confirmationStream) Err() <-chan error {
	return s.errs
}

func (s *confirmationStream) Unsubscribe() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		close(s.done)
	})
}
