package conversation

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Handler processes one event
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// Dispatcher runs events of one conversation strictly in arrival order
// while different conversations proceed in parallel
type Dispatcher struct {
	handler Handler
	logger  *zap.Logger

	mu     sync.Mutex
	queues map[int64][]Event
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
}

// NewDispatcher creates a dispatcher. ctx bounds every handled event.
func NewDispatcher(ctx context.Context, handler Handler, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handler: handler,
		logger:  logger.Named("dispatcher"),
		queues:  make(map[int64][]Event),
		ctx:     ctx,
	}
}

// Dispatch queues an event behind earlier events of the same conversation.
// It returns false once the dispatcher is closed.
func (d *Dispatcher) Dispatch(ev Event) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false
	}

	queue, running := d.queues[ev.ConversationID]
	d.queues[ev.ConversationID] = append(queue, ev)
	if !running {
		d.wg.Add(1)
		go d.drain(ev.ConversationID)
	}
	return true
}

// drain handles queued events of one conversation until the queue is empty
func (d *Dispatcher) drain(conversationID int64) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[conversationID]
		if len(queue) == 0 {
			delete(d.queues, conversationID)
			d.mu.Unlock()
			return
		}
		ev := queue[0]
		d.queues[conversationID] = queue[1:]
		d.mu.Unlock()

		d.handle(ev)
	}
}

func (d *Dispatcher) handle(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Event handler panicked",
				zap.Int64("conversation_id", ev.ConversationID),
				zap.Stringer("event", ev.Kind),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	d.handler.Handle(d.ctx, ev)
}

// Close stops accepting events and waits for queued ones to finish
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
