package app

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventLoop runs tasks one at a time on a single goroutine. Everything that
// changes the plugin set goes through it, so registry mutation has a single
// writer the way a UI thread would provide.
//
// Post never blocks, so tasks may post follow-up work. Do waits for its task
// and must not be called from a task.
type EventLoop struct {
	logger *logrus.Entry

	mu      sync.Mutex
	queue   []func()
	running bool
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewEventLoop creates a stopped loop.
func NewEventLoop(logger *logrus.Logger) *EventLoop {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventLoop{
		logger: logger.WithField("component", "event-loop"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Start starts the loop goroutine.
func (l *EventLoop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		return ErrNotRunning
	}
	if l.running {
		return ErrAlreadyRunning
	}
	l.running = true
	go l.run()
	return nil
}

// Post queues fn. Tasks posted before Start run once the loop starts. It
// fails once the loop has been stopped.
func (l *EventLoop) Post(fn func()) error {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return ErrNotRunning
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the loop and returns its error. A panic in fn is returned
// as an error.
func (l *EventLoop) Do(fn func() error) error {
	l.mu.Lock()
	running := l.running
	l.mu.Unlock()
	if !running {
		return ErrNotRunning
	}

	result := make(chan error, 1)
	err := l.Post(func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
			result <- err
		}()
		err = fn()
	})
	if err != nil {
		return err
	}
	return <-result
}

// Stop runs the tasks already queued, then stops the loop. Later Posts
// fail with ErrNotRunning.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	running := l.running
	l.mu.Unlock()

	if !running {
		return
	}
	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}

func (l *EventLoop) run() {
	defer close(l.done)

	for range l.wake {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				stopped := l.stopped
				l.mu.Unlock()
				if stopped {
					return
				}
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.runTask(fn)
		}
	}
}

func (l *EventLoop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", fmt.Sprint(r)).Error("event loop task panicked")
		}
	}()
	fn()
}
