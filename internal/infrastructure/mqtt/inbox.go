package mqtt

import "sync"

type message struct {
	topic   string
	payload []byte
}

// inbox hands one subscription's messages to its handler in arrival order
// on a goroutine of its own. deliver never blocks, so a handler that
// publishes and waits for the broker's ack cannot stall paho's router,
// which is the goroutine that processes that ack.
type inbox struct {
	mu    sync.Mutex
	queue []message

	ready chan struct{}
	done  chan struct{}
	once  sync.Once
}

func newInbox(handle func(topic string, payload []byte)) *inbox {
	in := &inbox{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go in.run(handle)
	return in
}

func (in *inbox) deliver(topic string, payload []byte) {
	in.mu.Lock()
	in.queue = append(in.queue, message{topic: topic, payload: payload})
	in.mu.Unlock()

	select {
	case in.ready <- struct{}{}:
	default:
	}
}

func (in *inbox) run(handle func(topic string, payload []byte)) {
	for {
		select {
		case <-in.ready:
		case <-in.done:
			return
		}
		for {
			m, ok := in.next()
			if !ok {
				break
			}
			handle(m.topic, m.payload)
		}
	}
}

// next pops the oldest message. It reports false when the queue is empty
// or the inbox is closed.
func (in *inbox) next() (message, bool) {
	select {
	case <-in.done:
		return message{}, false
	default:
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.queue) == 0 {
		return message{}, false
	}
	m := in.queue[0]
	in.queue[0] = message{}
	in.queue = in.queue[1:]
	return m, true
}

// close stops the worker after the message in progress. Queued messages
// are dropped.
func (in *inbox) close() {
	in.once.Do(func() { close(in.done) })
}
