package process

import "sync"

// Mailbox is an unbounded, FIFO, multi-producer single-consumer queue
// with put-back support for selective receive.
type Mailbox struct {
	mu    sync.Mutex
	queue []Message
}

func (m *Mailbox) Send(msg Message) {
	m.mu.Lock()
	m.queue = append(m.queue, msg)
	m.mu.Unlock()
}

// TryRecv pops the oldest message, or reports false if the mailbox is
// empty.
func (m *Mailbox) TryRecv() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Message{}, false
	}
	msg := m.queue[0]
	m.queue = m.queue[1:]
	return msg, true
}

// PutFront reinserts a message at the head of the queue, preserving its
// place ahead of messages that arrived after it -- used by selective
// receive to put back non-matching messages in their original order.
func (m *Mailbox) PutFront(msgs []Message) {
	if len(msgs) == 0 {
		return
	}
	m.mu.Lock()
	m.queue = append(append([]Message(nil), msgs...), m.queue...)
	m.mu.Unlock()
}

func (m *Mailbox) HasMessages() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue) > 0
}

func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}
