package notification

import (
	"context"
	"sync"
)

// MockNotifier implements Notifier by recording messages. Intended for tests.
type MockNotifier struct {
	mu       sync.Mutex
	messages []Message
}

// NewMockNotifier creates a new MockNotifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Send records the message
func (n *MockNotifier) Send(ctx context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.messages = append(n.messages, msg)
	return nil
}

// Messages returns a copy of all recorded messages
func (n *MockNotifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Message, len(n.messages))
	copy(out, n.messages)
	return out
}

// LastMessage returns the most recently recorded message, if any
func (n *MockNotifier) LastMessage() (Message, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if len(n.messages) == 0 {
		return Message{}, false
	}
	return n.messages[len(n.messages)-1], true
}
