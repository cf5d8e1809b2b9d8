package notification

import (
	"fmt"
	"sync"
)

// MockNotifier records sends for tests instead of delivering them.
type MockNotifier struct {
	mu   sync.Mutex
	sent []SentNotice
	fail bool
}

// SentNotice is one recorded delivery.
type SentNotice struct {
	Notice NoticeType
	Data   NotificationData
}

// NewMockNotifier creates an empty recorder.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// FailNext makes every subsequent Send return an error.
func (n *MockNotifier) FailNext(fail bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail = fail
}

// Send records the delivery.
func (n *MockNotifier) Send(notice NoticeType, notification NotificationData) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("mock notifier configured to fail")
	}
	n.sent = append(n.sent, SentNotice{Notice: notice, Data: notification})
	return nil
}

// Sent returns a copy of everything recorded so far.
func (n *MockNotifier) Sent() []SentNotice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]SentNotice(nil), n.sent...)
}
