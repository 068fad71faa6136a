package logger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail int64
}

func (s *recordingSender) SendText(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chatID == s.fail {
		return errors.New("blocked")
	}
	if s.sent == nil {
		s.sent = map[int64][]string{}
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

type staticAdmins []int64

func (a staticAdmins) IDs(context.Context) ([]int64, error) { return a, nil }

func TestNotifyAdmin(t *testing.T) {
	sender := &recordingSender{fail: 3}
	core, logs := observer.New(zap.WarnLevel)
	n := NewNotifier(sender, staticAdmins{1, 2, 3}, zap.New(core))

	n.NotifyAdmin(context.Background(), "db down")

	assert.Equal(t, []string{"[ALERT] db down"}, sender.sent[1])
	assert.Equal(t, []string{"[ALERT] db down"}, sender.sent[2])
	assert.Equal(t, 1, logs.FilterMessage("admin alert not delivered").Len())
}

func TestRecover(t *testing.T) {
	sender := &recordingSender{}
	core, logs := observer.New(zap.ErrorLevel)
	n := NewNotifier(sender, staticAdmins{1}, zap.New(core))

	func() {
		defer n.Recover("worker")
		panic("boom")
	}()

	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
	assert.Equal(t, []string{"[ALERT] Panic in worker: boom"}, sender.sent[1])
}

func TestNew(t *testing.T) {
	log, err := New("debug", "")
	assert.NoError(t, err)
	assert.NotNil(t, log)

	_, err = New("loud", "")
	assert.Error(t, err)
}
