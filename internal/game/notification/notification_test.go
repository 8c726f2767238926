package notification_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/fibula/internal/game/event"
	"github.com/cory-johannsen/fibula/internal/game/notification"
)

type inbox struct {
	mu   sync.Mutex
	msgs map[uint32][]string
}

func (i *inbox) Send(id uint32, text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.msgs == nil {
		i.msgs = make(map[uint32][]string)
	}
	i.msgs[id] = append(i.msgs[id], text)
}

func TestNotification_ExecuteSendsToEveryRecipient(t *testing.T) {
	box := &inbox{}
	n := notification.New(box, "A rat squeaks.", 1, 2)
	require.NoError(t, n.Execute(nil))
	assert.Equal(t, []string{"A rat squeaks."}, box.msgs[1])
	assert.Equal(t, []string{"A rat squeaks."}, box.msgs[2])
	assert.False(t, n.CanBeCancelled())
}

func TestNotifier_SchedulesAndDelivers(t *testing.T) {
	clk := event.NewManualClock(time.Unix(0, 0))
	s := event.NewScheduler(event.DefaultConfig(), clk, zaptest.NewLogger(t))
	box := &inbox{}
	n := notification.NewNotifier(s, box, zaptest.NewLogger(t))

	n.Notify("hello", 5)
	n.ReportFailure(5, "You cannot go there.")
	n.Notify("dropped: no recipients")
	assert.Equal(t, 2, s.Stats().Queued)
	assert.Zero(t, s.CancelAllFor(0))
}
