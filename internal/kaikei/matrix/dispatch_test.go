package matrix

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"maunium.net/go/mautrix/id"
)

func TestDispatcher_PreservesPerSenderOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	var mu sync.Mutex
	seen := map[id.UserID][]string{}
	d := newDispatcher(0, func(_ context.Context, m Message) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		seen[m.Sender] = append(seen[m.Sender], m.Text)
		mu.Unlock()
	})

	want := []string{"a", "b", "c", "d", "e"}
	for _, text := range want {
		require.True(t, d.submit(context.Background(), Message{Sender: "@alice:x", Text: text}))
		require.True(t, d.submit(context.Background(), Message{Sender: "@bob:x", Text: text}))
	}
	d.wait()

	assert.Equal(t, want, seen["@alice:x"])
	assert.Equal(t, want, seen["@bob:x"])
}

func TestDispatcher_SendersRunInParallel(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	bobDone := make(chan struct{})
	d := newDispatcher(0, func(_ context.Context, m Message) {
		if m.Sender == "@alice:x" {
			<-release
			return
		}
		close(bobDone)
	})

	d.submit(context.Background(), Message{Sender: "@alice:x"})
	d.submit(context.Background(), Message{Sender: "@bob:x"})

	select {
	case <-bobDone:
	case <-time.After(2 * time.Second):
		t.Fatal("bob was blocked behind alice")
	}
	close(release)
	d.wait()
}

func TestDispatcher_DropsWhenBacklogFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	d := newDispatcher(2, func(_ context.Context, m Message) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	require.True(t, d.submit(context.Background(), Message{Sender: "@alice:x", Text: "1"}))
	<-started // first message is in flight, queue is empty again
	require.True(t, d.submit(context.Background(), Message{Sender: "@alice:x", Text: "2"}))
	require.True(t, d.submit(context.Background(), Message{Sender: "@alice:x", Text: "3"}))
	assert.False(t, d.submit(context.Background(), Message{Sender: "@alice:x", Text: "4"}))

	close(release)
	d.wait()
}
