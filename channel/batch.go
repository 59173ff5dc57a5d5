package channel

import (
	"context"
	"sync"
	"time"

	"github.com/voxelcraft/vcnet"
)

// A batcher accumulates messages for one channel and flushes them as
// a single length-prefixed packet body when the batch timeout fires.
type batcher struct {
	conn    *Conn
	ch      vcnet.ChannelID
	timeout time.Duration

	mu    sync.Mutex
	msgs  []*vcnet.Message
	timer *time.Timer
}

func newBatcher(c *Conn, ch vcnet.ChannelID, timeout time.Duration) *batcher {
	return &batcher{conn: c, ch: ch, timeout: timeout}
}

func (b *batcher) add(m *vcnet.Message) {
	b.mu.Lock()
	b.msgs = append(b.msgs, m)
	if b.timer == nil {
		b.timer = time.AfterFunc(b.timeout, b.flush)
	}
	b.mu.Unlock()
}

func (b *batcher) flush() {
	b.mu.Lock()
	msgs := b.msgs
	b.msgs = nil
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	if len(msgs) == 0 {
		return
	}

	if err := b.conn.sendNow(context.Background(), msgs, b.ch); err != nil {
		select {
		case b.conn.errs <- err:
		default:
		}
	}
}

func (b *batcher) stop() {
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.msgs = nil
	b.mu.Unlock()
}
