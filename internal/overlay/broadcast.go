package overlay

import (
	"context"
	"sync"

	"gocv.io/x/gocv"
)

// Broadcaster holds the most recent encoded frame and wakes every waiting
// viewer when a new one is published.
type Broadcaster struct {
	mu      sync.Mutex
	frame   []byte
	seq     uint64
	changed chan struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{changed: make(chan struct{})}
}

// Publish stores jpeg as the latest frame.
func (b *Broadcaster) Publish(jpeg []byte) {
	b.mu.Lock()
	b.frame = jpeg
	b.seq++
	close(b.changed)
	b.changed = make(chan struct{})
	b.mu.Unlock()
}

// PublishMat encodes img as JPEG and publishes it.
func (b *Broadcaster) PublishMat(img *gocv.Mat) error {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return err
	}
	defer buf.Close()

	data := make([]byte, buf.Len())
	copy(data, buf.GetBytes())
	b.Publish(data)
	return nil
}

// Latest returns the newest frame and its sequence number. Sequence 0 means
// nothing has been published.
func (b *Broadcaster) Latest() ([]byte, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frame, b.seq
}

// Next blocks until a frame newer than after is available or ctx is done.
func (b *Broadcaster) Next(ctx context.Context, after uint64) ([]byte, uint64, error) {
	for {
		b.mu.Lock()
		if b.seq > after {
			frame, seq := b.frame, b.seq
			b.mu.Unlock()
			return frame, seq, nil
		}
		changed := b.changed
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, after, ctx.Err()
		case <-changed:
		}
	}
}
