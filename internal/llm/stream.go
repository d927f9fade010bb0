package llm

import (
	"context"
	"io"
	"sync"
)

// Stream yields normalized chunks until io.EOF.
// Recv is the suspension point for network reads; callers observe
// cancellation between calls.
type Stream interface {
	Recv() (ChunkEvent, error)
	Close() error
}

type streamItem struct {
	chunk ChunkEvent
	err   error
}

// chunkStream runs a producer in its own goroutine and hands chunks over an
// unbuffered channel, so the producer never reads ahead of the consumer.
type chunkStream struct {
	items  chan streamItem
	cancel context.CancelFunc
	once   sync.Once
	err    error
}

// newChunkStream starts produce and returns a Stream over what it emits.
// emit returns an error once the consumer has closed the stream.
func newChunkStream(ctx context.Context, produce func(ctx context.Context, emit func(ChunkEvent) error) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &chunkStream{
		items:  make(chan streamItem),
		cancel: cancel,
	}
	go func() {
		defer close(s.items)
		emit := func(chunk ChunkEvent) error {
			select {
			case s.items <- streamItem{chunk: chunk}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := produce(ctx, emit); err != nil {
			select {
			case s.items <- streamItem{err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return s
}

func (s *chunkStream) Recv() (ChunkEvent, error) {
	if s.err != nil {
		return ChunkEvent{}, s.err
	}
	item, ok := <-s.items
	if !ok {
		s.err = io.EOF
		return ChunkEvent{}, io.EOF
	}
	if item.err != nil {
		s.err = item.err
		return ChunkEvent{}, item.err
	}
	return item.chunk, nil
}

func (s *chunkStream) Close() error {
	s.once.Do(func() {
		s.cancel()
		// Drain so the producer goroutine can exit.
		go func() {
			for range s.items {
			}
		}()
	})
	return nil
}
