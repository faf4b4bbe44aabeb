package video

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"
)

// scriptedStream yields a fixed frame sequence then a terminal error.
type scriptedStream struct {
	frames []Frame
	pos    int
	err    error
	closed atomic.Bool
}

func (s *scriptedStream) Next(ctx context.Context) (Frame, error) {
	if s.pos >= len(s.frames) {
		if s.err != nil {
			return Frame{}, s.err
		}
		return Frame{}, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *scriptedStream) Close() error {
	s.closed.Store(true)
	return nil
}

// scriptedSource hands out streams in order, then blocks until cancelled.
type scriptedSource struct {
	streams []*scriptedStream
	errs    []error
	calls   atomic.Int32
}

func (s *scriptedSource) NextTrack(ctx context.Context) (Stream, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	if n < len(s.streams) {
		return s.streams[n], nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestIngestorFeedsCache(t *testing.T) {
	cache := NewCache()
	stream := &scriptedStream{frames: []Frame{
		{Data: []byte("a")},
		{Data: []byte("b")},
		{Data: []byte("c")},
	}}
	source := &scriptedSource{streams: []*scriptedStream{stream}}

	ing := NewIngestor(source, cache, nil)
	ing.RetryDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ing.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		f, ok := cache.Read()
		return ok && string(f.Data) == "c"
	}, "last frame never reached the cache")

	cancel()
	<-done

	if !stream.closed.Load() {
		t.Error("stream was not closed after consumption")
	}
}

func TestIngestorRetriesAfterErrors(t *testing.T) {
	cache := NewCache()
	good := &scriptedStream{frames: []Frame{{Data: []byte("ok")}}}
	source := &scriptedSource{
		errs:    []error{errors.New("no participant yet"), nil},
		streams: []*scriptedStream{nil, good},
	}

	ing := NewIngestor(source, cache, nil)
	ing.RetryDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		ing.Run(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		f, ok := cache.Read()
		return ok && string(f.Data) == "ok"
	}, "ingest loop did not recover after a discovery error")

	cancel()
	<-done
}

func TestIngestorStopsOnCancel(t *testing.T) {
	cache := NewCache()
	source := &scriptedSource{}

	ing := NewIngestor(source, cache, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ing.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ingest loop did not stop on context cancellation")
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}
