package video

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"
)

// Source locates remote video tracks for a session. NextTrack blocks until
// a track is available (waiting or polling if none is currently published)
// or the context is cancelled.
type Source interface {
	NextTrack(ctx context.Context) (Stream, error)
}

// Stream yields the frame sequence of one subscribed video track.
type Stream interface {
	// Next returns the next frame. It returns io.EOF when the track ends.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// DefaultRetryDelay is how long the ingest loop waits before re-locating a
// track after a stream error.
const DefaultRetryDelay = time.Second

// Ingestor continuously feeds frames from a session's video source into a
// Cache. It runs for the lifetime of the session; its only externally
// observable effect is cache updates.
//
// When multiple video tracks exist the source's first discovered track is
// used; the loop does not renegotiate if a better track appears later.
type Ingestor struct {
	source Source
	cache  *Cache
	logger *slog.Logger

	// RetryDelay overrides DefaultRetryDelay when positive.
	RetryDelay time.Duration
}

// NewIngestor creates an ingest loop over the given source and cache.
func NewIngestor(source Source, cache *Cache, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingestor{source: source, cache: cache, logger: logger}
}

// Run drives the ingest loop until ctx is cancelled. Track loss and stream
// errors are logged and retried after a fixed delay, never surfaced.
func (in *Ingestor) Run(ctx context.Context) {
	delay := in.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}

	for {
		if ctx.Err() != nil {
			return
		}

		stream, err := in.source.NextTrack(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			in.logger.Warn("video track discovery failed",
				slog.String("error", err.Error()))
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		in.consume(ctx, stream)

		if !sleepCtx(ctx, delay) {
			return
		}
	}
}

// consume copies frames from one track stream into the cache until the
// stream ends or fails.
func (in *Ingestor) consume(ctx context.Context, stream Stream) {
	defer stream.Close()

	for {
		frame, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				in.logger.Info("video track ended")
			} else {
				in.logger.Warn("video stream error",
					slog.String("error", err.Error()))
			}
			return
		}
		in.cache.Write(frame)
	}
}

// sleepCtx sleeps for d and reports false if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
