// Package video provides the frame cache and ingest loop that keep the
// freshest camera frame available to the conversation engine.
package video

import "time"

// Frame is one sampled image from a remote video track. The payload is
// opaque to the engine; Format carries the MIME type so consumers that
// forward frames (for example a vision-capable model client) know how to
// encode them.
type Frame struct {
	Data      []byte
	Format    string // MIME type, e.g. "image/jpeg"
	Width     int
	Height    int
	Timestamp time.Time
}
