package join

import (
	"context"

	"github.com/paradex-labs/bm25index/internal/errs"
)

// Frame is one message of the distributed-execution pipe: a
// single-producer single-consumer multiplexed stream of
// [stream_id][len][payload] frames. There is no separate OS process to
// bridge here, so the framed wire shape is kept while the transport is
// an ordinary Go channel instead of a shared-memory ring plus socket
// wakeup.
type Frame struct {
	StreamID uint32
	Payload  []byte
}

// Pipe is a single-producer single-consumer channel carrying Frames,
// standing in for the DSM ring buffer's wakeup-bridge contract: a full
// channel simply blocks the producer (the DSM design's "may be dropped
// safely because a full kernel buffer implies the consumer already has
// pending wakeups" does not apply here since nothing is ever dropped —
// backpressure is expressed directly through the channel instead).
type Pipe struct {
	frames chan Frame
}

// NewPipe creates a pipe with the given frame-buffer depth.
func NewPipe(depth int) *Pipe {
	if depth < 1 {
		depth = 1
	}
	return &Pipe{frames: make(chan Frame, depth)}
}

// Send delivers one frame, blocking until there is room or ctx is done.
func (p *Pipe) Send(ctx context.Context, f Frame) error {
	select {
	case p.frames <- f:
		return nil
	case <-ctx.Done():
		return errs.Cancellation(ctx.Err())
	}
}

// Recv waits for the next frame, or returns an error if ctx is cancelled
// or the pipe was closed with no frame pending.
func (p *Pipe) Recv(ctx context.Context) (Frame, error) {
	select {
	case f, ok := <-p.frames:
		if !ok {
			return Frame{}, errs.Cancellation(nil)
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, errs.Cancellation(ctx.Err())
	}
}

// Close signals the consumer that no further frames will be sent.
func (p *Pipe) Close() {
	close(p.frames)
}
