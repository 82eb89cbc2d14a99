package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync/atomic"

	"github.com/vaani-ai/vaani/pkg/core"
	"github.com/vaani-ai/vaani/pkg/gateway/live/protocol"
)

// outbound carries frames from the session to the socket writer. Control
// frames (events, errors, warnings) take priority over audio. The channels
// are never closed; the writer is told to drain through its shutdown signal,
// so concurrent enqueuers can never hit a closed channel.
type outbound struct {
	control chan []byte
	audio   chan audioFrame
	gen     atomic.Int64
}

type audioFrame struct {
	payload []byte
	pcmLen  int
	gen     int64
}

func newOutbound(queueSize int) *outbound {
	if queueSize <= 0 {
		queueSize = 128
	}
	return &outbound{
		control: make(chan []byte, 16),
		audio:   make(chan audioFrame, queueSize),
	}
}

// stale reports whether a frame was queued before the most recent flush.
func (o *outbound) stale(gen int64) bool {
	return gen < o.gen.Load()
}

// wsOutput is the playback sink the core session streams synthesized PCM
// into. Each write becomes one audio_delta frame on the audio queue.
type wsOutput struct {
	out        *outbound
	writerDone <-chan struct{}
	format     string
}

func (s *wsOutput) Write(ctx context.Context, pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	payload, err := json.Marshal(protocol.ServerAudioDelta{
		Type:     "audio_delta",
		AudioB64: base64.StdEncoding.EncodeToString(pcm),
		Format:   s.format,
	})
	if err != nil {
		return err
	}
	frame := audioFrame{payload: payload, pcmLen: len(pcm), gen: s.out.gen.Load()}
	select {
	case s.out.audio <- frame:
		return nil
	case <-s.writerDone:
		return core.NewDeviceError("socket writer stopped", nil)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush marks all queued audio stale so the writer discards it. Called by
// the session on barge-in; safe concurrently with Write.
func (s *wsOutput) Flush() {
	s.out.gen.Add(1)
}

func (s *wsOutput) Close() error {
	return nil
}
