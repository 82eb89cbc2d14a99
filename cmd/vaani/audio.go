package main

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/gen2brain/malgo"
)

// pcmQueue is an unbounded byte queue with blocking reads. The microphone
// callback and the speaker feed both run through one.
type pcmQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
}

func newPCMQueue() *pcmQueue {
	q := &pcmQueue{buf: make([]byte, 0, 32*1024)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Write appends data. Writes after Close are dropped.
func (q *pcmQueue) Write(data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || len(data) == 0 {
		return
	}
	q.buf = append(q.buf, data...)
	q.cond.Signal()
}

// Read blocks until data arrives or the queue closes. A closed, drained
// queue reads as io.EOF.
func (q *pcmQueue) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.buf) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buf) == 0 {
		return 0, io.EOF
	}
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

// Flush discards everything queued but not yet read.
func (q *pcmQueue) Flush() {
	q.mu.Lock()
	q.buf = q.buf[:0]
	q.mu.Unlock()
}

func (q *pcmQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// drainReader keeps an oto player fed after the queue ends so it drains
// what it already buffered instead of cutting the tail off.
type drainReader struct {
	q *pcmQueue
}

func (d drainReader) Read(p []byte) (int, error) {
	n, err := d.q.Read(p)
	if err == nil {
		return n, nil
	}
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// micCapture streams PCM16 frames from the default capture device.
type micCapture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	q      *pcmQueue
}

func newMicCapture(sampleRate, channels int) (*micCapture, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("init capture context: %w", err)
	}

	m := &micCapture{ctx: mctx, q: newPCMQueue()}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, inputSamples []byte, _ uint32) {
			m.q.Write(inputSamples)
		},
	}
	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	m.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return nil, fmt.Errorf("start microphone: %w", err)
	}
	return m, nil
}

// ReadFrame blocks until a full frame is captured. Returns io.EOF once the
// capture is closed.
func (m *micCapture) ReadFrame(frame []byte) error {
	if _, err := io.ReadFull(m.q, frame); err != nil {
		return io.EOF
	}
	return nil
}

func (m *micCapture) Close() {
	m.q.Close()
	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
	}
	if m.ctx != nil {
		m.ctx.Uninit()
	}
}

// speakerSink plays synthesized replies through the default output device.
// Flush implements barge-in: queued audio is dropped and the player torn
// down so the next reply starts from silence.
type speakerSink struct {
	otoCtx *oto.Context

	mu     sync.Mutex
	q      *pcmQueue
	player *oto.Player
	closed bool
}

func newSpeakerSink(sampleRate, channels int) (*speakerSink, error) {
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		// A short buffer keeps barge-in latency low.
		BufferSize: 100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return &speakerSink{otoCtx: otoCtx, q: newPCMQueue()}, nil
}

// Write queues audio for playback, starting the player on the first chunk.
func (s *speakerSink) Write(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.q.Write(data)
	if s.player == nil {
		s.player = s.otoCtx.NewPlayer(drainReader{q: s.q})
		s.player.Play()
	}
}

// Flush stops playback immediately. The queue is cleared and the player's
// own buffer reset so stale audio cannot overlap the next reply.
func (s *speakerSink) Flush() {
	s.mu.Lock()
	s.q.Flush()
	player := s.player
	s.player = nil
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		player.Reset()
		player.Close()
	}
}

func (s *speakerSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	player := s.player
	s.player = nil
	s.mu.Unlock()

	s.q.Close()
	if player != nil {
		player.Close()
	}
}
