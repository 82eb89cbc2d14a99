package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// socketWriter owns all writes to the websocket. Control frames preempt
// audio; audio made stale by a flush is dropped instead of written. After
// Shutdown it drains what is queued, sends a close frame, and exits.
type socketWriter struct {
	ws           wsConn
	pingInterval time.Duration
	writeTimeout time.Duration
	control      <-chan []byte
	audio        <-chan audioFrame
	stale        func(int64) bool
	recordAudio  func(bytes int)

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}
}

func newSocketWriter(ws wsConn, out *outbound, pingInterval, writeTimeout time.Duration) *socketWriter {
	return &socketWriter{
		ws:           ws,
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
		control:      out.control,
		audio:        out.audio,
		stale:        out.stale,
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Done is closed when the writer has exited, whether cleanly or on error.
func (w *socketWriter) Done() <-chan struct{} {
	return w.done
}

// Shutdown asks the writer to drain queued frames and close the socket.
func (w *socketWriter) Shutdown() {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
}

func (w *socketWriter) Run() error {
	defer close(w.done)

	if w == nil || w.ws == nil {
		return nil
	}

	pingInterval := w.pingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.writeTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		// Hard priority: drain control frames before touching audio.
		select {
		case payload := <-w.control:
			if err := w.writeText(payload, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-w.shutdown:
			return w.drainAndClose(writeTimeout)
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case payload := <-w.control:
			if err := w.writeText(payload, writeTimeout); err != nil {
				return err
			}
		case frame := <-w.audio:
			if err := w.writeAudio(frame, writeTimeout); err != nil {
				return err
			}
		}
	}
}

// drainAndClose flushes queued frames, control first, then says goodbye.
func (w *socketWriter) drainAndClose(writeTimeout time.Duration) error {
	for {
		select {
		case payload := <-w.control:
			if err := w.writeText(payload, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}
		select {
		case frame := <-w.audio:
			if err := w.writeAudio(frame, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}
		break
	}

	deadline := time.Now().Add(writeTimeout)
	_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return nil
}

func (w *socketWriter) writeAudio(frame audioFrame, writeTimeout time.Duration) error {
	if w.stale != nil && w.stale(frame.gen) {
		return nil
	}
	if err := w.writeText(frame.payload, writeTimeout); err != nil {
		return err
	}
	if w.recordAudio != nil {
		w.recordAudio(frame.pcmLen)
	}
	return nil
}

func (w *socketWriter) writeText(payload []byte, writeTimeout time.Duration) error {
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, payload)
}
