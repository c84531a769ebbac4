// Package bridge adapts the framed, base64-encoded Twilio media stream to
// the raw-bytes push/pull interface the voice-conversation engine expects.
// Inbound frames are decoded and forwarded synchronously; outbound frames go
// through an unbounded queue drained by one sender goroutine, so emit order
// is enqueue order.
package bridge

import (
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsWriter is the subset of *websocket.Conn the sender loop needs.
type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
}

const defaultPollInterval = 200 * time.Millisecond

// Bridge is the two-way audio adapter for one call. The sender goroutine is
// the sole writer on the websocket; Interrupt and Output are safe from any
// goroutine.
type Bridge struct {
	ws           wsWriter
	logger       *slog.Logger
	writeTimeout time.Duration
	pollInterval time.Duration

	input func([]byte)

	mu        sync.Mutex
	streamSID string
	queue     [][]byte

	notify  chan struct{}
	clearCh chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// Options tune the sender loop; zero values use defaults.
type Options struct {
	WriteTimeout time.Duration
	PollInterval time.Duration
}

// New returns an unstarted bridge writing to ws.
func New(ws wsWriter, logger *slog.Logger, opts Options) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Bridge{
		ws:           ws,
		logger:       logger,
		writeTimeout: opts.WriteTimeout,
		pollInterval: opts.PollInterval,
		notify:       make(chan struct{}, 1),
		clearCh:      make(chan struct{}, 4),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start registers the inbound audio callback and launches the sender loop.
func (b *Bridge) Start(input func([]byte)) {
	b.input = input
	go b.senderLoop()
}

// HandleMessage processes one raw inbound frame. Malformed frames are logged
// and swallowed; one bad frame must not kill the call. It reports whether the
// stream has ended (a stop event).
func (b *Bridge) HandleMessage(raw []byte) (stopped bool) {
	ev, err := DecodeStreamEvent(raw)
	if err != nil {
		b.logger.Warn("undecodable stream frame", "err", err)
		return false
	}
	switch ev.Event {
	case EventStart:
		if ev.Start != nil {
			b.mu.Lock()
			b.streamSID = ev.Start.StreamSID
			b.mu.Unlock()
		}
	case EventMedia:
		if ev.Media == nil {
			return false
		}
		audio, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
		if err != nil {
			b.logger.Warn("bad media payload", "err", err)
			return false
		}
		// Synchronous on purpose: inbound ordering must match arrival
		// order and the callback is the latency-critical path.
		if b.input != nil {
			b.input(audio)
		}
	case EventStop:
		b.Stop()
		return true
	}
	return false
}

// StreamSID returns the stream identifier from the start event, if seen.
func (b *Bridge) StreamSID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.streamSID
}

// Output enqueues one outbound audio frame. The queue is unbounded; the
// telephony transport consumes frames in real time so depth stays small in
// practice.
func (b *Bridge) Output(audio []byte) {
	b.mu.Lock()
	b.queue = append(b.queue, audio)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Interrupt is the barge-in primitive: discard all queued agent audio and
// tell the transport to flush its playback buffer with a single clear event.
func (b *Bridge) Interrupt() {
	b.mu.Lock()
	dropped := len(b.queue)
	b.queue = nil
	b.mu.Unlock()
	if dropped > 0 {
		b.logger.Debug("barge-in dropped queued audio", "frames", dropped)
	}
	select {
	case b.clearCh <- struct{}{}:
	default:
	}
}

// Stop signals shutdown. Safe to call more than once.
func (b *Bridge) Stop() {
	b.once.Do(func() { close(b.stop) })
}

// Done is closed when the sender loop has exited.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) pop() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil, false
	}
	frame := b.queue[0]
	b.queue = b.queue[1:]
	return frame, true
}

func (b *Bridge) senderLoop() {
	defer close(b.done)
	timer := time.NewTimer(b.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-b.stop:
			return
		default:
		}

		// Clear beats queued audio so barge-in takes effect immediately.
		select {
		case <-b.clearCh:
			b.sendClear()
			continue
		default:
		}

		if frame, ok := b.pop(); ok {
			b.sendMedia(frame)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(b.pollInterval)
		select {
		case <-b.stop:
			return
		case <-b.clearCh:
			b.sendClear()
		case <-b.notify:
		case <-timer.C:
		}
	}
}

func (b *Bridge) sendMedia(audio []byte) {
	payload := base64.StdEncoding.EncodeToString(audio)
	data, err := encodeMediaEvent(b.StreamSID(), payload)
	if err != nil {
		b.logger.Warn("encode media event", "err", err)
		return
	}
	b.write(data)
}

func (b *Bridge) sendClear() {
	data, err := encodeClearEvent(b.StreamSID())
	if err != nil {
		b.logger.Warn("encode clear event", "err", err)
		return
	}
	b.write(data)
}

// write emits one text frame; send errors are logged and swallowed because
// the transport is lossy and the reader side owns connection teardown.
func (b *Bridge) write(data []byte) {
	if err := b.ws.SetWriteDeadline(time.Now().Add(b.writeTimeout)); err != nil {
		b.logger.Warn("set write deadline", "err", err)
		return
	}
	if err := b.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		b.logger.Warn("send stream frame", "err", err)
	}
}
