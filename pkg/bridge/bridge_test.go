package bridge

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startEvent(streamSID string) []byte {
	return []byte(`{"event":"start","streamSid":"` + streamSID + `","start":{"streamSid":"` + streamSID + `","callSid":"CA1"}}`)
}

func TestBridge_OutboundFramesInEnqueueOrder(t *testing.T) {
	ws := &fakeWSWriter{}
	b := New(ws, nil, Options{PollInterval: 10 * time.Millisecond})
	b.HandleMessage(startEvent("MZ1"))
	b.Start(nil)
	defer b.Stop()

	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, f := range frames {
		b.Output(f)
	}

	waitFor(t, func() bool { return len(ws.snapshot()) == 3 })

	for i, w := range ws.snapshot() {
		var ev struct {
			Event     string `json:"event"`
			StreamSID string `json:"streamSid"`
			Media     struct {
				Payload string `json:"payload"`
			} `json:"media"`
		}
		if err := json.Unmarshal([]byte(w.data), &ev); err != nil {
			t.Fatalf("write %d not JSON: %v", i, err)
		}
		if ev.Event != EventMedia || ev.StreamSID != "MZ1" {
			t.Errorf("write %d = %+v", i, ev)
		}
		want := base64.StdEncoding.EncodeToString(frames[i])
		if ev.Media.Payload != want {
			t.Errorf("write %d payload = %q, want %q", i, ev.Media.Payload, want)
		}
	}
}

func TestBridge_InterruptDrainsQueueAndEmitsOneClear(t *testing.T) {
	ws := &fakeWSWriter{}
	b := New(ws, nil, Options{PollInterval: 10 * time.Millisecond})
	b.HandleMessage(startEvent("MZ1"))

	// Queue before the sender runs so nothing can be emitted early.
	b.Output([]byte("stale-1"))
	b.Output([]byte("stale-2"))
	b.Interrupt()

	b.Start(nil)
	defer b.Stop()

	waitFor(t, func() bool { return len(ws.snapshot()) >= 1 })
	time.Sleep(50 * time.Millisecond)

	writes := ws.snapshot()
	if len(writes) != 1 {
		t.Fatalf("got %d writes, want exactly 1 clear: %v", len(writes), writes)
	}
	if !strings.Contains(writes[0].data, `"event":"clear"`) {
		t.Errorf("write = %q, want clear event", writes[0].data)
	}
	if !strings.Contains(writes[0].data, `"streamSid":"MZ1"`) {
		t.Errorf("clear missing stream sid: %q", writes[0].data)
	}
}

func TestBridge_MediaForwardedSynchronously(t *testing.T) {
	ws := &fakeWSWriter{}
	b := New(ws, nil, Options{})

	var got [][]byte
	b.input = func(p []byte) { got = append(got, p) }

	payload := base64.StdEncoding.EncodeToString([]byte("audio-bytes"))
	b.HandleMessage([]byte(`{"event":"media","media":{"payload":"` + payload + `"}}`))

	if len(got) != 1 || string(got[0]) != "audio-bytes" {
		t.Fatalf("input callback got %q", got)
	}
}

func TestBridge_BadFramesAreSwallowed(t *testing.T) {
	ws := &fakeWSWriter{}
	b := New(ws, nil, Options{})
	b.input = func([]byte) { t.Fatal("callback invoked for bad frame") }

	if stopped := b.HandleMessage([]byte(`{not json`)); stopped {
		t.Error("malformed frame reported stop")
	}
	if stopped := b.HandleMessage([]byte(`{"event":"media","media":{"payload":"!!not-base64!!"}}`)); stopped {
		t.Error("bad payload reported stop")
	}
}

func TestBridge_StopEventEndsSenderLoop(t *testing.T) {
	ws := &fakeWSWriter{}
	b := New(ws, nil, Options{PollInterval: 10 * time.Millisecond})
	b.Start(nil)

	if stopped := b.HandleMessage([]byte(`{"event":"stop"}`)); !stopped {
		t.Fatal("stop event not reported")
	}
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sender loop did not exit")
	}
	// Duplicate stop is a no-op.
	b.Stop()
}
