package call

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestFormatTranscript_OrderAndShape(t *testing.T) {
	r := NewRegistry(nil)
	r.Promote("CA1", "MZ1")

	entries := []Utterance{
		{Role: RoleAgent, Content: "Hi, I'm calling to schedule a meeting."},
		{Role: RoleUser, Content: "Sure, how about Tuesday?"},
		{Role: RoleAgent, Content: "Tuesday at 2pm works."},
	}
	for _, e := range entries {
		if err := r.Append("MZ1", e.Role, e.Content); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	snap, err := r.Finalize("MZ1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	want := "Agent: Hi, I'm calling to schedule a meeting.\n" +
		"User: Sure, how about Tuesday?\n" +
		"Agent: Tuesday at 2pm works."
	if snap.Transcript != want {
		t.Errorf("transcript = %q, want %q", snap.Transcript, want)
	}
	if snap.Entries != 3 {
		t.Errorf("entries = %d, want 3", snap.Entries)
	}
}

func TestPromote_CopiesPendingAndConsumesIt(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterPending("CA1", "weekdays 9-5", "jane.doe@example.com", "Jane Doe")

	r.Promote("CA1", "MZ1")

	snap, err := r.Finalize("MZ1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if snap.Availability != "weekdays 9-5" || snap.HostEmail != "jane.doe@example.com" || snap.HostName != "Jane Doe" {
		t.Errorf("context not copied: %+v", snap)
	}
	if _, ok := r.PendingParams("CA1"); ok {
		t.Error("pending entry survived promotion")
	}
}

func TestPromote_MissingPendingDegradesGracefully(t *testing.T) {
	r := NewRegistry(nil)
	r.Promote("CA-unknown", "MZ1")
	snap, err := r.Finalize("MZ1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if snap.Availability != "" || snap.HostEmail != "" {
		t.Errorf("expected empty context, got %+v", snap)
	}
}

func TestPromote_AliasResolvesToSameRecord(t *testing.T) {
	r := NewRegistry(nil)
	r.Promote("CA1", "MZ1")
	if err := r.Append("CA1", RoleUser, "hello"); err != nil {
		t.Fatalf("Append via alias: %v", err)
	}
	snap, err := r.Finalize("MZ1")
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if snap.Transcript != "User: hello" {
		t.Errorf("transcript = %q", snap.Transcript)
	}
}

func TestFinalize_SecondCallReturnsAlreadyFinalized(t *testing.T) {
	r := NewRegistry(nil)
	r.Promote("CA1", "MZ1")

	if _, err := r.Finalize("MZ1"); err != nil {
		t.Fatalf("first Finalize: %v", err)
	}
	if _, err := r.Finalize("MZ1"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("second Finalize err = %v, want ErrAlreadyFinalized", err)
	}
	// The alias hits the same guard.
	if _, err := r.Finalize("CA1"); !errors.Is(err, ErrAlreadyFinalized) {
		t.Errorf("alias Finalize err = %v, want ErrAlreadyFinalized", err)
	}
}

func TestClose_RemovesBothKeysAndLaterOpsNoOp(t *testing.T) {
	r := NewRegistry(nil)
	r.Promote("CA1", "MZ1")
	r.Close("MZ1")

	if err := r.Append("MZ1", RoleUser, "late frame"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Append after close err = %v, want ErrSessionNotFound", err)
	}
	if _, err := r.Finalize("MZ1"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Finalize after close err = %v", err)
	}
	if _, ok := r.Lookup("CA1"); ok {
		t.Error("alias survived close")
	}
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
	// Second close is a no-op, not a panic.
	r.Close("MZ1")
}

func TestAppend_UnknownKeyIsBenign(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.Append("nope", RoleAgent, "hi"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdateContext_EmptyValuesDoNotClobber(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterPending("CA1", "mornings", "host@example.com", "Host")
	r.Promote("CA1", "MZ1")

	r.UpdateContext("MZ1", "", "", "")
	r.UpdateContext("MZ1", "afternoons", "", DefaultHostName)

	v, ok := r.Lookup("MZ1")
	if !ok {
		t.Fatal("session missing")
	}
	if v.Availability != "afternoons" {
		t.Errorf("availability = %q", v.Availability)
	}
	if v.HostEmail != "host@example.com" || v.HostName != "Host" {
		t.Errorf("context clobbered: %+v", v)
	}
}

func TestDeriveHostName(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"jane.doe@example.com", "Jane Doe"},
		{"john_smith@example.com", "John Smith"},
		{"solo@example.com", "Solo"},
		{"", DefaultHostName},
		{"@example.com", DefaultHostName},
		{"no-at-sign", DefaultHostName},
	}
	for _, tc := range cases {
		if got := DeriveHostName(tc.email); got != tc.want {
			t.Errorf("DeriveHostName(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}

func TestRegistry_ConcurrentAppendsAcrossSessions(t *testing.T) {
	r := NewRegistry(nil)
	const calls = 8
	const perCall = 50

	for i := 0; i < calls; i++ {
		r.Promote("", fmt.Sprintf("MZ%d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for j := 0; j < perCall; j++ {
				_ = r.Append(key, RoleUser, fmt.Sprintf("line %d", j))
			}
		}(fmt.Sprintf("MZ%d", i))
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		snap, err := r.Finalize(fmt.Sprintf("MZ%d", i))
		if err != nil {
			t.Fatalf("Finalize MZ%d: %v", i, err)
		}
		if snap.Entries != perCall {
			t.Errorf("MZ%d entries = %d, want %d", i, snap.Entries, perCall)
		}
	}
}

func TestOutcomes_RecordAndEvict(t *testing.T) {
	o := NewOutcomes(2)
	o.Record([]string{"MZ1", "CA1"}, true, "", nil, "evt1")
	if out, ok := o.Get("CA1"); !ok || out.EventID != "evt1" {
		t.Fatalf("Get(CA1) = %+v, %v", out, ok)
	}
	o.Record([]string{"MZ2"}, false, "booking failed", nil, "")
	o.Record([]string{"MZ3"}, false, "empty transcript", nil, "")
	if _, ok := o.Get("MZ1"); ok {
		t.Error("oldest outcome not evicted")
	}
	if out, ok := o.Get("MZ3"); !ok || out.Reason != "empty transcript" {
		t.Errorf("Get(MZ3) = %+v, %v", out, ok)
	}
}
