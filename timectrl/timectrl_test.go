package timectrl

import (
	"errors"
	"testing"
	"time"
)

func TestBankDeliversTaggedEvents(t *testing.T) {
	b := NewBank(8)
	if err := b.Arm(1, 10*time.Millisecond); err != nil {
		t.Fatalf("Arm(1): %v", err)
	}
	if err := b.Arm(2, 15*time.Millisecond); err != nil {
		t.Fatalf("Arm(2): %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer b.Stop()

	seen := map[int]int{}
	deadline := time.After(500 * time.Millisecond)
	for seen[1] < 2 || seen[2] < 2 {
		select {
		case ev := <-b.Events():
			if ev.ID != 1 && ev.ID != 2 {
				t.Fatalf("unexpected event id %d", ev.ID)
			}
			if ev.Time.IsZero() {
				t.Fatal("event carries zero time")
			}
			seen[ev.ID]++
		case <-deadline:
			t.Fatalf("timed out waiting for events, saw %v", seen)
		}
	}
}

func TestBankStopClosesStream(t *testing.T) {
	b := NewBank(4)
	if err := b.Arm(7, 5*time.Millisecond); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Let it tick at least once, then stop.
	<-b.Events()
	b.Stop()

	deadline := time.After(250 * time.Millisecond)
	for {
		select {
		case _, ok := <-b.Events():
			if !ok {
				return
			}
			// Buffered events may drain before the close.
		case <-deadline:
			t.Fatal("event stream not closed after Stop")
		}
	}
}

func TestBankStopIsIdempotent(t *testing.T) {
	b := NewBank(1)
	if err := b.Arm(1, time.Millisecond); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	b.Stop()
	b.Stop()
}

func TestBankArmValidation(t *testing.T) {
	b := NewBank(1)
	if err := b.Arm(1, 0); err == nil {
		t.Fatal("Arm with zero period succeeded, want error")
	}
	if err := b.Arm(1, time.Second); err != nil {
		t.Fatalf("Arm: %v", err)
	}
	if err := b.Arm(1, time.Second); err == nil {
		t.Fatal("duplicate Arm succeeded, want error")
	}

	if err := b.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := b.Arm(2, time.Second); !errors.Is(err, ErrBankRunning) {
		t.Fatalf("Arm after Start error = %v, want ErrBankRunning", err)
	}
	if err := b.Start(); !errors.Is(err, ErrBankRunning) {
		t.Fatalf("second Start error = %v, want ErrBankRunning", err)
	}

	b.Stop()
	if err := b.Start(); !errors.Is(err, ErrBankStopped) {
		t.Fatalf("Start after Stop error = %v, want ErrBankStopped", err)
	}
	if err := b.Arm(3, time.Second); !errors.Is(err, ErrBankStopped) {
		t.Fatalf("Arm after Stop error = %v, want ErrBankStopped", err)
	}
}
