package dispatch

import (
	"testing"
	"time"

	"github.com/ahmadsysdev/wabot/internal/command"
)

func clockedSession() (*Session, *time.Time) {
	s := NewSession()
	now := time.Now()
	clock := &now
	s.now = func() time.Time { return *clock }
	return s, clock
}

func TestBookCooldown(t *testing.T) {
	s, clock := clockedSession()

	if _, had := s.BookCooldown("alice"); had {
		t.Error("first booking reported a previous stamp")
	}
	first := *clock
	*clock = clock.Add(3 * time.Second)
	prev, had := s.BookCooldown("alice")
	if !had || !prev.Equal(first) {
		t.Errorf("second booking prev = %v had = %v, want %v", prev, had, first)
	}
	// independent per sender
	if _, had := s.BookCooldown("bob"); had {
		t.Error("bob saw alice's stamp")
	}
}

func TestContinuationWindowedExpiry(t *testing.T) {
	s, clock := clockedSession()
	d := &command.Descriptor{Name: "sticker", Run: func(*command.Context) error { return nil }}

	s.PutContinuation("chat", "p1", &Continuation{Command: d, Kind: ExpectMedia})
	*clock = clock.Add(29 * time.Second)
	if _, ok := s.GetContinuation("chat", "p1"); !ok {
		t.Error("continuation gone before the grace window elapsed")
	}
	*clock = clock.Add(2 * time.Second)
	if _, ok := s.GetContinuation("chat", "p1"); ok {
		t.Error("continuation alive past the grace window")
	}
	// lazily removed on the expired lookup
	if len(s.cookies) != 0 {
		t.Error("expired entry not dropped")
	}
}

func TestContinuationConsumableKindsDoNotExpire(t *testing.T) {
	s, clock := clockedSession()
	d := &command.Descriptor{Name: "kick", Run: func(*command.Context) error { return nil }}

	s.PutContinuation("chat", "p1", &Continuation{Command: d, Kind: ExpectMention})
	*clock = clock.Add(5 * time.Minute)
	if _, ok := s.GetContinuation("chat", "p1"); !ok {
		t.Error("mention continuation should wait until consumed")
	}
	s.ConsumeContinuation("chat", "p1")
	if _, ok := s.GetContinuation("chat", "p1"); ok {
		t.Error("continuation survived consumption")
	}
}

func TestContinuationKeyedPerPrompt(t *testing.T) {
	s, _ := clockedSession()
	d := &command.Descriptor{Name: "x", Run: func(*command.Context) error { return nil }}

	s.PutContinuation("chat", "p1", &Continuation{Command: d, Kind: ExpectMention})
	s.PutContinuation("chat", "p2", &Continuation{Command: d, Kind: ExpectOptions})
	s.ConsumeContinuation("chat", "p1")
	if _, ok := s.GetContinuation("chat", "p2"); !ok {
		t.Error("consuming one prompt's continuation removed another's")
	}
}

func TestLockSet(t *testing.T) {
	s, _ := clockedSession()

	s.Lock("Sticker")
	if !s.IsLocked("sticker") || !s.IsLocked("STICKER") {
		t.Error("lock lookup should be case-insensitive")
	}
	if got := s.Locked(); len(got) != 1 || got[0] != "sticker" {
		t.Errorf("Locked() = %v", got)
	}
	if !s.Unlock("sticker") {
		t.Error("unlock reported no match")
	}
	if s.Unlock("sticker") {
		t.Error("double unlock reported a match")
	}
	if s.IsLocked("sticker") {
		t.Error("still locked after unlock")
	}
}
