package entitlement

import (
	"testing"
	"time"

	"github.com/ahmadsysdev/wabot/internal/store"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(st)
}

func TestGrantAndHas(t *testing.T) {
	s := newTestService(t)

	if s.Has(TierPremium, "alice@s.whatsapp.net") {
		t.Error("unexpected grant before Grant")
	}
	expiry, err := s.Grant(TierPremium, "alice@s.whatsapp.net", time.Hour)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !s.Has(TierPremium, "alice@s.whatsapp.net") {
		t.Error("grant not visible")
	}
	got, ok := s.ExpiryOf(TierPremium, "alice@s.whatsapp.net")
	if !ok || got.Sub(expiry).Abs() > time.Second {
		t.Errorf("ExpiryOf = %v ok=%v, want ~%v", got, ok, expiry)
	}
}

func TestTiersIndependent(t *testing.T) {
	s := newTestService(t)
	s.Grant(TierProfessional, "bob@s.whatsapp.net", time.Hour)

	if s.Has(TierPremium, "bob@s.whatsapp.net") {
		t.Error("professional grant leaked into premium")
	}
	if !s.Has(TierProfessional, "bob@s.whatsapp.net") {
		t.Error("professional grant missing")
	}
}

func TestExpiredGrant(t *testing.T) {
	s := newTestService(t)
	s.Grant(TierPremium, "carol@s.whatsapp.net", -time.Minute)

	if s.Has(TierPremium, "carol@s.whatsapp.net") {
		t.Error("expired grant still active")
	}
	// the record is still there until the sweep runs
	if _, ok := s.ExpiryOf(TierPremium, "carol@s.whatsapp.net"); !ok {
		t.Error("expired record purged before sweep")
	}
	s.sweep()
	if _, ok := s.ExpiryOf(TierPremium, "carol@s.whatsapp.net"); ok {
		t.Error("sweep left expired record behind")
	}
}

func TestSweepKeepsActive(t *testing.T) {
	s := newTestService(t)
	s.Grant(TierPremium, "alive@s.whatsapp.net", time.Hour)
	s.Grant(TierPremium, "dead@s.whatsapp.net", -time.Hour)
	s.sweep()

	if !s.Has(TierPremium, "alive@s.whatsapp.net") {
		t.Error("sweep removed an active grant")
	}
	if _, ok := s.ExpiryOf(TierPremium, "dead@s.whatsapp.net"); ok {
		t.Error("sweep missed an expired grant")
	}
}

func TestRevoke(t *testing.T) {
	s := newTestService(t)
	s.Grant(TierPremium, "alice@s.whatsapp.net", time.Hour)

	if !s.Revoke(TierPremium, "alice@s.whatsapp.net") {
		t.Error("revoke reported no match")
	}
	if s.Has(TierPremium, "alice@s.whatsapp.net") {
		t.Error("grant survived revoke")
	}
	if s.Revoke(TierPremium, "alice@s.whatsapp.net") {
		t.Error("double revoke reported a match")
	}
}
