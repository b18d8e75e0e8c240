// Package entitlement tracks paid user tiers. Grants live in the store
// with a millisecond expiry stamp; checks are lazy and a cron sweep purges
// stale records so the collections don't grow forever.
package entitlement

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	. "github.com/ahmadsysdev/wabot/internal/logging"
	"github.com/ahmadsysdev/wabot/internal/store"
)

// Tier is a paid access level. Tiers are independent: a professional
// grant does not imply premium.
type Tier int

const (
	TierPremium Tier = iota
	TierProfessional
)

func (t Tier) String() string {
	if t == TierProfessional {
		return "professional"
	}
	return "premium"
}

func (t Tier) collection() string { return t.String() }

// Service answers tier checks and manages grants.
type Service struct {
	store *store.Store
	cron  *cron.Cron
}

func New(st *store.Store) *Service {
	return &Service{store: st}
}

// Grant gives jid the tier for the given duration, extending from now
// rather than from any existing expiry. Returns the new expiry time.
func (s *Service) Grant(tier Tier, jid string, d time.Duration) (time.Time, error) {
	expiry := time.Now().Add(d)
	rec := store.Record{
		"id":      jid,
		"expired": float64(expiry.UnixMilli()),
	}
	if err := s.store.Upsert(tier.collection(), rec, jid, "id"); err != nil {
		return time.Time{}, fmt.Errorf("failed to record %s grant: %w", tier, err)
	}
	L_info("entitlement granted", "tier", tier.String(), "user", jid, "until", expiry.Format(time.RFC3339))
	return expiry, nil
}

// Has reports whether jid holds an unexpired grant for the tier.
func (s *Service) Has(tier Tier, jid string) bool {
	rec, ok := s.store.Check(tier.collection(), jid, "id")
	if !ok {
		return false
	}
	return time.UnixMilli(int64(rec.Num("expired"))).After(time.Now())
}

// ExpiryOf returns the grant expiry, if any grant exists (expired or not).
func (s *Service) ExpiryOf(tier Tier, jid string) (time.Time, bool) {
	rec, ok := s.store.Check(tier.collection(), jid, "id")
	if !ok {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(rec.Num("expired"))), true
}

// Revoke drops any grant for jid. Returns false when there was none.
func (s *Service) Revoke(tier Tier, jid string) bool {
	removed, err := s.store.Delete(tier.collection(), jid, "id")
	if err != nil {
		L_error("entitlement: failed to revoke", "tier", tier.String(), "user", jid, "error", err)
		return false
	}
	return removed
}

// StartSweeper schedules an hourly purge of expired grants.
func (s *Service) StartSweeper() {
	s.cron = cron.New()
	s.cron.AddFunc("@hourly", s.sweep)
	s.cron.Start()
}

// Stop halts the sweeper.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Service) sweep() {
	now := time.Now()
	for _, tier := range []Tier{TierPremium, TierProfessional} {
		records, err := s.store.Read(tier.collection())
		if err != nil {
			L_warn("entitlement: sweep read failed", "tier", tier.String(), "error", err)
			continue
		}
		for _, rec := range records {
			if time.UnixMilli(int64(rec.Num("expired"))).After(now) {
				continue
			}
			id := rec.Str("id")
			if removed, _ := s.store.Delete(tier.collection(), id, "id"); removed {
				L_info("entitlement expired", "tier", tier.String(), "user", id)
			}
		}
	}
}
