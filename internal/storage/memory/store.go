// Package memory is a process-local Store used for demos and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/aadhaar-drishti/backend/internal/storage"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
)

type Store struct {
	mu        sync.RWMutex
	facts     map[models.ImportKind][]models.FactRecord
	summaries map[models.DistrictKey]models.DistrictSummary
	otps      map[string]models.OTPCredential // by mobile
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		facts:     make(map[models.ImportKind][]models.FactRecord),
		summaries: make(map[models.DistrictKey]models.DistrictSummary),
		otps:      make(map[string]models.OTPCredential),
	}
}

func (s *Store) InitSchema(ctx context.Context) error { return nil }
func (s *Store) Ping(ctx context.Context) error       { return nil }
func (s *Store) Close() error                         { return nil }

func (s *Store) InsertFacts(ctx context.Context, kind models.ImportKind, records []models.FactRecord) error {
	if _, err := models.ParseImportKind(string(kind)); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		r.Kind = kind
		s.facts[kind] = append(s.facts[kind], r)
	}
	return nil
}

func (s *Store) DeleteFacts(ctx context.Context, kind models.ImportKind) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := int64(len(s.facts[kind]))
	delete(s.facts, kind)
	return n, nil
}

// FactCount reports how many rows of a kind are held.
func (s *Store) FactCount(kind models.ImportKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.facts[kind])
}

func (s *Store) Districts(ctx context.Context, kind models.ImportKind) ([]models.DistrictKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[models.DistrictKey]struct{})
	var keys []models.DistrictKey
	for _, r := range s.facts[kind] {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].State != keys[j].State {
			return keys[i].State < keys[j].State
		}
		return keys[i].District < keys[j].District
	})
	return keys, nil
}

func (s *Store) Totals(ctx context.Context, kind models.ImportKind, key models.DistrictKey) (models.AgeTotals, error) {
	var t models.AgeTotals
	if _, err := models.ParseImportKind(string(kind)); err != nil {
		return t, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.facts[kind] {
		if r.Key() != key {
			continue
		}
		t.Age0To5 += r.Age0To5
		t.Age5To17 += r.Age5To17
		t.Age17Plus += r.Age17Plus
		t.Age18Plus += r.Age18Plus
	}
	return t, nil
}

func (s *Store) UpsertSummary(ctx context.Context, d *models.DistrictSummary) error {
	if d.State == "" || d.Name == "" {
		return fmt.Errorf("district summary needs state and name")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := d.Key()
	if existing, ok := s.summaries[key]; ok {
		d.ID = existing.ID
	} else if d.ID == "" {
		d.ID = uuid.New().String()
	}
	s.summaries[key] = *d
	return nil
}

func (s *Store) ListSummaries(ctx context.Context, filter models.SummaryFilter) ([]models.DistrictSummary, error) {
	s.mu.RLock()
	out := make([]models.DistrictSummary, 0, len(s.summaries))
	for _, d := range s.summaries {
		if filter.State != "" && d.State != filter.State {
			continue
		}
		if filter.RiskLevel != "" && d.RiskLevel != filter.RiskLevel {
			continue
		}
		out = append(out, d)
	}
	s.mu.RUnlock()

	byName := func(a, b models.DistrictSummary) bool {
		if a.State != b.State {
			return a.State < b.State
		}
		return a.Name < b.Name
	}
	sort.Slice(out, func(i, j int) bool {
		if filter.Sort == models.SortByFreshnessAsc && out[i].FreshnessScore != out[j].FreshnessScore {
			return out[i].FreshnessScore < out[j].FreshnessScore
		}
		return byName(out[i], out[j])
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CountSummaries(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.summaries)), nil
}

func (s *Store) DistinctStates(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]struct{})
	for k := range s.summaries {
		seen[k.State] = struct{}{}
	}
	s.mu.RUnlock()

	states := make([]string, 0, len(seen))
	for st := range seen {
		states = append(states, st)
	}
	sort.Strings(states)
	return states, nil
}

func (s *Store) ReplaceOTP(ctx context.Context, otp *models.OTPCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.otps[otp.Mobile] = *otp
	return nil
}

func (s *Store) FindPendingOTP(ctx context.Context, mobile, last4Aadhaar string) (*models.OTPCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.otps[mobile]
	if !ok || o.Verified || o.Last4Aadhaar != last4Aadhaar {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (s *Store) MarkOTPVerified(ctx context.Context, otp *models.OTPCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.otps[otp.Mobile]
	if !ok || o.ID != otp.ID {
		return storage.ErrNotFound
	}
	o.Verified = true
	s.otps[otp.Mobile] = o
	otp.Verified = true
	return nil
}

func (s *Store) DeleteOTP(ctx context.Context, otp *models.OTPCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o, ok := s.otps[otp.Mobile]; ok && o.ID == otp.ID {
		delete(s.otps, otp.Mobile)
	}
	return nil
}
