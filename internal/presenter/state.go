package presenter

import (
	"context"
	"sort"
	"sync"

	"makerwatch/internal/model"
)

// State keeps the latest event of every kind for read-side consumers.
type State struct {
	mu       sync.RWMutex
	supply   map[string]model.SupplySnapshot
	auctions *model.LiveAuctionSet
	debt     *model.LiveDebtAuctionSet
	stats    *model.StatsSnapshot
	errors   map[string]model.ScanError
}

// NewState returns an empty state store.
func NewState() *State {
	return &State{
		supply: make(map[string]model.SupplySnapshot),
		errors: make(map[string]model.ScanError),
	}
}

// Present implements Presenter. A successful event clears the error status of its stage.
func (s *State) Present(_ context.Context, ev model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case model.SupplySnapshot:
		s.supply[e.Token] = e
	case model.LiveAuctionSet:
		s.auctions = &e
	case model.LiveDebtAuctionSet:
		s.debt = &e
	case model.StatsSnapshot:
		s.stats = &e
	case model.ScanError:
		s.errors[e.Stage] = e
		return nil
	}
	if stage := model.StageOf(ev); stage != "" {
		delete(s.errors, stage)
	}
	return nil
}

// Supply returns the latest snapshot for token.
func (s *State) Supply(token string) (model.SupplySnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.supply[token]
	return snap, ok
}

// Supplies returns the latest snapshot of every token, ordered by token.
func (s *State) Supplies() []model.SupplySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SupplySnapshot, 0, len(s.supply))
	for _, snap := range s.supply {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}

// Auctions returns the latest liquidation auction set.
func (s *State) Auctions() (model.LiveAuctionSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.auctions == nil {
		return model.LiveAuctionSet{}, false
	}
	return *s.auctions, true
}

// DebtAuctions returns the latest debt auction set.
func (s *State) DebtAuctions() (model.LiveDebtAuctionSet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.debt == nil {
		return model.LiveDebtAuctionSet{}, false
	}
	return *s.debt, true
}

// Stats returns the latest stats snapshot.
func (s *State) Stats() (model.StatsSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stats == nil {
		return model.StatsSnapshot{}, false
	}
	return *s.stats, true
}

// Errors lists stages whose most recent pass failed, ordered by stage.
func (s *State) Errors() []model.ScanError {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ScanError, 0, len(s.errors))
	for _, e := range s.errors {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}
