package model

import (
	"strconv"
	"time"
)

// EventKind tags what a presenter receives.
type EventKind string

const (
	KindSupplySnapshot     EventKind = "supply_snapshot"
	KindSupplyChanged      EventKind = "supply_changed"
	KindLiveAuctionSet     EventKind = "live_auctions"
	KindLiveDebtAuctionSet EventKind = "live_debt_auctions"
	KindStatsSnapshot      EventKind = "stats_snapshot"
	KindScanError          EventKind = "scan_error"
)

// Stage names identify the pass that produced an event or failed.
const (
	StageAuctions     = "auctions"
	StageDebtAuctions = "debt_auctions"
	StageStats        = "stats"
)

// SupplyStage is the stage name of the supply pass for token.
func SupplyStage(token string) string { return "supply/" + token }

// Event is the unit handed to presenters after every poll or scan cycle.
type Event interface {
	Kind() EventKind
}

// SupplySnapshot is emitted on every successful supply poll.
type SupplySnapshot struct {
	Token     string    `json:"token"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Value     Quantity  `json:"value"`
	// WindowDelta is nil while InsufficientData is set.
	WindowDelta      *float64       `json:"window_delta"`
	InsufficientData bool           `json:"insufficient_data"`
	Window           time.Duration  `json:"window"`
	History          []SupplySample `json:"history"`
}

// SupplyChanged is emitted when the supply moved by more than the noise threshold.
type SupplyChanged struct {
	Token     string    `json:"token"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
	Value     Quantity  `json:"value"`
	// Delta is nil for the first sample of a tracker.
	Delta *float64 `json:"delta"`
}

// ScanSummary describes how a scan pass went.
type ScanSummary struct {
	Batches  int           `json:"batches"`
	Probes   int           `json:"probes"`
	Failures int           `json:"failures"`
	Empty    int           `json:"empty"`
	Duration time.Duration `json:"duration"`
}

// LiveAuctionSet carries every live liquidation auction found in one pass.
type LiveAuctionSet struct {
	Records   []SaleRecord `json:"records"`
	DebtUnit  string       `json:"debt_unit"`
	ScannedAt time.Time    `json:"scanned_at"`
	Summary   ScanSummary  `json:"summary"`
}

// LiveDebtAuctionSet carries every live debt auction found in one pass.
type LiveDebtAuctionSet struct {
	Records   []DebtAuctionRecord `json:"records"`
	BidUnit   string              `json:"bid_unit"`
	LotUnit   string              `json:"lot_unit"`
	ScannedAt time.Time           `json:"scanned_at"`
	Summary   ScanSummary         `json:"summary"`
}

// StatsSnapshot carries the Vow figures.
type StatsSnapshot struct {
	Stats SystemStats `json:"stats"`
	Unit  string      `json:"unit"`
}

// ScanError is a transient status line for a failed pass.
type ScanError struct {
	Stage   string    `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (SupplySnapshot) Kind() EventKind     { return KindSupplySnapshot }
func (SupplyChanged) Kind() EventKind      { return KindSupplyChanged }
func (LiveAuctionSet) Kind() EventKind     { return KindLiveAuctionSet }
func (LiveDebtAuctionSet) Kind() EventKind { return KindLiveDebtAuctionSet }
func (StatsSnapshot) Kind() EventKind      { return KindStatsSnapshot }
func (ScanError) Kind() EventKind          { return KindScanError }

// StageOf returns the stage a successful event settles, or "" for events that settle none.
func StageOf(ev Event) string {
	switch e := ev.(type) {
	case SupplySnapshot:
		return SupplyStage(e.Token)
	case LiveAuctionSet:
		return StageAuctions
	case LiveDebtAuctionSet:
		return StageDebtAuctions
	case StatsSnapshot:
		return StageStats
	default:
		return ""
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
