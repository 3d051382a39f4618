package model

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ScalingRule assigns lot precision and unit to sources whose label contains Match.
type ScalingRule struct {
	Match    string `mapstructure:"match"`
	Decimals int32  `mapstructure:"decimals"`
	Unit     string `mapstructure:"unit"`
}

// RecordSource is one contract instance probed by a scanner.
type RecordSource struct {
	Label    string         `json:"label"`
	Address  common.Address `json:"address"`
	Decimals int32          `json:"decimals"`
	Unit     string         `json:"unit"`
}

// ResolveScaling returns the decimals and unit for label. The first matching rule wins.
func ResolveScaling(label string, rules []ScalingRule, fallback ScalingRule) (int32, string) {
	for _, rule := range rules {
		if rule.Match != "" && strings.Contains(label, rule.Match) {
			return rule.Decimals, rule.Unit
		}
	}
	return fallback.Decimals, fallback.Unit
}

// SupplySample is one recorded total supply observation.
type SupplySample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     Quantity  `json:"value"`
}

// SaleRecord is a liquidation auction slot read from a clipper.
type SaleRecord struct {
	ID         uint64         `json:"id"`
	Source     RecordSource   `json:"source"`
	Position   uint64         `json:"pos"`
	Debt       Quantity       `json:"tab"`
	Collateral Quantity       `json:"lot"`
	Owner      common.Address `json:"usr"`
	StartTime  uint64         `json:"tic"`
	TopBid     Quantity       `json:"top"`
}

// Live reports whether the slot holds an active auction.
func (r SaleRecord) Live() bool {
	return r.Collateral.IsPositive() && r.StartTime > 0
}

// Started converts the on-chain tic into wall-clock time.
func (r SaleRecord) Started() time.Time {
	return time.Unix(int64(r.StartTime), 0).UTC()
}

// DebtAuctionRecord is a debt auction slot read from the flop contract.
type DebtAuctionRecord struct {
	ID        uint64         `json:"id"`
	Bid       Quantity       `json:"bid"`
	Lot       Quantity       `json:"lot"`
	Bidder    common.Address `json:"guy"`
	StartTime uint64         `json:"tic"`
	EndTime   uint64         `json:"end"`
}

// Live reports whether the slot holds an active auction.
func (r DebtAuctionRecord) Live() bool {
	return r.Lot.IsPositive() && r.StartTime > 0
}

// Started converts the on-chain tic into wall-clock time.
func (r DebtAuctionRecord) Started() time.Time {
	return time.Unix(int64(r.StartTime), 0).UTC()
}

// Ends converts the on-chain end into wall-clock time.
func (r DebtAuctionRecord) Ends() time.Time {
	return time.Unix(int64(r.EndTime), 0).UTC()
}

// SystemStats holds the Vow accounting figures read in a single pass.
type SystemStats struct {
	Awe    Quantity  `json:"awe"`
	Sin    Quantity  `json:"sin"`
	Ash    Quantity  `json:"ash"`
	Woe    Quantity  `json:"woe"`
	Joy    Quantity  `json:"joy"`
	Sump   Quantity  `json:"sump"`
	Wait   uint64    `json:"wait"`
	ReadAt time.Time `json:"read_at"`
}

// StatEntry is one labelled display row.
type StatEntry struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Value string `json:"value"`
	Unit  string `json:"unit"`
}

// Entries lists the figures in display order, amounts rounded to three places.
func (s SystemStats) Entries(unit string) []StatEntry {
	return []StatEntry{
		{Key: "awe", Label: "Awe (Total Debt)", Value: s.Awe.Format(3), Unit: unit},
		{Key: "sin", Label: "Sin (Queued Debt)", Value: s.Sin.Format(3), Unit: unit},
		{Key: "ash", Label: "Ash (Auctioned Debt)", Value: s.Ash.Format(3), Unit: unit},
		{Key: "woe", Label: "Woe (Bad Debt Ready)", Value: s.Woe.Format(3), Unit: unit},
		{Key: "joy", Label: "Joy (Available " + unit + ")", Value: s.Joy.Format(3), Unit: unit},
		{Key: "sump", Label: "Sump (Min Debt Auction)", Value: s.Sump.Format(3), Unit: unit},
		{Key: "wait", Label: "Wait Period", Value: formatUint(s.Wait), Unit: "seconds"},
	}
}
