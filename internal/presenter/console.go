package presenter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"makerwatch/internal/model"
)

// Console renders events as human-readable text blocks.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole writes to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

// Present implements Presenter.
func (c *Console) Present(_ context.Context, ev model.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e := ev.(type) {
	case model.SupplySnapshot:
		return c.supply(e)
	case model.LiveAuctionSet:
		return c.auctions(e)
	case model.LiveDebtAuctionSet:
		return c.debtAuctions(e)
	case model.StatsSnapshot:
		return c.stats(e)
	case model.ScanError:
		_, err := fmt.Fprintf(c.out, "[%s] Error: %s (retrying...)\n", e.Stage, sanitizeInline(e.Message))
		return err
	}
	return nil
}

func (c *Console) supply(e model.SupplySnapshot) error {
	change := "N/A (insufficient data)"
	if e.WindowDelta != nil {
		change = signed(*e.WindowDelta) + " " + e.Unit
	}
	_, err := fmt.Fprintf(c.out, "== %s ==\n%s\nTotal Supply: %s %s\nChange in %s: %s\nWei: %s\n\n",
		e.Token,
		formatTime(e.Timestamp),
		e.Value.Grouped(3), e.Unit,
		windowLabel(e.Window), change,
		e.Value.String(),
	)
	return err
}

func (c *Console) auctions(e model.LiveAuctionSet) error {
	fmt.Fprintf(c.out, "== Liquidation auctions (%d live) ==\n", len(e.Records))
	if len(e.Records) == 0 {
		fmt.Fprintln(c.out, "No live auctions found.")
	} else {
		writer := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tIlk\tTab\tLot\tUser\tStart Time (UTC)")
		for _, r := range e.Records {
			fmt.Fprintf(writer, "%d\t%s\t%s %s\t%s %s\t%s\t%s\n",
				r.ID,
				r.Source.Label,
				r.Debt.Grouped(3), e.DebtUnit,
				r.Collateral.Grouped(3), r.Source.Unit,
				r.Owner.Hex(),
				formatTime(r.Started()),
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	return c.summary(e.Summary)
}

func (c *Console) debtAuctions(e model.LiveDebtAuctionSet) error {
	fmt.Fprintf(c.out, "== Debt auctions (%d live) ==\n", len(e.Records))
	if len(e.Records) == 0 {
		fmt.Fprintln(c.out, "No live debt auctions found.")
	} else {
		writer := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "ID\tBid\tLot\tUser\tStart Time (UTC)\tEnd Time (UTC)")
		for _, r := range e.Records {
			fmt.Fprintf(writer, "%d\t%s %s\t%s %s\t%s\t%s\t%s\n",
				r.ID,
				r.Bid.Grouped(3), e.BidUnit,
				r.Lot.Grouped(3), e.LotUnit,
				r.Bidder.Hex(),
				formatTime(r.Started()),
				formatTime(r.Ends()),
			)
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	return c.summary(e.Summary)
}

func (c *Console) summary(s model.ScanSummary) error {
	_, err := fmt.Fprintf(c.out, "(%d batches, %d probes, %d failed, %s)\n\n",
		s.Batches, s.Probes, s.Failures, s.Duration.Round(time.Millisecond))
	return err
}

func (c *Console) stats(e model.StatsSnapshot) error {
	fmt.Fprintln(c.out, "== System stats ==")
	writer := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	for _, entry := range e.Stats.Entries(e.Unit) {
		fmt.Fprintf(writer, "%s:\t%s %s\n", entry.Label, model.GroupThousands(entry.Value), entry.Unit)
	}
	if err := writer.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(c.out)
	return err
}

func signed(v float64) string {
	s := model.GroupThousands(fmt.Sprintf("%.3f", v))
	if v > 0 {
		return "+" + s
	}
	return s
}

func windowLabel(w time.Duration) string {
	if w == time.Hour {
		return "last hour"
	}
	return "last " + w.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
