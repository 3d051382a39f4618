package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"makerwatch/internal/model"
)

// SimulateAlert 通过给定的供应量变化模拟一次告警流程。
func (a *App) SimulateAlert(ctx context.Context, token string, supply, delta decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	alerter := a.newAlerter()
	if alerter == nil {
		return errors.New("未配置任何告警通道")
	}

	unit := token
	decimals := model.DefaultDecimals
	for _, tc := range []struct {
		symbol   string
		decimals int32
	}{
		{a.Config.Contracts.Stablecoin.Symbol, a.Config.Contracts.Stablecoin.Decimals},
		{a.Config.Contracts.Governance.Symbol, a.Config.Contracts.Governance.Decimals},
	} {
		if tc.symbol == token {
			decimals = tc.decimals
		}
	}

	raw := supply.Shift(decimals).BigInt()
	if raw.Sign() < 0 {
		return fmt.Errorf("supply cannot be negative: %s", supply)
	}
	d := delta.InexactFloat64()

	return alerter.Present(ctx, model.SupplyChanged{
		Token:     token,
		Unit:      unit,
		Timestamp: time.Now().UTC(),
		Value:     model.NewQuantity(raw, decimals),
		Delta:     &d,
	})
}
