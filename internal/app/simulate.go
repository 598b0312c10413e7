package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ves-rate-watch/internal/rates"
	"ves-rate-watch/internal/stale"
)

// SimulateNotify 通过给定的官方/平行价格模拟一次通知投递。
func (a *App) SimulateNotify(ctx context.Context, usd, eur, peer decimal.Decimal) error {
	if !a.Config.Notify.Enabled {
		return errors.New("notify 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何通知通道")
	}

	fresh := rates.RateSnapshot{
		OfficialUSD:      usd,
		OfficialEUR:      eur,
		OfficialDate:     time.Now().UTC(),
		BlendedPeerPrice: peer,
		LastUpdatedLabel: "simulated",
	}

	note := stale.BuildNotification(rates.RateSnapshot{}, fresh)
	return notifier.Notify(ctx, note)
}
