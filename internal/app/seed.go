package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ves-rate-watch/internal/resolver"
)

// SeedHistory 将内置历史数据写入远端数据库；幂等，重复执行无副作用。
func (a *App) SeedHistory(ctx context.Context, opts SeedOptions) error {
	res, err := resolver.New(nil, a.Config.Location(), a.Logger)
	if err != nil {
		return err
	}
	records := res.BundledRecords()

	if opts.DryRun {
		a.Logger.Warn().Msg("seed dry-run：不会写入数据库")
		for _, rec := range records {
			fmt.Fprintf(os.Stdout, "%s  usd=%s  eur=%s\n",
				rec.Date.Format("2006-01-02"), rec.OfficialUSD.String(), rec.OfficialEUR.String())
		}
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn 未配置，无法写入历史数据")
	}
	if closeStore != nil {
		defer closeStore()
	}

	seeded := 0
	failed := 0
	for _, rec := range records {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := store.UpsertOfficialRate(ctx, rec); err != nil {
			failed++
			a.Logger.Error().Err(err).Time("date", rec.Date).Msg("seed record failed")
			continue
		}
		seeded++
	}

	a.Logger.Info().Int("seeded", seeded).Int("failed", failed).Msg("seed finished")
	if failed > 0 {
		return errors.New("部分记录写入失败，请检查日志")
	}
	return nil
}
