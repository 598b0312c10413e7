package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"ves-rate-watch/internal/rates"
)

// Refresh performs a one-shot refresh and prints the resulting snapshot.
// The three user-visible failure shapes map to distinct messages; anything
// else surfaces as a plain error.
func (a *App) Refresh(ctx context.Context, opts RefreshOptions) error {
	eng, cleanup, err := a.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	snap, err := eng.Refresh(ctx, opts.Force)
	if err != nil {
		var limited *rates.RateLimitedError
		switch {
		case errors.As(err, &limited):
			fmt.Fprintf(os.Stdout, "please wait %d seconds before refreshing again\n", limited.WaitSeconds())
			return nil
		case errors.Is(err, rates.ErrOffline):
			fmt.Fprintln(os.Stdout, "no connectivity; showing last known rates")
		default:
			fmt.Fprintln(os.Stdout, "update failed; showing last known rates")
			a.Logger.Error().Err(err).Msg("refresh failed")
		}
	}

	encoded, marshalErr := json.MarshalIndent(snap, "", "  ")
	if marshalErr != nil {
		return marshalErr
	}
	fmt.Fprintln(os.Stdout, string(encoded))
	return nil
}
