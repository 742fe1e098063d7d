package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/erbalance/app"
	"github.com/kilianp07/erbalance/config"
	"github.com/kilianp07/erbalance/core/dispatch"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/infra/logger"
)

var dispatchOpts struct {
	location string
	critical int
	stable   int
	scenario int
	lat, lon float64
	asJSON   bool
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Generate a one-off dispatch plan for an incident",
	RunE:  dispatchIncident,
}

func init() {
	f := dispatchCmd.Flags()
	f.StringVarP(&dispatchOpts.location, "location", "l", "", "incident address")
	f.IntVar(&dispatchOpts.critical, "critical", 0, "critical patients")
	f.IntVar(&dispatchOpts.stable, "stable", 0, "stable patients")
	f.IntVarP(&dispatchOpts.scenario, "scenario", "s", 1, "1 accident, 2 fire, 3 outbreak, 4 flood")
	f.Float64Var(&dispatchOpts.lat, "lat", 0, "incident latitude, skips geocoding with --lon")
	f.Float64Var(&dispatchOpts.lon, "lon", 0, "incident longitude")
	f.BoolVar(&dispatchOpts.asJSON, "json", false, "print the full result as JSON")
	_ = dispatchCmd.MarkFlagRequired("location")
	rootCmd.AddCommand(dispatchCmd)
}

func dispatchIncident(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	// one-shot plans do not move the simulated fleet
	cfg.Simulation.Disabled = true
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("dispatch-command").Errorf("service close: %v", err)
		}
	}()

	req := dispatch.Request{
		Location:         dispatchOpts.location,
		CriticalPatients: dispatchOpts.critical,
		StablePatients:   dispatchOpts.stable,
		Scenario:         dispatchOpts.scenario,
	}
	if cmd.Flags().Changed("lat") && cmd.Flags().Changed("lon") {
		req.Coordinates = &model.Coordinates{Lat: dispatchOpts.lat, Lon: dispatchOpts.lon}
	}
	res, err := svc.Manager.Dispatch(ctx, req)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if dispatchOpts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	_, err = fmt.Fprint(out, res.Plan.Text())
	return err
}
