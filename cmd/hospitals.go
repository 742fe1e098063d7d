package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kilianp07/erbalance/config"
	"github.com/kilianp07/erbalance/core/model"
	"github.com/kilianp07/erbalance/core/telemetry"
	"github.com/kilianp07/erbalance/infra/logger"
	"github.com/kilianp07/erbalance/infra/store"
)

var hospitalsStatus string

var hospitalsCmd = &cobra.Command{
	Use:   "hospitals",
	Short: "Hospital state commands",
}

var hospitalsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List hospitals from the configured store",
	RunE:  runHospitalsLs,
}

func init() {
	hospitalsLsCmd.Flags().StringVar(&hospitalsStatus, "status", "", "only list hospitals in this tier (Green, Yellow, Red)")
	hospitalsCmd.AddCommand(hospitalsLsCmd)
	rootCmd.AddCommand(hospitalsCmd)
}

func runHospitalsLs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	st, closeStore, err := store.Open(ctx, cfg.Store, logger.New("hospitals-command"))
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			if _, ferr := fmt.Fprintf(cmd.ErrOrStderr(), "error while closing store: %v\n", err); ferr != nil {
				fmt.Println("failed to write to stderr:", ferr)
			}
		}
	}()
	hs, err := st.ListAll(ctx)
	if err != nil {
		return err
	}
	hs = telemetry.Filter{Status: model.Status(hospitalsStatus)}.Apply(hs)

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tBEDS\tER\tTRAUMA\tSTAFF")
	for _, h := range hs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%d\t%d\t%d\n",
			h.ID, h.Name, h.Status, h.BedAvailability, h.TotalBeds, h.ERAdmissions, h.TraumaCapacity, h.StaffCapacity)
	}
	return tw.Flush()
}
