package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"signalbot-backend/internal/domain"
	"signalbot-backend/internal/infrastructure/presetfile"
	"signalbot-backend/internal/infrastructure/terminal"
	"signalbot-backend/internal/usecase"
)

func newImportPresetsCmd() *cobra.Command {
	var (
		dir       string
		overwrite bool
	)
	cmd := &cobra.Command{
		Use:   "import-presets",
		Short: "Import .set preset files into the store",
		Long: `Reads every .set file in the presets directory and stores it as a
preset. Presets already in the store are kept unless --overwrite is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = a.cfg.PresetsPath
			}
			presets, err := presetfile.LoadDir(dir)
			if err != nil {
				return fmt.Errorf("load presets: %w", err)
			}

			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			bot := usecase.NewSignalBot(usecase.SignalBotDeps{Store: store, Log: a.log, Metrics: a.m},
				usecase.Options{SimulationMode: true})
			n, err := bot.SeedPresets(ctx, presets, overwrite)
			if err != nil {
				return err
			}
			fmt.Printf("Imported %d of %d presets from %s\n", n, len(presets), dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Presets directory (defaults to presets_path)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace presets that already exist")
	return cmd
}

func newResetDailyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-daily",
		Short: "Zero the daily signal, trade and profit counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.ResetDailyCounters(ctx); err != nil {
				return fmt.Errorf("reset daily counters: %w", err)
			}
			fmt.Println("Daily counters reset")
			return nil
		},
	}
}

func newSignalsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "signals",
		Short: "Print the most recent stored signals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			signals, err := store.RecentSignals(ctx, limit)
			if err != nil {
				return fmt.Errorf("read signals: %w", err)
			}
			if len(signals) == 0 {
				fmt.Println("No signals stored")
				return nil
			}
			printSignals(signals)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", usecase.SignalWindow, "Number of signals to show")
	return cmd
}

func printSignals(signals []domain.Signal) {
	buy := color.New(color.FgGreen, color.Bold).SprintFunc()
	sell := color.New(color.FgRed, color.Bold).SprintFunc()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tSYMBOL\tDIR\tSTRENGTH\tENTRY\tSL\tTP\tEXECUTED")
	for _, s := range signals {
		dir := string(s.Direction)
		if s.Direction == domain.DirectionBuy {
			dir = buy(dir)
		} else {
			dir = sell(dir)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%g\t%s\t%s\t%t\n",
			s.ID,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.Symbol,
			dir,
			s.Strength,
			s.EntryPrice,
			optional(s.StopLoss),
			optional(s.TakeProfit),
			s.Executed,
		)
	}
	w.Flush()
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}

func newPingTerminalCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping-terminal",
		Short: "Check that the MT5 terminal answers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			c := terminal.NewClient(a.cfg.Terminal.Host, a.cfg.Terminal.Port, a.cfg.Terminal.Timeout(), a.log)
			defer c.Close()

			if err := c.Ping(cmd.Context()); err != nil {
				color.Red("terminal %s unreachable: %v", c.Addr(), err)
				return err
			}
			color.Green("terminal %s is up", c.Addr())
			return nil
		},
	}
}
