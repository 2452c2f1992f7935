package cli

import (
	"fmt"
	"time"

	"github.com/ogulcanaydogan/pitchwatch/pkg/stats"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Record analytics samples the rules are evaluated against",
	Long: `Write performance samples, cost line items and user signups into the
analytics tables. Useful for seeding a local database and for checking
rules end to end.`,
}

var ingestPerfCmd = &cobra.Command{
	Use:   "perf",
	Short: "Record an API response or page load sample",
	RunE:  runIngestPerf,
}

var ingestCostCmd = &cobra.Command{
	Use:   "cost",
	Short: "Record a cost line item",
	RunE:  runIngestCost,
}

var ingestUserCmd = &cobra.Command{
	Use:   "user",
	Short: "Record a user signup",
	RunE:  runIngestUser,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.AddCommand(ingestPerfCmd, ingestCostCmd, ingestUserCmd)
	ingestCmd.PersistentFlags().String("at", "", "Timestamp in RFC 3339 (default: now)")

	ingestPerfCmd.Flags().StringP("kind", "k", stats.KindAPIResponse, "Sample kind (api_response, page_load)")
	ingestPerfCmd.Flags().StringP("path", "p", "/", "Request path or page")
	ingestPerfCmd.Flags().Float64("ms", 0, "Duration in milliseconds")
	ingestPerfCmd.Flags().Bool("error", false, "Mark the request as failed")

	ingestCostCmd.Flags().StringP("service", "s", "", "Service the cost belongs to")
	ingestCostCmd.Flags().Float64P("amount", "a", 0, "Cost amount")
	_ = ingestCostCmd.MarkFlagRequired("amount")

	ingestUserCmd.Flags().String("id", "", "User ID (default: generated)")
}

func parseAt(cmd *cobra.Command) (time.Time, error) {
	raw, _ := cmd.Flags().GetString("at")
	if raw == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --at: %w", err)
	}
	return at, nil
}

// openProvider opens the database and returns an analytics provider over it.
func openProvider() (*stats.SQLProvider, func() error, error) {
	store, dialect, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	return stats.NewSQLProvider(store.DB(), dialect), store.Close, nil
}

func runIngestPerf(cmd *cobra.Command, _ []string) error {
	at, err := parseAt(cmd)
	if err != nil {
		return err
	}
	kind, _ := cmd.Flags().GetString("kind")
	path, _ := cmd.Flags().GetString("path")
	ms, _ := cmd.Flags().GetFloat64("ms")
	isError, _ := cmd.Flags().GetBool("error")

	provider, closeFn, err := openProvider()
	if err != nil {
		return err
	}
	defer closeFn()

	err = provider.RecordPerformance(cmd.Context(), stats.PerformanceSample{
		Kind:       kind,
		Path:       path,
		ValueMS:    ms,
		IsError:    isError,
		RecordedAt: at,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Recorded %s sample for %s (%.0fms, error=%t)\n", kind, path, ms, isError)
	return nil
}

func runIngestCost(cmd *cobra.Command, _ []string) error {
	at, err := parseAt(cmd)
	if err != nil {
		return err
	}
	service, _ := cmd.Flags().GetString("service")
	amount, _ := cmd.Flags().GetFloat64("amount")

	provider, closeFn, err := openProvider()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := provider.RecordCost(cmd.Context(), service, amount, at); err != nil {
		return err
	}
	fmt.Printf("Recorded cost %s for %q\n", formatThreshold(amount), service)
	return nil
}

func runIngestUser(cmd *cobra.Command, _ []string) error {
	at, err := parseAt(cmd)
	if err != nil {
		return err
	}
	id, _ := cmd.Flags().GetString("id")

	provider, closeFn, err := openProvider()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := provider.RecordUser(cmd.Context(), id, at); err != nil {
		return err
	}
	fmt.Println("Recorded user signup.")
	return nil
}
