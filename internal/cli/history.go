package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show alert history",
	Long:  `List notification attempts, newest first. Each row is one channel of one triggered rule.`,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", model.DefaultHistoryLimit, "Maximum rows to show")
	historyCmd.Flags().StringP("rule", "r", "", "Filter by rule ID")
	historyCmd.Flags().StringP("status", "s", "", "Filter by status (pending, sent, failed)")
	historyCmd.Flags().Bool("errors", false, "Show the error message of failed rows")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	ruleID, _ := cmd.Flags().GetString("rule")
	status, _ := cmd.Flags().GetString("status")
	showErrors, _ := cmd.Flags().GetBool("errors")

	switch model.AlertStatus(status) {
	case "", model.StatusPending, model.StatusSent, model.StatusFailed:
	default:
		return fmt.Errorf("unknown status %q", status)
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rows, err := store.ListHistory(cmd.Context(), model.HistoryFilter{
		RuleID: ruleID,
		Status: model.AlertStatus(status),
		Limit:  limit,
	})
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}

	if len(rows) == 0 {
		fmt.Println("No alert history.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "CREATED\tRULE\tMETRIC\tVALUE\tTHRESHOLD\tCHANNEL\tSTATUS\tMESSAGE\n")
	for _, h := range rows {
		msg := h.Message
		if showErrors && h.ErrorMessage != "" {
			msg = h.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(h.CreatedAt), h.RuleID, h.MetricType,
			humanize.Commaf(h.MetricValue), humanize.Commaf(h.ThresholdValue),
			h.Channel, h.Status, msg)
	}
	return w.Flush()
}
