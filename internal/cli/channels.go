package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/spf13/cobra"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Show which delivery channels are configured",
	RunE:  runChannels,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
}

func runChannels(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := initRegistry(cfg)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "CHANNEL\tSTATUS\n")
	for _, name := range model.Channels {
		status := "not configured (alerts stay pending)"
		if _, ok := registry.Get(name); ok {
			status = "configured"
		}
		fmt.Fprintf(w, "%s\t%s\n", name, status)
	}
	return w.Flush()
}
