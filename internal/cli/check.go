package cli

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one evaluation pass over all enabled rules",
	Long: `Evaluate every enabled alert rule once, notify the configured channels for
each rule whose threshold is met, and print the pass result as JSON.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := initComponents(cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	result := c.evaluator.RunPass(cmd.Context())

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if !result.Success {
		return errors.New(result.Error)
	}
	return nil
}
