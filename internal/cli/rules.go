package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/ogulcanaydogan/pitchwatch/pkg/model"
	"github.com/ogulcanaydogan/pitchwatch/pkg/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Manage alert rules",
}

var rulesAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create an alert rule",
	RunE:  runRulesAdd,
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules",
	RunE:  runRulesList,
}

var rulesEnableCmd = &cobra.Command{
	Use:   "enable <id>",
	Short: "Enable an alert rule",
	Args:  requireArgs(1, "<id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleEnabled(cmd.Context(), args[0], true)
	},
}

var rulesDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Disable an alert rule",
	Args:  requireArgs(1, "<id>"),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRuleEnabled(cmd.Context(), args[0], false)
	},
}

var rulesDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an alert rule and its history",
	Args:  requireArgs(1, "<id>"),
	RunE:  runRulesDelete,
}

var rulesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Create rules from a YAML file",
	Args:  requireArgs(1, "<file>"),
	RunE:  runRulesImport,
}

var rulesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all rules as YAML",
	RunE:  runRulesExport,
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesAddCmd, rulesListCmd, rulesEnableCmd, rulesDisableCmd,
		rulesDeleteCmd, rulesImportCmd, rulesExportCmd)

	f := rulesAddCmd.Flags()
	f.StringP("name", "n", "", "Rule name (required)")
	f.String("description", "", "Free-form description")
	f.StringP("metric", "m", "", "Metric type (error_rate, api_response_time, page_load_time, cost, user_count)")
	f.Float64P("threshold", "t", 0, "Threshold value")
	f.StringP("operator", "o", ">", "Comparison operator (>, >=, <, <=, ==)")
	f.Int("interval", model.DefaultCheckIntervalMinutes, "Check interval in minutes")
	f.Int("cooldown", 0, "Minutes to wait before the rule may fire again")
	f.StringSliceP("channels", "c", nil, "Delivery channels (webhook, slack, discord, email)")
	f.Bool("disabled", false, "Create the rule disabled")
	_ = rulesAddCmd.MarkFlagRequired("name")
	_ = rulesAddCmd.MarkFlagRequired("metric")

	rulesExportCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")
}

// ruleFile is the YAML document read by import and written by export.
type ruleFile struct {
	Rules []model.RuleInput `yaml:"rules"`
}

// decodeRules parses a rule file.
func decodeRules(r io.Reader) ([]model.RuleInput, error) {
	var file ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return file.Rules, nil
}

// encodeRules writes rules in the format decodeRules reads.
func encodeRules(w io.Writer, rules []model.AlertRule) error {
	file := ruleFile{Rules: make([]model.RuleInput, 0, len(rules))}
	for _, r := range rules {
		file.Rules = append(file.Rules, r.Input())
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode rules: %w", err)
	}
	return enc.Close()
}

// importRules validates every input before creating any rule, so a bad file
// leaves the store untouched.
func importRules(ctx context.Context, store storage.Storage, inputs []model.RuleInput) ([]model.AlertRule, error) {
	rules := make([]model.AlertRule, 0, len(inputs))
	for i, in := range inputs {
		rule := in.Rule()
		rule.ApplyDefaults()
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, in.Name, err)
		}
		rules = append(rules, rule)
	}

	for i := range rules {
		if err := store.CreateRule(ctx, &rules[i]); err != nil {
			return rules[:i], fmt.Errorf("create rule %q: %w", rules[i].Name, err)
		}
	}
	return rules, nil
}

func runRulesAdd(cmd *cobra.Command, _ []string) error {
	f := cmd.Flags()
	name, _ := f.GetString("name")
	description, _ := f.GetString("description")
	metric, _ := f.GetString("metric")
	threshold, _ := f.GetFloat64("threshold")
	operator, _ := f.GetString("operator")
	interval, _ := f.GetInt("interval")
	cooldown, _ := f.GetInt("cooldown")
	channels, _ := f.GetStringSlice("channels")
	disabled, _ := f.GetBool("disabled")

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rule := model.AlertRule{
		Name:                 name,
		Description:          description,
		MetricType:           model.MetricType(metric),
		ThresholdValue:       threshold,
		ThresholdOperator:    model.Operator(operator),
		CheckIntervalMinutes: interval,
		CooldownMinutes:      cooldown,
		Enabled:              !disabled,
		Channels:             channels,
	}
	if err := store.CreateRule(cmd.Context(), &rule); err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	fmt.Printf("Rule created: %s (%s %s %s)\n", rule.ID, rule.MetricType, rule.ThresholdOperator, formatThreshold(rule.ThresholdValue))
	return nil
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := store.ListRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if len(rules) == 0 {
		fmt.Println("No alert rules configured.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tNAME\tCONDITION\tCHANNELS\tENABLED\tLAST TRIGGERED\n")
	for _, r := range rules {
		last := "never"
		if r.LastTriggeredAt != nil {
			last = humanize.Time(*r.LastTriggeredAt)
		}
		fmt.Fprintf(w, "%s\t%s\t%s %s %s\t%s\t%t\t%s\n",
			r.ID, r.Name, r.MetricType, r.ThresholdOperator, formatThreshold(r.ThresholdValue),
			strings.Join(r.Channels, ","), r.Enabled, last)
	}
	return w.Flush()
}

func setRuleEnabled(ctx context.Context, id string, enabled bool) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.SetRuleEnabled(ctx, id, enabled); err != nil {
		return fmt.Errorf("update rule %s: %w", id, err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Rule %s %s.\n", id, state)
	return nil
}

func runRulesDelete(cmd *cobra.Command, args []string) error {
	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteRule(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete rule %s: %w", args[0], err)
	}
	fmt.Printf("Rule %s deleted.\n", args[0])
	return nil
}

func runRulesImport(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close()

	inputs, err := decodeRules(f)
	if err != nil {
		return err
	}

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	created, err := importRules(cmd.Context(), store, inputs)
	for _, r := range created {
		fmt.Printf("Rule created: %s (%s)\n", r.ID, r.Name)
	}
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d rule(s).\n", len(created))
	return nil
}

func runRulesExport(cmd *cobra.Command, _ []string) error {
	output, _ := cmd.Flags().GetString("output")

	store, _, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	rules, err := store.ListRules(cmd.Context())
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	if output == "" {
		return encodeRules(os.Stdout, rules)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create %s: %w", output, err)
	}
	if err := encodeRules(f, rules); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Exported %d rule(s) to %s\n", len(rules), output)
	return nil
}

func formatThreshold(v float64) string {
	return humanize.Commaf(v)
}
