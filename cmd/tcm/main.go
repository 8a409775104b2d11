package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tcm-go/internal/app"
	"tcm-go/internal/catalog"
	"tcm-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file from its default location.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates a TCMApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Sync", "RecordReview").
func newApp(ctx context.Context, operation string) (*app.TCMApp, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewTCMApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "tcm",
	Short:         "Training catalog inventory",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		fmt.Println("Next: run `tcm db migrate`")
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Type Depth: %d\n", cfg.Layout.TypeDepth)
		fmt.Printf("Link File:  %s\n", cfg.Layout.LinkFile)
		backupType := cfg.Backup.Type
		if backupType == "" {
			backupType = "disabled"
		}
		fmt.Printf("Backup:     %s (encrypt=%t)\n", backupType, cfg.Backup.Encrypt)
		fmt.Printf("API Addr:   %s\n", cfg.API.Addr)
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the catalog database",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cfg); err != nil {
			return err
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		schema, err := app.Schema(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		fmt.Print(schema)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync LOCATOR",
	Short: "Sync the catalog with a folder, .zip archive or s3://bucket/prefix",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Sync")
		if err != nil {
			return err
		}
		defer a.Close()

		run, err := a.Sync(cmd.Context(), args[0])
		if run != nil {
			printRun(run)
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return nil
	},
}

// review command
var reviewCmd = &cobra.Command{
	Use:   "review KEY",
	Short: "Record a review decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := catalog.ReviewInput{}
		in.Status, _ = cmd.Flags().GetString("status")
		in.Reason, _ = cmd.Flags().GetString("reason")
		in.Owner, _ = cmd.Flags().GetString("owner")
		in.Notes, _ = cmd.Flags().GetString("notes")

		a, err := newApp(cmd.Context(), "RecordReview")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RecordReview(cmd.Context(), args[0], in); err != nil {
			return err
		}
		fmt.Printf("Recorded review for %s\n", args[0])
		return nil
	},
}

// invest command
var investCmd = &cobra.Command{
	Use:   "invest KEY",
	Short: "Record an investment decision",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := catalog.InvestmentInput{}
		in.Decision, _ = cmd.Flags().GetString("decision")
		in.Owner, _ = cmd.Flags().GetString("owner")
		in.Effort, _ = cmd.Flags().GetString("effort")
		in.Notes, _ = cmd.Flags().GetString("notes")

		a, err := newApp(cmd.Context(), "RecordInvestment")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RecordInvestment(cmd.Context(), args[0], in); err != nil {
			return err
		}
		fmt.Printf("Recorded investment decision for %s\n", args[0])
		return nil
	},
}

// classify command
var classifyCmd = &cobra.Command{
	Use:   "classify FIELD VALUE KEY...",
	Short: "Set audience or sales_stage on many resources",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "BulkUpdateClassification")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.BulkUpdateClassification(cmd.Context(), args[2:], args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Updated %d resource(s)\n", n)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active resources",
	RunE: func(cmd *cobra.Command, args []string) error {
		where, _ := cmd.Flags().GetStringArray("where")
		filters, err := parseFilters(where)
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), "ListActive")
		if err != nil {
			return err
		}
		defer a.Close()

		rs, err := a.ListActive(cmd.Context(), filters)
		if err != nil {
			return err
		}
		printResources(rs)
		return nil
	},
}

// scope command
var scopeCmd = &cobra.Command{
	Use:   "scope NAME",
	Short: "List the resources in a named scope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "GetByScope")
		if err != nil {
			return err
		}
		defer a.Close()

		rs, err := a.GetByScope(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printResources(rs)
		return nil
	},
}

// metric command
var metricCmd = &cobra.Command{
	Use:   "metric [NAME]",
	Short: "Compute a named metric",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			fmt.Println(strings.Join(catalog.MetricNames(), "\n"))
			return nil
		}
		groupBy, _ := cmd.Flags().GetString("by")

		a, err := newApp(cmd.Context(), "Aggregate")
		if err != nil {
			return err
		}
		defer a.Close()

		agg, err := a.Aggregate(cmd.Context(), args[0], groupBy)
		if err != nil {
			return err
		}

		fmt.Printf("%s: %d (%d rows)\n", agg.Metric, agg.Count, agg.Rows)
		for _, g := range agg.Groups {
			value := g.Value
			if value == "" {
				value = "(none)"
			}
			fmt.Printf("  %-30s %6d  %6d rows\n", value, g.Count, g.Rows)
		}
		return nil
	},
}

// runs command
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "View sync history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "ListRuns")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.ListRuns(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("#%d  %s  %-7s  %-9s  +%d ~%d -%d  active %d->%d  %s  %s\n",
				r.ID,
				r.StartedAt.Local().Format("2006-01-02 15:04:05"),
				r.Status,
				r.SourceKind,
				r.Added+r.Reactivated,
				r.Refreshed,
				r.Archived,
				r.ActiveBefore,
				r.ActiveAfter,
				r.Duration().Truncate(time.Millisecond),
				r.Locator,
			)
			if r.Error != "" {
				fmt.Printf("    error: %s\n", r.Error)
			}
			if r.Notes != "" {
				fmt.Printf("    %s\n", r.Notes)
			}
		}
		return nil
	},
}

// check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that independently computed totals agree",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Reconcile")
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Reconcile(cmd.Context())
		if err != nil {
			return err
		}

		for _, c := range rec.Checks {
			mark := "ok"
			if !c.Match {
				mark = "MISMATCH"
			}
			fmt.Printf("%-8s %-28s count %d/%d  rows %d/%d\n", mark, c.Name, c.Got.Count, c.Want.Count, c.Got.Rows, c.Want.Rows)
		}
		if !rec.OK {
			return errors.New("totals do not reconcile")
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the catalog over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.API.Addr = addr
		}

		a, err := app.NewTCMApp(cmd.Context(), cfg, "Serve")
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		return a.Serve(cmd.Context())
	},
}

// parseFilters turns repeated field=value flags into a filter map.
func parseFilters(where []string) (map[string][]string, error) {
	filters := make(map[string][]string)
	for _, w := range where {
		field, value, ok := strings.Cut(w, "=")
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid filter %q: want field=value", w)
		}
		filters[field] = append(filters[field], value)
	}
	return filters, nil
}

func printRun(r *catalog.SyncRun) {
	fmt.Printf("Sync #%d %s (%s %s)\n", r.ID, r.Status, r.SourceKind, r.Locator)
	fmt.Printf("  added %d, reactivated %d, refreshed %d, unchanged %d, archived %d\n",
		r.Added, r.Reactivated, r.Refreshed, r.Unchanged, r.Archived)
	fmt.Printf("  active %d -> %d in %s\n", r.ActiveBefore, r.ActiveAfter, r.Duration().Truncate(time.Millisecond))
	if r.Warnings > 0 {
		fmt.Printf("  %d warning(s): %s\n", r.Warnings, r.Notes)
	}
}

func printResources(rs []*catalog.Resource) {
	if len(rs) == 0 {
		fmt.Println("No resources found.")
		return
	}
	for _, r := range rs {
		fmt.Printf("%-6s %-13s %4d  %s\n", r.Type, r.Review.Status, r.Count, r.Key)
	}
	fmt.Printf("%d resource(s)\n", len(rs))
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbSchemaCmd)

	reviewCmd.Flags().String("status", "", "Review status: keep, modify, sunset, gap, not_reviewed")
	reviewCmd.Flags().String("reason", "", "Reason (required for modify and sunset)")
	reviewCmd.Flags().String("owner", "", "Decision owner")
	reviewCmd.Flags().String("notes", "", "Notes (required for gap)")
	reviewCmd.MarkFlagRequired("status")

	investCmd.Flags().String("decision", "", "Decision: build, buy, assign_sme, defer")
	investCmd.Flags().String("owner", "", "Decision owner")
	investCmd.Flags().String("effort", "", "Effort estimate (required for build, buy and assign_sme)")
	investCmd.Flags().String("notes", "", "Notes (required for defer)")
	investCmd.MarkFlagRequired("decision")

	listCmd.Flags().StringArrayP("where", "w", nil, "Filter as field=value; repeat a field to match any value")
	metricCmd.Flags().String("by", "", "Group by field (department, bucket, training_type, type, ...)")
	runsCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")
	serveCmd.Flags().String("addr", "", "Listen address (overrides [api] addr)")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(investCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(scopeCmd)
	rootCmd.AddCommand(metricCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(backupCmd)
}
