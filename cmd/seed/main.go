// Command seed migrates the sandbox schema and fills it with random
// fixtures.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/gnemet/viewsets/database/pool"
	"github.com/gnemet/viewsets/internal/config"
	"github.com/gnemet/viewsets/internal/logging"
	"github.com/gnemet/viewsets/internal/sandbox"
)

var (
	configPath string
	database   string
	migrate    bool
	opts       = sandbox.DefaultOptions
)

var rootCmd = &cobra.Command{
	Use:          "seed",
	Short:        "Create random sandbox fixtures",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", config.DefaultPath, "configuration file")
	f.StringVar(&database, "database", "", "configured database name (default database when empty)")
	f.BoolVar(&migrate, "migrate", true, "apply schema migrations first")
	f.IntVar(&opts.Main, "main", opts.Main, "number of main records")
	f.IntVar(&opts.Parent, "parent", opts.Parent, "number of parent records")
	f.IntVar(&opts.Tag, "tag", opts.Tag, "number of tags")
	f.IntVar(&opts.Attribute, "attribute", opts.Attribute, "number of attributes")
	f.Float64Var(&opts.TagProbability, "tag-probability", opts.TagProbability, "probability of linking a main record to a tag")
	f.Float64Var(&opts.AttributeProbability, "attribute-probability", opts.AttributeProbability, "probability of an attribute value per main record")
	f.IntVar(&opts.ChunkSize, "chunk-size", opts.ChunkSize, "rows per insert statement")
	f.Uint64Var(&opts.Seed, "seed", 0, "random seed (random when 0)")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	for _, p := range []float64{opts.TagProbability, opts.AttributeProbability} {
		if p < 0 || p > 1 {
			return fmt.Errorf("probability %v out of [0, 1]", p)
		}
	}

	ctx := cmd.Context()
	dbs, err := pool.New(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer dbs.Close()
	db, err := dbs.Get(database)
	if err != nil {
		return err
	}

	if migrate {
		if err := sandbox.Migrate(db, logger); err != nil {
			return err
		}
	}
	counts, err := sandbox.Seed(ctx, db, opts, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %d main, %d parent, %d tag, %d attribute, %d main_tags, %d attribute_value\n",
		counts.Main, counts.Parent, counts.Tag, counts.Attribute, counts.MainTags, counts.AttributeValue)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
