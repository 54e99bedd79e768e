package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ehr/formengine/internal/config"
	"github.com/ehr/formengine/internal/domain/formengine"
	"github.com/ehr/formengine/internal/platform/db"
	"github.com/ehr/formengine/internal/platform/upstream"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check configuration, upstream and database reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			failed := runChecks(ctx, cmd.OutOrStdout(), cfg)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// runChecks prints one line per check and returns the number of failures.
func runChecks(ctx context.Context, w io.Writer, cfg *config.Config) int {
	failed := 0
	report := func(name string, err error) {
		if err != nil {
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", color.RedString("FAIL"), name, err)
			return
		}
		fmt.Fprintf(w, "%s %s\n", color.GreenString("ok  "), name)
	}

	report("config", cfg.Validate())

	registry, err := formengine.LoadRegistry(cfg.EntitiesFile)
	report("entity registry", err)

	client := upstream.NewClient(cfg.UpstreamURL, upstream.WithTimeout(cfg.UpstreamTimeout))
	if err := client.Ping(ctx); err != nil {
		report("upstream "+client.BaseURL(), err)
	} else {
		report("upstream "+client.BaseURL(), nil)
		if registry != nil {
			source := formengine.NewUpstreamSource(client)
			for _, e := range registry.Entities {
				_, err := source.Collection(ctx, e.Collection)
				report("collection /"+e.Collection, err)
			}
		}
	}

	if !cfg.HasDatabase() {
		fmt.Fprintf(w, "%s database: DATABASE_URL not set, audit kept in memory\n", color.YellowString("skip"))
		return failed
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	report("database", err)
	if pool != nil {
		pool.Close()
	}
	return failed
}
