// Package cli implements posctl, the operator tool for catalog maintenance,
// reprints and queue inspection.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/app"
	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/db"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

// NewRootCommand builds the posctl command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "posctl",
		Short: "Operator tooling for Odyssey POS",
		Long: `posctl manages the reference data behind the invoice screens, requests
reprints of saved invoices and inspects the background queues.

Connection settings come from the same environment variables as the server
(PG_DSN, REDIS_ADDR, GOTENBERG_URL, ...).`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().Bool("json", false, "print machine readable output")
	root.AddCommand(
		newCatalogCommand(),
		newPrintCommand(),
		newJobsCommand(),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the posctl version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "posctl %s (%s)\n", Version, runtime.Version())
		},
	}
}

// env holds the connections a command opened. Close releases them.
type env struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
	redis  *redis.Client
}

type envNeeds struct {
	postgres bool
	redis    bool
}

func openEnv(ctx context.Context, needs envNeeds) (*env, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	e := &env{cfg: cfg, logger: app.NewLogger(cfg)}
	if needs.postgres {
		if e.pool, err = db.New(ctx, cfg.PGDSN); err != nil {
			return nil, err
		}
	}
	if needs.redis {
		if e.redis, err = cache.New(ctx, cfg.RedisAddr); err != nil {
			e.Close()
			return nil, err
		}
	}
	return e, nil
}

// openRedis connects lazily for commands where Redis is optional.
func openRedis(cmd *cobra.Command, e *env) (*redis.Client, error) {
	if e.redis != nil {
		return e.redis, nil
	}
	client, err := cache.New(cmd.Context(), e.cfg.RedisAddr)
	if err != nil {
		return nil, err
	}
	e.redis = client
	return client, nil
}

func (e *env) Close() {
	if e.pool != nil {
		e.pool.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
}

// catalogSource honours CATALOG_FILE the same way the server does.
func (e *env) catalogSource() catalog.Source {
	if e.cfg.CatalogFile != "" {
		return catalog.NewFileSource(e.cfg.CatalogFile)
	}
	return catalog.NewRepository(e.pool)
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
