package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// CatalogSummary counts the entries of a checked catalog.
type CatalogSummary struct {
	Source     string `json:"source"`
	Customers  int    `json:"customers"`
	Suppliers  int    `json:"suppliers"`
	Products   int    `json:"products"`
	Warehouses int    `json:"warehouses"`
}

func summarize(source string, f catalog.Fixture) CatalogSummary {
	return CatalogSummary{
		Source:     source,
		Customers:  len(f.Customers),
		Suppliers:  len(f.Suppliers),
		Products:   len(f.Products),
		Warehouses: len(f.Warehouses),
	}
}

func newCatalogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect and maintain reference data",
	}
	cmd.AddCommand(newCatalogCheckCommand(), newCatalogSeedCommand(), newCatalogBumpCommand(), newCatalogShowCommand())
	return cmd
}

func newCatalogCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a fixture file, or the configured source when no file is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				f      catalog.Fixture
				source string
				err    error
			)
			if len(args) == 1 {
				source = args[0]
				if f, err = catalog.ReadFixture(source); err != nil {
					return err
				}
				err = f.Validate()
			} else {
				e, openErr := openEnv(cmd.Context(), envNeeds{postgres: true})
				if openErr != nil {
					return openErr
				}
				defer e.Close()
				source = "postgres"
				if e.cfg.CatalogFile != "" {
					source = e.cfg.CatalogFile
				}
				f, err = catalog.NewService(e.catalogSource(), nil, e.logger).Check(cmd.Context())
			}
			if err != nil {
				if errors.Is(err, catalog.ErrInvalidFixture) {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
					return fmt.Errorf("%s: catalog is not consistent", source)
				}
				return err
			}

			summary := summarize(source, f)
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), summary)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d customers, %d suppliers, %d products, %d warehouses)\n",
				summary.Source, summary.Customers, summary.Suppliers, summary.Products, summary.Warehouses)
			return nil
		},
	}
}

func newCatalogSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Upsert a fixture file into Postgres and invalidate cached catalogs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := catalog.ReadFixture(args[0])
			if err != nil {
				return err
			}
			if err := f.Validate(); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return fmt.Errorf("%s: refusing to seed an inconsistent catalog", args[0])
			}

			e, err := openEnv(cmd.Context(), envNeeds{postgres: true})
			if err != nil {
				return err
			}
			defer e.Close()

			if err := catalog.NewRepository(e.pool).Seed(cmd.Context(), f); err != nil {
				return err
			}
			bumpAfterSeed(cmd, e)
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products from %s\n", len(f.Products), args[0])
			return nil
		},
	}
}

// bumpAfterSeed is best effort; a server without Redis reads the source directly.
func bumpAfterSeed(cmd *cobra.Command, e *env) {
	client, err := openRedis(cmd, e)
	if err != nil {
		e.logger.Warn("catalog cache not bumped", slog.Any("error", err))
		return
	}
	if _, err := catalog.NewCache(client, e.cfg.CatalogCacheTTL).Bump(cmd.Context()); err != nil {
		e.logger.Warn("catalog cache not bumped", slog.Any("error", err))
	}
}

func newCatalogBumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "bump",
		Short: "Invalidate every cached catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := openEnv(cmd.Context(), envNeeds{redis: true})
			if err != nil {
				return err
			}
			defer e.Close()

			ver, err := catalog.NewCache(e.redis, e.cfg.CatalogCacheTTL).Bump(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"version": ver})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog cache version %d\n", ver)
			return nil
		},
	}
}

func newCatalogShowCommand() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the reference data an entry screen would load",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k := invoicing.Kind(kind)
			if !k.Valid() {
				return fmt.Errorf("%w: %q", catalog.ErrUnknownKind, kind)
			}
			e, err := openEnv(cmd.Context(), envNeeds{postgres: true})
			if err != nil {
				return err
			}
			defer e.Close()

			client, err := openRedis(cmd, e)
			if err != nil {
				e.logger.Debug("reading catalog without cache", slog.Any("error", err))
			}
			snap, err := catalog.NewService(e.catalogSource(), catalog.NewCache(client, e.cfg.CatalogCacheTTL), e.logger).Load(cmd.Context(), k)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), snap.Reference())
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(invoicing.KindSales), "entry screen: sales or purchase")
	return cmd
}
