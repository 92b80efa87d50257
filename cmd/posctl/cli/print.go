package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoices"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-pos/internal/printing"
	"github.com/odyssey-erp/odyssey-pos/jobs"
)

func newPrintCommand() *cobra.Command {
	var (
		direct bool
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "print <invoice-id>",
		Short: "Reprint a saved invoice",
		Long: `Queues a print job for a saved invoice. With --direct the PDF and workbook
are rendered in-process and written to --out (PRINT_STORAGE_DIR by default).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid invoice id %q", args[0])
			}
			e, err := openEnv(cmd.Context(), envNeeds{postgres: true})
			if err != nil {
				return err
			}
			defer e.Close()

			inv, err := invoices.NewService(invoices.NewRepository(e.pool), nil, e.logger).Get(cmd.Context(), id)
			if err != nil {
				return err
			}

			if !direct {
				client, err := jobs.NewClient(cache.QueueOpt(e.cfg.RedisAddr))
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				info, err := client.EnqueueInvoicePrint(cmd.Context(), jobs.InvoicePrintPayload{InvoiceID: inv.ID, Kind: string(inv.Kind)})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s as task %s\n", inv.Number, info.ID)
				return nil
			}

			screens, err := e.cfg.Screens()
			if err != nil {
				return err
			}
			renderer, err := printing.NewHTMLRenderer()
			if err != nil {
				return err
			}
			if outDir == "" {
				outDir = e.cfg.PrintStorageDir
			}
			printer, err := printing.NewDirectPrinter(printing.DirectPrinterConfig{
				Renderer:   renderer,
				PDF:        printing.NewGotenbergClient(e.cfg.GotenbergURL, e.cfg.PrintPaperWidth),
				XLSX:       printing.NewXLSXExporter(),
				StorageDir: outDir,
				Screens:    screens,
				Logger:     e.logger,
			})
			if err != nil {
				return err
			}
			snap, err := catalog.NewService(e.catalogSource(), nil, e.logger).Load(cmd.Context(), inv.Kind)
			if err != nil {
				return err
			}
			artifacts, err := printer.Render(cmd.Context(), inv, snap.Reference(), inv.Kind)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), artifacts)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", artifacts.PDF, artifacts.XLSX)
			return nil
		},
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "render in-process instead of queueing")
	cmd.Flags().StringVar(&outDir, "out", "", "output directory for --direct")
	return cmd
}
