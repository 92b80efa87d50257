package printing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/invoices"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// Pinger reports whether the PDF backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler manages print endpoints.
type Handler struct {
	pinger   Pinger
	invoices InvoiceSource
	catalog  ReferenceLoader
	direct   *DirectPrinter
	printer  invoicing.Printer
	logger   *slog.Logger
}

// HandlerConfig groups handler dependencies. Printer is the printer used for reprints
// (queued or direct).
type HandlerConfig struct {
	Pinger   Pinger
	Invoices InvoiceSource
	Catalog  ReferenceLoader
	Direct   *DirectPrinter
	Printer  invoicing.Printer
	Logger   *slog.Logger
}

// NewHandler creates a print handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	printer := cfg.Printer
	if printer == nil && cfg.Direct != nil {
		printer = cfg.Direct
	}
	return &Handler{pinger: cfg.Pinger, invoices: cfg.Invoices, catalog: cfg.Catalog, direct: cfg.Direct, printer: printer, logger: logger}
}

// MountRoutes registers print routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/ping", h.ping)
	r.Post("/invoices/{id}", h.reprint)
	r.Get("/invoices/{id}/pdf", h.pdf)
	r.Get("/invoices/{id}/xlsx", h.xlsx)
}

func (h *Handler) ping(w http.ResponseWriter, r *http.Request) {
	if h.pinger == nil {
		httpx.RespondError(w, fmt.Errorf("%w: pdf backend not configured", httpx.ErrUnavailable))
		return
	}
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.logger.Warn("gotenberg ping failed", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reprint(w http.ResponseWriter, r *http.Request) {
	inv, ref, ok := h.load(w, r)
	if !ok {
		return
	}
	if h.printer == nil {
		httpx.RespondError(w, fmt.Errorf("%w: printer not configured", httpx.ErrUnavailable))
		return
	}
	if err := h.printer.Print(r.Context(), inv, ref, inv.Kind); err != nil {
		h.logger.Error("reprint failed", slog.String("number", inv.Number), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Print Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"invoice_id": inv.ID, "number": inv.Number, "status": "printing"})
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	inv, ref, ok := h.load(w, r)
	if !ok {
		return
	}
	if h.direct == nil {
		httpx.RespondError(w, fmt.Errorf("%w: renderer not configured", httpx.ErrUnavailable))
		return
	}
	pdf, err := h.direct.PDF(r.Context(), inv, ref, inv.Kind)
	if err != nil {
		h.logger.Error("render invoice pdf", slog.String("number", inv.Number), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "inline; filename="+inv.Number+".pdf")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) xlsx(w http.ResponseWriter, r *http.Request) {
	inv, ref, ok := h.load(w, r)
	if !ok {
		return
	}
	if h.direct == nil {
		httpx.RespondError(w, fmt.Errorf("%w: renderer not configured", httpx.ErrUnavailable))
		return
	}
	book, err := h.direct.Workbook(inv, ref, inv.Kind)
	if err != nil {
		h.logger.Error("export invoice workbook", slog.String("number", inv.Number), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+inv.Number+".xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(book)
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (invoicing.Invoice, invoicing.ReferenceData, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid invoice id", httpx.ErrValidation))
		return invoicing.Invoice{}, invoicing.ReferenceData{}, false
	}
	if h.invoices == nil || h.catalog == nil {
		httpx.RespondError(w, fmt.Errorf("%w: invoice store not configured", httpx.ErrUnavailable))
		return invoicing.Invoice{}, invoicing.ReferenceData{}, false
	}
	inv, err := h.invoices.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, invoices.ErrNotFound) {
			httpx.RespondError(w, fmt.Errorf("%w: invoice %d", httpx.ErrNotFound, id))
		} else {
			h.logger.Error("load invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
			httpx.RespondError(w, err)
		}
		return invoicing.Invoice{}, invoicing.ReferenceData{}, false
	}
	snap, err := h.catalog.Load(r.Context(), inv.Kind)
	if err != nil {
		h.logger.Error("load catalog", slog.String("kind", string(inv.Kind)), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnavailable, err))
		return invoicing.Invoice{}, invoicing.ReferenceData{}, false
	}
	return inv, snap.Reference(), true
}
