package printing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	jobmetrics "github.com/odyssey-erp/odyssey-pos/internal/jobs"
)

// DirectPrinterConfig wires dependencies required by DirectPrinter.
type DirectPrinterConfig struct {
	Renderer   *HTMLRenderer
	PDF        PDFClient
	XLSX       *XLSXExporter
	StorageDir string
	Screens    map[invoicing.Kind]invoicing.Config
	Metrics    *jobmetrics.Metrics
	Logger     *slog.Logger
}

// Artifacts lists the files written for one invoice.
type Artifacts struct {
	PDF  string `json:"pdf"`
	XLSX string `json:"xlsx,omitempty"`
}

// DirectPrinter renders synchronously and stores the artefacts on disk.
type DirectPrinter struct {
	renderer   *HTMLRenderer
	pdf        PDFClient
	xlsx       *XLSXExporter
	storageDir string
	screens    map[invoicing.Kind]invoicing.Config
	metrics    *jobmetrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewDirectPrinter constructs a DirectPrinter.
func NewDirectPrinter(cfg DirectPrinterConfig) (*DirectPrinter, error) {
	if cfg.Renderer == nil || cfg.PDF == nil {
		return nil, errors.New("printing: renderer and pdf client required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dir := cfg.StorageDir
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "odyssey-pos", "invoices")
	}
	return &DirectPrinter{
		renderer:   cfg.Renderer,
		pdf:        cfg.PDF,
		xlsx:       cfg.XLSX,
		storageDir: dir,
		screens:    cfg.Screens,
		metrics:    cfg.Metrics,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Print implements invoicing.Printer.
func (p *DirectPrinter) Print(ctx context.Context, inv invoicing.Invoice, ref invoicing.ReferenceData, kind invoicing.Kind) error {
	_, err := p.Render(ctx, inv, ref, kind)
	return err
}

// Render writes the PDF and, when an exporter is configured, the workbook.
func (p *DirectPrinter) Render(ctx context.Context, inv invoicing.Invoice, ref invoicing.ReferenceData, kind invoicing.Kind) (Artifacts, error) {
	doc := p.document(inv, ref, kind)
	pdf, err := p.renderPDF(ctx, doc)
	if err != nil {
		return Artifacts{}, err
	}
	if err := os.MkdirAll(p.storageDir, 0o755); err != nil {
		return Artifacts{}, err
	}
	var out Artifacts
	if out.PDF, err = p.save(doc.BaseName()+".pdf", pdf); err != nil {
		return Artifacts{}, err
	}
	p.metrics.AddDocuments("pdf", 1)

	if p.xlsx != nil {
		book, err := p.xlsx.Export(doc)
		if err != nil {
			return out, fmt.Errorf("printing: export workbook: %w", err)
		}
		if out.XLSX, err = p.save(doc.BaseName()+".xlsx", book); err != nil {
			return out, err
		}
		p.metrics.AddDocuments("xlsx", 1)
	}
	p.logger.Info("invoice printed", slog.String("number", inv.Number), slog.String("file", out.PDF))
	return out, nil
}

// PDF renders the invoice without touching the storage directory.
func (p *DirectPrinter) PDF(ctx context.Context, inv invoicing.Invoice, ref invoicing.ReferenceData, kind invoicing.Kind) ([]byte, error) {
	return p.renderPDF(ctx, p.document(inv, ref, kind))
}

// Workbook renders the invoice spreadsheet without touching the storage directory.
func (p *DirectPrinter) Workbook(inv invoicing.Invoice, ref invoicing.ReferenceData, kind invoicing.Kind) ([]byte, error) {
	exporter := p.xlsx
	if exporter == nil {
		exporter = NewXLSXExporter()
	}
	return exporter.Export(p.document(inv, ref, kind))
}

func (p *DirectPrinter) document(inv invoicing.Invoice, ref invoicing.ReferenceData, kind invoicing.Kind) Document {
	if inv.Kind == "" {
		inv.Kind = kind
	}
	cfg, ok := p.screens[kind]
	if !ok {
		cfg = invoicing.ConfigFor(kind)
	}
	return BuildDocument(inv, ref, cfg, p.now())
}

func (p *DirectPrinter) renderPDF(ctx context.Context, doc Document) ([]byte, error) {
	html, err := p.renderer.Render(doc)
	if err != nil {
		return nil, fmt.Errorf("printing: render html: %w", err)
	}
	pdf, err := p.pdf.RenderHTML(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("printing: render pdf: %w", err)
	}
	return pdf, nil
}

func (p *DirectPrinter) save(name string, data []byte) (string, error) {
	path := filepath.Join(p.storageDir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
