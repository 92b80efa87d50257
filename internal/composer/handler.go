package composer

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoices"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
	"github.com/odyssey-erp/odyssey-pos/internal/observability"
	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
)

// CommitRecorder counts commit attempts by outcome.
type CommitRecorder interface {
	RecordCommit(kind, outcome string)
}

// Handler exposes composer sessions over JSON.
type Handler struct {
	store     *Store
	validator *validator.Validate
	metrics   CommitRecorder
	logger    *slog.Logger
}

// NewHandler builds a composer handler.
func NewHandler(store *Store, metrics CommitRecorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: store, validator: validator.New(), metrics: metrics, logger: logger}
}

// MountRoutes registers composer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sessions", h.createSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.getSession)
		r.Delete("/", h.deleteSession)
		r.Patch("/header", h.patchHeader)
		r.Post("/counterparty/search", h.searchCounterparty)
		r.Post("/counterparty/select", h.selectCounterparty)
		r.Post("/counterparty/blur", h.blurCounterparty)
		r.Post("/rows", h.addRow)
		r.Delete("/rows/{row}", h.removeRow)
		r.Patch("/rows/{row}", h.updateRow)
		r.Post("/rows/{row}/search", h.searchProduct)
		r.Post("/rows/{row}/select", h.selectProduct)
		r.Post("/rows/{row}/blur", h.blurProduct)
		r.Post("/focus", h.setFocus)
		r.Post("/keys", h.key)
		r.Post("/validate", h.validate)
		r.Post("/commit", h.commit)
		r.Post("/reset", h.reset)
	})
}

type validationProblem struct {
	httpx.ProblemDetail
	Errors map[string]string `json:"errors"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body", httpx.ErrValidation))
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.JSON(w, http.StatusBadRequest, validationProblem{
			ProblemDetail: httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest},
			Errors:        fieldErrors(err),
		})
		return false
	}
	return true
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	return sess, true
}

func rowIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "row"))
	if err != nil || i < 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid row index", httpx.ErrValidation))
		return 0, false
	}
	return i, true
}

// fail maps session and engine errors onto problem responses.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSessionClosed):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
	case errors.Is(err, invoicing.ErrRowOutOfRange):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrNotFound, err))
	case errors.Is(err, invoicing.ErrNotInCatalog):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err))
	case errors.Is(err, invoicing.ErrInvalidDate),
		errors.Is(err, invoicing.ErrInvalidPaymentType),
		errors.Is(err, invoicing.ErrInvalidAgentType),
		errors.Is(err, invoicing.ErrAgentNotSupported),
		errors.Is(err, invoicing.ErrUnknownField),
		errors.Is(err, catalog.ErrUnknownKind):
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
	default:
		h.logger.Error("composer request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// mutate runs fn on the session engine and responds with the resulting view.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, fn func(e *invoicing.Engine) error) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := sess.Do(fn)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := h.store.Create(r.Context(), invoicing.Kind(req.Kind))
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownKind) {
			h.fail(w, err)
			return
		}
		h.logger.Error("open composer session", slog.String("kind", req.Kind), slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrUnavailable, err))
		return
	}
	view, err := sess.Do(nil)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, nil)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) patchHeader(w http.ResponseWriter, r *http.Request) {
	var req headerRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		if req.Date != nil {
			if err := e.SetDate(*req.Date); err != nil {
				return err
			}
		}
		if req.Time != nil {
			if err := e.SetTime(*req.Time); err != nil {
				return err
			}
		}
		if req.PaymentType != nil {
			if err := e.SetPaymentType(invoicing.PaymentType(*req.PaymentType)); err != nil {
				return err
			}
		}
		if req.AgentType != nil {
			if err := e.SetAgentType(invoicing.AgentType(*req.AgentType)); err != nil {
				return err
			}
		}
		if req.Notes != nil {
			e.SetNotes(*req.Notes)
		}
		return nil
	})
}

func (h *Handler) searchCounterparty(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		e.SearchCounterparty(req.Text)
		return nil
	})
}

func (h *Handler) selectCounterparty(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		return e.SelectCounterpartyByID(req.ID)
	})
}

func (h *Handler) blurCounterparty(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *invoicing.Engine) error {
		e.BlurCounterpartySearch()
		return nil
	})
}

func (h *Handler) addRow(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	view, err := sess.Do(func(e *invoicing.Engine) error {
		e.AddRow()
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) removeRow(w http.ResponseWriter, r *http.Request) {
	i, ok := rowIndex(w, r)
	if !ok {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var removed bool
	view, err := sess.Do(func(e *invoicing.Engine) error {
		var err error
		removed, err = e.RemoveRow(i)
		return err
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, removeResponse{Removed: removed, View: view})
}

func (h *Handler) updateRow(w http.ResponseWriter, r *http.Request) {
	i, ok := rowIndex(w, r)
	if !ok {
		return
	}
	var req fieldRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		field, err := invoicing.ParseField(req.Field)
		if err != nil {
			return err
		}
		return e.UpdateField(i, field, req.Value)
	})
}

func (h *Handler) searchProduct(w http.ResponseWriter, r *http.Request) {
	i, ok := rowIndex(w, r)
	if !ok {
		return
	}
	var req searchRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		return e.SearchProduct(i, req.Text)
	})
}

func (h *Handler) selectProduct(w http.ResponseWriter, r *http.Request) {
	i, ok := rowIndex(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		return e.SelectProductByID(i, req.ID)
	})
}

func (h *Handler) blurProduct(w http.ResponseWriter, r *http.Request) {
	i, ok := rowIndex(w, r)
	if !ok {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		return e.BlurProductSearch(i)
	})
}

func (h *Handler) setFocus(w http.ResponseWriter, r *http.Request) {
	var req focusRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.mutate(w, r, func(e *invoicing.Engine) error {
		return e.SetFocus(invoicing.Focus{Row: req.Row, Target: invoicing.FocusTarget(req.Target)})
	})
}

func (h *Handler) key(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	ev := req.event()
	handled, view, err := sess.Key(r.Context(), ev)
	if errors.Is(err, ErrSessionClosed) {
		h.fail(w, err)
		return
	}
	if combo := ev.Combo(); handled && (combo == "ctrl+s" || combo == "ctrl+p") {
		h.respondCommit(w, sess, view, nil, err)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, keyResponse{Handled: handled, View: view})
}

func (h *Handler) validate(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var errs invoicing.ValidationErrors
	view, err := sess.Do(func(e *invoicing.Engine) error {
		errs = e.Validate()
		return nil
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	view.Errors = errs.Map()
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var saved invoicing.Invoice
	view, err := sess.Do(func(e *invoicing.Engine) error {
		var err error
		saved, err = e.Commit(r.Context(), req.Print)
		return err
	})
	if errors.Is(err, ErrSessionClosed) {
		h.fail(w, err)
		return
	}
	h.respondCommit(w, sess, view, &saved, err)
}

func (h *Handler) respondCommit(w http.ResponseWriter, sess *Session, view View, saved *invoicing.Invoice, err error) {
	kind := string(sess.Kind)
	var verrs invoicing.ValidationErrors
	switch {
	case err == nil:
		h.record(kind, observability.CommitSaved)
		if saved != nil && saved.ID != 0 {
			view.Invoice = saved
		}
		httpx.JSON(w, http.StatusCreated, view)
	case errors.Is(err, invoicing.ErrInvalidDraft):
		h.record(kind, observability.CommitRejected)
		if errors.As(err, &verrs) {
			view.Errors = verrs.Map()
		}
		httpx.JSON(w, http.StatusUnprocessableEntity, view)
	case isSubmitRejection(err):
		h.record(kind, observability.CommitRejected)
		httpx.JSON(w, http.StatusConflict, view)
	default:
		h.record(kind, observability.CommitFailed)
		h.logger.Error("commit invoice", slog.String("session", sess.ID), slog.Any("error", err))
		httpx.JSON(w, http.StatusServiceUnavailable, view)
	}
}

func isSubmitRejection(err error) bool {
	return errors.Is(err, invoices.ErrInsufficientStock) ||
		errors.Is(err, invoices.ErrUnknownProduct) ||
		errors.Is(err, invoices.ErrUnknownCounterparty) ||
		errors.Is(err, invoices.ErrEmptyInvoice)
}

func (h *Handler) record(kind, outcome string) {
	if h.metrics != nil {
		h.metrics.RecordCommit(kind, outcome)
	}
}

func (h *Handler) reset(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(e *invoicing.Engine) error {
		e.Reset()
		return nil
	})
}
