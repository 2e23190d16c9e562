package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ncrflow/internal/bootstrap/logging"
	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/errs"
	"ncrflow/internal/usecase/ncr"
	"ncrflow/internal/usecase/ncrreport"
)

const (
	maxRequestBody    = 1 << 20
	portalLinkMessage = "link is invalid or has expired"
)

type ncrAPIService interface {
	CreateNCR(ctx context.Context, input ncr.CreateNCRInput) (ncr.NCRView, error)
	GetNCRByID(ctx context.Context, ncrRef string, includeInternal bool) (ncr.NCRDetail, error)
	ListNCRs(ctx context.Context, input ncr.ListNCRsInput) ([]ncr.NCRView, error)
	GetNCRsByPO(ctx context.Context, purchaseOrderID string) ([]ncr.NCRView, error)
	UpdateStatus(ctx context.Context, input ncr.UpdateStatusInput) (ncr.NCRView, error)
	CloseNCR(ctx context.Context, input ncr.CloseNCRInput) (ncr.NCRView, error)
	ReopenNCR(ctx context.Context, input ncr.ReopenNCRInput) (ncr.NCRView, error)
	AddComment(ctx context.Context, input ncr.AddCommentInput) (ncr.CommentView, error)
	CreateMagicLink(ctx context.Context, input ncr.CreateMagicLinkInput) (ncr.MagicLinkIssued, error)
	RevokeMagicLink(ctx context.Context, input ncr.RevokeMagicLinkInput) error
	GetSupplierView(ctx context.Context, token string) (ncr.NCRDetail, error)
	ExportNCR(ctx context.Context, ncrRef string) (ncr.NCRExport, error)
	GetNCRDashboard(ctx context.Context, organizationID string) (ncr.Dashboard, error)
}

type readinessChecker interface {
	Ready(ctx context.Context) (string, error)
}

type apiHandler struct {
	svc   ncrAPIService
	ready readinessChecker
}

type apiErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type apiEnvelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *apiErrorBody `json:"error,omitempty"`
}

type ncrActionRequest struct {
	Action               string `json:"action"`
	Status               string `json:"status,omitempty"`
	Reason               string `json:"reason,omitempty"`
	ClosedReason         string `json:"closedReason,omitempty"`
	ProofOfFixDocumentID string `json:"proofOfFixDocId,omitempty"`
	CreditNoteDocumentID string `json:"creditNoteDocId,omitempty"`
}

type portalCommentRequest struct {
	Token          string   `json:"token"`
	NCRRef         string   `json:"ncrId,omitempty"`
	Content        string   `json:"content,omitempty"`
	AttachmentURLs []string `json:"attachmentUrls,omitempty"`
	VoiceNoteURL   string   `json:"voiceNoteUrl,omitempty"`
	IsInternal     bool     `json:"isInternal,omitempty"`
}

func newAPIRouter(svc ncrAPIService, ready readinessChecker, jwtSecret []byte) http.Handler {
	h := &apiHandler{svc: svc, ready: ready}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireStaff(jwtSecret))
		r.Post("/ncrs", h.handleCreateNCR)
		r.Get("/ncrs", h.handleListNCRs)
		r.Get("/ncrs/{id}", h.handleGetNCR)
		r.Post("/ncrs/{id}/actions", h.handleNCRAction)
		r.Post("/ncrs/{id}/comments", h.handleStaffComment)
		r.Post("/ncrs/{id}/magic-links", h.handleCreateMagicLink)
		r.Get("/ncrs/{id}/export", h.handleExport)
		r.Delete("/magic-links/{linkId}", h.handleRevokeMagicLink)
		r.Get("/purchase-orders/{poId}/ncrs", h.handleNCRsByPO)
		r.Get("/organizations/{orgId}/ncr-dashboard", h.handleDashboard)
	})

	r.Route("/portal", func(r chi.Router) {
		r.Get("/ncr", h.handlePortalView)
		r.Post("/ncr/comments", h.handlePortalComment)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(), slog.String("component", "http.api"))
		ctx = logging.WithRequestID(ctx, middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		// The portal token travels in the query string; log the path only.
		logging.Info(ctx, "http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func (h *apiHandler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeAPIData(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) handleReady(w http.ResponseWriter, r *http.Request) {
	if h.ready == nil {
		writeAPIData(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	lastRun, err := h.ready.Ready(r.Context())
	if err != nil {
		logging.Warn(r.Context(), "readiness check failed", slog.Any("err", errs.Loggable(err)))
		writeAPIError(w, http.StatusServiceUnavailable, "UnavailableError", "database unavailable")
		return
	}
	writeAPIData(w, http.StatusOK, map[string]string{
		"status":           "ready",
		"schedulerLastRun": lastRun,
	})
}

func (h *apiHandler) handleCreateNCR(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var input ncr.CreateNCRInput
	if !decodeBody(w, r, &input) {
		return
	}
	input.Actor = actor
	if strings.TrimSpace(input.ReporterID) == "" {
		input.ReporterID = actor.UserID
	}

	view, err := h.svc.CreateNCR(r.Context(), input)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusCreated, view)
}

func (h *apiHandler) handleListNCRs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	includeClosed, _ := strconv.ParseBool(query.Get("includeClosed"))
	items, err := h.svc.ListNCRs(r.Context(), ncr.ListNCRsInput{
		OrganizationID:  query.Get("organizationId"),
		PurchaseOrderID: query.Get("purchaseOrderId"),
		Status:          query.Get("status"),
		IncludeClosed:   includeClosed,
	})
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusOK, items)
}

func (h *apiHandler) handleGetNCR(w http.ResponseWriter, r *http.Request) {
	includeInternal, _ := strconv.ParseBool(r.URL.Query().Get("includeInternal"))
	detail, err := h.svc.GetNCRByID(r.Context(), chi.URLParam(r, "id"), includeInternal)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusOK, detail)
}

func (h *apiHandler) handleNCRAction(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var req ncrActionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ref := chi.URLParam(r, "id")

	var (
		view ncr.NCRView
		err  error
	)
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case "update_status":
		view, err = h.svc.UpdateStatus(r.Context(), ncr.UpdateStatusInput{
			Actor:  actor,
			NCRRef: ref,
			Status: req.Status,
			Reason: req.Reason,
		})
	case "close":
		view, err = h.svc.CloseNCR(r.Context(), ncr.CloseNCRInput{
			Actor:                actor,
			NCRRef:               ref,
			ClosedReason:         req.ClosedReason,
			ProofOfFixDocumentID: req.ProofOfFixDocumentID,
			CreditNoteDocumentID: req.CreditNoteDocumentID,
		})
	case "reopen":
		view, err = h.svc.ReopenNCR(r.Context(), ncr.ReopenNCRInput{
			Actor:  actor,
			NCRRef: ref,
			Reason: req.Reason,
		})
	default:
		err = errs.Kindf(domainncr.ErrValidation, "action must be update_status, close or reopen")
	}
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusOK, view)
}

func (h *apiHandler) handleStaffComment(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var input ncr.AddCommentInput
	if !decodeBody(w, r, &input) {
		return
	}
	input.Actor = &actor
	input.MagicLinkToken = ""
	input.NCRRef = chi.URLParam(r, "id")

	comment, err := h.svc.AddComment(r.Context(), input)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusCreated, comment)
}

func (h *apiHandler) handleCreateMagicLink(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	var input ncr.CreateMagicLinkInput
	if !decodeBody(w, r, &input) {
		return
	}
	input.Actor = actor
	input.NCRRef = chi.URLParam(r, "id")

	issued, err := h.svc.CreateMagicLink(r.Context(), input)
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusCreated, issued)
}

func (h *apiHandler) handleRevokeMagicLink(w http.ResponseWriter, r *http.Request) {
	actor, _ := actorFromContext(r.Context())
	linkID := chi.URLParam(r, "linkId")
	if err := h.svc.RevokeMagicLink(r.Context(), ncr.RevokeMagicLinkInput{Actor: actor, LinkID: linkID}); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusOK, map[string]string{"linkId": linkID, "status": "revoked"})
}

func (h *apiHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := ncrreport.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeDomainError(r.Context(), w, errs.Kindf(domainncr.ErrValidation, "%s", err.Error()))
		return
	}
	export, err := h.svc.ExportNCR(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}

	var buf bytes.Buffer
	if err := ncrreport.Render(&buf, export, format); err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	switch format {
	case ncrreport.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case ncrreport.FormatYAML:
		w.Header().Set("Content-Type", "application/yaml")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *apiHandler) handleNCRsByPO(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.GetNCRsByPO(r.Context(), chi.URLParam(r, "poId"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusOK, items)
}

func (h *apiHandler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.svc.GetNCRDashboard(r.Context(), chi.URLParam(r, "orgId"))
	if err != nil {
		writeDomainError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusOK, dashboard)
}

func (h *apiHandler) handlePortalView(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetSupplierView(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writePortalError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusOK, detail)
}

func (h *apiHandler) handlePortalComment(w http.ResponseWriter, r *http.Request) {
	var req portalCommentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	comment, err := h.svc.AddComment(r.Context(), ncr.AddCommentInput{
		MagicLinkToken: req.Token,
		NCRRef:         req.NCRRef,
		Content:        req.Content,
		AttachmentURLs: req.AttachmentURLs,
		VoiceNoteURL:   req.VoiceNoteURL,
		IsInternal:     req.IsInternal,
	})
	if err != nil {
		writePortalError(r.Context(), w, err)
		return
	}
	writeAPIData(w, http.StatusCreated, comment)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeAPIError(w, http.StatusBadRequest, domainncr.KindValidation, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// statusForKind maps a domain error kind to its HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case domainncr.KindValidation:
		return http.StatusBadRequest
	case domainncr.KindNotFound:
		return http.StatusNotFound
	case domainncr.KindPermission:
		return http.StatusForbidden
	case domainncr.KindInvalidTransition, domainncr.KindConflict:
		return http.StatusConflict
	case domainncr.KindPrecondition:
		return http.StatusUnprocessableEntity
	case domainncr.KindExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	if !domainncr.IsRecoverable(err) {
		logging.Error(ctx, "request failed", slog.Any("err", errs.Loggable(errs.WithStack(err))))
		writeAPIError(w, http.StatusInternalServerError, domainncr.KindInternal, "internal error")
		return
	}
	kind := domainncr.KindOf(err)
	writeAPIError(w, statusForKind(kind), kind, err.Error())
}

// writePortalError hides whether a token was unknown, revoked or expired.
func writePortalError(ctx context.Context, w http.ResponseWriter, err error) {
	if isLinkTokenError(err) {
		writeAPIError(w, http.StatusNotFound, domainncr.KindNotFound, portalLinkMessage)
		return
	}
	writeDomainError(ctx, w, err)
}

func writeAPIError(w http.ResponseWriter, status int, kind string, message string) {
	writeAPIJSON(w, status, apiEnvelope{
		Success: false,
		Error:   &apiErrorBody{Kind: kind, Message: message},
	})
}

func writeAPIData(w http.ResponseWriter, status int, data any) {
	writeAPIJSON(w, status, apiEnvelope{Success: true, Data: data})
}

func writeAPIJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
