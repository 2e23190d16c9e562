package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/usecase/ncr"
)

var testJWTSecret = []byte("test-secret")

type stubNCRService struct {
	lastActor   domainncr.Actor
	lastComment ncr.AddCommentInput
	lastStatus  ncr.UpdateStatusInput
	err         error
	portalErr   error
}

func (s *stubNCRService) CreateNCR(_ context.Context, input ncr.CreateNCRInput) (ncr.NCRView, error) {
	s.lastActor = input.Actor
	if s.err != nil {
		return ncr.NCRView{}, s.err
	}
	return ncr.NCRView{ID: "ncr-1", Number: "NCR-0001", Severity: input.Severity, ReporterID: input.ReporterID}, nil
}

func (s *stubNCRService) GetNCRByID(_ context.Context, ref string, includeInternal bool) (ncr.NCRDetail, error) {
	if s.err != nil {
		return ncr.NCRDetail{}, s.err
	}
	return ncr.NCRDetail{NCR: ncr.NCRView{ID: ref}, Comments: []ncr.CommentView{{ID: "c-1", IsInternal: includeInternal}}}, nil
}

func (s *stubNCRService) ListNCRs(context.Context, ncr.ListNCRsInput) ([]ncr.NCRView, error) {
	return []ncr.NCRView{}, s.err
}

func (s *stubNCRService) GetNCRsByPO(_ context.Context, poID string) ([]ncr.NCRView, error) {
	return []ncr.NCRView{{ID: "ncr-1", PurchaseOrderID: poID}}, s.err
}

func (s *stubNCRService) UpdateStatus(_ context.Context, input ncr.UpdateStatusInput) (ncr.NCRView, error) {
	s.lastStatus = input
	if s.err != nil {
		return ncr.NCRView{}, s.err
	}
	return ncr.NCRView{ID: input.NCRRef, Status: input.Status}, nil
}

func (s *stubNCRService) CloseNCR(_ context.Context, input ncr.CloseNCRInput) (ncr.NCRView, error) {
	return ncr.NCRView{ID: input.NCRRef, Status: "CLOSED"}, s.err
}

func (s *stubNCRService) ReopenNCR(_ context.Context, input ncr.ReopenNCRInput) (ncr.NCRView, error) {
	return ncr.NCRView{ID: input.NCRRef, Status: "OPEN"}, s.err
}

func (s *stubNCRService) AddComment(_ context.Context, input ncr.AddCommentInput) (ncr.CommentView, error) {
	s.lastComment = input
	if input.MagicLinkToken != "" && s.portalErr != nil {
		return ncr.CommentView{}, s.portalErr
	}
	return ncr.CommentView{ID: "c-9", Content: input.Content}, s.err
}

func (s *stubNCRService) CreateMagicLink(_ context.Context, input ncr.CreateMagicLinkInput) (ncr.MagicLinkIssued, error) {
	return ncr.MagicLinkIssued{LinkID: "link-1", Token: "link-1.secret"}, s.err
}

func (s *stubNCRService) RevokeMagicLink(context.Context, ncr.RevokeMagicLinkInput) error {
	return s.err
}

func (s *stubNCRService) GetSupplierView(_ context.Context, token string) (ncr.NCRDetail, error) {
	if s.portalErr != nil {
		return ncr.NCRDetail{}, s.portalErr
	}
	return ncr.NCRDetail{NCR: ncr.NCRView{ID: "ncr-1"}}, nil
}

func (s *stubNCRService) ExportNCR(_ context.Context, ref string) (ncr.NCRExport, error) {
	return ncr.NCRExport{NCR: ncr.NCRView{ID: ref, Number: "NCR-0001", Title: "Cracked slab"}}, s.err
}

func (s *stubNCRService) GetNCRDashboard(_ context.Context, orgID string) (ncr.Dashboard, error) {
	return ncr.Dashboard{OrganizationID: orgID, TotalNCRs: 3, NCRRate: 150}, s.err
}

type stubReadiness struct {
	lastRun string
	err     error
}

func (s stubReadiness) Ready(context.Context) (string, error) {
	return s.lastRun, s.err
}

func signStaffToken(t *testing.T, subject string, role string, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, staffClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

func doRequest(t *testing.T, handler http.Handler, method string, path string, body string, bearer string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var envelope apiEnvelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, envelope
}

func TestAPIRequiresBearerToken(t *testing.T) {
	handler := newAPIRouter(&stubNCRService{}, nil, testJWTSecret)

	cases := []struct {
		name   string
		bearer string
	}{
		{"missing", ""},
		{"garbage", "not-a-jwt"},
		{"wrong secret", signStaffToken(t, "u-qa", "QA", []byte("other"))},
		{"unknown role", signStaffToken(t, "u-qa", "GUEST", testJWTSecret)},
		{"no subject", signStaffToken(t, "", "QA", testJWTSecret)},
	}
	for _, tc := range cases {
		rec, envelope := doRequest(t, handler, http.MethodGet, "/api/ncrs/ncr-1", "", tc.bearer)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status = %d, want 401", tc.name, rec.Code)
		}
		if envelope.Success || envelope.Error == nil || envelope.Error.Kind != "UnauthorizedError" {
			t.Fatalf("%s: envelope = %+v", tc.name, envelope)
		}
	}
}

func TestAPICreateNCRUsesTokenActor(t *testing.T) {
	svc := &stubNCRService{}
	handler := newAPIRouter(svc, nil, testJWTSecret)
	token := signStaffToken(t, "u-qa", "qa", testJWTSecret)

	body := `{"organizationId":"org-1","projectId":"prj-1","purchaseOrderId":"po-1","supplierId":"sup-1","title":"Bent rebar","severity":"MAJOR","issueType":"DIMENSIONAL"}`
	rec, envelope := doRequest(t, handler, http.MethodPost, "/api/ncrs", body, token)
	if rec.Code != http.StatusCreated || !envelope.Success {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.lastActor.UserID != "u-qa" || svc.lastActor.Role != domainncr.RoleQA {
		t.Fatalf("actor = %+v", svc.lastActor)
	}
	data, _ := envelope.Data.(map[string]any)
	if data["reporterId"] != "u-qa" {
		t.Fatalf("reporter default = %v", data["reporterId"])
	}

	rec, envelope = doRequest(t, handler, http.MethodPost, "/api/ncrs", `{"bogus":true}`, token)
	if rec.Code != http.StatusBadRequest || envelope.Error.Kind != domainncr.KindValidation {
		t.Fatalf("unknown field status = %d, envelope = %+v", rec.Code, envelope)
	}
}

func TestAPIMapsErrorKindsToStatus(t *testing.T) {
	token := signStaffToken(t, "u-pm", "PM", testJWTSecret)
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{fmt.Errorf("%w: title is required", domainncr.ErrValidation), http.StatusBadRequest, domainncr.KindValidation},
		{fmt.Errorf("%w: ncr NCR-0042", domainncr.ErrNotFound), http.StatusNotFound, domainncr.KindNotFound},
		{fmt.Errorf("%w: role", domainncr.ErrPermission), http.StatusForbidden, domainncr.KindPermission},
		{fmt.Errorf("%w: OPEN -> OPEN", domainncr.ErrInvalidTransition), http.StatusConflict, domainncr.KindInvalidTransition},
		{fmt.Errorf("%w: credit note", domainncr.ErrPrecondition), http.StatusUnprocessableEntity, domainncr.KindPrecondition},
		{fmt.Errorf("%w: stale", domainncr.ErrConflict), http.StatusConflict, domainncr.KindConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError, domainncr.KindInternal},
	}
	for _, tc := range cases {
		handler := newAPIRouter(&stubNCRService{err: tc.err}, nil, testJWTSecret)
		rec, envelope := doRequest(t, handler, http.MethodPost, "/api/ncrs/ncr-1/actions", `{"action":"update_status","status":"RESOLVED"}`, token)
		if rec.Code != tc.status {
			t.Fatalf("%v: status = %d, want %d", tc.err, rec.Code, tc.status)
		}
		if envelope.Success || envelope.Error == nil || envelope.Error.Kind != tc.kind {
			t.Fatalf("%v: envelope = %+v", tc.err, envelope)
		}
		if tc.kind == domainncr.KindInternal && envelope.Error.Message != "internal error" {
			t.Fatalf("internal error leaked: %q", envelope.Error.Message)
		}
	}
}

func TestAPIActionDispatch(t *testing.T) {
	svc := &stubNCRService{}
	handler := newAPIRouter(svc, nil, testJWTSecret)
	token := signStaffToken(t, "u-pm", "PM", testJWTSecret)

	rec, envelope := doRequest(t, handler, http.MethodPost, "/api/ncrs/NCR-0001/actions", `{"action":"update_status","status":"RESOLVED","reason":"fixed"}`, token)
	if rec.Code != http.StatusOK || !envelope.Success {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if svc.lastStatus.NCRRef != "NCR-0001" || svc.lastStatus.Reason != "fixed" || svc.lastStatus.Actor.UserID != "u-pm" {
		t.Fatalf("update input = %+v", svc.lastStatus)
	}

	rec, envelope = doRequest(t, handler, http.MethodPost, "/api/ncrs/NCR-0001/actions", `{"action":"archive"}`, token)
	if rec.Code != http.StatusBadRequest || envelope.Error.Kind != domainncr.KindValidation {
		t.Fatalf("unknown action status = %d", rec.Code)
	}
}

func TestPortalCollapsesNotFoundAndExpired(t *testing.T) {
	for _, portalErr := range []error{
		fmt.Errorf("%w: magic link", domainncr.ErrNotFound),
		fmt.Errorf("%w: magic link", domainncr.ErrExpired),
	} {
		handler := newAPIRouter(&stubNCRService{portalErr: portalErr}, nil, testJWTSecret)

		rec, envelope := doRequest(t, handler, http.MethodGet, "/portal/ncr?token=abc.def", "", "")
		if rec.Code != http.StatusNotFound || envelope.Error.Message != portalLinkMessage || envelope.Error.Kind != domainncr.KindNotFound {
			t.Fatalf("view %v: status = %d, envelope = %+v", portalErr, rec.Code, envelope)
		}

		rec, envelope = doRequest(t, handler, http.MethodPost, "/portal/ncr/comments", `{"token":"abc.def","content":"hi"}`, "")
		if rec.Code != http.StatusNotFound || envelope.Error.Message != portalLinkMessage {
			t.Fatalf("comment %v: status = %d, envelope = %+v", portalErr, rec.Code, envelope)
		}
	}
}

func TestPortalCommentKeepsContentErrors(t *testing.T) {
	svc := &stubNCRService{portalErr: fmt.Errorf("%w: comment cannot be empty", domainncr.ErrValidation)}
	handler := newAPIRouter(svc, nil, testJWTSecret)

	rec, envelope := doRequest(t, handler, http.MethodPost, "/portal/ncr/comments", `{"token":"abc.def"}`, "")
	if rec.Code != http.StatusBadRequest || !strings.Contains(envelope.Error.Message, "comment cannot be empty") {
		t.Fatalf("status = %d, envelope = %+v", rec.Code, envelope)
	}
	if svc.lastComment.Actor != nil || svc.lastComment.MagicLinkToken != "abc.def" {
		t.Fatalf("portal comment input = %+v", svc.lastComment)
	}
}

func TestExportFormats(t *testing.T) {
	handler := newAPIRouter(&stubNCRService{}, nil, testJWTSecret)
	token := signStaffToken(t, "u-qa", "QA", testJWTSecret)

	req := httptest.NewRequest(http.MethodGet, "/api/ncrs/ncr-1/export?format=yaml", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/yaml" {
		t.Fatalf("status = %d, content-type = %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "number: NCR-0001") {
		t.Fatalf("yaml body = %s", rec.Body.String())
	}

	rec, envelope := doRequest(t, handler, http.MethodGet, "/api/ncrs/ncr-1/export?format=pdf", "", token)
	if rec.Code != http.StatusBadRequest || envelope.Error.Kind != domainncr.KindValidation {
		t.Fatalf("pdf status = %d", rec.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	handler := newAPIRouter(&stubNCRService{}, stubReadiness{lastRun: "2026-03-02T09:00:00Z"}, testJWTSecret)

	rec, _ := doRequest(t, handler, http.MethodGet, "/health", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}

	rec, envelope := doRequest(t, handler, http.MethodGet, "/ready", "", "")
	data, _ := envelope.Data.(map[string]any)
	if rec.Code != http.StatusOK || data["schedulerLastRun"] != "2026-03-02T09:00:00Z" {
		t.Fatalf("ready status = %d, data = %v", rec.Code, data)
	}

	down := newAPIRouter(&stubNCRService{}, stubReadiness{err: errors.New("db down")}, testJWTSecret)
	rec, _ = doRequest(t, down, http.MethodGet, "/ready", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready (down) status = %d", rec.Code)
	}
}
