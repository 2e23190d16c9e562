package ncr

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	domainncr "ncrflow/internal/domain/ncr"
)

func (e *testEnv) issueLink(t *testing.T, ncrID string, hours int) MagicLinkIssued {
	t.Helper()
	issued, err := e.svc.CreateMagicLink(context.Background(), CreateMagicLinkInput{
		Actor:          qaActor,
		NCRRef:         ncrID,
		SupplierID:     "sup-1",
		ExpiresInHours: hours,
	})
	if err != nil {
		t.Fatalf("CreateMagicLink() error = %v", err)
	}
	return issued
}

func TestSupplierResponseScenario(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "MAJOR")

	issued := env.issueLink(t, view.ID, 72)
	if !strings.HasPrefix(issued.Token, issued.LinkID+".") {
		t.Fatalf("token %q does not carry link id %q", issued.Token, issued.LinkID)
	}
	if !strings.HasPrefix(issued.URL, "https://portal.example.com/portal/ncr?token=") {
		t.Fatalf("url = %q", issued.URL)
	}
	if issued.ExpiresAt != formatTime(testBase.Add(72*time.Hour)) {
		t.Fatalf("expiresAt = %q", issued.ExpiresAt)
	}

	stored, err := env.links.GetMagicLink(ctx, issued.LinkID)
	if err != nil {
		t.Fatalf("GetMagicLink() error = %v", err)
	}
	if strings.Contains(issued.Token, stored.SecretDigest) || stored.SecretDigest == "" {
		t.Fatalf("stored digest leaks or is empty")
	}

	env.clock.Set(testBase.Add(10 * time.Hour))
	if _, err := env.svc.AddComment(ctx, AddCommentInput{
		MagicLinkToken: issued.Token,
		Content:        "Replacement batch ships Friday",
	}); err != nil {
		t.Fatalf("AddComment(supplier) error = %v", err)
	}

	link, err := env.links.GetMagicLink(ctx, issued.LinkID)
	if err != nil {
		t.Fatalf("GetMagicLink() error = %v", err)
	}
	if link.ActionCount != 1 || link.RespondedAt == nil || *link.RespondedAt != formatTime(testBase.Add(10*time.Hour)) {
		t.Fatalf("link after response = %+v", link)
	}

	current, err := env.svc.GetNCRByID(ctx, view.ID, false)
	if err != nil {
		t.Fatalf("GetNCRByID() error = %v", err)
	}
	if current.NCR.Status != string(domainncr.StatusPendingSupplierResponse) {
		t.Fatalf("status = %s, want PENDING_SUPPLIER_RESPONSE", current.NCR.Status)
	}

	entries, err := env.repo.ListAuditEntries(ctx, view.ID)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	var statusEntryActor string
	for _, entry := range entries {
		if entry.Action == string(domainncr.AuditStatusChanged) {
			statusEntryActor = entry.Actor
		}
	}
	if statusEntryActor != "magic_link:"+issued.LinkID {
		t.Fatalf("status change actor = %q", statusEntryActor)
	}
	if got := env.notifier.ofKind(domainncr.NotifyResponded); len(got) != 1 {
		t.Fatalf("responded notifications = %d, want 1", len(got))
	}

	env.clock.Set(testBase.Add(80 * time.Hour))
	_, err = env.svc.ValidateMagicLink(ctx, issued.Token)
	if domainncr.KindOf(err) != domainncr.KindExpired {
		t.Fatalf("ValidateMagicLink(expired) error = %v, want ExpiredError", err)
	}
}

func TestValidateMagicLinkRejectsUnknownTokensUniformly(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "MAJOR")
	issued := env.issueLink(t, view.ID, 0)
	other := env.issueLink(t, view.ID, 0)

	_, secret, _ := strings.Cut(issued.Token, ".")
	_, otherSecret, _ := strings.Cut(other.Token, ".")

	cases := map[string]string{
		"empty":        "",
		"malformed":    "not-a-token",
		"unknown id":   "3f0c6a4e-0000-4000-8000-000000000000." + secret,
		"wrong secret": issued.LinkID + "." + otherSecret,
	}
	for name, token := range cases {
		_, err := env.svc.ValidateMagicLink(ctx, token)
		if domainncr.KindOf(err) != domainncr.KindNotFound {
			t.Fatalf("%s: error = %v, want NotFoundError", name, err)
		}
	}

	if err := env.svc.RevokeMagicLink(ctx, RevokeMagicLinkInput{Actor: pmActor, LinkID: other.LinkID}); err != nil {
		t.Fatalf("RevokeMagicLink() error = %v", err)
	}
	if err := env.svc.RevokeMagicLink(ctx, RevokeMagicLinkInput{Actor: pmActor, LinkID: other.LinkID}); err != nil {
		t.Fatalf("RevokeMagicLink(again) error = %v", err)
	}
	_, err := env.svc.ValidateMagicLink(ctx, other.Token)
	if domainncr.KindOf(err) != domainncr.KindNotFound {
		t.Fatalf("revoked: error = %v, want NotFoundError", err)
	}

	revokedEntries := 0
	for _, action := range env.auditActions(t, view.ID) {
		if action == string(domainncr.AuditMagicLinkRevoked) {
			revokedEntries++
		}
	}
	if revokedEntries != 1 {
		t.Fatalf("MAGIC_LINK_REVOKED entries = %d, want 1", revokedEntries)
	}
}

func TestValidateMagicLinkStampsViewedOnce(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "MINOR")
	issued := env.issueLink(t, view.ID, 72)

	env.clock.Set(testBase.Add(time.Hour))
	access, err := env.svc.ValidateMagicLink(ctx, issued.Token)
	if err != nil {
		t.Fatalf("ValidateMagicLink() error = %v", err)
	}
	if access.NCRID != view.ID || access.SupplierID != "sup-1" {
		t.Fatalf("access = %+v", access)
	}
	raw, err := json.Marshal(access)
	if err != nil {
		t.Fatalf("marshal access: %v", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		t.Fatalf("unmarshal access: %v", err)
	}
	if len(fields) != 2 {
		t.Fatalf("access exposes %v, want only ncrId and supplierId", fields)
	}

	env.clock.Set(testBase.Add(5 * time.Hour))
	if _, err := env.svc.ValidateMagicLink(ctx, issued.Token); err != nil {
		t.Fatalf("ValidateMagicLink(second) error = %v", err)
	}

	link, err := env.links.GetMagicLink(ctx, issued.LinkID)
	if err != nil {
		t.Fatalf("GetMagicLink() error = %v", err)
	}
	if link.ViewedAt == nil || *link.ViewedAt != formatTime(testBase.Add(time.Hour)) {
		t.Fatalf("viewedAt = %v, want first validation time", link.ViewedAt)
	}
	if link.ActionCount != 0 {
		t.Fatalf("viewing counted as action: %d", link.ActionCount)
	}
}

func TestCreateMagicLinkGuards(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "MAJOR")

	_, err := env.svc.CreateMagicLink(ctx, CreateMagicLinkInput{Actor: memberActor, NCRRef: view.ID, SupplierID: "sup-1"})
	assertKind(t, err, domainncr.ErrPermission)

	_, err = env.svc.CreateMagicLink(ctx, CreateMagicLinkInput{Actor: qaActor, NCRRef: view.ID, SupplierID: "sup-2"})
	assertKind(t, err, domainncr.ErrValidation)

	_, err = env.svc.CreateMagicLink(ctx, CreateMagicLinkInput{Actor: qaActor, NCRRef: view.ID, SupplierID: "sup-1", ExpiresInHours: 10000})
	assertKind(t, err, domainncr.ErrValidation)

	err = env.svc.RevokeMagicLink(ctx, RevokeMagicLinkInput{Actor: memberActor, LinkID: "any"})
	assertKind(t, err, domainncr.ErrPermission)

	err = env.svc.RevokeMagicLink(ctx, RevokeMagicLinkInput{Actor: qaActor, LinkID: "missing"})
	assertKind(t, err, domainncr.ErrNotFound)

	closed := env.driveTo(t, domainncr.StatusClosed, "MAJOR")
	_, err = env.svc.CreateMagicLink(ctx, CreateMagicLinkInput{Actor: qaActor, NCRRef: closed.ID, SupplierID: "sup-1"})
	assertKind(t, err, domainncr.ErrPrecondition)
}
