package ncr

import (
	"context"
	"strings"
	"testing"

	domainncr "ncrflow/internal/domain/ncr"
)

func TestCommentVisibility(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "MAJOR")
	actor := qaActor

	if _, err := env.svc.AddComment(ctx, AddCommentInput{
		Actor:      &actor,
		NCRRef:     view.ID,
		Content:    "Supplier has two prior NCRs on this line",
		IsInternal: true,
	}); err != nil {
		t.Fatalf("AddComment(internal) error = %v", err)
	}
	if _, err := env.svc.AddComment(ctx, AddCommentInput{
		Actor:          &actor,
		NCRRef:         view.Number,
		AttachmentURLs: []string{"https://files.example.com/ncr/photo-1.jpg"},
	}); err != nil {
		t.Fatalf("AddComment(attachment only) error = %v", err)
	}

	issued := env.issueLink(t, view.ID, 72)
	supplierView, err := env.svc.GetSupplierView(ctx, issued.Token)
	if err != nil {
		t.Fatalf("GetSupplierView() error = %v", err)
	}
	if len(supplierView.Comments) != 1 {
		t.Fatalf("supplier sees %d comments, want 1", len(supplierView.Comments))
	}
	for _, comment := range supplierView.Comments {
		if comment.IsInternal {
			t.Fatalf("internal comment leaked to supplier")
		}
	}

	staffView, err := env.svc.GetNCRByID(ctx, view.ID, true)
	if err != nil {
		t.Fatalf("GetNCRByID() error = %v", err)
	}
	if len(staffView.Comments) != 2 {
		t.Fatalf("staff sees %d comments, want 2", len(staffView.Comments))
	}
	if staffView.Comments[0].AuthorUserID != "u-qa" || staffView.Comments[0].AuthorRole != "QA" {
		t.Fatalf("first comment author = %+v", staffView.Comments[0])
	}
}

func TestAddCommentRejections(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "MAJOR")
	issued := env.issueLink(t, view.ID, 72)
	actor := qaActor

	_, err := env.svc.AddComment(ctx, AddCommentInput{Actor: &actor, NCRRef: view.ID, Content: "   "})
	if domainncr.KindOf(err) != domainncr.KindValidation || !strings.Contains(err.Error(), "comment cannot be empty") {
		t.Fatalf("empty comment error = %v", err)
	}

	_, err = env.svc.AddComment(ctx, AddCommentInput{NCRRef: view.ID, Content: "who am i"})
	assertKind(t, err, domainncr.ErrValidation)

	_, err = env.svc.AddComment(ctx, AddCommentInput{Actor: &actor, MagicLinkToken: issued.Token, Content: "both"})
	assertKind(t, err, domainncr.ErrValidation)

	_, err = env.svc.AddComment(ctx, AddCommentInput{Actor: &actor, NCRRef: view.ID, VoiceNoteURL: "not a url"})
	assertKind(t, err, domainncr.ErrValidation)

	_, err = env.svc.AddComment(ctx, AddCommentInput{MagicLinkToken: issued.Token, Content: "secret", IsInternal: true})
	assertKind(t, err, domainncr.ErrPermission)

	_, err = env.svc.AddComment(ctx, AddCommentInput{MagicLinkToken: issued.LinkID + ".bogus", Content: "hi"})
	assertKind(t, err, domainncr.ErrNotFound)

	other := env.createNCR(t, "MINOR")
	_, err = env.svc.AddComment(ctx, AddCommentInput{MagicLinkToken: issued.Token, NCRRef: other.ID, Content: "wrong ncr"})
	assertKind(t, err, domainncr.ErrNotFound)

	if _, err := env.svc.CloseNCR(ctx, CloseNCRInput{Actor: pmActor, NCRRef: view.ID, ClosedReason: "done"}); err != nil {
		t.Fatalf("CloseNCR() error = %v", err)
	}
	_, err = env.svc.AddComment(ctx, AddCommentInput{MagicLinkToken: issued.Token, Content: "late reply"})
	assertKind(t, err, domainncr.ErrPrecondition)

	link, err := env.links.GetMagicLink(ctx, issued.LinkID)
	if err != nil {
		t.Fatalf("GetMagicLink() error = %v", err)
	}
	if link.ActionCount != 0 {
		t.Fatalf("rejected comments counted as actions: %d", link.ActionCount)
	}
}

func TestSupplierCommentOnPendingKeepsStatus(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.driveTo(t, domainncr.StatusResolved, "MAJOR")
	issued := env.issueLink(t, view.ID, 72)

	for i := 0; i < 2; i++ {
		if _, err := env.svc.AddComment(ctx, AddCommentInput{MagicLinkToken: issued.Token, Content: "follow-up"}); err != nil {
			t.Fatalf("AddComment() error = %v", err)
		}
	}

	current, err := env.svc.GetNCRByID(ctx, view.ID, false)
	if err != nil {
		t.Fatalf("GetNCRByID() error = %v", err)
	}
	if current.NCR.Status != string(domainncr.StatusResolved) {
		t.Fatalf("status = %s, want RESOLVED", current.NCR.Status)
	}
	link, err := env.links.GetMagicLink(ctx, issued.LinkID)
	if err != nil {
		t.Fatalf("GetMagicLink() error = %v", err)
	}
	if link.ActionCount != 2 {
		t.Fatalf("actionCount = %d, want 2", link.ActionCount)
	}
}
