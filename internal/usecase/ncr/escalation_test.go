package ncr

import (
	"context"
	"sync"
	"testing"
	"time"

	domainncr "ncrflow/internal/domain/ncr"
	sqliterepo "ncrflow/internal/infrastructure/persistence/sqlite/repository"
	"ncrflow/internal/ports"
)

func TestEscalationScanEmitsOncePerLevel(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "CRITICAL")

	env.clock.Set(testBase.Add(23 * time.Hour))
	summary, err := env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	if summary.Overdue != 0 || summary.Escalated != 0 {
		t.Fatalf("summary before due = %+v", summary)
	}

	env.clock.Set(testBase.Add(25 * time.Hour))
	summary, err = env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	if summary.Scanned != 1 || summary.Overdue != 1 || summary.Escalated != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	events := env.notifier.ofKind(domainncr.NotifyEscalated)
	if len(events) != 1 {
		t.Fatalf("escalation events = %d, want 1", len(events))
	}
	event := events[0]
	if event.NCRNumber != view.Number || event.Recipient != "u-owner" {
		t.Fatalf("event = %+v", event)
	}
	// The payload reaches the notifier through the outbox as JSON.
	if event.Data["level"] != float64(1) || event.Data["poNumber"] != "PO-2026-001" || event.Data["supplierName"] != "Acme Steel" {
		t.Fatalf("event data = %+v", event.Data)
	}

	summary, err = env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan(repeat) error = %v", err)
	}
	if summary.Escalated != 0 || summary.AlreadyEscalated != 1 {
		t.Fatalf("repeat summary = %+v", summary)
	}
	if got := len(env.notifier.ofKind(domainncr.NotifyEscalated)); got != 1 {
		t.Fatalf("escalation events after repeat = %d, want 1", got)
	}

	current, err := env.svc.GetNCRByID(ctx, view.ID, false)
	if err != nil {
		t.Fatalf("GetNCRByID() error = %v", err)
	}
	if current.NCR.Status != "OPEN" || !current.NCR.Overdue {
		t.Fatalf("scan changed ncr: status=%s overdue=%v", current.NCR.Status, current.NCR.Overdue)
	}

	if _, found, _ := env.cache.Get(ctx, SchedulerLastRunKey); !found {
		t.Fatalf("scheduler heartbeat not written")
	}
}

func TestEscalationScanJumpsToCurrentLevel(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "CRITICAL")

	// Due at +24h; +24h+25h is one full window past due.
	env.clock.Set(testBase.Add(49 * time.Hour))
	if _, err := env.svc.RunEscalationScan(ctx); err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}

	markers, err := env.repo.ListEscalations(ctx, view.ID)
	if err != nil {
		t.Fatalf("ListEscalations() error = %v", err)
	}
	if len(markers) != 1 || markers[0].Level != 2 {
		t.Fatalf("markers = %+v, want single level 2", markers)
	}

	env.clock.Set(testBase.Add(30 * 24 * time.Hour))
	if _, err := env.svc.RunEscalationScan(ctx); err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	markers, err = env.repo.ListEscalations(ctx, view.ID)
	if err != nil {
		t.Fatalf("ListEscalations() error = %v", err)
	}
	if len(markers) != 2 || markers[1].Level != 3 {
		t.Fatalf("markers = %+v, want level capped at 3", markers)
	}
}

func TestEscalationEnqueueFailureRetriesNextScan(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "CRITICAL")
	env.clock.Set(testBase.Add(25 * time.Hour))

	env.notifier.set(func(n *testNotifier) { n.fail = true })
	summary, err := env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	if summary.Escalated != 1 || summary.Notified != 0 || summary.NotifyDeferred != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	markers, err := env.repo.ListEscalations(ctx, view.ID)
	if err != nil {
		t.Fatalf("ListEscalations() error = %v", err)
	}
	if len(markers) != 1 {
		t.Fatalf("markers = %+v, want 1", markers)
	}
	pending, err := env.repo.ListPendingNotifications(ctx, 0)
	if err != nil {
		t.Fatalf("ListPendingNotifications() error = %v", err)
	}
	if len(pending) != 1 || pending[0].NCRID != view.ID {
		t.Fatalf("pending = %+v, want the rejected escalation", pending)
	}

	env.notifier.set(func(n *testNotifier) { n.fail = false })
	summary, err = env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan(retry) error = %v", err)
	}
	if summary.Escalated != 0 || summary.AlreadyEscalated != 1 || summary.Notified != 1 {
		t.Fatalf("retry summary = %+v", summary)
	}
	if got := env.notifier.escalationsFor(view.ID, 1); got != 1 {
		t.Fatalf("escalation events = %d, want 1", got)
	}

	if _, err := env.svc.RunEscalationScan(ctx); err != nil {
		t.Fatalf("RunEscalationScan(third) error = %v", err)
	}
	if got := env.notifier.escalationsFor(view.ID, 1); got != 1 {
		t.Fatalf("escalation events after third scan = %d, want 1", got)
	}
}

func TestEscalationSlowNotifierDoesNotDuplicate(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	view := env.createNCR(t, "CRITICAL")

	env.rebuild(env.repo, Options{PerNCRTimeout: 100 * time.Millisecond})
	env.notifier.set(func(n *testNotifier) { n.delay = 250 * time.Millisecond })
	env.clock.Set(testBase.Add(25 * time.Hour))

	summary, err := env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	if summary.Escalated != 1 || summary.Failed != 0 || summary.Notified != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	summary, err = env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan(repeat) error = %v", err)
	}
	if summary.Escalated != 0 || summary.AlreadyEscalated != 1 || summary.Notified != 0 {
		t.Fatalf("repeat summary = %+v", summary)
	}

	if got := env.notifier.escalationsFor(view.ID, 1); got != 1 {
		t.Fatalf("level 1 escalation events = %d, want 1", got)
	}
	markers, err := env.repo.ListEscalations(ctx, view.ID)
	if err != nil {
		t.Fatalf("ListEscalations() error = %v", err)
	}
	if len(markers) != 1 {
		t.Fatalf("markers = %+v, want 1", markers)
	}
	escalatedEntries := 0
	for _, action := range env.auditActions(t, view.ID) {
		if action == string(domainncr.AuditEscalated) {
			escalatedEntries++
		}
	}
	if escalatedEntries != 1 {
		t.Fatalf("ESCALATED audit entries = %d, want 1", escalatedEntries)
	}
}

// stallingClaimRepository holds the first escalation claim for one NCR
// until the caller gives up on it.
type stallingClaimRepository struct {
	*sqliterepo.NCRRepository
	ncrID string

	mu      sync.Mutex
	stalled bool
}

func (r *stallingClaimRepository) ClaimEscalation(ctx context.Context, marker ports.EscalationMarker) (bool, error) {
	r.mu.Lock()
	stall := marker.NCRID == r.ncrID && !r.stalled
	if stall {
		r.stalled = true
	}
	r.mu.Unlock()

	if stall {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return r.NCRRepository.ClaimEscalation(ctx, marker)
}

func TestEscalationStalledNCRIsRetriedWithoutBlockingOthers(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	stalled := env.createNCR(t, "CRITICAL")
	other := env.createNCR(t, "CRITICAL")

	env.rebuild(&stallingClaimRepository{NCRRepository: env.repo, ncrID: stalled.ID}, Options{PerNCRTimeout: 200 * time.Millisecond})
	env.clock.Set(testBase.Add(25 * time.Hour))

	summary, err := env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	if summary.Overdue != 2 || summary.Failed != 1 || summary.Escalated != 1 || summary.Notified != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := env.notifier.escalationsFor(other.ID, 1); got != 1 {
		t.Fatalf("other ncr events = %d, want 1", got)
	}
	if got := env.notifier.escalationsFor(stalled.ID, 1); got != 0 {
		t.Fatalf("stalled ncr events = %d, want 0", got)
	}
	if markers, _ := env.repo.ListEscalations(ctx, stalled.ID); len(markers) != 0 {
		t.Fatalf("abandoned claim left a marker: %+v", markers)
	}

	summary, err = env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan(retry) error = %v", err)
	}
	if summary.Failed != 0 || summary.Escalated != 1 || summary.AlreadyEscalated != 1 {
		t.Fatalf("retry summary = %+v", summary)
	}
	for _, id := range []string{stalled.ID, other.ID} {
		if got := env.notifier.escalationsFor(id, 1); got != 1 {
			t.Fatalf("events for %s = %d, want 1", id, got)
		}
	}
}

func TestEscalationDispatchFailureIsIsolatedPerNCR(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	rejected := env.createNCR(t, "CRITICAL")
	accepted := env.createNCR(t, "CRITICAL")

	env.notifier.set(func(n *testNotifier) { n.failNCR = rejected.ID })
	env.clock.Set(testBase.Add(25 * time.Hour))

	summary, err := env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	if summary.Escalated != 2 || summary.Failed != 0 || summary.Notified != 1 || summary.NotifyDeferred != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := env.notifier.escalationsFor(accepted.ID, 1); got != 1 {
		t.Fatalf("accepted ncr events = %d, want 1", got)
	}
	if got := env.notifier.escalationsFor(rejected.ID, 1); got != 0 {
		t.Fatalf("rejected ncr events = %d, want 0", got)
	}

	env.notifier.set(func(n *testNotifier) { n.failNCR = "" })
	summary, err = env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan(retry) error = %v", err)
	}
	if summary.Escalated != 0 || summary.AlreadyEscalated != 2 || summary.Notified != 1 || summary.NotifyDeferred != 0 {
		t.Fatalf("retry summary = %+v", summary)
	}
	for _, id := range []string{rejected.ID, accepted.ID} {
		if got := env.notifier.escalationsFor(id, 1); got != 1 {
			t.Fatalf("events for %s = %d, want 1", id, got)
		}
	}
}

func TestEscalationSkipsClosedAndUsesAssignee(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	closed := env.driveTo(t, domainncr.StatusClosed, "CRITICAL")
	input := validCreateInput("MAJOR")
	input.AssigneeID = "u-assignee"
	assigned, err := env.svc.CreateNCR(ctx, input)
	if err != nil {
		t.Fatalf("CreateNCR() error = %v", err)
	}

	env.clock.Set(testBase.Add(80 * time.Hour))
	summary, err := env.svc.RunEscalationScan(ctx)
	if err != nil {
		t.Fatalf("RunEscalationScan() error = %v", err)
	}
	if summary.Scanned != 1 || summary.Escalated != 1 {
		t.Fatalf("summary = %+v", summary)
	}
	events := env.notifier.ofKind(domainncr.NotifyEscalated)
	if len(events) != 1 || events[0].NCRID != assigned.ID || events[0].Recipient != "u-assignee" {
		t.Fatalf("events = %+v", events)
	}
	if markers, _ := env.repo.ListEscalations(ctx, closed.ID); len(markers) != 0 {
		t.Fatalf("closed ncr escalated: %+v", markers)
	}
}
