package ncr

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	domainncr "ncrflow/internal/domain/ncr"
	"ncrflow/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "ncrflow/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "ncrflow/internal/infrastructure/persistence/sqlite/uow"
	"ncrflow/internal/ports"
)

var testBase = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var (
	qaActor     = domainncr.Actor{UserID: "u-qa", Role: domainncr.RoleQA}
	pmActor     = domainncr.Actor{UserID: "u-pm", Role: domainncr.RolePM}
	memberActor = domainncr.Actor{UserID: "u-member", Role: domainncr.RoleMember}
)

type testCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newTestCache() *testCache {
	return &testCache{data: make(map[string]string)}
}

func (c *testCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *testCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *testCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type testNotifier struct {
	mu      sync.Mutex
	events  []ports.NotificationEvent
	fail    bool
	failNCR string
	// delay runs after the event is recorded, like a sink that accepted
	// the event but is slow to return.
	delay time.Duration
}

func (n *testNotifier) Dispatch(_ context.Context, event ports.NotificationEvent) error {
	n.mu.Lock()
	if n.fail || (n.failNCR != "" && n.failNCR == event.NCRID) {
		n.mu.Unlock()
		return ports.ErrNotifierUnavailable
	}
	n.events = append(n.events, event)
	delay := n.delay
	n.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return nil
}

func (n *testNotifier) set(fn func(n *testNotifier)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fn(n)
}

func (n *testNotifier) ofKind(kind domainncr.NotificationKind) []ports.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []ports.NotificationEvent
	for _, event := range n.events {
		if event.Kind == string(kind) {
			out = append(out, event)
		}
	}
	return out
}

// escalationsFor counts ESCALATED events for one NCR at one level.
func (n *testNotifier) escalationsFor(ncrID string, level int) int {
	count := 0
	for _, event := range n.ofKind(domainncr.NotifyEscalated) {
		if event.NCRID == ncrID && event.Data["level"] == float64(level) {
			count++
		}
	}
	return count
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testEnv struct {
	svc      *Service
	db       *gorm.DB
	repo     *sqliterepo.NCRRepository
	links    *sqliterepo.MagicLinkRepository
	refs     *sqliterepo.ReferenceRepository
	cache    *testCache
	notifier *testNotifier
	clock    *fakeClock
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(gormsqlite.Open(filepath.Join(t.TempDir(), "ncr.sqlite")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	refs := sqliterepo.NewReferenceRepository(db)
	seedReferences(t, refs)

	env := &testEnv{
		db:       db,
		repo:     sqliterepo.NewNCRRepository(db),
		links:    sqliterepo.NewMagicLinkRepository(db),
		refs:     refs,
		cache:    newTestCache(),
		notifier: &testNotifier{},
		clock:    &fakeClock{t: testBase},
	}
	env.rebuild(env.repo, Options{})
	return env
}

// rebuild swaps the service for one backed by repo, keeping the env's
// database, cache, notifier and clock.
func (e *testEnv) rebuild(repo ports.NCRRepository, opts Options) {
	opts.PortalBaseURL = "https://portal.example.com/"
	e.svc = NewService(repo, e.links, e.refs, sqliteuow.NewUnitOfWork(e.db), e.cache, e.notifier, nil, opts)
	e.svc.now = e.clock.Now
}

func seedReferences(t *testing.T, refs *sqliterepo.ReferenceRepository) {
	t.Helper()
	ctx := context.Background()

	suppliers := []ports.Supplier{
		{SupplierID: "sup-1", OrganizationID: "org-1", Name: "Acme Steel", Email: "qa@acme.example"},
		{SupplierID: "sup-2", OrganizationID: "org-1", Name: "Brick Co", Email: "ops@brick.example"},
	}
	for _, supplier := range suppliers {
		if err := refs.UpsertSupplier(ctx, supplier); err != nil {
			t.Fatalf("UpsertSupplier() error = %v", err)
		}
	}
	if err := refs.UpsertProject(ctx, ports.Project{ProjectID: "prj-1", OrganizationID: "org-1", Name: "Tower A", OwnerUserID: "u-owner"}); err != nil {
		t.Fatalf("UpsertProject() error = %v", err)
	}
	pos := []ports.PurchaseOrder{
		{PurchaseOrderID: "po-1", OrganizationID: "org-1", ProjectID: "prj-1", SupplierID: "sup-1", Number: "PO-2026-001"},
		{PurchaseOrderID: "po-2", OrganizationID: "org-1", ProjectID: "prj-1", SupplierID: "sup-2", Number: "PO-2026-002"},
	}
	for _, po := range pos {
		if err := refs.UpsertPurchaseOrder(ctx, po); err != nil {
			t.Fatalf("UpsertPurchaseOrder() error = %v", err)
		}
	}
}

func validCreateInput(severity string) CreateNCRInput {
	return CreateNCRInput{
		Actor:           qaActor,
		OrganizationID:  "org-1",
		ProjectID:       "prj-1",
		PurchaseOrderID: "po-1",
		SupplierID:      "sup-1",
		Title:           "Rebar diameter out of tolerance",
		Severity:        severity,
		IssueType:       "DIMENSIONAL",
		ReporterID:      "u-qa",
	}
}

func (e *testEnv) createNCR(t *testing.T, severity string) NCRView {
	t.Helper()
	view, err := e.svc.CreateNCR(context.Background(), validCreateInput(severity))
	if err != nil {
		t.Fatalf("CreateNCR() error = %v", err)
	}
	return view
}

func (e *testEnv) auditActions(t *testing.T, ncrID string) []string {
	t.Helper()
	entries, err := e.repo.ListAuditEntries(context.Background(), ncrID)
	if err != nil {
		t.Fatalf("ListAuditEntries() error = %v", err)
	}
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		out = append(out, entry.Action)
	}
	return out
}

func assertKind(t *testing.T, err error, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("error = %v, want %v", err, want)
	}
}

func TestCreateNCRSetsSLAAndAudit(t *testing.T) {
	env := setupTestEnv(t)

	view := env.createNCR(t, "CRITICAL")
	if view.Number != "NCR-0001" {
		t.Fatalf("number = %q, want NCR-0001", view.Number)
	}
	if view.Status != string(domainncr.StatusOpen) {
		t.Fatalf("status = %q, want OPEN", view.Status)
	}
	if want := formatTime(testBase.Add(24 * time.Hour)); view.SLADueAt != want {
		t.Fatalf("slaDueAt = %q, want %q", view.SLADueAt, want)
	}
	if !view.RequiresCreditNote {
		t.Fatalf("critical ncr should require a credit note by default")
	}

	if got := env.auditActions(t, view.ID); len(got) != 1 || got[0] != "CREATED" {
		t.Fatalf("audit = %v, want [CREATED]", got)
	}
	created := env.notifier.ofKind(domainncr.NotifyCreated)
	if len(created) != 1 || created[0].Recipient != "u-owner" {
		t.Fatalf("created notifications = %+v", created)
	}

	second := env.createNCR(t, "MINOR")
	if second.Number != "NCR-0002" || second.RequiresCreditNote {
		t.Fatalf("second ncr = %s requiresCreditNote=%v", second.Number, second.RequiresCreditNote)
	}
}

func TestCreateNCRSLAOrdering(t *testing.T) {
	env := setupTestEnv(t)

	critical := env.createNCR(t, "CRITICAL")
	major := env.createNCR(t, "MAJOR")
	minor := env.createNCR(t, "MINOR")

	dues := make([]time.Time, 0, 3)
	for _, view := range []NCRView{critical, major, minor} {
		due, err := parseTime(view.SLADueAt)
		if err != nil {
			t.Fatalf("parseTime() error = %v", err)
		}
		dues = append(dues, due)
	}
	if !(dues[0].Before(dues[1]) && dues[1].Before(dues[2])) {
		t.Fatalf("sla order = %v", dues)
	}
	if got := dues[2].Sub(testBase); got != 168*time.Hour {
		t.Fatalf("minor window = %v, want 168h", got)
	}
}

func TestCreateNCRRejectsBadInput(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateNCRInput)
		want   error
	}{
		{"missing title", func(in *CreateNCRInput) { in.Title = "  " }, domainncr.ErrValidation},
		{"unknown severity", func(in *CreateNCRInput) { in.Severity = "SEVERE" }, domainncr.ErrValidation},
		{"missing reporter", func(in *CreateNCRInput) { in.ReporterID = "" }, domainncr.ErrValidation},
		{"missing po", func(in *CreateNCRInput) { in.PurchaseOrderID = "po-404" }, domainncr.ErrNotFound},
		{"missing supplier", func(in *CreateNCRInput) { in.SupplierID = "sup-404" }, domainncr.ErrNotFound},
		{"supplier mismatch", func(in *CreateNCRInput) { in.SupplierID = "sup-2" }, domainncr.ErrValidation},
		{"project mismatch", func(in *CreateNCRInput) { in.ProjectID = "prj-2" }, domainncr.ErrValidation},
		{"anonymous actor", func(in *CreateNCRInput) { in.Actor = domainncr.Actor{Role: domainncr.RoleQA} }, domainncr.ErrValidation},
		{"unknown role", func(in *CreateNCRInput) { in.Actor = domainncr.Actor{UserID: "u-x", Role: "GUEST"} }, domainncr.ErrPermission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := validCreateInput("MAJOR")
			tc.mutate(&input)
			_, err := env.svc.CreateNCR(ctx, input)
			assertKind(t, err, tc.want)
		})
	}

	items, err := env.svc.ListNCRs(ctx, ListNCRsInput{IncludeClosed: true})
	if err != nil {
		t.Fatalf("ListNCRs() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("rejected creates persisted %d ncrs", len(items))
	}
}

func TestCreateNCRCreditNoteOverride(t *testing.T) {
	env := setupTestEnv(t)

	input := validCreateInput("MINOR")
	required := true
	input.RequiresCreditNote = &required
	view, err := env.svc.CreateNCR(context.Background(), input)
	if err != nil {
		t.Fatalf("CreateNCR() error = %v", err)
	}
	if !view.RequiresCreditNote {
		t.Fatalf("override ignored")
	}
}

func TestGetNCRByNumberAndPO(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	created := env.createNCR(t, "MAJOR")

	detail, err := env.svc.GetNCRByID(ctx, "ncr-0001", false)
	if err != nil {
		t.Fatalf("GetNCRByID(number) error = %v", err)
	}
	if detail.NCR.ID != created.ID {
		t.Fatalf("resolved %s, want %s", detail.NCR.ID, created.ID)
	}

	_, err = env.svc.GetNCRByID(ctx, "missing-id", false)
	assertKind(t, err, domainncr.ErrNotFound)

	byPO, err := env.svc.GetNCRsByPO(ctx, "po-1")
	if err != nil {
		t.Fatalf("GetNCRsByPO() error = %v", err)
	}
	if len(byPO) != 1 {
		t.Fatalf("GetNCRsByPO() len = %d, want 1", len(byPO))
	}
	_, err = env.svc.GetNCRsByPO(ctx, "po-404")
	assertKind(t, err, domainncr.ErrNotFound)
}
