package migrate

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Sternrassler/xog-migrate/pkg/query"
	"github.com/Sternrassler/xog-migrate/pkg/xog"
	"github.com/beevik/etree"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubSession records calls and answers them with handler.
type stubSession struct {
	name    string
	authed  bool
	handler func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error)

	mu    sync.Mutex
	calls []*etree.Element
}

func (s *stubSession) Name() string        { return s.name }
func (s *stubSession) Authenticated() bool { return s.authed }

func (s *stubSession) Call(ctx context.Context, body *etree.Element) (*xog.Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, body)
	n := len(s.calls)
	s.mu.Unlock()

	return s.handler(ctx, n, body)
}

func (s *stubSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubSession) call(i int) *etree.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[i]
}

func intPtr(n int) *int { return &n }

func pageElement(n int) *etree.Element {
	el := etree.NewElement("NikuDataBus")
	el.CreateAttr("page", strconv.Itoa(n))
	return el
}

// pagedSource returns a source whose n-th call answers with cursors[n-1].
func pagedSource(cursors ...*int) *stubSession {
	return &stubSession{
		name:   "source",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			var skip *int
			if n <= len(cursors) {
				skip = cursors[n-1]
			}
			return &xog.Response{Payload: pageElement(n), Skip: skip}, nil
		},
	}
}

// endlessSource always points at another page.
func endlessSource() *stubSession {
	return &stubSession{
		name:   "source",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			return &xog.Response{Payload: pageElement(n), Skip: intPtr(n * 50)}, nil
		},
	}
}

func okDestination() *stubSession {
	return &stubSession{
		name:   "destination",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			return &xog.Response{Payload: body}, nil
		},
	}
}

func projectRequest() query.Bundle {
	return query.Project(query.DefaultProjectOptions(), query.Equals("active", true))
}

func skipArg(el *etree.Element) (string, bool) {
	for _, arg := range el.FindElements("./Header/args") {
		if arg.SelectAttrValue("name", "") == query.ArgSkip {
			return arg.SelectAttrValue("value", ""), true
		}
	}
	return "", false
}

func TestNew_Defaults(t *testing.T) {
	m := New(okDestination(), okDestination(), Config{})
	if m.config.Concurrency != 3 {
		t.Errorf("Concurrency = %d, want 3", m.config.Concurrency)
	}
}

func TestMigrate_PaginationTerminates(t *testing.T) {
	src := pagedSource(intPtr(1), intPtr(2), nil)
	dest := okDestination()

	pages, err := New(src, dest, DefaultConfig()).Migrate(context.Background(), projectRequest(), nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if src.count() != 3 {
		t.Errorf("source calls = %d, want 3", src.count())
	}
	if dest.count() != 3 {
		t.Errorf("destination calls = %d, want 3", dest.count())
	}
	if len(pages) != 3 {
		t.Fatalf("len(pages) = %d, want 3", len(pages))
	}
	for i, page := range pages {
		if got := page.SelectAttrValue("page", ""); got != strconv.Itoa(i+1) {
			t.Errorf("pages[%d] = page %s, want %d", i, got, i+1)
		}
	}
}

func TestMigrate_ThreadsSkipCursor(t *testing.T) {
	src := pagedSource(intPtr(1), intPtr(2), nil)

	if _, err := New(src, okDestination(), DefaultConfig()).Migrate(context.Background(), projectRequest(), nil); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, ok := skipArg(src.call(0)); ok {
		t.Error("first read should not carry a skip argument")
	}
	for i, want := range map[int]string{1: "1", 2: "2"} {
		got, ok := skipArg(src.call(i))
		if !ok || got != want {
			t.Errorf("read %d skip = %q, want %q", i+1, got, want)
		}
	}
}

func TestMigrate_SinglePage(t *testing.T) {
	src := pagedSource(nil)
	dest := okDestination()

	pages, err := New(src, dest, DefaultConfig()).Migrate(context.Background(), projectRequest(), nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if src.count() != 1 || dest.count() != 1 || len(pages) != 1 {
		t.Errorf("source = %d, destination = %d, pages = %d, want 1 each", src.count(), dest.count(), len(pages))
	}
}

func TestMigrate_NotAuthenticated(t *testing.T) {
	tests := []struct {
		name       string
		srcAuthed  bool
		destAuthed bool
	}{
		{"source logged out", false, true},
		{"destination logged out", true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := pagedSource(nil)
			src.authed = tt.srcAuthed
			dest := okDestination()
			dest.authed = tt.destAuthed

			_, err := New(src, dest, DefaultConfig()).Migrate(context.Background(), projectRequest(), nil)
			if !errors.Is(err, ErrNotAuthenticated) {
				t.Errorf("Migrate() error = %v, want ErrNotAuthenticated", err)
			}
			if src.count() != 0 || dest.count() != 0 {
				t.Errorf("calls made before failing: source = %d, destination = %d", src.count(), dest.count())
			}
		})
	}
}

func TestMigrate_InvalidRequest(t *testing.T) {
	_, err := New(pagedSource(nil), okDestination(), DefaultConfig()).Migrate(context.Background(), query.NewPack(), nil)
	if !errors.Is(err, query.ErrEmptyPack) {
		t.Errorf("Migrate() error = %v, want ErrEmptyPack", err)
	}
}

func TestMigrate_Backpressure(t *testing.T) {
	src := pagedSource(intPtr(1), intPtr(2), nil)

	started := make(chan int, 3)
	release := make(chan struct{})
	dest := &stubSession{
		name:   "destination",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			started <- n
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &xog.Response{Payload: body}, nil
		},
	}

	done := make(chan error, 1)
	go func() {
		_, err := New(src, dest, Config{Concurrency: 1}).Migrate(context.Background(), projectRequest(), nil)
		done <- err
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first write never started")
	}

	// The window is full: the reader must be parked waiting for a slot.
	time.Sleep(100 * time.Millisecond)
	if got := src.count(); got != 1 {
		t.Errorf("source calls while window full = %d, want 1", got)
	}

	close(release)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Migrate() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("migration did not finish after writes were released")
	}

	if src.count() != 3 || dest.count() != 3 {
		t.Errorf("source = %d, destination = %d, want 3 each", src.count(), dest.count())
	}
}

func TestMigrate_BoundedWindow(t *testing.T) {
	src := pagedSource(intPtr(1), intPtr(2), intPtr(3), intPtr(4), intPtr(5), nil)

	var inflight, peak atomic.Int32
	dest := &stubSession{
		name:   "destination",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			cur := inflight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inflight.Add(-1)
			return &xog.Response{Payload: body}, nil
		},
	}

	pages, err := New(src, dest, Config{Concurrency: 2}).Migrate(context.Background(), projectRequest(), nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(pages) != 6 {
		t.Errorf("len(pages) = %d, want 6", len(pages))
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("peak in-flight writes = %d, want <= 2", got)
	}
}

func TestMigrate_WriteFailureStopsMigration(t *testing.T) {
	src := endlessSource()

	errDuplicate := &xog.ProtocolError{Severity: "WARN", Description: "dup"}
	dest := &stubSession{
		name:   "destination",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			if n == 2 {
				return nil, errDuplicate
			}
			return &xog.Response{Payload: body}, nil
		},
	}

	_, err := New(src, dest, Config{Concurrency: 1}).Migrate(context.Background(), projectRequest(), nil)

	var protocolErr *xog.ProtocolError
	if !errors.As(err, &protocolErr) || protocolErr != errDuplicate {
		t.Fatalf("Migrate() error = %v, want the failing write's error", err)
	}
	if got := dest.count(); got != 2 {
		t.Errorf("destination calls = %d, want 2 (no write after the failure)", got)
	}
	if got := src.count(); got != 2 {
		t.Errorf("source calls = %d, want 2", got)
	}
}

func TestMigrate_WriteFailureCancelsSiblings(t *testing.T) {
	src := pagedSource(intPtr(1), intPtr(2), nil)

	errWrite := errors.New("import rejected")
	var cancelled atomic.Int32
	dest := &stubSession{
		name:   "destination",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			if n == 3 {
				return nil, errWrite
			}
			<-ctx.Done()
			cancelled.Add(1)
			return nil, ctx.Err()
		},
	}

	_, err := New(src, dest, Config{Concurrency: 3}).Migrate(context.Background(), projectRequest(), nil)
	if !errors.Is(err, errWrite) {
		t.Fatalf("Migrate() error = %v, want %v", err, errWrite)
	}
	if got := cancelled.Load(); got != 2 {
		t.Errorf("cancelled sibling writes = %d, want 2", got)
	}
}

func TestMigrate_ReadFailure(t *testing.T) {
	errRead := &xog.FailureError{}
	src := &stubSession{
		name:   "source",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			if n == 2 {
				return nil, errRead
			}
			return &xog.Response{Payload: pageElement(n), Skip: intPtr(n)}, nil
		},
	}
	dest := okDestination()

	pages, err := New(src, dest, Config{Concurrency: 1}).Migrate(context.Background(), projectRequest(), nil)

	var failureErr *xog.FailureError
	if !errors.As(err, &failureErr) {
		t.Fatalf("Migrate() error = %v, want *xog.FailureError", err)
	}
	if src.count() != 2 {
		t.Errorf("source calls = %d, want 2", src.count())
	}
	if len(pages) != 1 {
		t.Errorf("len(pages) = %d, want the 1 page dispatched before the failure", len(pages))
	}
}

func TestMigrate_Transform(t *testing.T) {
	src := pagedSource(intPtr(1), nil)
	dest := okDestination()

	transform := func(page *etree.Element) (*etree.Element, error) {
		out := page.Copy()
		out.CreateAttr("transformed", "yes")
		return out, nil
	}

	pages, err := New(src, dest, DefaultConfig()).Migrate(context.Background(), projectRequest(), transform)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	for i, page := range pages {
		if page.SelectAttrValue("transformed", "") != "yes" {
			t.Errorf("pages[%d] was not transformed", i)
		}
	}
	for i := 0; i < dest.count(); i++ {
		if dest.call(i).SelectAttrValue("transformed", "") != "yes" {
			t.Errorf("write %d did not receive the transformed page", i+1)
		}
	}
}

func TestMigrate_TransformFailure(t *testing.T) {
	src := endlessSource()
	dest := okDestination()
	errTransform := errors.New("unmapped resource")

	transform := func(page *etree.Element) (*etree.Element, error) {
		if page.SelectAttrValue("page", "") == "3" {
			return nil, errTransform
		}
		return page, nil
	}

	_, err := New(src, dest, Config{Concurrency: 1}).Migrate(context.Background(), projectRequest(), transform)
	if !errors.Is(err, errTransform) {
		t.Fatalf("Migrate() error = %v, want %v", err, errTransform)
	}
	if dest.count() != 2 {
		t.Errorf("destination calls = %d, want 2", dest.count())
	}
}

func TestMigrate_Pack(t *testing.T) {
	src := pagedSource(nil, nil)
	dest := okDestination()

	pack := query.NewPack(query.LookupCodes("INV_TYPE"), query.NewQuery(query.Equals("projectID", "P1")))

	pages, err := New(src, dest, DefaultConfig()).Migrate(context.Background(), pack, nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(pages) != 2 || src.count() != 2 || dest.count() != 2 {
		t.Fatalf("pages = %d, source = %d, destination = %d, want 2 each", len(pages), src.count(), dest.count())
	}

	if src.call(0).SelectElement("LookupQuery") == nil {
		t.Error("first bundle should be the lookup query")
	}
	if src.call(1).SelectElement("Query") == nil {
		t.Error("second bundle should be the plain query")
	}
}

func TestMigrate_PackBundleOrdinals(t *testing.T) {
	src := pagedSource(nil, nil)
	obs := &recordingObserver{}

	pack := query.NewPack(query.LookupCodes("INV_TYPE"), query.NewQuery(query.Equals("projectID", "P1")))

	pages, err := New(src, okDestination(), Config{Concurrency: 1}, WithObserver(obs)).
		Migrate(context.Background(), pack, nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(pages))
	}

	// Both bundles start at page 1 and share the pack object type.
	if len(obs.read) != 2 || obs.read[0] != 1 || obs.read[1] != 1 {
		t.Errorf("read = %v, want [1 1]", obs.read)
	}
	if len(obs.bundles) != 2 || obs.bundles[0] != 1 || obs.bundles[1] != 2 {
		t.Errorf("bundles = %v, want [1 2]", obs.bundles)
	}
}

func TestMigrate_ParentCancelled(t *testing.T) {
	src := endlessSource()
	dest := &stubSession{
		name:   "destination",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := New(src, dest, Config{Concurrency: 2}).Migrate(ctx, projectRequest(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Migrate() error = %v, want context.Canceled", err)
	}
}

type recordingObserver struct {
	mu      sync.Mutex
	read    []int
	bundles []int
	written []int
	failed  []int
}

func (o *recordingObserver) PageRead(ctx context.Context, page Page) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.read = append(o.read, page.Index)
	o.bundles = append(o.bundles, page.Bundle)
}

func (o *recordingObserver) PageWritten(ctx context.Context, page Page, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.failed = append(o.failed, page.Index)
		return
	}
	o.written = append(o.written, page.Index)
}

func TestMigrate_Observer(t *testing.T) {
	src := pagedSource(intPtr(50), nil)
	obs := &recordingObserver{}

	_, err := New(src, okDestination(), Config{Concurrency: 1}, WithObserver(obs)).
		Migrate(context.Background(), projectRequest(), nil)
	if err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if len(obs.read) != 2 || obs.read[0] != 1 || obs.read[1] != 2 {
		t.Errorf("read = %v, want [1 2]", obs.read)
	}
	if len(obs.written) != 2 {
		t.Errorf("written = %v, want 2 pages", obs.written)
	}
	if len(obs.failed) != 0 {
		t.Errorf("failed = %v, want none", obs.failed)
	}
}

// slowFailureObserver blocks on failed writes the way a slow journal would.
type slowFailureObserver struct {
	delay time.Duration
}

func (o slowFailureObserver) PageRead(ctx context.Context, page Page) {}

func (o slowFailureObserver) PageWritten(ctx context.Context, page Page, err error) {
	if err != nil {
		time.Sleep(o.delay)
	}
}

func TestMigrate_WriteFailureStopsBeforeObserver(t *testing.T) {
	src := endlessSource()

	errWrite := errors.New("import rejected")
	dest := &stubSession{
		name:   "destination",
		authed: true,
		handler: func(ctx context.Context, n int, body *etree.Element) (*xog.Response, error) {
			if n == 2 {
				return nil, errWrite
			}
			return &xog.Response{Payload: body}, nil
		},
	}

	obs := slowFailureObserver{delay: 200 * time.Millisecond}
	_, err := New(src, dest, Config{Concurrency: 3}, WithObserver(obs)).
		Migrate(context.Background(), projectRequest(), nil)
	if !errors.Is(err, errWrite) {
		t.Fatalf("Migrate() error = %v, want %v", err, errWrite)
	}

	// Only pages already in the window when the write failed may still be
	// read or written; nothing new starts while the observer blocks.
	if got := dest.count(); got > 10 {
		t.Errorf("destination calls = %d, want the migration stopped at the failure", got)
	}
	if got := src.count(); got > 10 {
		t.Errorf("source calls = %d, want the migration stopped at the failure", got)
	}
}
