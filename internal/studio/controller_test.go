package studio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vidgen/internal/generation"
	"vidgen/internal/media"
)

type fakeGate struct {
	mu          sync.Mutex
	has         bool
	requests    int
	invalidated int
	requestErr  error
	rev         uint64
}

func (g *fakeGate) HasCredential(context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.has
}

func (g *fakeGate) RequestCredential(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests++
	return g.requestErr
}

func (g *fakeGate) Revision() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rev
}

func (g *fakeGate) Invalidate(rev uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if rev != g.rev {
		return false
	}
	g.has = false
	g.rev++
	g.invalidated++
	return true
}

// pick simulates the user selecting a new key.
func (g *fakeGate) pick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.has = true
	g.rev++
}

type workflowFunc func(ctx context.Context, req generation.Request, onProgress generation.ProgressFunc) (media.Handle, error)

type fakeWorkflow struct {
	calls atomic.Int32
	fn    workflowFunc
}

func (w *fakeWorkflow) Generate(ctx context.Context, req generation.Request, onProgress generation.ProgressFunc) (media.Handle, error) {
	w.calls.Add(1)
	return w.fn(ctx, req, onProgress)
}

func newController(t *testing.T, gate *fakeGate, fn workflowFunc, store media.Store) (*Controller, *fakeWorkflow) {
	t.Helper()
	wf := &fakeWorkflow{fn: fn}
	c, err := NewController(Options{Gate: gate, Workflow: wf, Media: store})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	t.Cleanup(c.Shutdown)
	return c, wf
}

func waitFor(t *testing.T, c *Controller, pred func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s := c.Snapshot(); pred(s) {
			return s
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not reached; last snapshot %+v", c.Snapshot())
	return Snapshot{}
}

func notBusy(s Snapshot) bool { return !s.IsBusy }

func checkInvariants(t *testing.T, s Snapshot) {
	t.Helper()
	if s.Result != nil && s.Error != "" {
		t.Fatalf("result and error both set: %+v", s)
	}
	if !s.IsBusy && s.ProgressMessage != "" {
		t.Fatalf("progress message left while idle: %+v", s)
	}
	if s.IsBusy != (s.State == StateBusy) {
		t.Fatalf("busy flag disagrees with state: %+v", s)
	}
}

func TestCredentialGateFlow(t *testing.T) {
	gate := &fakeGate{}
	c, wf := newController(t, gate, func(context.Context, generation.Request, generation.ProgressFunc) (media.Handle, error) {
		return media.Handle{}, nil
	}, nil)

	if s := c.Init(context.Background()); s.State != StateAwaitingCredential || s.HasCredential {
		t.Fatalf("after init: %+v", s)
	}

	_, _ = c.SetPrompt("a prompt")
	if _, err := c.Generate(); !errors.Is(err, ErrCredentialRequired) {
		t.Fatalf("generate without key: %v", err)
	}
	if wf.calls.Load() != 0 {
		t.Fatalf("workflow ran without a key")
	}

	s, err := c.RequestCredential(context.Background())
	if err != nil {
		t.Fatalf("request credential: %v", err)
	}
	if s.State != StateIdle || !s.HasCredential || gate.requests != 1 {
		t.Fatalf("after request: %+v", s)
	}
}

func TestRequestCredentialError(t *testing.T) {
	gate := &fakeGate{requestErr: errors.New("picker closed")}
	c, _ := newController(t, gate, nil, nil)
	c.Init(context.Background())

	s, err := c.RequestCredential(context.Background())
	if err == nil || s.State != StateAwaitingCredential || s.HasCredential {
		t.Fatalf("err=%v snapshot=%+v", err, s)
	}
}

func TestGenerateSucceeds(t *testing.T) {
	for _, ratio := range []generation.AspectRatio{generation.Landscape, generation.Portrait} {
		t.Run(string(ratio), func(t *testing.T) {
			gate := &fakeGate{has: true}
			var got generation.Request
			c, _ := newController(t, gate, func(_ context.Context, req generation.Request, p generation.ProgressFunc) (media.Handle, error) {
				got = req
				p("working")
				return media.Handle{ID: "m1", URL: "/media/m1"}, nil
			}, nil)
			c.Init(context.Background())

			if _, err := c.SetPrompt("neon cat"); err != nil {
				t.Fatalf("set prompt: %v", err)
			}
			if _, err := c.SetAspectRatio(ratio); err != nil {
				t.Fatalf("set ratio: %v", err)
			}

			s, err := c.Generate()
			if err != nil {
				t.Fatalf("generate: %v", err)
			}
			if !s.IsBusy || s.State != StateBusy {
				t.Fatalf("expected busy: %+v", s)
			}

			s = waitFor(t, c, notBusy)
			checkInvariants(t, s)
			if s.State != StateSucceeded || s.Result == nil || s.Result.ID != "m1" {
				t.Fatalf("final: %+v", s)
			}
			if got.Prompt != "neon cat" || got.AspectRatio != ratio {
				t.Fatalf("request %+v", got)
			}
		})
	}
}

func TestGenerateRejectsBlankPrompt(t *testing.T) {
	for _, prompt := range []string{"", "   ", "\n\t"} {
		gate := &fakeGate{has: true}
		c, wf := newController(t, gate, func(context.Context, generation.Request, generation.ProgressFunc) (media.Handle, error) {
			return media.Handle{}, nil
		}, nil)
		c.Init(context.Background())
		_, _ = c.SetPrompt(prompt)

		s, err := c.Generate()
		if !errors.Is(err, ErrEmptyPrompt) {
			t.Fatalf("prompt %q: err = %v", prompt, err)
		}
		if s.State != StateIdle || s.Error != MessageEmptyPrompt || s.IsBusy {
			t.Fatalf("prompt %q: %+v", prompt, s)
		}
		if wf.calls.Load() != 0 {
			t.Fatalf("prompt %q: workflow invoked", prompt)
		}
		checkInvariants(t, s)
	}
}

func TestGenerateWhileBusyIsIgnored(t *testing.T) {
	gate := &fakeGate{has: true}
	release := make(chan struct{})
	c, wf := newController(t, gate, func(ctx context.Context, _ generation.Request, _ generation.ProgressFunc) (media.Handle, error) {
		<-release
		return media.Handle{ID: "only"}, nil
	}, nil)
	c.Init(context.Background())
	_, _ = c.SetPrompt("p")

	if _, err := c.Generate(); err != nil {
		t.Fatalf("first generate: %v", err)
	}
	before := c.Snapshot()

	if _, err := c.Generate(); !errors.Is(err, ErrBusy) {
		t.Fatalf("second generate: %v", err)
	}
	if _, err := c.SetPrompt("other"); !errors.Is(err, ErrBusy) {
		t.Fatalf("edit while busy: %v", err)
	}
	if after := c.Snapshot(); after.Version != before.Version {
		t.Fatalf("busy rejection changed state: %d -> %d", before.Version, after.Version)
	}

	close(release)
	waitFor(t, c, notBusy)
	if n := wf.calls.Load(); n != 1 {
		t.Fatalf("workflow calls = %d", n)
	}
}

func TestInvalidCredentialReturnsToGate(t *testing.T) {
	gate := &fakeGate{has: true}
	c, _ := newController(t, gate, func(context.Context, generation.Request, generation.ProgressFunc) (media.Handle, error) {
		return media.Handle{}, &generation.Error{Kind: generation.KindInvalidCredential, Message: "Requested entity was not found."}
	}, nil)
	c.Init(context.Background())
	_, _ = c.SetPrompt("p")

	if _, err := c.Generate(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	s := waitFor(t, c, notBusy)
	checkInvariants(t, s)

	if s.State != StateAwaitingCredential || s.HasCredential {
		t.Fatalf("final: %+v", s)
	}
	if s.ErrorKind != generation.KindInvalidCredential || s.Error == "" {
		t.Fatalf("error not reported: %+v", s)
	}
	gate.mu.Lock()
	defer gate.mu.Unlock()
	if gate.invalidated != 1 {
		t.Fatalf("gate invalidated %d times", gate.invalidated)
	}
}

func TestKeyPickedDuringWorkflowSurvivesRejection(t *testing.T) {
	gate := &fakeGate{has: true}
	c, _ := newController(t, gate, func(context.Context, generation.Request, generation.ProgressFunc) (media.Handle, error) {
		gate.pick()
		return media.Handle{}, &generation.Error{Kind: generation.KindInvalidCredential, Message: "API key not valid."}
	}, nil)
	c.Init(context.Background())
	_, _ = c.SetPrompt("p")

	if _, err := c.Generate(); err != nil {
		t.Fatalf("generate: %v", err)
	}
	s := waitFor(t, c, notBusy)
	checkInvariants(t, s)

	if s.State != StateFailed || !s.HasCredential {
		t.Fatalf("final: %+v", s)
	}
	if s.ErrorKind != generation.KindInvalidCredential {
		t.Fatalf("kind = %q", s.ErrorKind)
	}
	if !gate.HasCredential(context.Background()) {
		t.Fatalf("newly picked key was cleared")
	}
	gate.mu.Lock()
	defer gate.mu.Unlock()
	if gate.invalidated != 0 {
		t.Fatalf("gate invalidated %d times", gate.invalidated)
	}
}

func TestWorkflowFailureIsTerminalForAttemptOnly(t *testing.T) {
	gate := &fakeGate{has: true}
	var attempt atomic.Int32
	c, _ := newController(t, gate, func(context.Context, generation.Request, generation.ProgressFunc) (media.Handle, error) {
		if attempt.Add(1) == 1 {
			return media.Handle{}, &generation.Error{Kind: generation.KindDownloadFailed, StatusText: "500 Internal Server Error"}
		}
		return media.Handle{ID: "second"}, nil
	}, nil)
	c.Init(context.Background())
	_, _ = c.SetPrompt("p")

	_, _ = c.Generate()
	s := waitFor(t, c, notBusy)
	if s.State != StateFailed || s.ErrorKind != generation.KindDownloadFailed {
		t.Fatalf("first attempt: %+v", s)
	}

	_, _ = c.Generate()
	s = waitFor(t, c, func(s Snapshot) bool { return !s.IsBusy && s.State != StateFailed })
	checkInvariants(t, s)
	if s.State != StateSucceeded || s.Error != "" || s.Result.ID != "second" {
		t.Fatalf("retry: %+v", s)
	}
}

func TestCancel(t *testing.T) {
	gate := &fakeGate{has: true}
	started := make(chan struct{})
	c, _ := newController(t, gate, func(ctx context.Context, _ generation.Request, p generation.ProgressFunc) (media.Handle, error) {
		p("polling")
		close(started)
		<-ctx.Done()
		return media.Handle{}, &generation.Error{Kind: generation.KindCancelled, Err: ctx.Err()}
	}, nil)
	c.Init(context.Background())

	if _, err := c.Cancel(); !errors.Is(err, ErrNotBusy) {
		t.Fatalf("cancel while idle: %v", err)
	}

	_, _ = c.SetPrompt("p")
	_, _ = c.Generate()
	<-started
	if s := c.Snapshot(); s.ProgressMessage != "polling" {
		t.Fatalf("progress not recorded: %+v", s)
	}

	if _, err := c.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	s := waitFor(t, c, notBusy)
	checkInvariants(t, s)
	if s.State != StateFailed || s.ErrorKind != generation.KindCancelled {
		t.Fatalf("final: %+v", s)
	}
}

func TestReplacedResultIsReleased(t *testing.T) {
	gate := &fakeGate{has: true}
	store := media.NewMemoryStore("/media")
	c, _ := newController(t, gate, func(ctx context.Context, _ generation.Request, _ generation.ProgressFunc) (media.Handle, error) {
		return store.Put(ctx, media.Object{Data: []byte("v")})
	}, store)
	c.Init(context.Background())
	_, _ = c.SetPrompt("p")

	_, _ = c.Generate()
	first := waitFor(t, c, notBusy).Result
	if first == nil {
		t.Fatalf("no first result")
	}

	_, _ = c.Generate()
	second := waitFor(t, c, func(s Snapshot) bool { return !s.IsBusy && s.Result != nil && s.Result.ID != first.ID }).Result

	if _, err := store.Open(context.Background(), first.ID); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("first result still stored: %v", err)
	}
	if _, err := store.Open(context.Background(), second.ID); err != nil {
		t.Fatalf("second result missing: %v", err)
	}
}

func TestBlankPromptDiscardsEarlierResult(t *testing.T) {
	gate := &fakeGate{has: true}
	store := media.NewMemoryStore("/media")
	c, _ := newController(t, gate, func(ctx context.Context, _ generation.Request, _ generation.ProgressFunc) (media.Handle, error) {
		return store.Put(ctx, media.Object{Data: []byte("v")})
	}, store)
	c.Init(context.Background())
	_, _ = c.SetPrompt("p")

	_, _ = c.Generate()
	first := waitFor(t, c, notBusy).Result
	if first == nil {
		t.Fatalf("no first result")
	}

	_, _ = c.SetPrompt("  ")
	s, err := c.Generate()
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("err = %v", err)
	}
	checkInvariants(t, s)
	if s.Result != nil || s.Error != MessageEmptyPrompt || s.State != StateIdle {
		t.Fatalf("after blank submit: %+v", s)
	}
	if _, err := store.Open(context.Background(), first.ID); !errors.Is(err, media.ErrNotFound) {
		t.Fatalf("discarded result still stored: %v", err)
	}
}

func TestObserversSeeOrderedVersions(t *testing.T) {
	gate := &fakeGate{has: true}
	c, _ := newController(t, gate, func(_ context.Context, _ generation.Request, p generation.ProgressFunc) (media.Handle, error) {
		p("one")
		p("two")
		return media.Handle{ID: "x"}, nil
	}, nil)

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	c.Subscribe(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	c.Init(context.Background())
	_, _ = c.SetPrompt("p")
	_, _ = c.Generate()
	waitFor(t, c, notBusy)

	mu.Lock()
	defer mu.Unlock()
	var progress []string
	for i, s := range snaps {
		checkInvariants(t, s)
		if i > 0 && s.Version != snaps[i-1].Version+1 {
			t.Fatalf("version gap at %d: %d after %d", i, s.Version, snaps[i-1].Version)
		}
		if s.ProgressMessage != "" {
			progress = append(progress, s.ProgressMessage)
		}
	}
	if len(progress) != 2 || progress[0] != "one" || progress[1] != "two" {
		t.Fatalf("progress seen %q", progress)
	}
	if last := snaps[len(snaps)-1]; last.State != StateSucceeded {
		t.Fatalf("last %+v", last)
	}
}

func TestSetAspectRatioValidates(t *testing.T) {
	c, _ := newController(t, &fakeGate{has: true}, nil, nil)
	if _, err := c.SetAspectRatio("4:3"); !errors.Is(err, generation.ErrInvalidAspectRatio) {
		t.Fatalf("err = %v", err)
	}
	if s := c.Snapshot(); s.AspectRatio != generation.Landscape {
		t.Fatalf("ratio changed: %+v", s)
	}
}

func TestShutdownStopsWorkflow(t *testing.T) {
	gate := &fakeGate{has: true}
	c, err := NewController(Options{Gate: gate, Workflow: &fakeWorkflow{fn: func(ctx context.Context, _ generation.Request, _ generation.ProgressFunc) (media.Handle, error) {
		<-ctx.Done()
		return media.Handle{}, &generation.Error{Kind: generation.KindCancelled}
	}}})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	c.Init(context.Background())
	_, _ = c.SetPrompt("p")
	_, _ = c.Generate()

	done := make(chan struct{})
	go func() {
		c.Shutdown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("shutdown did not return")
	}
	if _, err := c.Generate(); !errors.Is(err, ErrClosed) {
		t.Fatalf("generate after shutdown: %v", err)
	}
}
