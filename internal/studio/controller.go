package studio

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"vidgen/internal/credentials"
	"vidgen/internal/generation"
	"vidgen/internal/media"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

var ErrClosed = errors.New("controller is shut down")

// Workflow runs one generation.
type Workflow interface {
	Generate(ctx context.Context, req generation.Request, onProgress generation.ProgressFunc) (media.Handle, error)
}

type Options struct {
	Gate     credentials.Gate
	Workflow Workflow
	// Media, when set, is used to release results that a new generation
	// replaces.
	Media media.Store
}

// Controller owns the UI state for the session and is the only writer of it.
// Observers run under the controller lock and must not call back into it.
type Controller struct {
	gate     credentials.Gate
	workflow Workflow
	media    media.Store
	logger   *log.Logger

	base  context.Context
	stop  context.CancelFunc
	group errgroup.Group

	mu        sync.Mutex
	snap      Snapshot
	cancel    context.CancelFunc
	observers []func(Snapshot)
}

func NewController(opts Options) (*Controller, error) {
	if opts.Gate == nil {
		return nil, errors.New("studio: gate is required")
	}
	if opts.Workflow == nil {
		return nil, errors.New("studio: workflow is required")
	}

	base, stop := context.WithCancel(context.Background())
	return &Controller{
		gate:     opts.Gate,
		workflow: opts.Workflow,
		media:    opts.Media,
		logger:   log.With("component", "studio"),
		base:     base,
		stop:     stop,
		snap: Snapshot{
			State:       StateIdle,
			AspectRatio: generation.Landscape,
		},
	}, nil
}

// Subscribe registers fn for every snapshot change.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.clone()
}

// update applies fn under the lock. When fn reports a change the version is
// bumped and observers are told.
func (c *Controller) update(fn func(s *Snapshot) (bool, error)) (Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed, err := fn(&c.snap)
	if changed {
		c.snap.Version++
		out := c.snap.clone()
		for _, o := range c.observers {
			o(out)
		}
	}
	return c.snap.clone(), err
}

// Init asks the gate whether a key is already selected.
func (c *Controller) Init(ctx context.Context) Snapshot {
	has := c.gate.HasCredential(ctx)
	snap, _ := c.update(func(s *Snapshot) (bool, error) {
		s.HasCredential = has
		if !s.IsBusy {
			if has {
				if s.State == StateAwaitingCredential {
					s.State = StateIdle
				}
			} else {
				s.State = StateAwaitingCredential
			}
		}
		return true, nil
	})
	c.logger.Info("credential checked", "hasKey", has)
	return snap
}

// RequestCredential runs the gate's selection flow and then trusts it.
func (c *Controller) RequestCredential(ctx context.Context) (Snapshot, error) {
	if err := c.gate.RequestCredential(ctx); err != nil {
		return c.Snapshot(), err
	}
	return c.update(func(s *Snapshot) (bool, error) {
		s.HasCredential = true
		if s.State == StateAwaitingCredential {
			s.State = StateIdle
		}
		return true, nil
	})
}

func (c *Controller) SetPrompt(prompt string) (Snapshot, error) {
	return c.update(func(s *Snapshot) (bool, error) {
		if s.IsBusy {
			return false, ErrBusy
		}
		if s.Prompt == prompt {
			return false, nil
		}
		s.Prompt = prompt
		return true, nil
	})
}

func (c *Controller) SetAspectRatio(ratio generation.AspectRatio) (Snapshot, error) {
	if _, err := generation.ParseAspectRatio(string(ratio)); err != nil {
		return c.Snapshot(), err
	}
	return c.update(func(s *Snapshot) (bool, error) {
		if s.IsBusy {
			return false, ErrBusy
		}
		if s.AspectRatio == ratio {
			return false, nil
		}
		s.AspectRatio = ratio
		return true, nil
	})
}

// Generate starts a workflow for the current draft and returns once it is
// running. A call while busy changes nothing and returns ErrBusy. Any earlier
// result is discarded and its media released, also when the prompt is blank.
func (c *Controller) Generate() (Snapshot, error) {
	if c.base.Err() != nil {
		return c.Snapshot(), ErrClosed
	}

	var (
		req      generation.Request
		ctx      context.Context
		replaced *media.Handle
		rev      uint64
	)

	snap, err := c.update(func(s *Snapshot) (bool, error) {
		if s.IsBusy {
			return false, ErrBusy
		}
		if !s.HasCredential {
			if s.State != StateAwaitingCredential {
				s.State = StateAwaitingCredential
				return true, ErrCredentialRequired
			}
			return false, ErrCredentialRequired
		}

		replaced = s.Result
		s.Result = nil

		if strings.TrimSpace(s.Prompt) == "" {
			s.Error = MessageEmptyPrompt
			s.ErrorKind = ""
			s.State = StateIdle
			return true, ErrEmptyPrompt
		}

		s.Error = ""
		s.ErrorKind = ""
		s.ProgressMessage = ""
		s.IsBusy = true
		s.State = StateBusy

		req = generation.Request{Prompt: s.Prompt, AspectRatio: s.AspectRatio}
		if inv, ok := c.gate.(credentials.Invalidator); ok {
			rev = inv.Revision()
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(c.base)
		c.cancel = cancel
		return true, nil
	})

	if replaced != nil {
		c.release(*replaced)
	}
	if err != nil {
		return snap, err
	}

	c.logger.Info("generation requested", "aspectRatio", req.AspectRatio, "promptLen", len(req.Prompt))
	c.group.Go(func() error {
		c.run(ctx, req, rev)
		return nil
	})
	return snap, nil
}

// Cancel stops the running workflow. The final state arrives through the
// workflow's own completion.
func (c *Controller) Cancel() (Snapshot, error) {
	return c.update(func(s *Snapshot) (bool, error) {
		if !s.IsBusy || c.cancel == nil {
			return false, ErrNotBusy
		}
		c.cancel()
		return false, nil
	})
}

// run executes one workflow. rev is the gate revision seen at start; a
// credential failure only clears the key if nobody picked another since.
func (c *Controller) run(ctx context.Context, req generation.Request, rev uint64) {
	handle, err := c.workflow.Generate(ctx, req, c.progress)

	_, _ = c.update(func(s *Snapshot) (bool, error) {
		if c.cancel != nil {
			c.cancel()
			c.cancel = nil
		}
		s.IsBusy = false
		s.ProgressMessage = ""

		if err == nil {
			h := handle
			s.Result = &h
			s.State = StateSucceeded
			return true, nil
		}

		var ge *generation.Error
		if !errors.As(err, &ge) {
			ge = &generation.Error{Kind: generation.KindUnknown, Message: err.Error(), Err: err}
		}
		s.Error = ge.UserMessage()
		s.ErrorKind = ge.Kind
		s.State = StateFailed
		if ge.RequiresCredential() {
			if inv, ok := c.gate.(credentials.Invalidator); !ok || inv.Invalidate(rev) {
				s.HasCredential = false
				s.State = StateAwaitingCredential
			}
		}
		return true, nil
	})

	if err != nil {
		c.logger.Warn("generation ended with error", "kind", generation.KindOf(err))
		return
	}
	c.logger.Info("generation succeeded", "media", handle.ID)
}

func (c *Controller) progress(message string) {
	_, _ = c.update(func(s *Snapshot) (bool, error) {
		if !s.IsBusy {
			return false, nil
		}
		s.ProgressMessage = message
		return true, nil
	})
}

func (c *Controller) release(h media.Handle) {
	if c.media == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.media.Release(ctx, h.ID); err != nil && !errors.Is(err, media.ErrNotFound) {
		c.logger.Warn("failed to release media", "media", h.ID, "err", err)
	}
}

// Shutdown cancels any running workflow and waits for it.
func (c *Controller) Shutdown() {
	c.stop()
	_ = c.group.Wait()
}

func (s Snapshot) clone() Snapshot {
	if s.Result != nil {
		h := *s.Result
		s.Result = &h
	}
	return s
}
