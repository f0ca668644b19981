package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"vidgen/internal/clients/transport"
	"vidgen/internal/clients/veo"
	"vidgen/internal/media"
	"vidgen/utils"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultResolution   = "720p"
)

var tracer = otel.Tracer("generation")

type AspectRatio string

const (
	Landscape AspectRatio = "16:9"
	Portrait  AspectRatio = "9:16"
)

var ErrInvalidAspectRatio = errors.New("aspect ratio must be 16:9 or 9:16")

func ParseAspectRatio(s string) (AspectRatio, error) {
	switch AspectRatio(strings.TrimSpace(s)) {
	case Landscape:
		return Landscape, nil
	case Portrait:
		return Portrait, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAspectRatio, s)
	}
}

// Request is one submitted generation. Prompt is expected to be non-blank;
// the controller checks that before calling.
type Request struct {
	Prompt      string
	AspectRatio AspectRatio
}

// Remote is the long-running-operation API.
type Remote interface {
	Start(ctx context.Context, req veo.StartRequest) (*veo.Operation, error)
	Poll(ctx context.Context, op *veo.Operation) (*veo.Operation, error)
}

// Dialer builds a Remote bound to apiKey.
type Dialer func(ctx context.Context, apiKey string) (Remote, error)

// VeoDialer dials the Gemini API with a fresh key per workflow.
func VeoDialer(opts veo.Options) Dialer {
	return func(ctx context.Context, apiKey string) (Remote, error) {
		o := opts
		o.APIKey = apiKey
		return veo.NewClient(ctx, o)
	}
}

type Options struct {
	Dial       Dialer
	APIKey     func() string
	Media      media.Store
	HTTPClient *http.Client

	Resolution   string
	PollInterval time.Duration
	// MaxWait bounds a whole workflow. Zero polls until the service is done.
	MaxWait time.Duration
}

// Generator runs the start, poll, download workflow.
type Generator struct {
	dial       Dialer
	apiKey     func() string
	media      media.Store
	httpClient *http.Client

	resolution string
	interval   time.Duration
	maxWait    time.Duration
	logger     *log.Logger
}

func NewGenerator(opts Options) (*Generator, error) {
	if opts.Dial == nil {
		return nil, errors.New("generation: dialer is required")
	}
	if opts.APIKey == nil {
		return nil, errors.New("generation: api key source is required")
	}
	if opts.Media == nil {
		return nil, errors.New("generation: media store is required")
	}

	g := &Generator{
		dial:       opts.Dial,
		apiKey:     opts.APIKey,
		media:      opts.Media,
		httpClient: opts.HTTPClient,
		resolution: opts.Resolution,
		interval:   opts.PollInterval,
		maxWait:    opts.MaxWait,
		logger:     log.With("component", "generation"),
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: 10 * time.Minute}
	}
	if g.resolution == "" {
		g.resolution = DefaultResolution
	}
	if g.interval <= 0 {
		g.interval = DefaultPollInterval
	}
	return g, nil
}

// Generate runs one workflow. Cancelling ctx stops it with KindCancelled.
// Every failure is a *Error.
func (g *Generator) Generate(ctx context.Context, req Request, onProgress ProgressFunc) (media.Handle, error) {
	ctx, span := tracer.Start(ctx, "generate")
	defer span.End()
	span.SetAttributes(attribute.String("generation.aspect_ratio", string(req.AspectRatio)))

	handle, err := g.run(ctx, req, onProgress)
	if err != nil {
		kind := KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(kind))
		g.logger.Error("generation failed", "kind", kind, "err", err)
		return media.Handle{}, err
	}

	span.SetAttributes(attribute.String("generation.media_id", handle.ID))
	g.logger.Info("generation finished", "media", handle.ID, "size", handle.Size)
	return handle, nil
}

func (g *Generator) run(ctx context.Context, req Request, onProgress ProgressFunc) (media.Handle, error) {
	key := strings.TrimSpace(g.apiKey())
	if key == "" {
		return media.Handle{}, &Error{Kind: KindMissingCredential, Message: "API key is not configured."}
	}

	if g.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.maxWait)
		defer cancel()
	}

	onProgress.emit(MessageInitiating)

	remote, err := g.dial(ctx, key)
	if err != nil {
		return media.Handle{}, g.fail(ctx, fmt.Errorf("create client: %w", err))
	}

	op, err := remote.Start(ctx, veo.StartRequest{
		Prompt:         req.Prompt,
		AspectRatio:    string(req.AspectRatio),
		Resolution:     g.resolution,
		NumberOfVideos: 1,
	})
	if err != nil {
		return media.Handle{}, g.fail(ctx, err)
	}
	if op == nil {
		return media.Handle{}, &Error{Kind: KindUnknown, Message: "service returned no operation"}
	}
	g.logger.Info("generation started", "operation", op.Name, "aspectRatio", req.AspectRatio)

	for i := 0; !op.Done; i++ {
		onProgress.emit(PollMessages[i%len(PollMessages)])

		if err := g.wait(ctx); err != nil {
			return media.Handle{}, g.fail(ctx, err)
		}

		name := op.Name
		op, err = remote.Poll(ctx, op)
		if err != nil {
			return media.Handle{}, g.fail(ctx, err)
		}
		if op == nil {
			return media.Handle{}, &Error{Kind: KindUnknown, Message: "service returned no operation"}
		}
		g.logger.Debug("operation polled", "operation", name, "iteration", i+1, "done", op.Done)
	}

	if op.ErrorMessage != "" {
		kind := KindUnknown
		if isCredentialFailure(op.ErrorMessage) {
			kind = KindInvalidCredential
		}
		return media.Handle{}, &Error{Kind: kind, Message: op.ErrorMessage}
	}

	if op.VideoURI == "" {
		msg := "Video generation completed, but no download link was found."
		if len(op.FilteredReasons) > 0 {
			msg += " Filtered: " + strings.Join(op.FilteredReasons, "; ")
		}
		return media.Handle{}, &Error{Kind: KindResultMissing, Message: msg}
	}

	onProgress.emit(MessageDownloading)
	return g.download(ctx, key, op.VideoURI)
}

func (g *Generator) download(ctx context.Context, key, uri string) (media.Handle, error) {
	ctx, span := tracer.Start(ctx, "download", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	target, err := transport.WithQuery(uri, "key", key)
	if err != nil {
		return media.Handle{}, &Error{Kind: KindDownloadFailed, Message: err.Error(), Err: err}
	}

	resp, err := transport.Download(*g.httpClient, ctx, target, nil)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) {
			span.SetAttributes(attribute.Int("http.status_code", se.Code))
			return media.Handle{}, &Error{
				Kind:       KindDownloadFailed,
				Message:    fmt.Sprintf("failed to download video: %s", se.Status),
				Status:     se.Code,
				StatusText: se.Status,
				Err:        err,
			}
		}
		return media.Handle{}, g.fail(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return media.Handle{}, g.fail(ctx, fmt.Errorf("read video: %w", err))
	}

	contentType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "video/mp4"
	}

	filename := utils.VideoFileName(
		resp.Header.Get("Content-Disposition"),
		contentType,
		"vidgen-"+time.Now().UTC().Format("20060102-150405"),
	)

	handle, err := g.media.Put(ctx, media.Object{
		Data:        data,
		ContentType: contentType,
		Filename:    filename,
	})
	if err != nil {
		return media.Handle{}, &Error{Kind: KindUnknown, Message: fmt.Sprintf("store video: %v", err), Err: err}
	}
	return handle, nil
}

func (g *Generator) wait(ctx context.Context) error {
	t := time.NewTimer(g.interval)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// fail prefers the context's own error so a cancelled call is never
// reported as a transport failure.
func (g *Generator) fail(ctx context.Context, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return classify(ctxErr)
	}
	return classify(err)
}
