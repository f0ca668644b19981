package veo

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

const DefaultModel = "veo-3.1-fast-generate-preview"

type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client starts and polls Veo generations on the Gemini API.
// A client is bound to one API key.
type Client struct {
	genai  *genai.Client
	model  string
	tracer trace.Tracer
	logger *log.Logger
}

func NewClient(ctx context.Context, opts Options) (*Client, error) {
	key := strings.TrimSpace(opts.APIKey)
	if key == "" {
		return nil, errors.New("veo: api key is required")
	}

	cfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.HTTPClient,
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	c, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("veo: create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = DefaultModel
	}

	return &Client{
		genai:  c,
		model:  model,
		tracer: otel.Tracer("veo-client"),
		logger: log.With("component", "veo", "model", model),
	}, nil
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) Start(ctx context.Context, req StartRequest) (*Operation, error) {
	ctx, span := c.tracer.Start(ctx, "veo_start", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("veo.model", c.model),
		attribute.String("veo.aspect_ratio", req.AspectRatio),
		attribute.String("veo.resolution", req.Resolution),
	)

	count := req.NumberOfVideos
	if count <= 0 {
		count = 1
	}

	op, err := c.genai.Models.GenerateVideos(ctx, c.model, req.Prompt, nil, &genai.GenerateVideosConfig{
		NumberOfVideos: count,
		AspectRatio:    req.AspectRatio,
		Resolution:     req.Resolution,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := fromGenAI(op)
	span.SetAttributes(attribute.String("veo.operation", out.Name))
	c.logger.Debug("generation started", "operation", out.Name, "done", out.Done)
	return out, nil
}

func (c *Client) Poll(ctx context.Context, op *Operation) (*Operation, error) {
	if op == nil || op.Name == "" {
		return nil, errors.New("veo: operation has no name")
	}

	ctx, span := c.tracer.Start(ctx, "veo_poll", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("veo.operation", op.Name))

	next, err := c.genai.Operations.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: op.Name}, nil)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	out := fromGenAI(next)
	if out.Name == "" {
		out.Name = op.Name
	}
	span.SetAttributes(attribute.Bool("veo.done", out.Done))
	return out, nil
}
