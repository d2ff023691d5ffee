// Package pipeline orchestrates vision enhancement: extract images, resolve
// descriptions through the cache and vision client, rewrite messages, and
// shape the result for the destination provider family.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/af-corp/iris-gateway/internal/cache"
	"github.com/af-corp/iris-gateway/internal/config"
	"github.com/af-corp/iris-gateway/internal/extract"
	"github.com/af-corp/iris-gateway/internal/provider"
	"github.com/af-corp/iris-gateway/internal/rewrite"
	"github.com/af-corp/iris-gateway/internal/telemetry"
	"github.com/af-corp/iris-gateway/internal/types"
	"github.com/af-corp/iris-gateway/internal/vision"
)

// State is the per-request pipeline state.
type State int

const (
	StateInit State = iota
	StateExtracting
	StatePassthrough
	StateCacheChecking
	StateRewriting
	StateAdapting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateExtracting:
		return "extracting"
	case StatePassthrough:
		return "passthrough"
	case StateCacheChecking:
		return "cache_checking"
	case StateRewriting:
		return "rewriting"
	case StateAdapting:
		return "adapting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of a request that reached Done.
type Outcome struct {
	Request        *types.ChatRequest // transformed request (original when passthrough)
	ProviderFamily string
	Passthrough    bool

	Images       int
	CacheHits    int
	Generated    int
	Placeholders int
	Warnings     []extract.Warning
}

// Pipeline runs the enhancement state machine. Safe for concurrent use;
// independent requests are never serialized against each other.
type Pipeline struct {
	cfg       config.EnhanceConfig
	nonVision map[string]bool
	cache     *cache.Cache
	vision    *vision.Client
	rewriter  *rewrite.Rewriter
	resolver  *provider.Resolver
	sessions  *SessionStore
	emitter   StatusEmitter
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func New(cfg config.EnhanceConfig, c *cache.Cache, vc *vision.Client, resolver *provider.Resolver, emitter StatusEmitter, metrics *telemetry.Metrics, logger *slog.Logger) *Pipeline {
	if emitter == nil || !cfg.StatusUpdates {
		emitter = NopEmitter{}
	}
	return &Pipeline{
		cfg:       cfg,
		nonVision: cfg.NonVisionSet(),
		cache:     c,
		vision:    vc,
		rewriter:  rewrite.NewRewriter(cfg.ImageContextTemplate),
		resolver:  resolver,
		sessions:  NewSessionStore(cfg.MaxSessions, cfg.SwitchHistoryLimit),
		emitter:   emitter,
		metrics:   metrics,
		logger:    logger,
	}
}

// Sessions exposes the session store for inspection.
func (p *Pipeline) Sessions() *SessionStore { return p.sessions }

// Process runs one request through the state machine. The input request is
// never mutated. The only returned errors are infrastructure-level: request
// cancellation, or no usable vision model path when one is needed.
func (p *Pipeline) Process(ctx context.Context, req *types.ChatRequest) (*Outcome, error) {
	start := time.Now()
	family := p.resolver.Resolve(req.Model)

	// Init: models that can see need no help.
	if !p.nonVision[req.Model] {
		return p.passthrough(req, family, nil, start), nil
	}

	// Extracting
	exStart := time.Now()
	found := extract.FromRequest(req)
	p.recordStage("extract", exStart)
	for _, w := range found.Warnings {
		p.logger.Warn("skipped unrecognized image block",
			"request_id", req.RequestID, "detail", w.String())
	}
	if len(found.Images) == 0 {
		return p.passthrough(req, family, found.Warnings, start), nil
	}

	if !p.vision.Configured() {
		p.logger.Error("pipeline failed: no vision model configured",
			"request_id", req.RequestID, "model", req.Model, "state", StateFailed.String())
		p.recordRequest(req.Model, family, "failed", start)
		return nil, fmt.Errorf("cannot enhance request for model %q: %w", req.Model, vision.ErrNoVisionModel)
	}

	// CacheChecking (and generation for misses)
	genStart := time.Now()
	texts, sources, err := p.describeAll(ctx, req, found.Images)
	p.recordStage("describe", genStart)
	if err != nil {
		p.recordRequest(req.Model, family, "failed", start)
		return nil, err
	}

	out := &Outcome{
		ProviderFamily: family,
		Images:         len(found.Images),
		Warnings:       found.Warnings,
	}

	descriptions := make(map[string]string, len(found.Images))
	fingerprints := make([]string, 0, len(found.Images))
	for _, img := range found.Images {
		fp := p.fingerprint(img)
		descriptions[img.ID] = texts[fp]
		fingerprints = append(fingerprints, fp)
		source := sources[fp]
		if p.metrics != nil {
			p.metrics.RecordImage(source)
		}
		switch source {
		case "cache", "shared":
			out.CacheHits++
		case "placeholder":
			out.Placeholders++
		default:
			out.Generated++
		}
	}

	// Rewriting
	rwStart := time.Now()
	rewritten := p.rewriter.Apply(req, found.Images, descriptions)
	p.recordStage("rewrite", rwStart)

	// Adapting
	adStart := time.Now()
	out.Request = provider.Adapt(rewritten, family)
	p.recordStage("adapt", adStart)

	// Done
	p.finish(req, family, fingerprints, "enhanced", start)
	p.emitter.Status(ctx, fmt.Sprintf("image enhancement complete: replaced %d image(s) (%d from cache, %d unavailable)",
		out.Images, out.CacheHits, out.Placeholders), true)
	p.logger.Info("request enhanced",
		"request_id", req.RequestID,
		"model", req.Model,
		"provider", family,
		"images", out.Images,
		"cache_hits", out.CacheHits,
		"generated", out.Generated,
		"placeholders", out.Placeholders,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (p *Pipeline) passthrough(req *types.ChatRequest, family string, warnings []extract.Warning, start time.Time) *Outcome {
	p.finish(req, family, nil, "passthrough", start)
	return &Outcome{
		Request:        req,
		ProviderFamily: family,
		Passthrough:    true,
		Warnings:       warnings,
	}
}

// finish performs the transition into Done: session bookkeeping and request
// metrics, for passthrough and enhanced requests alike.
func (p *Pipeline) finish(req *types.ChatRequest, family string, fingerprints []string, outcome string, start time.Time) {
	switched := p.sessions.RecordCompletion(req.SessionID, req.Model, family, fingerprints)
	if switched {
		if p.metrics != nil {
			p.metrics.RecordProviderSwitch()
		}
		p.logger.Info("provider family switched mid-session",
			"session_id", req.SessionID, "model", req.Model, "provider", family)
	}
	p.recordRequest(req.Model, family, outcome, start)
}

// describeAll resolves a description for every image: cache hit, shared
// in-flight generation, fresh generation, or placeholder. Returns text and
// source keyed by fingerprint.
func (p *Pipeline) describeAll(ctx context.Context, req *types.ChatRequest, images []types.ImageRef) (map[string]string, map[string]string, error) {
	texts := make(map[string]string)
	sources := make(map[string]string)

	// First pass: cache lookups, and dedup of misses by fingerprint.
	type job struct {
		fp      string
		ref     types.ImageRef
		imageNo int
	}
	var jobs []job
	cached := 0
	for i, img := range images {
		fp := p.fingerprint(img)
		if _, seen := texts[fp]; seen {
			continue
		}
		if entry, ok := p.cache.Lookup(fp); ok {
			texts[fp] = entry.Text
			sources[fp] = "cache"
			cached++
			continue
		}
		texts[fp] = "" // reserve so duplicate fingerprints queue once
		jobs = append(jobs, job{fp: fp, ref: img, imageNo: i + 1})
	}

	msg := fmt.Sprintf("found %d image(s)", len(images))
	if cached > 0 {
		msg += fmt.Sprintf(" (%d from cache)", cached)
	}
	if len(jobs) > 0 {
		msg += fmt.Sprintf(", describing %d with %s", len(jobs), p.cfg.VisionModelID)
	}
	p.emitter.Status(ctx, msg, false)

	if len(jobs) == 0 {
		return texts, sources, nil
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		fatalErr error
	)
	setResult := func(fp, text, source string) {
		mu.Lock()
		texts[fp] = text
		sources[fp] = source
		mu.Unlock()
	}
	setFatal := func(err error) {
		mu.Lock()
		if fatalErr == nil {
			fatalErr = err
		}
		mu.Unlock()
	}

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()

			flight, leader := p.cache.BeginGeneration(j.fp)
			if !leader {
				// Another request is already generating this fingerprint.
				entry, err := flight.Wait(ctx)
				switch {
				case err == nil:
					setResult(j.fp, entry.Text, "shared")
				case ctx.Err() != nil:
					setFatal(ctx.Err())
				default:
					setResult(j.fp, p.cfg.PlaceholderDescription, "placeholder")
				}
				return
			}

			// Leader: the entry may have landed between lookup and claim.
			if entry, ok := p.cache.Lookup(j.fp); ok {
				flight.Complete(entry.Text, entry.ProducingModel)
				setResult(j.fp, entry.Text, "cache")
				return
			}

			p.emitter.Status(ctx, fmt.Sprintf("describing image %d of %d...", j.imageNo, len(images)), false)
			notify := &statusNotifier{ctx: ctx, emitter: p.emitter, imageNo: j.imageNo, total: len(images)}
			desc, err := p.vision.Generate(ctx, j.ref, notify)
			if err != nil {
				// Never store anything for an incomplete or failed generation.
				flight.Abandon(err)
				switch {
				case ctx.Err() != nil:
					setFatal(ctx.Err())
				case errors.Is(err, vision.ErrNoVisionModel):
					setFatal(err)
				default:
					p.logger.Warn("generation exhausted, using placeholder",
						"request_id", req.RequestID, "image", j.ref.ID, "error", err)
					setResult(j.fp, p.cfg.PlaceholderDescription, "placeholder")
				}
				return
			}
			flight.Complete(desc.Text, desc.Model)
			setResult(j.fp, desc.Text, "generated")
		}(j)
	}
	wg.Wait()

	if p.metrics != nil {
		p.metrics.SetCacheEntries(p.cache.Len())
	}
	if fatalErr != nil {
		return nil, nil, fatalErr
	}
	return texts, sources, nil
}

func (p *Pipeline) fingerprint(img types.ImageRef) string {
	return cache.Fingerprint(img.PayloadBytes(), p.vision.Prompt())
}

func (p *Pipeline) recordStage(stage string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordStage(stage, float64(time.Since(start).Milliseconds()))
	}
}

func (p *Pipeline) recordRequest(model, family, outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.RecordRequest(model, family, outcome, float64(time.Since(start).Milliseconds()))
	}
}
