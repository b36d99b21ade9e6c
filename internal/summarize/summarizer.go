package summarize

import (
	"context"

	"github.com/agentmail-core/agentmail/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// multiThreadFanoutLimit bounds how many threads MultiThread refines
// concurrently. The model-call breaker already protects against a failing
// upstream; this limit protects against a caller handing MultiThread a
// thread list long enough to open hundreds of refiner calls at once.
const multiThreadFanoutLimit = 8

// ModelRefiner calls an external model to refine a baseline summary. It
// returns the raw response body; parsing and failure-swallowing happen in
// ParseRevision/Merge, never here, so a transport error and a malformed
// response are handled identically — both fall back to the baseline.
type ModelRefiner interface {
	Refine(ctx context.Context, systemPrompt, userPrompt string) ([]byte, error)
}

// Summarizer produces single- and multi-thread summaries over the store,
// with optional model refinement (spec §4.3).
type Summarizer struct {
	store   *store.Store
	refiner ModelRefiner
	logger  *zap.Logger
}

// NewSummarizer builds a Summarizer. refiner may be nil, disabling model
// refinement entirely — every summary is then the deterministic baseline.
func NewSummarizer(st *store.Store, refiner ModelRefiner, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		store:   st,
		refiner: refiner,
		logger:  logger.With(zap.String("component", "summarizer")),
	}
}

// SingleThread summarises one thread, applying model refinement if a
// refiner is configured and the call succeeds.
func (s *Summarizer) SingleThread(ctx context.Context, projectID int64, threadID string, systemPrompt, userPromptTemplate string) (Summary, error) {
	messages, err := LoadThreadInput(ctx, s.store, projectID, threadID)
	if err != nil {
		return Summary{}, err
	}
	base := Baseline(threadID, messages)
	return s.maybeRefine(ctx, base, systemPrompt, userPromptTemplate), nil
}

// MultiThread summarises each of threadIDs independently (an unknown id
// yields an empty Summary rather than failing the whole call) and returns
// both the per-thread summaries and the cross-thread aggregate.
func (s *Summarizer) MultiThread(ctx context.Context, projectID int64, threadIDs []string, systemPrompt, userPromptTemplate string) ([]Summary, Aggregate, error) {
	if err := ValidateThreadIDs(threadIDs); err != nil {
		return nil, Aggregate{}, err
	}

	ids := sortedThreadIDs(threadIDs)
	summaries := make([]Summary, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(multiThreadFanoutLimit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			messages, err := LoadThreadInput(gctx, s.store, projectID, id)
			if err != nil {
				return err
			}
			base := Baseline(id, messages)
			summaries[i] = s.maybeRefine(gctx, base, systemPrompt, userPromptTemplate)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Aggregate{}, err
	}
	return summaries, BuildAggregate(summaries), nil
}

func (s *Summarizer) maybeRefine(ctx context.Context, base Summary, systemPrompt, userPrompt string) Summary {
	if s.refiner == nil {
		return base
	}
	raw, err := s.refiner.Refine(ctx, systemPrompt, userPrompt)
	if err != nil {
		s.logger.Warn("model refinement call failed, using baseline", zap.Error(err), zap.String("thread_id", base.ThreadID))
		return base
	}
	rev := ParseRevision(raw)
	if rev == nil {
		s.logger.Warn("model refinement response failed to parse, using baseline", zap.String("thread_id", base.ThreadID))
		return base
	}
	return Merge(base, rev)
}
