// Package voter implements first-to-ahead-by-k voting over stochastic LLM
// samples: candidates are generated one (or one batch) at a time, classified
// into semantic groups by the discriminator, and the session stops as soon
// as one group holds a k-vote lead over every other group.
package voter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/codeforge-dev/codeforge/pkg/discriminator"
	"github.com/codeforge-dev/codeforge/pkg/llm"
	"github.com/codeforge-dev/codeforge/pkg/model"
	"github.com/codeforge-dev/codeforge/pkg/redflag"
)

// ErrNoValidCandidates is returned when a voting session exhausts its
// sample budget without producing a single candidate that passed the
// red-flag filter.
var ErrNoValidCandidates = errors.New("voter: no valid candidates")

// Generator produces one LLM response for a step given the current prompt
// context. Decision primitives supply this so the voter stays agnostic of
// what kind of content (code, a plan, a list of functions) is being voted
// on.
type Generator func(ctx context.Context, step model.Step, promptContext string) (llm.Response, error)

// Config controls a voting session's margin, sample cap, batch size, the
// red-flag filter candidates are checked against, and the session's overall
// timeout.
type Config struct {
	K          int
	MaxSamples int
	BatchSize  int // used only by VoteParallel

	// RedFlag configures the filter every candidate is checked against
	// before classification. The zero value means "not configured"; New
	// falls back to redflag.DefaultConfig() in that case.
	RedFlag redflag.Config

	// VoteTimeoutSeconds bounds the whole session's wall-clock time; <= 0
	// means no additional timeout beyond ctx's own deadline.
	VoteTimeoutSeconds int
}

// DefaultConfig matches the original implementation's defaults: a 3-vote
// margin with an upper bound of 20 samples.
func DefaultConfig() Config {
	return Config{
		K:                  3,
		MaxSamples:         20,
		BatchSize:          3,
		RedFlag:            redflag.DefaultConfig(),
		VoteTimeoutSeconds: 60,
	}
}

// Voter runs voting sessions against a single discriminator + red-flag
// filter pair. It is not safe for concurrent use across unrelated steps —
// callers should build one Voter per step (it is cheap: both dependent
// components reset their state on each Vote call).
type Voter struct {
	client        llm.Client
	discriminator *discriminator.Discriminator
	redFlagFilter *redflag.Filter
	cfg           Config
	logger        *slog.Logger
}

// New builds a Voter with the given LLM client and configuration. The
// red-flag filter is constructed from cfg.RedFlag; an unconfigured
// (zero-value) RedFlag falls back to redflag.DefaultConfig() so callers that
// only care about K/MaxSamples still get sane checks.
func New(client llm.Client, cfg Config, logger *slog.Logger) *Voter {
	if logger == nil {
		logger = slog.Default()
	}
	rfCfg := cfg.RedFlag
	if rfCfg == (redflag.Config{}) {
		rfCfg = redflag.DefaultConfig()
	}
	return &Voter{
		client:        client,
		discriminator: discriminator.New(client),
		redFlagFilter: redflag.New(rfCfg),
		cfg:           cfg,
		logger:        logger,
	}
}

// session tracks running state for one call to Vote or VoteParallel.
type session struct {
	step           model.Step
	samples        []*model.Candidate
	validSamples   []*model.Candidate
	complete       bool
	winner         *model.SemanticGroup
	cancelledEarly bool
}

// Vote runs a sequential voting session: one candidate generated, checked,
// and classified at a time, stopping as soon as a k-margin winner emerges,
// the sample budget is exhausted, or ctx is cancelled.
func (v *Voter) Vote(ctx context.Context, step model.Step, promptContext string, lang model.Language, gen Generator) (model.VoteResult, error) {
	k := v.effectiveK()
	maxSamples := v.effectiveMaxSamples()

	ctx, cancel := v.withVoteTimeout(ctx)
	defer cancel()

	v.discriminator.Reset()
	sess := &session{step: step}

	v.logger.Info("starting vote", "step", step.ID, "description", step.Description)

	for len(sess.samples) < maxSamples && !sess.complete {
		if err := ctx.Err(); err != nil {
			sess.cancelledEarly = true
			break
		}

		resp, err := gen(ctx, step, promptContext)
		if err != nil {
			v.logger.Warn("generation failed", "step", step.ID, "error", err)
			continue
		}

		candidate := model.NewCandidate(resp.Content, resp.OutputTokens)
		sess.samples = append(sess.samples, candidate)

		if res := v.redFlagFilter.CheckAndReject(candidate, lang); !res.Passed {
			v.logger.Debug("red-flagged", "step", step.ID, "reason", res.Reason)
			continue
		}
		sess.validSamples = append(sess.validSamples, candidate)

		if _, err := v.discriminator.Classify(ctx, candidate, promptContext); err != nil {
			return model.VoteResult{}, fmt.Errorf("voter: classify: %w", err)
		}

		if winner := v.discriminator.Winner(k); winner != nil {
			sess.complete = true
			sess.winner = winner
			v.logger.Info("winner found", "step", step.ID, "samples", len(sess.samples), "group", winner.ID, "votes", winner.Votes())
		}
	}

	return v.buildResult(sess)
}

// VoteParallel runs voting with candidates generated in batches via
// errgroup, the idiomatic Go analogue of asyncio.gather(return_exceptions=
// true): a failing member of the batch is logged and dropped, the rest of
// the batch still contributes candidates.
func (v *Voter) VoteParallel(ctx context.Context, step model.Step, promptContext string, lang model.Language, gen Generator) (model.VoteResult, error) {
	k := v.effectiveK()
	maxSamples := v.effectiveMaxSamples()
	batchSize := v.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 3
	}

	ctx, cancel := v.withVoteTimeout(ctx)
	defer cancel()

	v.discriminator.Reset()
	sess := &session{step: step}

	v.logger.Info("starting parallel vote", "step", step.ID, "batch_size", batchSize)

	for len(sess.samples) < maxSamples && !sess.complete {
		if err := ctx.Err(); err != nil {
			sess.cancelledEarly = true
			break
		}

		n := batchSize
		if remaining := maxSamples - len(sess.samples); remaining < n {
			n = remaining
		}

		responses := make([]*llm.Response, n)
		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < n; i++ {
			i := i
			g.Go(func() error {
				resp, err := gen(gctx, step, promptContext)
				if err != nil {
					v.logger.Warn("batch generation failed", "step", step.ID, "error", err)
					return nil
				}
				responses[i] = &resp
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return model.VoteResult{}, fmt.Errorf("voter: batch: %w", err)
		}

		for _, resp := range responses {
			if resp == nil {
				continue
			}
			candidate := model.NewCandidate(resp.Content, resp.OutputTokens)
			sess.samples = append(sess.samples, candidate)

			if res := v.redFlagFilter.CheckAndReject(candidate, lang); !res.Passed {
				continue
			}
			sess.validSamples = append(sess.validSamples, candidate)

			if _, err := v.discriminator.Classify(ctx, candidate, promptContext); err != nil {
				return model.VoteResult{}, fmt.Errorf("voter: classify: %w", err)
			}
		}

		if winner := v.discriminator.Winner(k); winner != nil {
			sess.complete = true
			sess.winner = winner
		}
	}

	return v.buildResult(sess)
}

func (v *Voter) buildResult(sess *session) (model.VoteResult, error) {
	var winnerCandidate *model.Candidate

	stats := v.discriminator.Stats()

	if sess.winner != nil {
		winnerCandidate = sess.winner.Representative
	} else if stats.Groups > 0 {
		groups := v.allGroups()
		sort.Slice(groups, func(i, j int) bool { return groups[i].Votes() > groups[j].Votes() })
		winnerCandidate = groups[0].Representative
		sess.winner = groups[0]
	} else if sess.cancelledEarly {
		return model.VoteResult{
			TotalSamples: len(sess.samples),
			Incomplete:   true,
		}, nil
	} else {
		return model.VoteResult{}, fmt.Errorf("%w for step %s", ErrNoValidCandidates, sess.step.ID)
	}

	groupsOut := make(map[string][]*model.Candidate)
	votesPerGroup := make(map[string]int)
	for _, g := range v.allGroups() {
		groupsOut[g.ID] = g.Members
		votesPerGroup[g.ID] = g.Votes()
	}

	// A lone group's runner-up counts as zero votes, matching the
	// discriminator's Winner gate.
	votes := make([]int, 0, len(votesPerGroup))
	for _, n := range votesPerGroup {
		votes = append(votes, n)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(votes)))
	margin := votes[0]
	if len(votes) > 1 {
		margin -= votes[1]
	}

	return model.VoteResult{
		Winner:        winnerCandidate,
		Groups:        groupsOut,
		VotesPerGroup: votesPerGroup,
		TotalSamples:  len(sess.samples),
		WinningMargin: margin,
		Incomplete:    sess.cancelledEarly,
	}, nil
}

func (v *Voter) allGroups() []*model.SemanticGroup {
	return v.discriminator.Groups()
}

func (v *Voter) effectiveK() int {
	if v.cfg.K > 0 {
		return v.cfg.K
	}
	return DefaultConfig().K
}

func (v *Voter) effectiveMaxSamples() int {
	if v.cfg.MaxSamples > 0 {
		return v.cfg.MaxSamples
	}
	return DefaultConfig().MaxSamples
}

// withVoteTimeout derives a child context bounded by cfg.VoteTimeoutSeconds,
// mirroring the per-call LLM timeout's "outer timeout" pattern but scoped to
// the whole session rather than a single generation. A non-positive
// VoteTimeoutSeconds leaves ctx's own deadline untouched.
func (v *Voter) withVoteTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v.cfg.VoteTimeoutSeconds <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, time.Duration(v.cfg.VoteTimeoutSeconds)*time.Second)
}
