package regka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/gordian-engine/regka/aggtree"
	"github.com/gordian-engine/regka/internal/rtrace"
	"github.com/gordian-engine/regka/kmatrix"
	"github.com/gordian-engine/regka/rkmsg"
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Participant is one member of a key agreement group.
// It consumes gossip messages from peers
// and produces the messages to forward in response.
//
// A Participant is not safe for concurrent use.
type Participant struct {
	log *slog.Logger

	tree   aggtree.Tree
	matrix kmatrix.Matrix

	neighbors neighborView
	seen      *simplelru.LRU[[32]byte, struct{}]

	m      *Metrics
	tracer rtrace.Tracer

	started   time.Time
	completed bool
	delay     time.Duration
}

// HandleResult is the outcome of [*Participant.HandleMessage].
type HandleResult struct {
	// The message was identical to a recently handled one
	// and was otherwise ignored.
	Duplicate bool

	// Number of contributions held for the first time.
	NewContributions uint

	// This message completed the set of held contributions.
	Completed bool
}

// Outgoing is one message to send, produced by [*Participant.Outgoing].
type Outgoing struct {
	To      uint32
	Message rkmsg.Message
}

// New returns a new Participant.
// It panics if cfg has illegal settings,
// and returns an error if the participant count or self ID is invalid.
func New(log *slog.Logger, cfg Config) (*Participant, error) {
	cfg.validate()

	tree, err := aggtree.New(cfg.ParticipantCount, cfg.SelfID)
	if err != nil {
		return nil, fmt.Errorf("failed to create aggregation tree: %w", err)
	}

	matrix, err := kmatrix.New(cfg.ParticipantCount, cfg.SelfID, cfg.RNG)
	if err != nil {
		return nil, fmt.Errorf("failed to create knowledge matrix: %w", err)
	}

	seen, err := simplelru.NewLRU[[32]byte, struct{}](cfg.seenMessageLimit(), nil)
	if err != nil {
		panic(fmt.Errorf("BUG: failed to create seen message cache: %w", err))
	}

	m := cfg.Metrics
	if m == nil {
		m = NewMetrics(nil)
	}

	tp := cfg.TracerProvider
	if tp == nil {
		tp = rtrace.NopTracerProvider()
	}

	p := &Participant{
		log: log,

		tree:   *tree,
		matrix: *matrix,

		neighbors: newNeighborView(log, cfg.neighborLimit()),
		seen:      seen,

		m:      m,
		tracer: tp.Tracer(rtrace.TracerName),

		started: time.Now(),
	}

	m.ContributionsKnown.Set(float64(tree.ContributionCount()))
	// A group of one is complete from the start.
	p.checkConvergence()

	return p, nil
}

// InitialMessage returns the first message a participant broadcasts:
// its own contribution and its knowledge matrix.
func (p *Participant) InitialMessage() rkmsg.Message {
	n := uint(p.tree.ParticipantCount())
	c := bitset.MustNew(n)
	c.Set(uint(p.tree.SelfID()))

	return rkmsg.Message{
		Sender:        p.tree.SelfID(),
		Contributions: c,
		Knowledge:     p.matrix.Snapshot(),
	}
}

// HandleMessage applies a message received from a peer.
//
// An invalid message returns an error and changes nothing.
// Otherwise, the sender becomes the most recent neighbor,
// and unless the message is a duplicate,
// its contributions and knowledge are merged into the local state.
//
// The context is only used for tracing.
func (p *Participant) HandleMessage(ctx context.Context, msg rkmsg.Message) (HandleResult, error) {
	_, span := p.tracer.Start(ctx, "HandleMessage", rtrace.WithAttributes(
		rtrace.ParticipantAttr("sender", msg.Sender),
	))
	defer span.End()

	if err := msg.Validate(p.tree.ParticipantCount()); err != nil {
		p.m.MessagesReceived.WithLabelValues(ResultInvalid).Inc()
		p.log.Warn("Rejected invalid message", "sender", msg.Sender, "err", err)
		span.SetAttributes(rtrace.StringAttr("result", ResultInvalid))
		rtrace.SpanError(span, err)
		return HandleResult{}, err
	}

	if msg.Sender != p.tree.SelfID() {
		if p.neighbors.Touch(msg.Sender) {
			p.log.Debug("Added neighbor", "neighbor", msg.Sender)
		}
	}

	digest := msg.Digest()
	if span.IsRecording() {
		span.SetAttributes(rtrace.HexAttr("digest", digest))
	}
	if p.seen.Contains(digest) {
		p.m.MessagesReceived.WithLabelValues(ResultDuplicate).Inc()
		p.log.Debug("Ignoring duplicate message", "sender", msg.Sender)
		span.SetAttributes(rtrace.StringAttr("result", ResultDuplicate))
		return HandleResult{Duplicate: true}, nil
	}

	// Lengths were validated, so the following cannot fail.

	wasComplete := p.completed

	added, err := p.tree.AddContributions(msg.Contributions)
	if err != nil {
		return HandleResult{}, fmt.Errorf("BUG: adding validated contributions to tree: %w", err)
	}
	if _, err := p.matrix.ReceiveContributions(msg.Contributions); err != nil {
		return HandleResult{}, fmt.Errorf("BUG: adding validated contributions to matrix: %w", err)
	}
	if err := p.matrix.MergeSnapshot(msg.Knowledge); err != nil {
		return HandleResult{}, fmt.Errorf("BUG: merging validated snapshot: %w", err)
	}

	p.seen.Add(digest, struct{}{})

	p.m.MessagesReceived.WithLabelValues(ResultAccepted).Inc()
	if added > 0 {
		p.m.ContributionsLearned.Add(float64(added))
		p.m.ContributionsKnown.Set(float64(p.tree.ContributionCount()))
		p.log.Debug(
			"Learned contributions",
			"sender", msg.Sender,
			"new", added,
			"known", p.tree.ContributionCount(),
		)
	}

	p.checkConvergence()

	span.SetAttributes(
		rtrace.StringAttr("result", ResultAccepted),
		rtrace.CountAttr("new_contributions", added),
		rtrace.BoolAttr("completed", p.completed),
	)

	return HandleResult{
		NewContributions: added,
		Completed:        !wasComplete && p.completed,
	}, nil
}

func (p *Participant) checkConvergence() {
	if p.completed {
		return
	}

	treeDone := p.tree.HasCompleteKey()
	matrixDone := p.matrix.SelfIsFull()
	if !treeDone && !matrixDone {
		return
	}

	p.completed = true
	p.delay = time.Since(p.started)
	p.m.Converged.Set(1)
	p.m.ConvergenceDelay.Set(p.delay.Seconds())
	p.log.Info(
		"Collected all key contributions",
		"self", p.tree.SelfID(),
		"tree_complete", treeDone,
		"matrix_complete", matrixDone,
		"delay", p.delay,
	)
}

// Outgoing returns the messages to send to each neighbor,
// ordered from least to most recently heard-from neighbor.
// Neighbors for which no contribution was selected are skipped.
//
// Every returned message carries the same knowledge snapshot.
// Each call consumes random draws,
// so repeated calls may select different contributions.
//
// The context is only used for tracing.
func (p *Participant) Outgoing(ctx context.Context) ([]Outgoing, error) {
	_, span := p.tracer.Start(ctx, "Outgoing")
	defer span.End()

	ids := p.neighbors.IDs()
	span.SetAttributes(rtrace.CountAttr("neighbors", uint(len(ids))))
	if len(ids) == 0 {
		return nil, nil
	}

	snap := p.matrix.Snapshot()
	out := make([]Outgoing, 0, len(ids))
	for _, nb := range ids {
		fwd, err := p.matrix.ForwardingContributions(nb)
		if err != nil {
			err = fmt.Errorf("failed to select contributions for %d: %w", nb, err)
			rtrace.SpanError(span, err)
			return nil, err
		}
		if fwd.None() {
			continue
		}

		p.m.ContributionsForwarded.Add(float64(fwd.Count()))
		out = append(out, Outgoing{
			To: nb,
			Message: rkmsg.Message{
				Sender:        p.tree.SelfID(),
				Contributions: fwd,
				Knowledge:     snap,
			},
		})
	}

	p.m.MessagesForwarded.Add(float64(len(out)))
	span.SetAttributes(rtrace.CountAttr("messages", uint(len(out))))
	return out, nil
}

// SelfID returns the local participant ID.
func (p *Participant) SelfID() uint32 { return p.tree.SelfID() }

// ParticipantCount returns the group size.
func (p *Participant) ParticipantCount() uint32 { return p.tree.ParticipantCount() }

// HasCompleteKey reports whether the aggregation tree root is owned.
func (p *Participant) HasCompleteKey() bool { return p.tree.HasCompleteKey() }

// SelfIsFull reports whether the matrix shows every contribution held locally.
func (p *Participant) SelfIsFull() bool { return p.matrix.SelfIsFull() }

// Completed reports whether either structure has reported completion.
// Once true, it stays true.
func (p *Participant) Completed() bool { return p.completed }

// CompletionDelay returns the time from [New] until completion,
// or zero if the participant has not completed.
func (p *Participant) CompletionDelay() time.Duration { return p.delay }

// ContributionCount returns the number of contributions held.
func (p *Participant) ContributionCount() uint { return p.tree.ContributionCount() }

// Neighbors returns the current neighbor view,
// from least to most recently heard from.
func (p *Participant) Neighbors() []uint32 { return p.neighbors.IDs() }

// Tree returns a copy of the aggregation tree.
func (p *Participant) Tree() *aggtree.Tree { return p.tree.Clone() }

// Matrix returns a copy of the knowledge matrix.
// The copy shares the participant's random source.
func (p *Participant) Matrix() *kmatrix.Matrix { return p.matrix.Clone() }
