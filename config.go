package regka

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/gordian-engine/regka/internal/rtrace"
)

// Config is the configuration for a [Participant].
type Config struct {
	// Number of participants in the group, and so the number of contributions.
	ParticipantCount uint32

	// This participant's ID, in [0, ParticipantCount).
	SelfID uint32

	// Source of the randomized forwarding decisions.
	// Required.
	RNG *rand.Rand

	// Maximum number of recently heard-from peers to forward to.
	// If zero, ParticipantCount/2 is used, with a minimum of 1.
	NeighborLimit int

	// Number of recent message digests remembered for duplicate suppression.
	// If zero, 4*ParticipantCount is used.
	SeenMessageLimit int

	// Optional metrics.
	// If nil, an unregistered set is used.
	Metrics *Metrics

	// Optional tracer provider for spans around
	// [*Participant.HandleMessage] and [*Participant.Outgoing].
	// If nil, spans are not recorded.
	TracerProvider rtrace.TracerProvider
}

// validate panics if there are any illegal settings in the configuration.
// Participant count and self ID are checked by the tree and matrix constructors,
// which return errors for them instead.
func (c Config) validate() {
	// If there are multiple reasons we could panic,
	// collect them all in one go
	// so we can give a maximally helpful error.
	var panicErrs error

	if c.RNG == nil {
		panicErrs = errors.Join(
			panicErrs,
			errors.New("BUG: Config.RNG must not be nil"),
		)
	}

	if c.NeighborLimit < 0 {
		panicErrs = errors.Join(
			panicErrs,
			fmt.Errorf("BUG: Config.NeighborLimit must not be negative (got %d)", c.NeighborLimit),
		)
	}

	if c.SeenMessageLimit < 0 {
		panicErrs = errors.Join(
			panicErrs,
			fmt.Errorf("BUG: Config.SeenMessageLimit must not be negative (got %d)", c.SeenMessageLimit),
		)
	}

	if panicErrs != nil {
		panic(panicErrs)
	}
}

func (c Config) neighborLimit() int {
	if c.NeighborLimit > 0 {
		return c.NeighborLimit
	}
	return max(1, int(c.ParticipantCount/2))
}

func (c Config) seenMessageLimit() int {
	if c.SeenMessageLimit > 0 {
		return c.SeenMessageLimit
	}
	return max(1, 4*int(c.ParticipantCount))
}
