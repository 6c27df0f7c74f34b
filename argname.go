package tracefs

import (
	"fmt"

	"github.com/google/uuid"
)

// EntropySource supplies the randomness used to salt generated argument
// names, so multiple synthetic-event descriptors active in the kernel at
// once don't collide. Tests inject a deterministic source; production
// code defaults to uuidEntropy.
type EntropySource interface {
	// Uint32 returns a pseudo-random value used once per descriptor to
	// build its argument-name salt.
	Uint32() uint32
}

// uuidEntropy draws its randomness from a generated UUID's low bits,
// avoiding a direct math/rand dependency for what is, in the original
// library, a seed drawn from wall-clock time and the thread id.
type uuidEntropy struct{}

func (uuidEntropy) Uint32() uint32 {
	id := uuid.New()
	b := id[:]
	return uint32(b[12])<<24 | uint32(b[13])<<16 | uint32(b[14])<<8 | uint32(b[15])
}

// argNamer mints unique `__arg_<salt>_<n>` variable names for a single
// descriptor's lifetime, matching new_arg()'s lazily-initialized prefix
// plus a monotonically increasing counter.
type argNamer struct {
	entropy EntropySource
	prefix  string
	cnt     int
}

func newArgNamer(e EntropySource) *argNamer {
	if e == nil {
		e = uuidEntropy{}
	}
	return &argNamer{entropy: e}
}

// next mints a fresh argument name, initializing the salted prefix on
// first use.
func (a *argNamer) next() string {
	if a.prefix == "" {
		a.prefix = fmt.Sprintf("__arg_%d_", a.entropy.Uint32()%32768)
	}
	a.cnt++
	return fmt.Sprintf("%s%d", a.prefix, a.cnt)
}

// rollback undoes the most recent next() call, used by multi-step
// builders that mint an arg name before a later step can fail.
func (a *argNamer) rollback() {
	if a.cnt > 0 {
		a.cnt--
	}
}
