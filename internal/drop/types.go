package drop

import "strings"

// Finish is one of the six gem finishes. The numeric order is canonical:
// the assigner walks pools in this order when mapping an entropy offset to
// a pool, so reordering changes which finish wins boundary offsets.
type Finish uint8

const (
	Common Finish = iota
	Black
	White
	Silver
	Gold
	Diamond

	FinishCount = 6
)

// MaxSupply is the collection-wide cap across all pools.
const MaxSupply = 999

// PoolCaps are the fixed per-finish caps, indexed by Finish. They sum to
// MaxSupply and are set once at init; there is no way to change them at
// runtime.
var PoolCaps = [FinishCount]uint16{590, 200, 200, 3, 3, 3}

var finishNames = [FinishCount]string{"COMMON", "BLACK", "WHITE", "SILVER", "GOLD", "DIAMOND"}

func (f Finish) Valid() bool { return f < FinishCount }

func (f Finish) String() string {
	if !f.Valid() {
		return "INVALID"
	}
	return finishNames[f]
}

func ParseFinish(s string) (Finish, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range finishNames {
		if name == s {
			return Finish(i), true
		}
	}
	return 0, false
}

// GemID identifies one minted gem. IDs are sequential starting at 1; the id
// of a gem is the value of the total-issued counter at the moment its slot
// was reserved.
type GemID uint32

// Gem is the core-owned record for one minted gem. Finish is immutable once
// assigned; Used flips false→true at most once, when the gem is consumed by
// a jackpot claim. Ownership lives in the asset registry, not here.
type Gem struct {
	ID     GemID
	Finish Finish
	Used   bool
}

// Phase gates the two mint entry points. It is an operator toggle with no
// transition restrictions: any phase is reachable from any phase.
type Phase uint8

const (
	PhaseClosed Phase = iota
	PhasePresale
	PhaseOpen
)

var phaseNames = [...]string{"CLOSED", "PRESALE", "OPEN"}

func (p Phase) Valid() bool { return int(p) < len(phaseNames) }

func (p Phase) String() string {
	if !p.Valid() {
		return "INVALID"
	}
	return phaseNames[p]
}

func ParsePhase(s string) (Phase, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for i, name := range phaseNames {
		if name == s {
			return Phase(i), true
		}
	}
	return 0, false
}
