package drop

import (
	"encoding/binary"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// Source draws the per-unit entropy that drives finish assignment. It is
// called exactly once per minted unit, with nextID already advanced to the
// unit's gem id so that consecutive draws within one batch decorrelate.
type Source interface {
	Draw(caller common.Address, nextID GemID) [32]byte
}

// Pick selects the finish for the next gem, weighted uniformly over
// remaining slots: offset = entropy mod remainingTotal, then pools are
// walked in canonical order and the first pool whose cumulative remaining
// interval contains the offset wins. A pool with zero remaining occupies an
// empty interval and can never win, so caps are respected exactly and the
// declared rarity ratios reproduce as supply depletes.
func Pick(remaining [FinishCount]uint16, entropy [32]byte) (Finish, error) {
	var total uint64
	for _, r := range remaining {
		total += uint64(r)
	}
	if total == 0 {
		return 0, ErrSupplyExhausted
	}

	// Full 256-bit reduction, same as the offset a uint256 modulus yields.
	e := new(uint256.Int).SetBytes(entropy[:])
	offset := new(uint256.Int).Mod(e, uint256.NewInt(total)).Uint64()

	var acc uint64
	for f := Finish(0); f < FinishCount; f++ {
		acc += uint64(remaining[f])
		if offset < acc {
			return f, nil
		}
	}
	// Unreachable: offset < total == acc after the last pool.
	return 0, ErrSupplyExhausted
}

// TipFunc returns the rolling digest of the most recent accepted operation,
// the closest thing the engine has to a latest-block hash.
type TipFunc func() [32]byte

// WeakSource is the production entropy source: keccak256 over the op-log
// tip, wall-clock nanos, the caller address, and the advanced issued
// counter. Deliberately weak: every input is observable or nudgeable, and
// the short sale window is what bounds the exposure.
type WeakSource struct {
	Tip TipFunc
	Now func() time.Time
}

func (s *WeakSource) Draw(caller common.Address, nextID GemID) [32]byte {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	var tip [32]byte
	if s.Tip != nil {
		tip = s.Tip()
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(now().UnixNano()))
	var ctr [4]byte
	binary.BigEndian.PutUint32(ctr[:], uint32(nextID))

	var out [32]byte
	copy(out[:], crypto.Keccak256(tip[:], ts[:], caller.Bytes(), ctr[:]))
	return out
}

// SeqSource replays a fixed entropy sequence, wrapping at the end. Test
// double for Source.
type SeqSource struct {
	Seq []uint64
	i   int
}

func (s *SeqSource) Draw(common.Address, GemID) [32]byte {
	var out [32]byte
	if len(s.Seq) == 0 {
		return out
	}
	binary.BigEndian.PutUint64(out[24:], s.Seq[s.i%len(s.Seq)])
	s.i++
	return out
}
