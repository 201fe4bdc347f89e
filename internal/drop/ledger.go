package drop

import "errors"

// ErrSupplyExhausted is returned when no collection-wide capacity remains.
var ErrSupplyExhausted = errors.New("supply exhausted")

// Ledger tracks total and per-finish issuance against the fixed caps.
// Counters only ever grow. Not goroutine-safe: the engine loop serializes
// all access.
type Ledger struct {
	total  uint16
	issued [FinishCount]uint16
}

func NewLedger() *Ledger {
	return &Ledger{}
}

func (l *Ledger) TotalIssued() uint16 { return l.total }

func (l *Ledger) Issued(f Finish) uint16 {
	if !f.Valid() {
		return 0
	}
	return l.issued[f]
}

func (l *Ledger) IssuedByFinish() [FinishCount]uint16 { return l.issued }

// Remaining reports collection-wide remaining capacity.
func (l *Ledger) Remaining() uint16 { return MaxSupply - l.total }

// RemainingByFinish reports per-pool remaining capacity, indexed by Finish.
func (l *Ledger) RemainingByFinish() [FinishCount]uint16 {
	var rem [FinishCount]uint16
	for i := range rem {
		rem[i] = PoolCaps[i] - l.issued[i]
	}
	return rem
}

// ReserveNext reserves the next gem slot in f's pool and returns the new
// gem id (the advanced total-issued counter). The caller must have selected
// f through Pick, which only yields pools with remaining capacity; the pool
// bound is an invariant-preserving precondition and is not re-checked here.
func (l *Ledger) ReserveNext(f Finish) (GemID, error) {
	if l.total >= MaxSupply {
		return 0, ErrSupplyExhausted
	}
	l.total++
	l.issued[f]++
	return GemID(l.total), nil
}

// Restore overwrites the counters from a snapshot. Callers are trusted to
// hand back values previously produced by this ledger.
func (l *Ledger) Restore(total uint16, issued [FinishCount]uint16) {
	l.total = total
	l.issued = issued
}
