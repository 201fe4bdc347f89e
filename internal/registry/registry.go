// Package registry holds the transferable-asset side of a gem: who owns it
// and who may move it. The engine treats it as an external collaborator —
// it reads ownership during claims and notifies it on mint — and never
// touches finish or used flags, which stay with the core.
package registry

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"gemdrop.xyz/internal/drop"
)

// Owners is the read side the claim engine consumes.
type Owners interface {
	OwnerOf(id drop.GemID) (common.Address, bool)
}

// MintSink receives the synchronous mint notification, once per unit,
// mid-operation. Implementations may call back into the engine; the
// engine's in-progress guard is what makes that safe.
type MintSink interface {
	NotifyMint(to common.Address, id drop.GemID)
}

var (
	ErrUnknownGem   = errors.New("unknown gem")
	ErrNotOwner     = errors.New("caller is neither owner nor approved")
	ErrWrongFrom    = errors.New("from is not the current owner")
	ErrZeroAddress  = errors.New("zero address")
	ErrAlreadyKnown = errors.New("gem already registered")
)

// Book is the in-process registry: current owner plus a single approved
// address per gem. Approval clears on transfer. Not goroutine-safe; the
// engine loop owns it.
type Book struct {
	owners   map[drop.GemID]common.Address
	approved map[drop.GemID]common.Address
	balances map[common.Address]int
}

func NewBook() *Book {
	return &Book{
		owners:   map[drop.GemID]common.Address{},
		approved: map[drop.GemID]common.Address{},
		balances: map[common.Address]int{},
	}
}

func (b *Book) OwnerOf(id drop.GemID) (common.Address, bool) {
	o, ok := b.owners[id]
	return o, ok
}

func (b *Book) Approved(id drop.GemID) (common.Address, bool) {
	a, ok := b.approved[id]
	return a, ok
}

func (b *Book) BalanceOf(addr common.Address) int { return b.balances[addr] }

// NotifyMint registers a freshly issued gem under its first owner.
func (b *Book) NotifyMint(to common.Address, id drop.GemID) {
	if _, dup := b.owners[id]; dup {
		return
	}
	b.owners[id] = to
	b.balances[to]++
}

// Approve lets the current owner designate one address that may transfer
// the gem on their behalf.
func (b *Book) Approve(caller, spender common.Address, id drop.GemID) error {
	owner, ok := b.owners[id]
	if !ok {
		return ErrUnknownGem
	}
	if caller != owner {
		return ErrNotOwner
	}
	b.approved[id] = spender
	return nil
}

// TransferFrom moves a gem from its owner to another address. The caller
// must be the owner or the approved address. Used gems stay transferable —
// consumption only blocks further claims, not ownership changes.
func (b *Book) TransferFrom(caller, from, to common.Address, id drop.GemID) error {
	owner, ok := b.owners[id]
	if !ok {
		return ErrUnknownGem
	}
	if from != owner {
		return ErrWrongFrom
	}
	if to == (common.Address{}) {
		return ErrZeroAddress
	}
	if caller != owner && b.approved[id] != caller {
		return ErrNotOwner
	}
	delete(b.approved, id)
	b.owners[id] = to
	b.balances[from]--
	b.balances[to]++
	return nil
}

// Restore rebuilds ownership from a snapshot row set.
func (b *Book) Restore(owners map[drop.GemID]common.Address) {
	b.owners = map[drop.GemID]common.Address{}
	b.approved = map[drop.GemID]common.Address{}
	b.balances = map[common.Address]int{}
	for id, o := range owners {
		b.owners[id] = o
		b.balances[o]++
	}
}
