package registry

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"gemdrop.xyz/internal/drop"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	carol = common.HexToAddress("0x00000000000000000000000000000000000000c3")
)

func TestMintAndTransfer(t *testing.T) {
	b := NewBook()
	b.NotifyMint(alice, 1)
	b.NotifyMint(alice, 2)

	if got := b.BalanceOf(alice); got != 2 {
		t.Fatalf("BalanceOf(alice) = %d, want 2", got)
	}
	if err := b.TransferFrom(alice, alice, bob, 1); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}
	owner, ok := b.OwnerOf(1)
	if !ok || owner != bob {
		t.Fatalf("OwnerOf(1) = %s,%v want bob", owner.Hex(), ok)
	}
	if b.BalanceOf(alice) != 1 || b.BalanceOf(bob) != 1 {
		t.Fatalf("balances alice=%d bob=%d", b.BalanceOf(alice), b.BalanceOf(bob))
	}
}

func TestTransferAuthorization(t *testing.T) {
	b := NewBook()
	b.NotifyMint(alice, 7)

	if err := b.TransferFrom(bob, alice, bob, 7); err != ErrNotOwner {
		t.Fatalf("unapproved transfer: err = %v, want ErrNotOwner", err)
	}
	if err := b.Approve(bob, carol, 7); err != ErrNotOwner {
		t.Fatalf("non-owner approve: err = %v, want ErrNotOwner", err)
	}
	if err := b.Approve(alice, carol, 7); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := b.TransferFrom(carol, alice, bob, 7); err != nil {
		t.Fatalf("approved transfer: %v", err)
	}
	// Approval cleared by the transfer.
	if err := b.TransferFrom(carol, bob, alice, 7); err != ErrNotOwner {
		t.Fatalf("stale approval honored: err = %v, want ErrNotOwner", err)
	}
}

func TestTransferEdgeCases(t *testing.T) {
	b := NewBook()
	b.NotifyMint(alice, 3)

	if err := b.TransferFrom(alice, bob, carol, 3); err != ErrWrongFrom {
		t.Fatalf("wrong from: err = %v, want ErrWrongFrom", err)
	}
	if err := b.TransferFrom(alice, alice, common.Address{}, 3); err != ErrZeroAddress {
		t.Fatalf("zero to: err = %v, want ErrZeroAddress", err)
	}
	if err := b.TransferFrom(alice, alice, bob, 99); err != ErrUnknownGem {
		t.Fatalf("unknown gem: err = %v, want ErrUnknownGem", err)
	}
	// Duplicate mint notifications are idempotent.
	b.NotifyMint(bob, 3)
	owner, _ := b.OwnerOf(3)
	if owner != alice {
		t.Fatalf("duplicate mint reassigned owner to %s", owner.Hex())
	}
}

func TestRestore(t *testing.T) {
	b := NewBook()
	b.Restore(map[drop.GemID]common.Address{1: alice, 2: bob, 3: bob})
	if b.BalanceOf(bob) != 2 {
		t.Fatalf("BalanceOf(bob) = %d, want 2", b.BalanceOf(bob))
	}
	owner, ok := b.OwnerOf(1)
	if !ok || owner != alice {
		t.Fatalf("OwnerOf(1) after restore = %s,%v", owner.Hex(), ok)
	}
}
