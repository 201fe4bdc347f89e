package drop

import "testing"

func TestPoolCapsSumToMaxSupply(t *testing.T) {
	var sum int
	for _, c := range PoolCaps {
		sum += int(c)
	}
	if sum != MaxSupply {
		t.Fatalf("pool caps sum = %d, want %d", sum, MaxSupply)
	}
}

func TestLedgerReserveNextSequentialIDs(t *testing.T) {
	l := NewLedger()
	for i := 1; i <= 5; i++ {
		id, err := l.ReserveNext(Common)
		if err != nil {
			t.Fatalf("ReserveNext #%d: %v", i, err)
		}
		if id != GemID(i) {
			t.Fatalf("ReserveNext #%d id = %d, want %d", i, id, i)
		}
	}
	if l.TotalIssued() != 5 {
		t.Fatalf("TotalIssued = %d, want 5", l.TotalIssued())
	}
	if l.Issued(Common) != 5 {
		t.Fatalf("Issued(COMMON) = %d, want 5", l.Issued(Common))
	}
	if l.Remaining() != MaxSupply-5 {
		t.Fatalf("Remaining = %d, want %d", l.Remaining(), MaxSupply-5)
	}
}

func TestLedgerTotalMatchesPoolSum(t *testing.T) {
	l := NewLedger()
	// Interleave pools; the sum invariant must hold after every reserve.
	order := []Finish{Common, Black, Diamond, White, Common, Silver, Gold, Black}
	for n, f := range order {
		if _, err := l.ReserveNext(f); err != nil {
			t.Fatalf("ReserveNext #%d: %v", n, err)
		}
		var sum uint16
		for i := Finish(0); i < FinishCount; i++ {
			sum += l.Issued(i)
		}
		if sum != l.TotalIssued() {
			t.Fatalf("after %d reserves: pool sum %d != total %d", n+1, sum, l.TotalIssued())
		}
	}
}

func TestLedgerExhaustion(t *testing.T) {
	l := NewLedger()
	l.Restore(MaxSupply, [FinishCount]uint16{590, 200, 200, 3, 3, 3})
	if l.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", l.Remaining())
	}
	if _, err := l.ReserveNext(Common); err != ErrSupplyExhausted {
		t.Fatalf("ReserveNext on full ledger: err = %v, want ErrSupplyExhausted", err)
	}
}

func TestParseFinishRoundTrip(t *testing.T) {
	for f := Finish(0); f < FinishCount; f++ {
		got, ok := ParseFinish(f.String())
		if !ok || got != f {
			t.Fatalf("ParseFinish(%q) = %v,%v", f.String(), got, ok)
		}
	}
	if _, ok := ParseFinish("OPAL"); ok {
		t.Fatalf("ParseFinish accepted unknown finish")
	}
}

func TestParsePhase(t *testing.T) {
	cases := []struct {
		in   string
		want Phase
		ok   bool
	}{
		{"CLOSED", PhaseClosed, true},
		{"presale", PhasePresale, true},
		{" open ", PhaseOpen, true},
		{"PAUSED", 0, false},
	}
	for _, c := range cases {
		got, ok := ParsePhase(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("ParsePhase(%q) = %v,%v want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
