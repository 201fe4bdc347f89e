package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.yaml")
	err := os.WriteFile(path, []byte(`
protocol_version: "1.0"
unit_price_wei: "60000000000000000"
jackpot_wei: "1000000000000000000"
operator: "0x00000000000000000000000000000000000000ee"
operator_token: "secret"
allowlist_root: "0x5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a5a"
start_phase: "PRESALE"
snapshot_every_ops: 128
finish_refs:
  COMMON: "ipfs://bafy-common"
  DIAMOND: "ipfs://bafy-diamond"
`), 0o644)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	tun, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tun.UnitPriceWei != "60000000000000000" {
		t.Fatalf("unit price %q", tun.UnitPriceWei)
	}
	if tun.StartPhase != "PRESALE" || tun.SnapshotEveryOps != 128 {
		t.Fatalf("phase %q every %d", tun.StartPhase, tun.SnapshotEveryOps)
	}
	if tun.FinishRefs["DIAMOND"] != "ipfs://bafy-diamond" {
		t.Fatalf("finish refs %v", tun.FinishRefs)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "drop.yaml")
	if err := os.WriteFile(path, []byte("unit_price_wei: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultsAreUsable(t *testing.T) {
	d := Defaults()
	if d.UnitPriceWei == "" || d.JackpotWei == "" {
		t.Fatalf("defaults missing prices: %+v", d)
	}
	if d.StartPhase != "CLOSED" {
		t.Fatalf("default phase %q, want CLOSED", d.StartPhase)
	}
}
