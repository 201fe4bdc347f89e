package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	UnitPriceWei string `yaml:"unit_price_wei"`
	JackpotWei   string `yaml:"jackpot_wei"`

	Operator      string `yaml:"operator"`
	OperatorToken string `yaml:"operator_token"`
	AllowlistRoot string `yaml:"allowlist_root"`
	StartPhase    string `yaml:"start_phase"`

	SnapshotEveryOps uint64 `yaml:"snapshot_every_ops"`

	// FinishRefs maps finish name -> static metadata reference, resolved by
	// the external metadata collaborator. Keys use canonical finish names.
	FinishRefs map[string]string `yaml:"finish_refs"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("drop.yaml: %w", err)
	}
	return t, nil
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:  "1.0",
		UnitPriceWei:     "60000000000000000",   // 0.06 native units
		JackpotWei:       "1000000000000000000", // 1 native unit
		StartPhase:       "CLOSED",
		SnapshotEveryOps: 256,
		FinishRefs:       map[string]string{},
	}
}
