package protocol_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"gemdrop.xyz/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Marshal the real Go message types so drift between the structs and the
	// published schemas fails here.
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate: %v\n%s", err, b)
		}
	}

	state := protocol.StateObs{
		Phase:           "OPEN",
		TotalIssued:     42,
		Remaining:       957,
		IssuedByFinish:  []int{40, 1, 1, 0, 0, 0},
		JackpotsAwarded: 0,
		AllowlistRoot:   "0x" + hex64("ab"),
		VaultWei:        "2520000000000000000",
		OpSeq:           42,
		OpDigest:        "0x" + hex64("cd"),
	}

	validate(compile("hello.schema.json"), protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Address:         "0x00000000000000000000000000000000000000a1",
		ClientName:      "minter-cli",
		Auth:            &protocol.HelloAuth{OperatorToken: "t0k3n"},
	})

	validate(compile("welcome.schema.json"), protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       "3b241101-e2bb-4255-8caf-4136c566a962",
		Address:         "0x00000000000000000000000000000000000000a1",
		Drop: protocol.DropParams{
			MaxSupply:    999,
			Finishes:     []string{"COMMON", "BLACK", "WHITE", "SILVER", "GOLD", "DIAMOND"},
			PoolCaps:     []int{590, 200, 200, 3, 3, 3},
			UnitPriceWei: "60000000000000000",
			JackpotWei:   "1000000000000000000",
			MaxPerCall:   3,
			MaxJackpots:  3,
		},
		State: state,
	})

	validate(compile("act.schema.json"), protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants: []protocol.InstantReq{
			{ID: "i0", Type: protocol.InstPresaleMint, Amount: 2, ValueWei: "120000000000000000",
				Proof: []string{"0x" + hex64("11"), "0x" + hex64("22")}},
			{ID: "i1", Type: protocol.InstClaim, GemIDs: []uint32{1, 2, 3, 4, 5, 6}},
			{ID: "i2", Type: protocol.InstGetState},
		},
	})

	resultSchema := compile("result.schema.json")
	validate(resultSchema, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ResultFor:       "i0",
		Accepted:        true,
		Minted: []protocol.MintedGem{
			{GemID: 43, Finish: "COMMON"},
			{GemID: 44, Finish: "DIAMOND"},
		},
	})
	validate(resultSchema, protocol.ResultMsg{
		Type:            protocol.TypeResult,
		ProtocolVersion: protocol.Version,
		ResultFor:       "i1",
		Accepted:        false,
		Code:            protocol.ErrThresholdNotMet,
		Message:         "jackpot 1 unlocks at 333 issued, have 42",
	})

	validate(compile("event.schema.json"), protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Event:           protocol.EventJackpot,
		OpSeq:           43,
		Address:         "0x00000000000000000000000000000000000000a1",
		GemIDs:          []uint32{1, 2, 3, 4, 5, 6},
		PayoutWei:       "1000000000000000000",
	})
}

func hex64(pair string) string {
	out := ""
	for i := 0; i < 32; i++ {
		out += pair
	}
	return out
}
