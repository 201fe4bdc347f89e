// Command allowlist builds the presale membership commitment from a list of
// addresses: the Merkle root to configure on the server, and a per-address
// proof file to distribute to members.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"gemdrop.xyz/internal/merkle"
)

type output struct {
	Root   string              `json:"root"`
	Count  int                 `json:"count"`
	Proofs map[string][]string `json:"proofs"`
}

func main() {
	var (
		inPath  = flag.String("in", "", "address list, one 0x hex address per line (# comments ok)")
		outPath = flag.String("out", "", "proof file to write (default: stdout)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[allowlist] ", 0)
	if *inPath == "" {
		logger.Fatalf("usage: allowlist -in addresses.txt [-out proofs.json]")
	}

	addrs, err := readAddresses(*inPath)
	if err != nil {
		logger.Fatalf("read addresses: %v", err)
	}
	if len(addrs) < 2 {
		logger.Fatalf("need at least 2 distinct addresses, got %d (single-member proofs are not verifiable)", len(addrs))
	}

	tree, ok := merkle.Build(addrs)
	if !ok {
		logger.Fatalf("empty allow list")
	}
	root := tree.Root()

	out := output{
		Root:   "0x" + common.Bytes2Hex(root[:]),
		Count:  len(addrs),
		Proofs: make(map[string][]string, len(addrs)),
	}
	for _, a := range addrs {
		proof, ok := tree.Proof(a)
		if !ok {
			logger.Fatalf("no proof for %s", a.Hex())
		}
		hexes := make([]string, len(proof))
		for i, p := range proof {
			hexes[i] = "0x" + common.Bytes2Hex(p[:])
		}
		out.Proofs[a.Hex()] = hexes
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		logger.Fatalf("marshal: %v", err)
	}
	b = append(b, '\n')

	if *outPath == "" {
		_, _ = os.Stdout.Write(b)
		return
	}
	if err := os.WriteFile(*outPath, b, 0o644); err != nil {
		logger.Fatalf("write %s: %v", *outPath, err)
	}
	fmt.Fprintf(os.Stderr, "root %s (%d members) -> %s\n", out.Root, out.Count, *outPath)
}

func readAddresses(path string) ([]common.Address, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var addrs []common.Address
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		s := strings.TrimSpace(sc.Text())
		if s == "" || strings.HasPrefix(s, "#") {
			continue
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("line %d: not a hex address: %q", line, s)
		}
		addrs = append(addrs, common.HexToAddress(s))
	}
	return addrs, sc.Err()
}
