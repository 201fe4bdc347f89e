// Command admin drives operator instants over the live websocket:
//
//	admin -url ws://127.0.0.1:8080/v1/ws -operator 0x... -token t set-phase OPEN
//	admin ... set-root 0x<64 hex>
//	admin ... withdraw
//	admin ... state
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"gemdrop.xyz/internal/protocol"
)

func main() {
	var (
		url      = flag.String("url", "ws://127.0.0.1:8080/v1/ws", "server websocket url")
		operator = flag.String("operator", "", "operator address (0x hex)")
		token    = flag.String("token", os.Getenv("GD_OPERATOR_TOKEN"), "operator token (or GD_OPERATOR_TOKEN)")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[admin] ", 0)

	inst, err := buildInstant(flag.Args())
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if *operator == "" {
		logger.Fatalf("-operator is required")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial %s: %v", *url, err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Address:         *operator,
		ClientName:      "gemdrop-admin",
		Auth:            &protocol.HelloAuth{OperatorToken: *token},
	}
	if err := writeJSON(conn, hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	var welcome protocol.WelcomeMsg
	if err := readTyped(conn, protocol.TypeWelcome, &welcome); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	if !welcome.Operator && isOperatorInstant(inst.Type) {
		logger.Fatalf("server did not grant operator (check -operator and -token)")
	}

	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		Instants:        []protocol.InstantReq{inst},
	}
	if err := writeJSON(conn, act); err != nil {
		logger.Fatalf("send ACT: %v", err)
	}

	var res protocol.ResultMsg
	if err := readTyped(conn, protocol.TypeResult, &res); err != nil {
		logger.Fatalf("read RESULT: %v", err)
	}
	out, _ := json.MarshalIndent(res, "", "  ")
	fmt.Println(string(out))
	if !res.Accepted {
		os.Exit(1)
	}
}

func buildInstant(args []string) (protocol.InstantReq, error) {
	inst := protocol.InstantReq{ID: uuid.NewString()}
	if len(args) == 0 {
		return inst, fmt.Errorf("usage: admin [flags] set-phase|set-root|withdraw|state [arg]")
	}
	switch args[0] {
	case "set-phase":
		if len(args) != 2 {
			return inst, fmt.Errorf("set-phase CLOSED|PRESALE|OPEN")
		}
		inst.Type = protocol.InstSetPhase
		inst.Phase = args[1]
	case "set-root":
		if len(args) != 2 {
			return inst, fmt.Errorf("set-root 0x<64 hex>")
		}
		inst.Type = protocol.InstSetRoot
		inst.Root = args[1]
	case "withdraw":
		inst.Type = protocol.InstWithdraw
	case "state":
		inst.Type = protocol.InstGetState
	default:
		return inst, fmt.Errorf("unknown command %q", args[0])
	}
	return inst, nil
}

func isOperatorInstant(t string) bool {
	switch t {
	case protocol.InstSetPhase, protocol.InstSetRoot, protocol.InstWithdraw:
		return true
	}
	return false
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}

// readTyped skips broadcast EVENTs until the wanted message type arrives.
func readTyped(conn *websocket.Conn, wantType string, v any) error {
	deadline := time.Now().Add(10 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		if base.Type != wantType {
			continue
		}
		return json.Unmarshal(msg, v)
	}
}
