package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"reformkit/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "control ws url")
		name  = flag.String("name", "bot", "client name")
		ops   = flag.String("ops", "REFORM", "comma separated ops to send in order")
		pause = flag.Duration("pause", time.Second, "delay between ops")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	welcome, err := hello(conn, *name)
	if err != nil {
		logger.Fatalf("handshake: %v", err)
	}
	logger.Printf("WELCOME client_id=%s planet=%d tick=%d", welcome.ClientID, welcome.Planet, welcome.Tick)

	acks, err := runScript(conn, splitOps(*ops), *pause)
	for _, ack := range acks {
		if ack.Accepted {
			logger.Printf("ACK %s tick=%d ok %s", ack.ReqID, ack.Tick, ack.Message)
		} else {
			logger.Printf("ACK %s tick=%d %s %s", ack.ReqID, ack.Tick, ack.Code, ack.Message)
		}
	}
	if err != nil {
		logger.Fatalf("script: %v", err)
	}
}

func splitOps(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func hello(conn *websocket.Conn, name string) (protocol.WelcomeMsg, error) {
	var w protocol.WelcomeMsg
	msg := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ClientName: name}
	if err := conn.WriteJSON(msg); err != nil {
		return w, fmt.Errorf("send HELLO: %w", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		return w, err
	}
	if err := json.Unmarshal(b, &w); err != nil {
		return w, err
	}
	if w.Type != protocol.TypeWelcome {
		return w, fmt.Errorf("expected WELCOME, got %q", w.Type)
	}
	return w, nil
}

// runScript sends each op and waits for its ACK before the next one.
func runScript(conn *websocket.Conn, ops []string, pause time.Duration) ([]protocol.AckMsg, error) {
	acks := make([]protocol.AckMsg, 0, len(ops))
	for i, op := range ops {
		if i > 0 && pause > 0 {
			time.Sleep(pause)
		}
		cmd := protocol.CommandMsg{
			Type:            protocol.TypeCommand,
			ProtocolVersion: protocol.Version,
			ReqID:           fmt.Sprintf("K_%s_%d", strings.ToLower(op), i+1),
			Op:              op,
		}
		if err := conn.WriteJSON(cmd); err != nil {
			return acks, fmt.Errorf("send %s: %w", op, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
		var ack protocol.AckMsg
		if err := conn.ReadJSON(&ack); err != nil {
			return acks, fmt.Errorf("read ACK for %s: %w", op, err)
		}
		acks = append(acks, ack)
	}
	return acks, nil
}
