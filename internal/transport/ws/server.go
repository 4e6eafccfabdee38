package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"reformkit/internal/protocol"
	"reformkit/internal/sim/loop"
	"reformkit/internal/transport/observer"
)

// AuditFunc records a command and its ACK.
type AuditFunc func(clientID string, cmd protocol.CommandMsg, ack protocol.AckMsg)

// Server accepts control connections that submit COMMAND messages to the
// loop and receive one ACK per command.
type Server struct {
	loop *loop.Loop
	log  *log.Logger

	// AllowRemote lifts the loopback-only restriction.
	AllowRemote bool
	Audit       AuditFunc

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(l *loop.Loop, logger *log.Logger) *Server {
	s := &Server{
		loop: l,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

var errAckTimeout = errors.New("loop did not answer")

func (s *Server) allowed(r *http.Request) bool {
	return s.AllowRemote || observer.IsLoopbackRemote(r.RemoteAddr)
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		clientID := s.handshake(conn)
		if clientID == "" {
			return
		}
		if s.log != nil {
			s.log.Printf("control %s connected", clientID)
		}

		// Reader loop. Each COMMAND is answered before the next is read, so
		// this goroutine is the only writer.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				continue
			}
			if base.Type != protocol.TypeCommand {
				continue
			}
			var cmd protocol.CommandMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			ack := s.submit(clientID, cmd)
			if err := writeJSON(conn, ack); err != nil {
				break
			}
		}
	}
}

// CommandHandler is the HTTP form of a single COMMAND: POST the JSON body,
// get the ACK back.
func (s *Server) CommandHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var cmd protocol.CommandMsg
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 1<<20)).Decode(&cmd); err != nil {
			http.Error(rw, "bad request", http.StatusBadRequest)
			return
		}
		if cmd.ProtocolVersion == "" {
			cmd.ProtocolVersion = protocol.Version
		}
		ack := s.submit("http", cmd)
		rw.Header().Set("Content-Type", "application/json")
		if !ack.Accepted && ack.Code == protocol.ErrBadRequest {
			rw.WriteHeader(http.StatusBadRequest)
		}
		_ = json.NewEncoder(rw).Encode(ack)
	}
}

func (s *Server) submit(clientID string, cmd protocol.CommandMsg) protocol.AckMsg {
	ack := protocol.AckMsg{Type: protocol.TypeAck, ProtocolVersion: protocol.Version, ReqID: cmd.ReqID}
	switch {
	case cmd.ProtocolVersion != protocol.Version:
		ack.Code = protocol.ErrBadRequest
		ack.Message = "bad protocol_version"
	case !protocol.IsKnownOp(cmd.Op):
		ack.Code = protocol.ErrBadRequest
		ack.Message = fmt.Sprintf("unknown op %q", cmd.Op)
	default:
		resp := make(chan protocol.AckMsg, 1)
		select {
		case s.loop.Inbox() <- loop.CommandEnvelope{ClientID: clientID, Cmd: cmd, Resp: resp}:
		default:
			ack.Code = protocol.ErrBusy
			ack.Message = "command queue full"
			return s.audited(clientID, cmd, ack)
		}
		select {
		case ack = <-resp:
		case <-time.After(5 * time.Second):
			ack.Code = protocol.ErrInternal
			ack.Message = errAckTimeout.Error()
		}
	}
	return s.audited(clientID, cmd, ack)
}

func (s *Server) audited(clientID string, cmd protocol.CommandMsg, ack protocol.AckMsg) protocol.AckMsg {
	if s.Audit != nil {
		s.Audit(clientID, cmd, ack)
	}
	return ack
}

func (s *Server) handshake(conn *websocket.Conn) string {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return ""
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return ""
	}
	name := strings.TrimSpace(hello.ClientName)
	if name == "" {
		name = "client"
	}

	clientID := fmt.Sprintf("C%d-%s", s.nextID.Add(1), name)
	snap := s.loop.Snapshot()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        clientID,
		Tick:            snap.Tick,
		Planet:          snap.PlanetID,
	}
	if err := writeJSON(conn, welcome); err != nil {
		return ""
	}
	return clientID
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
