package command

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/veloce-obs/thermoservo/internal/logging"
	"github.com/veloce-obs/thermoservo/internal/servo"
)

// Server accepts line-based command connections and applies them to the
// servo loop. Every mutation goes through the loop's own methods, so the
// loop's mutex is the single serialization point shared with the cycle
// path.
type Server struct {
	loop *servo.Loop
	log  *logging.Logger

	mu sync.Mutex
	ln net.Listener
}

func NewServer(loop *servo.Loop, log *logging.Logger) *Server {
	return &Server{loop: loop, log: log}
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("command server: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.log.Infof("command server listening on %s", ln.Addr())

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Errorf("command accept: %v", err)
			continue
		}
		go s.handle(ctx, conn)
	}
}

// Addr reports the bound listener address, useful when addr had port 0.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	s.log.Debugf("command client %s connected", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		cmd, err := Parse(line)
		if err != nil {
			fmt.Fprintf(conn, "ERROR: %v\n%s\n", err, Usage)
			continue
		}
		if cmd.Op == OpQuit {
			fmt.Fprintln(conn, "bye")
			return
		}
		fmt.Fprintln(conn, s.Execute(cmd))
	}
	s.log.Debugf("command client %s disconnected", conn.RemoteAddr())
}

// Execute dispatches one command against the loop and renders the reply.
func (s *Server) Execute(cmd Command) string {
	switch cmd.Op {
	case OpMode:
		if err := s.loop.SetMode(cmd.Mode); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return fmt.Sprintf("mode %s", cmd.Mode)

	case OpSetpoint:
		s.loop.SetSetpoint(cmd.Value)
		return fmt.Sprintf("setpoint %9.6f", cmd.Value)

	case OpRecord:
		s.loop.SetRecording(cmd.On)
		return fmt.Sprintf("recording %v", cmd.On)

	case OpVerbose:
		s.loop.SetVerbose(cmd.On)
		return fmt.Sprintf("verbose %v", cmd.On)

	case OpTemp:
		st := s.loop.Status()
		if len(st.Temps) == 0 {
			return "ERROR: no measurement yet"
		}
		parts := make([]string, len(st.Temps))
		for i, t := range st.Temps {
			parts[i] = fmt.Sprintf("%9.6f", t)
		}
		return strings.Join(parts, " ")

	case OpVolts:
		st := s.loop.Status()
		if len(st.Volts) == 0 {
			return "ERROR: no measurement yet"
		}
		parts := make([]string, len(st.Volts))
		for i, v := range st.Volts {
			parts[i] = fmt.Sprintf("%9.6f", v)
		}
		return strings.Join(parts, " ")

	case OpStatus:
		st := s.loop.Status()
		return fmt.Sprintf("mode=%s setpoint=%.3f cycles=%d recording=%v recorded=%d fractions=%v",
			st.Mode, st.Setpoint, st.Cycles, st.Recording, st.Recorded, st.Fractions)

	case OpHeater:
		if err := s.loop.ManualHeater(cmd.Channel, cmd.Fraction); err != nil {
			return fmt.Sprintf("ERROR: %v", err)
		}
		return "done"

	case OpGains:
		g := s.loop.Gains()
		if g == nil {
			return "gains not derived yet (enter lqg mode first)"
		}
		return fmt.Sprintf("K=[%.6g %.6g] L=[%.6g %.6g]",
			g.K.At(0, 0), g.K.At(1, 0), g.L.At(0, 0), g.L.At(0, 1))

	default:
		return "ERROR: unhandled command"
	}
}
