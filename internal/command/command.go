// Package command implements the text front end of the servo: a line-based
// TCP protocol whose verbs form a closed enumeration, dispatched with a
// switch so a new verb cannot be forgotten anywhere.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/veloce-obs/thermoservo/internal/servo"
)

type Op int

const (
	OpMode Op = iota
	OpSetpoint
	OpRecord
	OpVerbose
	OpTemp
	OpVolts
	OpStatus
	OpHeater
	OpGains
	OpQuit
)

// Command is one parsed request.
type Command struct {
	Op       Op
	Mode     servo.Mode
	Value    float64
	On       bool
	Channel  int
	Fraction float64
}

const Usage = `commands:
  mode lqg|pid|idle      select control law
  setpoint <celsius>     change target temperature
  rec on|off             start/stop recording
  verbose on|off         per-cycle detail logging
  temp                   latest temperature
  volts                  latest raw voltages
  status                 loop status
  heater <ch> <frac>     manual drive (idle mode only)
  gains                  show derived gains
  quit                   close connection`

// Parse turns one input line into a Command. Unknown verbs and malformed
// arguments produce an error whose text is safe to echo to the client.
func Parse(line string) (Command, error) {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(line)))
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "mode":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: mode lqg|pid|idle")
		}
		var m servo.Mode
		switch fields[1] {
		case "lqg":
			m = servo.ModeLQG
		case "pid":
			m = servo.ModePID
		case "idle":
			m = servo.ModeIdle
		default:
			return Command{}, fmt.Errorf("unknown mode %q", fields[1])
		}
		return Command{Op: OpMode, Mode: m}, nil

	case "setpoint":
		if len(fields) != 2 {
			return Command{}, fmt.Errorf("usage: setpoint <celsius>")
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Command{}, fmt.Errorf("setpoint must be a number")
		}
		return Command{Op: OpSetpoint, Value: v}, nil

	case "rec", "verbose":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			return Command{}, fmt.Errorf("usage: %s on|off", fields[0])
		}
		op := OpRecord
		if fields[0] == "verbose" {
			op = OpVerbose
		}
		return Command{Op: op, On: fields[1] == "on"}, nil

	case "temp":
		return Command{Op: OpTemp}, nil
	case "volts":
		return Command{Op: OpVolts}, nil
	case "status":
		return Command{Op: OpStatus}, nil
	case "gains":
		return Command{Op: OpGains}, nil
	case "quit", "exit":
		return Command{Op: OpQuit}, nil

	case "heater":
		if len(fields) != 3 {
			return Command{}, fmt.Errorf("usage: heater <channel> <fraction>")
		}
		ch, err := strconv.Atoi(fields[1])
		if err != nil {
			return Command{}, fmt.Errorf("channel must be an integer")
		}
		frac, err := strconv.ParseFloat(fields[2], 64)
		if err != nil || frac < 0 || frac > 1 {
			return Command{}, fmt.Errorf("fraction must be between 0.0 and 1.0")
		}
		return Command{Op: OpHeater, Channel: ch, Fraction: frac}, nil

	default:
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}
