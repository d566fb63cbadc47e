package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Umairism/Drone-System/internal/sim"
	"github.com/Umairism/Drone-System/internal/telemetry"
)

// Flight is the slice of the simulator the router drives.
type Flight interface {
	Arm() error
	Disarm() error
	Takeoff(altitude float64) error
	Land() error
	Goto(lat, lng, alt float64) (float64, error)
	StartMission(waypoints []telemetry.Waypoint) error
	ReturnHome() error
	EmergencyStop() error
	Snapshot() telemetry.Snapshot
}

// Router validates commands and dispatches them to the flight state
// machine. Validation always runs first: a command never reaches the
// simulator unless its shape and ranges are good.
type Router struct {
	flight Flight
}

// NewRouter creates a router over the given flight interface.
func NewRouter(flight Flight) *Router {
	return &Router{flight: flight}
}

// Execute runs one command and returns its Result. The Result reports
// rejection via Success=false; Execute itself never returns an error.
func (r *Router) Execute(cmd Command) Result {
	start := time.Now()
	msg, err := r.dispatch(cmd)
	res := Result{
		Success:   err == nil,
		Message:   msg,
		Timestamp: time.Now(),
	}
	if err != nil {
		res.Message = err.Error()
	} else if res.Message == "" {
		res.Message = fmt.Sprintf("%s executed", cmd.Name)
	}

	var ve *ValidationError
	var pe *sim.PreconditionError
	switch {
	case err == nil:
		slog.Info("command executed", "command", cmd.Name, "elapsed", time.Since(start))
	case errors.As(err, &ve):
		slog.Warn("command rejected", "command", cmd.Name, "reason", ve.Error())
	case errors.As(err, &pe):
		slog.Warn("command precondition failed", "command", cmd.Name, "reason", pe.Reason)
	default:
		slog.Error("command failed", "command", cmd.Name, "error", err)
	}
	return res
}

func (r *Router) dispatch(cmd Command) (string, error) {
	switch cmd.Name {
	case "arm":
		return "drone armed", r.flight.Arm()

	case "disarm":
		return "drone disarmed", r.flight.Disarm()

	case "takeoff":
		var p TakeoffParams
		if err := decodeParams(cmd.Params, &p); err != nil {
			return "", err
		}
		if p.Altitude < minAlt || p.Altitude > maxAlt {
			return "", invalid("altitude", fmt.Sprintf("%g outside [%g, %g]", p.Altitude, minAlt, maxAlt))
		}
		return fmt.Sprintf("takeoff to %gm initiated", p.Altitude), r.flight.Takeoff(p.Altitude)

	case "land":
		return "landing initiated", r.flight.Land()

	case "goto":
		var p GotoParams
		if err := decodeParams(cmd.Params, &p); err != nil {
			return "", err
		}
		if err := validateTarget(p.Lat, p.Lng, p.Alt); err != nil {
			return "", err
		}
		dist, err := r.flight.Goto(p.Lat, p.Lng, p.Alt)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("navigating to target %.0fm away", dist), nil

	case "start_mission":
		var p MissionParams
		if err := decodeParams(cmd.Params, &p); err != nil {
			return "", err
		}
		if len(p.Waypoints) == 0 {
			return "", invalid("waypoints", "mission requires at least one waypoint")
		}
		for i, wp := range p.Waypoints {
			if err := validateTarget(wp.Lat, wp.Lng, wp.Alt); err != nil {
				return "", invalid(fmt.Sprintf("waypoints[%d]", i), err.Error())
			}
		}
		return fmt.Sprintf("mission started with %d waypoints", len(p.Waypoints)), r.flight.StartMission(p.Waypoints)

	case "return_home":
		return "returning to home", r.flight.ReturnHome()

	case "emergency_stop":
		return "emergency stop activated", r.flight.EmergencyStop()

	default:
		return "", invalid("command", fmt.Sprintf("unknown command %q", cmd.Name))
	}
}

// Snapshot exposes the current drone state for status queries.
func (r *Router) Snapshot() telemetry.Snapshot {
	return r.flight.Snapshot()
}

func decodeParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return invalid("params", "missing required parameters")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalid("params", err.Error())
	}
	return nil
}
