// Package control validates and executes drone commands. Commands
// arrive as JSON from the websocket surface or the MQTT control plane;
// both funnel through the same Router.
package control

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Umairism/Drone-System/internal/telemetry"
)

// Command is the wire shape of a control request.
type Command struct {
	Name   string          `json:"command"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Result is the uniform command outcome. Rejected commands are still a
// Result with Success false, never a transport error.
type Result struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// TakeoffParams carries the takeoff target altitude in meters.
type TakeoffParams struct {
	Altitude float64 `json:"altitude"`
}

// GotoParams carries a single navigation target.
type GotoParams struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// MissionParams carries an ordered waypoint list.
type MissionParams struct {
	Waypoints []telemetry.Waypoint `json:"waypoints"`
}

// ValidationError reports a malformed or out-of-range command. It is
// raised before the drone state is consulted: a command that is both
// malformed and contextually illegal reports the malformation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Geographic and flight envelope bounds.
const (
	minLat = -90.0
	maxLat = 90.0
	minLng = -180.0
	maxLng = 180.0
	minAlt = 1.0
	maxAlt = 100.0
)

func validateTarget(lat, lng, alt float64) error {
	if lat < minLat || lat > maxLat {
		return invalid("lat", fmt.Sprintf("%g outside [%g, %g]", lat, minLat, maxLat))
	}
	if lng < minLng || lng > maxLng {
		return invalid("lng", fmt.Sprintf("%g outside [%g, %g]", lng, minLng, maxLng))
	}
	if alt < minAlt || alt > maxAlt {
		return invalid("alt", fmt.Sprintf("%g outside [%g, %g]", alt, minAlt, maxAlt))
	}
	return nil
}
