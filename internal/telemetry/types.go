package telemetry

import "time"

// FlightMode is the drone's flight-controller mode.
type FlightMode string

const (
	ModeDisarmed  FlightMode = "DISARMED"
	ModeArmed     FlightMode = "ARMED"
	ModeGuided    FlightMode = "GUIDED"
	ModeRTL       FlightMode = "RTL"
	ModeLand      FlightMode = "LAND"
	ModeEmergency FlightMode = "EMERGENCY"
)

// Position is a geodetic position: degrees, degrees, meters.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// Waypoint is a single mission target.
type Waypoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Alt float64 `json:"alt"`
}

// Severity classifies an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert is a system alert raised by the simulator.
type Alert struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// MissionStatus is the mission progress reported in a snapshot.
type MissionStatus struct {
	Cursor int  `json:"cursor"`
	Total  int  `json:"total"`
	Active bool `json:"active"`
}

// GPSInfo carries the receiver quality fields of the latest fix.
type GPSInfo struct {
	FixQuality int     `json:"fix_quality"`
	Satellites int     `json:"satellites"`
	HDOP       float64 `json:"hdop"`
}

// Snapshot is an immutable copy of the drone state taken at a point in
// time. It is the only thing ever placed on broadcast queues; it never
// aliases the simulator's mutable fields.
type Snapshot struct {
	Timestamp  time.Time      `json:"timestamp"`
	Armed      bool           `json:"armed"`
	Flying     bool           `json:"flying"`
	Mode       FlightMode     `json:"mode"`
	Position   Position       `json:"position"`
	Heading    float64        `json:"heading"`
	Speed      float64        `json:"speed"`
	BatteryPct float64        `json:"battery_pct"`
	Mission    *MissionStatus `json:"mission,omitempty"`
	GPS        GPSInfo        `json:"gps"`
	Alerts     []Alert        `json:"alerts"`
}

// Sample is a normalized telemetry reading produced by a hardware
// adapter (real GPS/flight controller or the mock generator).
type Sample struct {
	Position   Position  `json:"position"`
	Satellites int       `json:"satellites"`
	FixQuality int       `json:"fix_quality"`
	HDOP       float64   `json:"hdop"`
	Speed      float64   `json:"speed"`
	Course     float64   `json:"course"`
	Timestamp  time.Time `json:"timestamp"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// HasFix reports whether the sample carries a usable position.
func (s Sample) HasFix() bool {
	return s.FixQuality > 0 || s.Position.Lat != 0 || s.Position.Lng != 0
}

// BBox is a detection bounding box in pixel coordinates.
type BBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Area returns the pixel area of the box.
func (b BBox) Area() int { return b.Width * b.Height }

// Center returns the center point of the box.
func (b BBox) Center() (int, int) { return b.X + b.Width/2, b.Y + b.Height/2 }

// Detection is a single detected object.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// DetectionBatch is the payload published on the detections channel.
type DetectionBatch struct {
	Detections []Detection `json:"detections"`
	Count      int         `json:"count"`
	FrameSeq   uint64      `json:"frame_seq"`
	Timestamp  time.Time   `json:"timestamp"`
}

// VideoFrame is a single captured frame. Data is raw pixel data in the
// format named by Format ("BGR24" for the mock source).
type VideoFrame struct {
	Seq       uint64    `msgpack:"seq" json:"seq"`
	Timestamp time.Time `msgpack:"timestamp" json:"timestamp"`
	Width     int       `msgpack:"width" json:"width"`
	Height    int       `msgpack:"height" json:"height"`
	Format    string    `msgpack:"format" json:"format"`
	Data      []byte    `msgpack:"data" json:"data"`
	TraceID   string    `msgpack:"trace_id" json:"trace_id,omitempty"`
}
