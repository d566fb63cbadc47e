// Package sim owns the mutable drone state. All mutation entry points
// and the periodic tick serialize through one state lock; everything
// other components ever see is an immutable snapshot copy.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/hardware"
	"github.com/Umairism/Drone-System/internal/telemetry"
)

// alertCapacity bounds the alert ring; the oldest entry is evicted once
// exceeded.
const alertCapacity = 50

// snapshotAlerts is how many trailing alerts a snapshot carries.
const snapshotAlerts = 10

// lockTimeout is the generous bound on acquiring the state lock. Missing
// it means a deadlock in this process, which must crash loudly rather
// than hang silently.
const lockTimeout = 5 * time.Second

const lowBatteryThreshold = 20.0
const armBatteryFloor = 15.0

// Sink receives simulator output: periodic and out-of-band snapshots,
// and alerts as they are raised.
type Sink interface {
	Telemetry(telemetry.Snapshot)
	Alert(telemetry.Alert)
}

// mission is the active navigation plan.
type mission struct {
	waypoints []telemetry.Waypoint
	cursor    int
	active    bool
}

// droneState is the single record of truth. Guarded by Simulator.sem.
type droneState struct {
	armed   bool
	flying  bool
	mode    telemetry.FlightMode
	pos     telemetry.Position
	heading float64
	speed   float64
	battery float64
	mission *mission
	alerts  []telemetry.Alert
	gps     telemetry.GPSInfo
}

// Simulator runs the tick loop and exposes the only mutation entry
// points for the drone state.
type Simulator struct {
	cfg     config.SimulationConfig
	adapter hardware.Adapter
	sink    Sink

	// sem is the state lock. A channel rather than sync.Mutex so the
	// acquire can be bounded: exceeding lockTimeout panics.
	sem chan struct{}
	st  droneState

	home          *telemetry.Position
	alertSeq      int64
	lowBattWarned bool
	pending       []telemetry.Alert
	rng           *rand.Rand

	runMu     sync.Mutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	ticks     uint64
}

// New creates a simulator in the disarmed ground state at the home
// position.
func New(cfg config.SimulationConfig, adapter hardware.Adapter, sink Sink) *Simulator {
	s := &Simulator{
		cfg:     cfg,
		adapter: adapter,
		sink:    sink,
		sem:     make(chan struct{}, 1),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.st = droneState{
		mode:    telemetry.ModeDisarmed,
		pos:     telemetry.Position{Lat: cfg.HomeLat, Lng: cfg.HomeLng, Alt: 0},
		battery: cfg.InitialBatteryPct,
	}
	return s
}

// lock acquires the state lock with a bounded wait. The returned func
// releases it.
func (s *Simulator) lock() func() {
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }
	case <-time.After(lockTimeout):
		panic(fmt.Sprintf("drone state lock not acquired within %s: deadlock", lockTimeout))
	}
}

// Start launches the tick loop.
func (s *Simulator) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.isRunning {
		return fmt.Errorf("simulator already running")
	}
	s.isRunning = true
	s.stopCh = make(chan struct{})

	slog.Info("simulator starting",
		"tick_hz", s.cfg.TickHz,
		"home_lat", s.cfg.HomeLat,
		"home_lng", s.cfg.HomeLng,
	)

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop halts the tick loop after its current iteration.
func (s *Simulator) Stop() error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if !s.isRunning {
		return nil
	}
	s.isRunning = false
	close(s.stopCh)
	s.wg.Wait()
	slog.Info("simulator stopped", "ticks", s.ticks)
	return nil
}

func (s *Simulator) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(time.Duration(float64(time.Second) / s.cfg.TickHz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick performs one state update and publishes a snapshot. Exported so
// tests can drive the simulator deterministically without the loop.
func (s *Simulator) Tick() {
	// Pull the latest hardware sample before taking the state lock;
	// Sample never blocks but it is still I/O-adjacent.
	var sample telemetry.Sample
	if s.adapter != nil {
		sample = s.adapter.Sample()
	}

	unlock := s.lock()

	if sample.HasFix() {
		s.st.gps = telemetry.GPSInfo{
			FixQuality: sample.FixQuality,
			Satellites: sample.Satellites,
			HDOP:       sample.HDOP,
		}
		if !s.st.flying {
			// On the ground the receiver is the authority on position.
			s.st.pos = sample.Position
			s.st.speed = sample.Speed
		}
	}

	if s.st.flying {
		if s.st.mission != nil && s.st.mission.active {
			s.advanceMission()
			s.st.speed = 5 + s.rng.Float64()*10
		} else {
			// Idle hover jitter.
			s.st.pos.Lat += (s.rng.Float64() - 0.5) * 0.00002
			s.st.pos.Lng += (s.rng.Float64() - 0.5) * 0.00002
			s.st.pos.Alt += (s.rng.Float64() - 0.5) * 1.0
			s.st.speed = s.rng.Float64() * 3
		}

		drain := s.cfg.BatteryDrainPerMin / 60.0 / s.cfg.TickHz
		s.st.battery = math.Max(0, s.st.battery-drain)
		if s.st.battery < lowBatteryThreshold && !s.lowBattWarned {
			s.lowBattWarned = true
			s.raiseAlert("Low battery warning", telemetry.SeverityWarning, "low_battery")
		}
	}

	s.st.heading += (s.rng.Float64() - 0.5) * 4
	s.st.heading = math.Mod(s.st.heading+360, 360)

	snap := s.snapshot()
	pending := s.takePending()
	s.ticks++
	unlock()

	s.emitAlerts(pending)
	if s.sink != nil {
		s.sink.Telemetry(snap)
	}
}

// advanceMission moves toward the current waypoint by constant per-axis
// steps and advances the cursor once every axis is within tolerance.
// Caller holds the state lock.
func (s *Simulator) advanceMission() {
	m := s.st.mission
	if m.cursor >= len(m.waypoints) {
		m.active = false
		return
	}

	target := m.waypoints[m.cursor]
	latDiff := target.Lat - s.st.pos.Lat
	lngDiff := target.Lng - s.st.pos.Lng
	altDiff := target.Alt - s.st.pos.Alt

	step := s.cfg.StepDeg
	if math.Abs(latDiff) > step {
		s.st.pos.Lat += math.Copysign(step, latDiff)
	}
	if math.Abs(lngDiff) > step {
		s.st.pos.Lng += math.Copysign(step, lngDiff)
	}
	if math.Abs(altDiff) > s.cfg.ArrivalTolAltM/2 {
		s.st.pos.Alt += math.Copysign(s.cfg.StepAltM, altDiff)
	}

	if math.Abs(latDiff) < s.cfg.ArrivalTolDeg &&
		math.Abs(lngDiff) < s.cfg.ArrivalTolDeg &&
		math.Abs(altDiff) < s.cfg.ArrivalTolAltM {
		m.cursor++
		if m.cursor >= len(m.waypoints) {
			m.active = false
			if s.st.mode == telemetry.ModeRTL {
				s.st.mode = telemetry.ModeGuided
			}
			s.raiseAlert("Mission completed successfully", telemetry.SeverityInfo, "mission")
		}
	}
}

// raiseAlert appends to the bounded alert ring and stages the alert
// for emission. Caller holds the state lock; the sink is only invoked
// after the lock is released, since alert delivery may block.
func (s *Simulator) raiseAlert(message string, severity telemetry.Severity, alertType string) {
	s.alertSeq++
	a := telemetry.Alert{
		ID:        s.alertSeq,
		Message:   message,
		Severity:  severity,
		Type:      alertType,
		Timestamp: time.Now(),
	}
	s.st.alerts = append(s.st.alerts, a)
	if len(s.st.alerts) > alertCapacity {
		s.st.alerts = s.st.alerts[len(s.st.alerts)-alertCapacity:]
	}
	s.pending = append(s.pending, a)
}

// takePending drains the staged alerts. Caller holds the state lock.
func (s *Simulator) takePending() []telemetry.Alert {
	p := s.pending
	s.pending = nil
	return p
}

// emitAlerts forwards staged alerts to the sink outside the state lock.
func (s *Simulator) emitAlerts(alerts []telemetry.Alert) {
	if s.sink == nil {
		return
	}
	for _, a := range alerts {
		s.sink.Alert(a)
	}
}

// snapshot builds an immutable copy of the state. Caller holds the
// state lock; the copy never aliases mutable fields.
func (s *Simulator) snapshot() telemetry.Snapshot {
	snap := telemetry.Snapshot{
		Timestamp:  time.Now(),
		Armed:      s.st.armed,
		Flying:     s.st.flying,
		Mode:       s.st.mode,
		Position:   s.st.pos,
		Heading:    s.st.heading,
		Speed:      s.st.speed,
		BatteryPct: s.st.battery,
		GPS:        s.st.gps,
	}
	if s.st.mission != nil {
		snap.Mission = &telemetry.MissionStatus{
			Cursor: s.st.mission.cursor,
			Total:  len(s.st.mission.waypoints),
			Active: s.st.mission.active,
		}
	}
	n := len(s.st.alerts)
	start := n - snapshotAlerts
	if start < 0 {
		start = 0
	}
	snap.Alerts = append([]telemetry.Alert(nil), s.st.alerts[start:]...)
	return snap
}

// Snapshot returns an immutable copy of the current state.
func (s *Simulator) Snapshot() telemetry.Snapshot {
	unlock := s.lock()
	defer unlock()
	return s.snapshot()
}

// Alerts returns a copy of the full alert ring, newest last.
func (s *Simulator) Alerts() []telemetry.Alert {
	unlock := s.lock()
	defer unlock()
	return append([]telemetry.Alert(nil), s.st.alerts...)
}

// publishAfterMutation emits an out-of-band snapshot after a successful
// mutation so subscribers see the change before the next tick boundary.
func (s *Simulator) publishAfterMutation(snap telemetry.Snapshot) {
	if s.sink != nil {
		s.sink.Telemetry(snap)
	}
}

// Arm arms the motors. Fails when the battery is below the arming floor.
func (s *Simulator) Arm() error {
	unlock := s.lock()
	if s.st.battery < armBatteryFloor {
		unlock()
		return precondition("arm", "battery too low to arm")
	}
	s.st.armed = true
	s.st.mode = telemetry.ModeArmed
	s.raiseAlert("Drone armed", telemetry.SeverityInfo, "arming")
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return nil
}

// Disarm disarms the motors. Fails while flying.
func (s *Simulator) Disarm() error {
	unlock := s.lock()
	if s.st.flying {
		unlock()
		return precondition("disarm", "cannot disarm while flying")
	}
	s.st.armed = false
	s.st.mode = telemetry.ModeDisarmed
	s.raiseAlert("Drone disarmed", telemetry.SeverityInfo, "arming")
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return nil
}

// Takeoff climbs to the given altitude. Fails unless armed. The takeoff
// position is captured as home for return_home.
func (s *Simulator) Takeoff(altitude float64) error {
	unlock := s.lock()
	if !s.st.armed {
		unlock()
		return precondition("takeoff", "drone must be armed first")
	}
	s.st.flying = true
	s.st.pos.Alt = altitude
	s.st.mode = telemetry.ModeGuided
	home := s.st.pos
	s.home = &home
	s.raiseAlert(fmt.Sprintf("Takeoff to %.0fm initiated", altitude), telemetry.SeverityInfo, "flight")
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return nil
}

// Land descends and clears the mission. Fails unless flying.
func (s *Simulator) Land() error {
	unlock := s.lock()
	if !s.st.flying {
		unlock()
		return precondition("land", "drone is not flying")
	}
	s.st.flying = false
	s.st.pos.Alt = 0
	s.st.speed = 0
	s.st.mission = nil
	s.st.mode = telemetry.ModeLand
	s.raiseAlert("Landing initiated", telemetry.SeverityInfo, "flight")
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return nil
}

// Goto installs a single-waypoint mission. Fails unless flying. Returns
// the straight-line distance to the target in meters.
func (s *Simulator) Goto(lat, lng, alt float64) (float64, error) {
	unlock := s.lock()
	if !s.st.flying {
		unlock()
		return 0, precondition("goto", "drone must be flying")
	}
	dist := telemetry.Distance(s.st.pos.Lat, s.st.pos.Lng, lat, lng)
	s.st.mission = &mission{
		waypoints: []telemetry.Waypoint{{Lat: lat, Lng: lng, Alt: alt}},
		active:    true,
	}
	s.st.mode = telemetry.ModeGuided
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return dist, nil
}

// StartMission installs a multi-waypoint mission with the cursor at the
// first waypoint. Fails unless flying or when waypoints is empty.
func (s *Simulator) StartMission(waypoints []telemetry.Waypoint) error {
	unlock := s.lock()
	if !s.st.flying {
		unlock()
		return precondition("start_mission", "drone must be flying to start mission")
	}
	if len(waypoints) == 0 {
		unlock()
		return precondition("start_mission", "mission has no waypoints")
	}
	s.st.mission = &mission{
		waypoints: append([]telemetry.Waypoint(nil), waypoints...),
		active:    true,
	}
	s.st.mode = telemetry.ModeGuided
	s.raiseAlert(fmt.Sprintf("Mission started with %d waypoints", len(waypoints)), telemetry.SeverityInfo, "mission")
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return nil
}

// ReturnHome flies back to the position captured at takeoff. Fails
// unless flying.
func (s *Simulator) ReturnHome() error {
	unlock := s.lock()
	if !s.st.flying {
		unlock()
		return precondition("return_home", "drone must be flying")
	}
	if s.home == nil {
		unlock()
		return precondition("return_home", "home position not set")
	}
	s.st.mission = &mission{
		waypoints: []telemetry.Waypoint{{Lat: s.home.Lat, Lng: s.home.Lng, Alt: s.home.Alt}},
		active:    true,
	}
	s.st.mode = telemetry.ModeRTL
	s.raiseAlert("Returning to home", telemetry.SeverityInfo, "flight")
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return nil
}

// EmergencyStop always succeeds regardless of state: kills the motors,
// clears the mission and forces EMERGENCY mode. Only an explicit disarm
// leaves EMERGENCY.
func (s *Simulator) EmergencyStop() error {
	unlock := s.lock()
	s.st.flying = false
	s.st.armed = false
	s.st.speed = 0
	s.st.mission = nil
	s.st.mode = telemetry.ModeEmergency
	s.raiseAlert("Emergency stop activated", telemetry.SeverityCritical, "emergency")
	snap := s.snapshot()
	pending := s.takePending()
	unlock()

	s.emitAlerts(pending)
	s.publishAfterMutation(snap)
	return nil
}

// Ticks reports how many ticks have run.
func (s *Simulator) Ticks() uint64 {
	unlock := s.lock()
	defer unlock()
	return s.ticks
}
