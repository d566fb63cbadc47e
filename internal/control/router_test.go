package control

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Umairism/Drone-System/internal/config"
	"github.com/Umairism/Drone-System/internal/sim"
)

func newTestRouter(t *testing.T) (*Router, *sim.Simulator) {
	t.Helper()
	s := sim.New(config.Default().Simulation, nil, nil)
	return NewRouter(s), s
}

func cmd(name, params string) Command {
	c := Command{Name: name}
	if params != "" {
		c.Params = json.RawMessage(params)
	}
	return c
}

func TestArmDisarmRoundTrip(t *testing.T) {
	r, s := newTestRouter(t)

	res := r.Execute(cmd("arm", ""))
	if !res.Success {
		t.Fatalf("arm failed: %s", res.Message)
	}
	if !s.Snapshot().Armed {
		t.Error("simulator not armed after arm command")
	}

	res = r.Execute(cmd("disarm", ""))
	if !res.Success {
		t.Fatalf("disarm failed: %s", res.Message)
	}
	if s.Snapshot().Armed {
		t.Error("simulator still armed after disarm command")
	}
}

func TestUnknownCommandFails(t *testing.T) {
	r, _ := newTestRouter(t)

	res := r.Execute(cmd("self_destruct", ""))
	if res.Success {
		t.Fatal("unknown command should fail")
	}
	if !strings.Contains(res.Message, "self_destruct") {
		t.Errorf("message should name the command: %q", res.Message)
	}
}

func TestTakeoffAltitudeBounds(t *testing.T) {
	cases := []struct {
		name   string
		params string
		wantOK bool
	}{
		{"too low", `{"altitude":0.5}`, false},
		{"too high", `{"altitude":101}`, false},
		{"negative", `{"altitude":-5}`, false},
		{"floor", `{"altitude":1}`, true},
		{"ceiling", `{"altitude":100}`, true},
		{"missing params", "", false},
		{"malformed", `{"altitude":"high"}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRouter(t)
			if res := r.Execute(cmd("arm", "")); !res.Success {
				t.Fatal(res.Message)
			}
			res := r.Execute(cmd("takeoff", tc.params))
			if res.Success != tc.wantOK {
				t.Errorf("takeoff %s: success=%v want %v (%s)", tc.params, res.Success, tc.wantOK, res.Message)
			}
		})
	}
}

func TestGotoCoordinateBounds(t *testing.T) {
	cases := []struct {
		name   string
		params string
		wantOK bool
	}{
		{"valid", `{"lat":33.69,"lng":73.05,"alt":15}`, true},
		{"lat high", `{"lat":90.1,"lng":0,"alt":15}`, false},
		{"lat low", `{"lat":-90.1,"lng":0,"alt":15}`, false},
		{"lng high", `{"lat":0,"lng":180.1,"alt":15}`, false},
		{"lng low", `{"lat":0,"lng":-180.1,"alt":15}`, false},
		{"alt low", `{"lat":0,"lng":0,"alt":0.9}`, false},
		{"alt high", `{"lat":0,"lng":0,"alt":100.1}`, false},
		{"lat edge", `{"lat":90,"lng":180,"alt":100}`, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, _ := newTestRouter(t)
			mustFly(t, r)
			res := r.Execute(cmd("goto", tc.params))
			if res.Success != tc.wantOK {
				t.Errorf("goto %s: success=%v want %v (%s)", tc.params, res.Success, tc.wantOK, res.Message)
			}
		})
	}
}

// An out-of-range goto while grounded must report the range problem,
// not the flight-state problem.
func TestValidationRunsBeforePreconditions(t *testing.T) {
	r, _ := newTestRouter(t)

	res := r.Execute(cmd("goto", `{"lat":95,"lng":0,"alt":15}`))
	if res.Success {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(res.Message, "lat") {
		t.Errorf("expected a validation message about lat, got %q", res.Message)
	}
	if strings.Contains(res.Message, "flying") {
		t.Errorf("precondition leaked ahead of validation: %q", res.Message)
	}
}

func TestPreconditionSurfacesInResult(t *testing.T) {
	r, _ := newTestRouter(t)

	res := r.Execute(cmd("takeoff", `{"altitude":10}`))
	if res.Success {
		t.Fatal("takeoff while disarmed should fail")
	}
	if !strings.Contains(res.Message, "armed") {
		t.Errorf("expected the precondition reason, got %q", res.Message)
	}
}

func TestGotoReportsDistanceInMessage(t *testing.T) {
	r, _ := newTestRouter(t)
	mustFly(t, r)

	res := r.Execute(cmd("goto", `{"lat":33.69,"lng":73.05,"alt":15}`))
	if !res.Success {
		t.Fatalf("goto failed: %s", res.Message)
	}
	if !strings.Contains(res.Message, "m away") {
		t.Errorf("expected distance in message, got %q", res.Message)
	}
}

func TestStartMissionValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	mustFly(t, r)

	res := r.Execute(cmd("start_mission", `{"waypoints":[]}`))
	if res.Success {
		t.Fatal("empty waypoint list should fail validation")
	}

	res = r.Execute(cmd("start_mission", `{"waypoints":[{"lat":33.69,"lng":73.05,"alt":15},{"lat":95,"lng":0,"alt":15}]}`))
	if res.Success {
		t.Fatal("out-of-range waypoint should fail validation")
	}
	if !strings.Contains(res.Message, "waypoints[1]") {
		t.Errorf("expected the offending waypoint index, got %q", res.Message)
	}

	res = r.Execute(cmd("start_mission", `{"waypoints":[{"lat":33.69,"lng":73.05,"alt":15}]}`))
	if !res.Success {
		t.Fatalf("valid mission failed: %s", res.Message)
	}
}

func TestEmergencyStopAlwaysSucceeds(t *testing.T) {
	r, _ := newTestRouter(t)

	if res := r.Execute(cmd("emergency_stop", "")); !res.Success {
		t.Fatalf("emergency stop from ground failed: %s", res.Message)
	}

	r2, _ := newTestRouter(t)
	mustFly(t, r2)
	if res := r2.Execute(cmd("emergency_stop", "")); !res.Success {
		t.Fatalf("emergency stop in flight failed: %s", res.Message)
	}
}

func TestReturnHomeCommand(t *testing.T) {
	r, _ := newTestRouter(t)

	if res := r.Execute(cmd("return_home", "")); res.Success {
		t.Fatal("return home while grounded should fail")
	}

	mustFly(t, r)
	if res := r.Execute(cmd("return_home", "")); !res.Success {
		t.Fatalf("return home in flight failed: %s", res.Message)
	}
}

func TestResultTimestampSet(t *testing.T) {
	r, _ := newTestRouter(t)
	res := r.Execute(cmd("arm", ""))
	if res.Timestamp.IsZero() {
		t.Error("result timestamp must be set")
	}
}

func mustFly(t *testing.T, r *Router) {
	t.Helper()
	if res := r.Execute(cmd("arm", "")); !res.Success {
		t.Fatalf("arm failed: %s", res.Message)
	}
	if res := r.Execute(cmd("takeoff", `{"altitude":10}`)); !res.Success {
		t.Fatalf("takeoff failed: %s", res.Message)
	}
}
