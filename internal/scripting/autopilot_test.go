package scripting

import (
	"strings"
	"testing"

	"github.com/krigga/flappy-ton/internal/game"
)

func newLoop(t *testing.T) *game.Loop {
	t.Helper()
	loop, err := game.NewLoop(game.DefaultTuning(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := loop.Start(); err != nil {
		t.Fatal(err)
	}
	return loop
}

func TestNewAutopilotRequiresOnTick(t *testing.T) {
	if _, err := NewAutopilot(`var x = 1;`); err == nil {
		t.Error("expected error for script without ontick()")
	}
	if _, err := NewAutopilot(`function ontick( {`); err == nil {
		t.Error("expected syntax error")
	}
}

func TestSandboxBlocksGlobals(t *testing.T) {
	for _, src := range []string{
		`require("fs"); function ontick() {}`,
		`eval("1"); function ontick() {}`,
		`new Function("return 1")(); function ontick() {}`,
	} {
		if _, err := NewAutopilot(src); err == nil {
			t.Errorf("script %q should fail in the sandbox", src)
		}
	}
}

func TestAutopilotJumps(t *testing.T) {
	ap, err := NewAutopilot(`function ontick() { if (tick % 2 === 0) jump(); log("y", bird.y); }`)
	if err != nil {
		t.Fatal(err)
	}
	loop := newLoop(t)

	if err := ap.Step(loop); err != nil {
		t.Fatalf("Step: %v", err)
	}
	loop.Tick(1)
	if v := loop.Snapshot().Bird.Velocity; v != game.DefaultJumpVelocity {
		t.Errorf("tick 0 should jump, velocity = %v", v)
	}

	ap.Step(loop)
	loop.Tick(1)
	if v := loop.Snapshot().Bird.Velocity; v == game.DefaultJumpVelocity {
		t.Errorf("tick 1 should not jump, velocity = %v", v)
	}

	logs := ap.Logs()
	if len(logs) != 2 || !strings.HasPrefix(logs[0].Message, "y 300") {
		t.Errorf("logs: got %+v", logs)
	}
}

func TestAutopilotSeesNextPair(t *testing.T) {
	ap, err := NewAutopilot(`function ontick() { if (next !== null) log(next.gaptop < next.gapbottom, next.width); }`)
	if err != nil {
		t.Fatal(err)
	}
	loop := newLoop(t)

	ap.Step(loop)
	loop.Tick(1)
	ap.Step(loop)

	logs := ap.Logs()
	if len(logs) != 1 || logs[0].Message != "true 78" {
		t.Errorf("logs: got %+v", logs)
	}
}

func TestAutopilotStopsOnError(t *testing.T) {
	ap, err := NewAutopilot(`function ontick() { if (tick > 0) throw new Error("boom"); }`)
	if err != nil {
		t.Fatal(err)
	}
	loop := newLoop(t)

	if err := ap.Step(loop); err != nil {
		t.Fatalf("first step: %v", err)
	}
	loop.Tick(1)
	if err := ap.Step(loop); err == nil {
		t.Fatal("expected script error")
	}
	state, serr := ap.State()
	if state != StateError || serr == nil {
		t.Errorf("state = %s, %v", state, serr)
	}
	if err := ap.Step(loop); err == nil {
		t.Error("autopilot in error state should keep returning its error")
	}
}

func TestAutopilotTimeout(t *testing.T) {
	ap, err := NewAutopilot(`function ontick() { while (true) {} }`)
	if err != nil {
		t.Fatal(err)
	}
	if err := ap.Step(newLoop(t)); err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestDefaultScriptScores(t *testing.T) {
	ap, err := NewAutopilot(DefaultScript)
	if err != nil {
		t.Fatal(err)
	}
	loop := newLoop(t)

	for i := 0; i < 3000 && loop.State() == game.StateRunning; i++ {
		if err := ap.Step(loop); err != nil {
			t.Fatal(err)
		}
		loop.Tick(1)
	}
	if loop.Score() == 0 {
		t.Error("default autopilot should clear at least one pair")
	}
}
