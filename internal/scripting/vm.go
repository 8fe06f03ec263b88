package scripting

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 50 * time.Millisecond
	maxLogEntries     = 200
)

var errTimedOut = errors.New("scripting: script timed out")

// LogEntry is one line the script printed.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// logRing keeps the newest maxLogEntries lines.
type logRing struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (r *logRing) add(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == maxLogEntries {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:maxLogEntries-1]
	}
	r.entries = append(r.entries, LogEntry{Time: time.Now(), Message: msg})
}

func (r *logRing) snapshot() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.entries...)
}

// VM is a sandboxed goja runtime exposing log, console.log and jump. Network,
// module loading and dynamic code evaluation are removed.
type VM struct {
	mu      sync.Mutex
	runtime *goja.Runtime
	ontick  goja.Callable
	jumped  bool
	logs    logRing
}

// NewVM returns a runtime with the autopilot globals installed.
func NewVM() *VM {
	vm := &VM{runtime: goja.New()}
	rt := vm.runtime

	printf := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			parts = append(parts, arg.String())
		}
		vm.logs.add(strings.Join(parts, " "))
		return goja.Undefined()
	}
	rt.Set("log", printf)
	console := rt.NewObject()
	console.Set("log", printf)
	rt.Set("console", console)

	// Called from inside ontick while mu is held.
	rt.Set("jump", func(goja.FunctionCall) goja.Value {
		vm.jumped = true
		return goja.Undefined()
	})

	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		rt.Set(name, goja.Undefined())
	}
	return vm
}

// Execute runs source once and binds its ontick function, if any.
func (vm *VM) Execute(source string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	err := vm.guard(scriptInitTimeout, func() error {
		_, err := vm.runtime.RunString(source)
		return err
	})
	if err != nil {
		return fmt.Errorf("scripting: execute: %w", err)
	}
	vm.ontick, _ = goja.AssertFunction(vm.runtime.Get("ontick"))
	return nil
}

// HasOnTick reports whether the executed script defined ontick().
func (vm *VM) HasOnTick() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.ontick != nil
}

// CallOnTick publishes view as globals, calls ontick() and reports whether
// the script called jump().
func (vm *VM) CallOnTick(view View) (bool, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if vm.ontick == nil {
		return false, errors.New("scripting: ontick() function is not defined")
	}

	view.inject(vm.runtime)
	vm.jumped = false
	err := vm.guard(scriptCallTimeout, func() error {
		_, err := vm.ontick(goja.Undefined())
		return err
	})
	if err != nil {
		return false, fmt.Errorf("scripting: ontick(): %w", err)
	}
	return vm.jumped, nil
}

// GetLogs returns a copy of the log buffer.
func (vm *VM) GetLogs() []LogEntry {
	return vm.logs.snapshot()
}

// guard interrupts fn once timeout elapses. The caller holds mu.
func (vm *VM) guard(timeout time.Duration, fn func() error) error {
	timer := time.AfterFunc(timeout, func() {
		vm.runtime.Interrupt(errTimedOut)
	})
	err := fn()
	timer.Stop()
	vm.runtime.ClearInterrupt()

	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		return errTimedOut
	}
	return err
}
