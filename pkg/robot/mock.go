package robot

import (
	"context"
	"sync"
	"time"
)

// MotorCall is one recorded MockMotor call.
type MotorCall struct {
	Stop     bool
	Left     WheelAction
	Right    WheelAction
	Duration time.Duration
	At       time.Time
}

// MockMotor records every call. It is used by dry runs and tests.
type MockMotor struct {
	mu        sync.Mutex
	calls     []MotorCall
	driveErr  error
	stopErr   error
	failAfter int // drives before driveErr applies, -1 for never
}

// NewMockMotor creates a recording motor driver that never fails.
func NewMockMotor() *MockMotor {
	return &MockMotor{failAfter: -1}
}

// Drive records the call and returns the injected fault, if any.
func (m *MockMotor) Drive(_ context.Context, left, right WheelAction, duration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MotorCall{Left: left, Right: right, Duration: duration, At: time.Now()})
	if m.failAfter >= 0 && m.drivesLocked() > m.failAfter {
		return m.driveErr
	}
	return nil
}

// Stop records the call.
func (m *MockMotor) Stop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MotorCall{Stop: true, At: time.Now()})
	return m.stopErr
}

// FailDrivesAfter makes every Drive after the first n return err.
func (m *MockMotor) FailDrivesAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.driveErr = err
}

// FailStops makes Stop return err.
func (m *MockMotor) FailStops(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr = err
}

// Calls returns a copy of the recorded calls.
func (m *MockMotor) Calls() []MotorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MotorCall(nil), m.calls...)
}

// Drives returns the recorded Drive calls.
func (m *MockMotor) Drives() []MotorCall {
	var out []MotorCall
	for _, c := range m.Calls() {
		if !c.Stop {
			out = append(out, c)
		}
	}
	return out
}

// Stops counts recorded Stop calls.
func (m *MockMotor) Stops() int {
	n := 0
	for _, c := range m.Calls() {
		if c.Stop {
			n++
		}
	}
	return n
}

func (m *MockMotor) drivesLocked() int {
	n := 0
	for _, c := range m.calls {
		if !c.Stop {
			n++
		}
	}
	return n
}

// MockEyes records expressions and specials.
type MockEyes struct {
	mu          sync.Mutex
	expressions []string
	specials    []string
	err         error
	delay       time.Duration
}

// NewMockEyes creates a recording eye display.
func NewMockEyes() *MockEyes {
	return &MockEyes{}
}

// SetExpression records name.
func (m *MockEyes) SetExpression(ctx context.Context, name string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expressions = append(m.expressions, name)
	return m.err
}

// PlaySpecial records name.
func (m *MockEyes) PlaySpecial(ctx context.Context, name string) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.specials = append(m.specials, name)
	return m.err
}

// SetError makes every call record and then return err.
func (m *MockEyes) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes every call take d, simulating a slow display.
func (m *MockEyes) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Expressions returns the recorded expressions in order.
func (m *MockEyes) Expressions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.expressions...)
}

// Specials returns the recorded specials in order.
func (m *MockEyes) Specials() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.specials...)
}

func (m *MockEyes) wait(ctx context.Context) error {
	m.mu.Lock()
	d := m.delay
	m.mu.Unlock()
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ MotorDriver = (*MockMotor)(nil)
	_ EyeDisplay  = (*MockEyes)(nil)
)
