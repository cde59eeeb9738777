package clock

import (
	"sync"
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time.Now so services that reason about expiry windows can be
// tested against a fixed or steppable time source.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System is the wall clock.
func System() Clock { return systemClock{} }

// Fixed always returns t.
func Fixed(t time.Time) Clock { return fixedClock{t} }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// Mock is a steppable clock for tests.
type Mock struct {
	mu sync.Mutex
	t  time.Time
}

func NewMock(start time.Time) *Mock { return &Mock{t: start} }

func (m *Mock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}

func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t
}

var Module = fx.Options(
	fx.Provide(System),
)
