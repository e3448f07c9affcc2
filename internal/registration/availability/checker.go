// Package availability debounces uniqueness lookups for the watched registration
// fields and reports a status per field. Only the most recent value of a field
// can change its status: a lookup that completes after the field was edited
// again is discarded.
package availability

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"outbreak/internal/registration/models"
)

// Status of a watched field.
type Status string

const (
	StatusUnset     Status = ""
	StatusChecking  Status = "checking"
	StatusAvailable Status = "available"
	StatusTaken     Status = "taken"
)

const (
	DefaultDelay         = 500 * time.Millisecond
	DefaultLookupTimeout = 5 * time.Second
)

// Lookup answers whether a value is already used by a committed registration.
type Lookup interface {
	IsTaken(ctx context.Context, field models.Field, value string) (bool, error)
}

// StatusFunc receives status transitions. Calls are serialized by the checker
// and must not call back into it.
type StatusFunc func(field models.Field, status Status)

type task struct {
	gen   uint64
	timer *time.Timer
}

// Checker debounces lookups per field.
type Checker struct {
	lookup        Lookup
	onStatus      StatusFunc
	delay         time.Duration
	lookupTimeout time.Duration
	logger        *slog.Logger

	mu     sync.Mutex
	tasks  map[models.Field]*task
	closed bool
}

type Option func(*Checker)

// WithDelay sets the quiet period before a lookup is issued.
func WithDelay(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.delay = d
		}
	}
}

func WithLookupTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.lookupTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New creates a Checker reporting to onStatus.
func New(lookup Lookup, onStatus StatusFunc, opts ...Option) *Checker {
	c := &Checker{
		lookup:        lookup,
		onStatus:      onStatus,
		delay:         DefaultDelay,
		lookupTimeout: DefaultLookupTimeout,
		logger:        slog.Default(),
		tasks:         make(map[models.Field]*task),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Set records a new value for field. Any pending lookup for the field is
// cancelled and any in-flight one is disregarded. An empty value resets the
// status immediately without a lookup.
func (c *Checker) Set(field models.Field, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	t := c.tasks[field]
	if t == nil {
		t = &task{}
		c.tasks[field] = t
	}
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}

	if strings.TrimSpace(value) == "" {
		c.emit(field, StatusUnset)
		return
	}

	gen := t.gen
	t.timer = time.AfterFunc(c.delay, func() {
		c.run(field, value, gen)
	})
}

func (c *Checker) run(field models.Field, value string, gen uint64) {
	if !c.current(field, gen, StatusChecking) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
	taken, err := c.lookup.IsTaken(ctx, field, value)
	cancel()

	status := StatusAvailable
	switch {
	case err != nil:
		c.logger.Warn("availability lookup failed",
			"field", field.String(),
			"error", err,
		)
		status = StatusUnset
	case taken:
		status = StatusTaken
	}
	c.current(field, gen, status)
}

// current emits status only if gen is still the latest generation of field.
func (c *Checker) current(field models.Field, gen uint64, status Status) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.tasks[field]
	if c.closed || t == nil || t.gen != gen {
		return false
	}
	if status != StatusChecking {
		t.timer = nil
	}
	c.emit(field, status)
	return true
}

func (c *Checker) emit(field models.Field, status Status) {
	if c.onStatus != nil {
		c.onStatus(field, status)
	}
}

// Close stops all pending lookups and drops results of in-flight ones.
func (c *Checker) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, t := range c.tasks {
		t.gen++
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
	}
}
