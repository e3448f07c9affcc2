package form

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"outbreak/internal/registration/availability"
	"outbreak/internal/registration/models"
	"outbreak/internal/registration/validation"
	dErrors "outbreak/pkg/domain-errors"
)

// Messages shown in the submit banner.
const (
	MsgOffline = "YOU ARE OFFLINE. ESTABLISH UPLINK AND RETRY."
	MsgUnknown = "An unknown error occurred."
)

var (
	// ErrOffline is returned when the connectivity probe fails; no commit is attempted.
	ErrOffline = errors.New("offline")
	// ErrNotReady is returned when Submit is called while CanSubmit is false.
	ErrNotReady = errors.New("form is not ready to submit")
)

// Submitter commits a validated draft.
type Submitter interface {
	Submit(ctx context.Context, draft models.Draft) (*models.Registration, error)
}

// Connectivity probes whether the registration backend is reachable.
type Connectivity interface {
	Ping(ctx context.Context) error
}

// Controller owns the current State. It is safe for concurrent use.
//
// Lock order: dispatchMu, then the checker lock, then mu. The checker reports
// statuses while holding its own lock, so mu is never held while calling it.
type Controller struct {
	submitter    Submitter
	connectivity Connectivity
	checker      *availability.Checker
	logger       *slog.Logger
	onChange     func(State)
	checkerOpts  []availability.Option

	dispatchMu sync.Mutex
	mu         sync.Mutex
	state      State
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithOnChange registers a callback invoked with every new snapshot.
// It runs while the controller lock is held and must not call back into the controller.
func WithOnChange(fn func(State)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// WithCheckerOptions configures the embedded availability checker.
func WithCheckerOptions(opts ...availability.Option) Option {
	return func(c *Controller) {
		c.checkerOpts = append(c.checkerOpts, opts...)
	}
}

// NewController creates a controller for an empty form.
func NewController(lookup availability.Lookup, submitter Submitter, connectivity Connectivity, opts ...Option) *Controller {
	c := &Controller{
		submitter:    submitter,
		connectivity: connectivity,
		logger:       slog.Default(),
		state:        NewState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	checkerOpts := append([]availability.Option{availability.WithLogger(c.logger)}, c.checkerOpts...)
	c.checker = availability.New(lookup, c.onStatus, checkerOpts...)
	return c
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// CanSubmit reports whether Submit would start a commit.
func (c *Controller) CanSubmit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.CanSubmit()
}

// Dispatch applies a and forwards edits of watched fields to the checker.
func (c *Controller) Dispatch(a Action) State {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	before, after := c.reduce(a)
	for _, f := range models.WatchedFields {
		if v := after.WatchedValue(f); v != before.WatchedValue(f) {
			c.checker.Set(f, v)
		}
	}
	return after
}

func (c *Controller) reduce(a Action) (before, after State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	before = c.state
	c.state = Reduce(c.state, a)
	if c.onChange != nil {
		c.onChange(c.state.clone())
	}
	return before, c.state.clone()
}

func (c *Controller) onStatus(field models.Field, status availability.Status) {
	c.reduce(StatusChanged{Field: field, Status: status})
}

// BlurPerson validates one person input when it loses focus.
func (c *Controller) BlurPerson(role models.Role, index int, f models.PersonField) State {
	st := c.State()
	p := st.Draft.Person(role, index)
	if p == nil {
		return st
	}
	return c.Dispatch(FieldValidated{
		Key:     models.ErrorKey(role, index, f),
		Message: validation.PersonField(*p, f),
	})
}

// BlurTeamName validates the team name when it loses focus.
func (c *Controller) BlurTeamName() State {
	st := c.State()
	return c.blurWatched(st, models.FieldTeamName, validation.TeamName(st.Draft.TeamName))
}

// BlurTransactionID validates the transaction id when it loses focus.
func (c *Controller) BlurTransactionID() State {
	st := c.State()
	return c.blurWatched(st, models.FieldTransactionID, validation.TransactionID(st.Draft.Payment.TransactionID))
}

// blurWatched keeps an ALREADY EXISTS flag when the value itself is fine.
func (c *Controller) blurWatched(st State, field models.Field, msg string) State {
	if msg == "" && st.Statuses[field] == availability.StatusTaken {
		return st
	}
	return c.Dispatch(FieldValidated{Key: field.ErrorKey(), Message: msg})
}

// Submit probes connectivity, validates the whole form and commits it. On any
// failure the draft is kept and the returned error explains why.
func (c *Controller) Submit(ctx context.Context) (*models.Registration, error) {
	c.dispatchMu.Lock()
	c.mu.Lock()
	if !c.state.CanSubmit() {
		c.mu.Unlock()
		c.dispatchMu.Unlock()
		return nil, ErrNotReady
	}
	c.state = Reduce(c.state, SubmitStarted{})
	if c.onChange != nil {
		c.onChange(c.state.clone())
	}
	c.mu.Unlock()
	c.dispatchMu.Unlock()

	if err := c.connectivity.Ping(ctx); err != nil {
		c.logger.WarnContext(ctx, "connectivity probe failed", "error", err)
		c.Dispatch(SubmitFailed{Message: MsgOffline})
		return nil, ErrOffline
	}

	st := c.State()
	errs := validation.Registration(st.Draft, st.Taken())
	c.Dispatch(Validated{Errors: errs})
	if len(errs) > 0 {
		c.Dispatch(SubmitFailed{})
		return nil, errs.Err()
	}

	reg, err := c.submitter.Submit(ctx, st.Draft.Clone())
	if err != nil {
		c.logger.WarnContext(ctx, "registration submit failed", "error", err)
		failed := SubmitFailed{Message: MsgUnknown}
		if de, ok := dErrors.As(err); ok {
			failed.Message = de.Message
			failed.Fields = de.Fields
		}
		c.Dispatch(failed)
		return nil, err
	}

	c.Dispatch(SubmitSucceeded{Registration: reg})
	return reg, nil
}

// Close stops pending availability lookups.
func (c *Controller) Close() {
	c.checker.Close()
}
