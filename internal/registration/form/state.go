// Package form models the registration form as immutable State snapshots.
// Reduce is pure; Controller owns the current snapshot and wires it to the
// availability checker and the submitter.
package form

import (
	"maps"
	"strings"

	"outbreak/internal/registration/availability"
	"outbreak/internal/registration/models"
	"outbreak/internal/registration/validation"
)

// State is one snapshot of the form. Snapshots returned by Reduce never share
// maps with their predecessor.
type State struct {
	Draft       models.Draft
	Errors      map[string]string
	Statuses    map[models.Field]availability.Status
	Submitting  bool
	Submitted   *models.Registration
	SubmitError string
}

// NewState returns the empty form.
func NewState() State {
	return State{
		Errors:   map[string]string{},
		Statuses: map[models.Field]availability.Status{},
	}
}

func (s State) clone() State {
	s.Draft = s.Draft.Clone()
	s.Errors = maps.Clone(s.Errors)
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	s.Statuses = maps.Clone(s.Statuses)
	if s.Statuses == nil {
		s.Statuses = map[models.Field]availability.Status{}
	}
	return s
}

// Taken reports the watched fields currently flagged as taken.
func (s State) Taken() map[models.Field]bool {
	taken := make(map[models.Field]bool, len(s.Statuses))
	for f, st := range s.Statuses {
		if st == availability.StatusTaken {
			taken[f] = true
		}
	}
	return taken
}

// CanSubmit is false while a commit is in flight or any watched field is
// being checked or is taken.
func (s State) CanSubmit() bool {
	if s.Submitting {
		return false
	}
	for _, st := range s.Statuses {
		if st == availability.StatusChecking || st == availability.StatusTaken {
			return false
		}
	}
	return true
}

// WatchedValue returns the current value of a watched field.
func (s State) WatchedValue(f models.Field) string {
	switch f {
	case models.FieldTeamName:
		return s.Draft.TeamName
	case models.FieldTransactionID:
		return s.Draft.Payment.TransactionID
	case models.FieldLeaderRegNo:
		return s.Draft.TeamLeader.RegNo
	}
	return ""
}

// Action transforms a State. The set of actions is closed.
type Action interface {
	apply(s State) State
}

// Reduce applies a to s and returns the new snapshot. s is not modified.
func Reduce(s State, a Action) State {
	return a.apply(s.clone())
}

// ChangeTeamName edits the team name. Input is upper-cased.
type ChangeTeamName struct {
	Value string
}

func (a ChangeTeamName) apply(s State) State {
	s.Draft.TeamName = strings.ToUpper(a.Value)
	delete(s.Errors, models.FieldTeamName.ErrorKey())
	return s
}

// ChangeTransactionID edits the payment transaction id.
type ChangeTransactionID struct {
	Value string
}

func (a ChangeTransactionID) apply(s State) State {
	s.Draft.Payment.TransactionID = a.Value
	delete(s.Errors, models.FieldTransactionID.ErrorKey())
	return s
}

// ChangePerson edits one input of the leader or a member. Phone inputs accept
// at most ten digits and the room number digits only; other keystrokes are
// dropped. Switching to Dayscholar clears the hostel inputs.
type ChangePerson struct {
	Role  models.Role
	Index int
	Field models.PersonField
	Value string
}

func (a ChangePerson) apply(s State) State {
	p := s.Draft.Person(a.Role, a.Index)
	if p == nil {
		return s
	}

	value := a.Value
	switch a.Field {
	case models.PersonEmail:
		value = strings.ToLower(value)
	case models.PersonPhone, models.PersonWardenPhone:
		if !digitsOnly(value) || len(value) > 10 {
			return s
		}
	case models.PersonRoomNo:
		if !digitsOnly(value) {
			return s
		}
	}

	p.Set(a.Field, value)
	delete(s.Errors, models.ErrorKey(a.Role, a.Index, a.Field))

	if a.Field == models.PersonAccommodation && value == models.Dayscholar {
		p.ClearHostel()
		for _, f := range models.PersonFields {
			if f.IsHostelField() {
				delete(s.Errors, models.ErrorKey(a.Role, a.Index, f))
			}
		}
	}
	return s
}

func digitsOnly(v string) bool {
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return false
		}
	}
	return true
}

// ChooseScreenshot attaches the payment screenshot.
type ChooseScreenshot struct {
	Screenshot *models.Screenshot
}

func (a ChooseScreenshot) apply(s State) State {
	if a.Screenshot == nil {
		return s
	}
	shot := *a.Screenshot
	s.Draft.Payment.Screenshot = &shot
	delete(s.Errors, validation.ScreenshotKey)
	return s
}

// FieldValidated records the blur result of one input; an empty message clears it.
type FieldValidated struct {
	Key     string
	Message string
}

func (a FieldValidated) apply(s State) State {
	if a.Message == "" {
		delete(s.Errors, a.Key)
		return s
	}
	s.Errors[a.Key] = a.Message
	return s
}

// StatusChanged records an availability result.
type StatusChanged struct {
	Field  models.Field
	Status availability.Status
}

func (a StatusChanged) apply(s State) State {
	s.Statuses[a.Field] = a.Status
	key := a.Field.ErrorKey()
	switch a.Status {
	case availability.StatusTaken:
		s.Errors[key] = validation.MsgAlreadyExists
	case availability.StatusAvailable, availability.StatusUnset:
		if s.Errors[key] == validation.MsgAlreadyExists {
			delete(s.Errors, key)
		}
	}
	return s
}

// Validated replaces the error map with a whole-form validation result.
type Validated struct {
	Errors validation.Errors
}

func (a Validated) apply(s State) State {
	s.Errors = maps.Clone(map[string]string(a.Errors))
	if s.Errors == nil {
		s.Errors = map[string]string{}
	}
	return s
}

type SubmitStarted struct{}

func (SubmitStarted) apply(s State) State {
	s.Submitting = true
	s.SubmitError = ""
	return s
}

type SubmitSucceeded struct {
	Registration *models.Registration
}

func (a SubmitSucceeded) apply(s State) State {
	s.Submitting = false
	s.Submitted = a.Registration
	s.SubmitError = ""
	return s
}

// SubmitFailed ends an attempt. Fields are merged into the error map; the draft is kept.
type SubmitFailed struct {
	Message string
	Fields  map[string]string
}

func (a SubmitFailed) apply(s State) State {
	s.Submitting = false
	s.SubmitError = a.Message
	maps.Copy(s.Errors, a.Fields)
	return s
}
