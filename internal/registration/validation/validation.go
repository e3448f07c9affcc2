// Package validation holds the field rules of the registration form. Every
// function is pure: it maps a value (and the person it belongs to) to a
// user-facing message, or "" when the value is acceptable.
package validation

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"outbreak/internal/registration/models"
	dErrors "outbreak/pkg/domain-errors"
)

// Messages shown next to inputs.
const (
	MsgRequired      = "Required"
	MsgEmailDomain   = "Use klu.ac.in mail"
	MsgTenDigits     = "10 Digits"
	MsgSelect        = "Select"
	MsgDigits        = "Digits"
	MsgAlreadyExists = "ALREADY EXISTS"
	MsgNoKey         = "Use letters or digits"
)

// ScreenshotKey is the error key of the payment screenshot.
const ScreenshotKey = "screenshot"

// EmailDomain is the only accepted email suffix.
const EmailDomain = "@klu.ac.in"

var (
	validate = validator.New()

	tagEmail   = "endswith=" + EmailDomain
	tagPhone   = "number,len=10"
	tagDigits  = "number"
	tagGender  = oneOf(models.Genders)
	tagYear    = oneOf(models.Years)
	tagAccom   = oneOf(models.Accommodations)
	tagHostels = oneOf(models.Hostels)
)

func oneOf(values []string) string {
	return "oneof=" + strings.Join(values, " ")
}

func matches(value, tag string) bool {
	return validate.Var(value, tag) == nil
}

func blank(value string) bool {
	return strings.TrimSpace(value) == ""
}

// Errors maps error keys (teamName, teamLeader_email, members_0_phone, ...) to messages.
type Errors map[string]string

// Err converts a non-empty set into a validation error carrying the fields.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return dErrors.New(dErrors.CodeValidation, "registration has invalid fields").WithFields(e)
}

// PersonField validates one input of p. Hostel inputs are only checked for hostlers.
func PersonField(p models.Person, f models.PersonField) string {
	if f.IsHostelField() && !p.IsHostler() {
		return ""
	}
	value := p.Get(f)
	switch f {
	case models.PersonEmail:
		return Email(value)
	case models.PersonPhone, models.PersonWardenPhone:
		return Phone(value)
	case models.PersonGender:
		return selectOf(value, tagGender)
	case models.PersonYear:
		return selectOf(value, tagYear)
	case models.PersonAccommodation:
		return selectOf(value, tagAccom)
	case models.PersonHostelName:
		return selectOf(value, tagHostels)
	case models.PersonRoomNo:
		return RoomNo(value)
	default:
		return Required(value)
	}
}

// Required rejects empty and whitespace-only values.
func Required(value string) string {
	if blank(value) {
		return MsgRequired
	}
	return ""
}

// Email requires an address on the university domain, compared case-insensitively.
func Email(value string) string {
	if blank(value) {
		return MsgRequired
	}
	if !matches(strings.ToLower(strings.TrimSpace(value)), tagEmail) {
		return MsgEmailDomain
	}
	return ""
}

// Phone requires exactly ten decimal digits.
func Phone(value string) string {
	if blank(value) {
		return MsgRequired
	}
	if !matches(value, tagPhone) {
		return MsgTenDigits
	}
	return ""
}

// RoomNo requires decimal digits only.
func RoomNo(value string) string {
	if blank(value) {
		return MsgRequired
	}
	if !matches(value, tagDigits) {
		return MsgDigits
	}
	return ""
}

func selectOf(value, tag string) string {
	if value == "" || !matches(value, tag) {
		return MsgSelect
	}
	return ""
}

// TeamName requires a name whose storage key is non-empty.
func TeamName(value string) string {
	if blank(value) {
		return MsgRequired
	}
	if models.RegistrationKey(value) == "" {
		return MsgNoKey
	}
	return ""
}

// TransactionID requires a non-blank payment reference.
func TransactionID(value string) string {
	return Required(value)
}

// Screenshot requires a chosen, non-empty image.
func Screenshot(s *models.Screenshot) string {
	if s == nil || len(s.Data) == 0 {
		return MsgRequired
	}
	return ""
}

// Registration applies every rule to the whole draft. Fields flagged in taken
// report MsgAlreadyExists in place of any rule message. The result
// only depends on its inputs, so re-validating an unchanged draft yields an
// equal map.
func Registration(d models.Draft, taken map[models.Field]bool) Errors {
	errs := Errors{}
	put := func(key, msg string) {
		if msg != "" {
			errs[key] = msg
		}
	}

	put(models.FieldTeamName.ErrorKey(), TeamName(d.TeamName))
	put(models.FieldTransactionID.ErrorKey(), TransactionID(d.Payment.TransactionID))
	put(ScreenshotKey, Screenshot(d.Payment.Screenshot))

	for _, f := range models.PersonFields {
		put(models.ErrorKey(models.RoleLeader, 0, f), PersonField(d.TeamLeader, f))
	}
	for i, m := range d.Members {
		for _, f := range models.PersonFields {
			put(models.ErrorKey(models.RoleMember, i, f), PersonField(m, f))
		}
	}

	for _, field := range models.WatchedFields {
		if taken[field] {
			errs[field.ErrorKey()] = MsgAlreadyExists
		}
	}

	return errs
}
