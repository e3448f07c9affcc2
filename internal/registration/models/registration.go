package models

import (
	"strings"
	"time"
)

// Accommodation values.
const (
	Dayscholar = "Dayscholar"
	Hostler    = "Hostler"
)

// MemberCount is the number of members besides the team leader.
const MemberCount = 3

// Allowed enumerations for select inputs.
var (
	Genders        = []string{"Male", "Female", "Others"}
	Years          = []string{"2", "3", "4"}
	Accommodations = []string{Dayscholar, Hostler}
	Hostels        = []string{"MH-1", "MH-2", "MH-3", "MH-6", "PG", "LH-2", "LH-3", "LH-4"}
)

// Person is a team leader or a team member.
//
// Invariants:
//   - Email ends with @klu.ac.in and is stored lower-cased
//   - Phone and WardenPhone are exactly 10 decimal digits
//   - Hostel fields are empty unless Accommodation is Hostler
type Person struct {
	Name          string `json:"name" bson:"name"`
	RegNo         string `json:"regNo" bson:"regNo"`
	Email         string `json:"email" bson:"email"`
	Phone         string `json:"phone" bson:"phone"`
	Gender        string `json:"gender" bson:"gender"`
	Year          string `json:"year" bson:"year"`
	Branch        string `json:"branch" bson:"branch"`
	Section       string `json:"section" bson:"section"`
	Accommodation string `json:"accommodation" bson:"accommodation"`
	HostelName    string `json:"hostelName,omitempty" bson:"hostelName,omitempty"`
	RoomNo        string `json:"roomNo,omitempty" bson:"roomNo,omitempty"`
	WardenName    string `json:"wardenName,omitempty" bson:"wardenName,omitempty"`
	WardenPhone   string `json:"wardenPhone,omitempty" bson:"wardenPhone,omitempty"`
}

// IsHostler reports whether the hostel fields apply.
func (p Person) IsHostler() bool {
	return p.Accommodation == Hostler
}

// Payment holds the payment proof of a committed registration.
type Payment struct {
	TransactionID string `json:"transactionId" bson:"transactionId"`
	// Screenshot is a data:image/jpeg;base64 URI.
	Screenshot string `json:"screenshot,omitempty" bson:"screenshot"`
}

// Registration is the committed document stored at RegistrationKey(TeamName).
// Committed registrations are never updated or deleted.
type Registration struct {
	ID          string              `json:"id" bson:"_id"`
	TeamName    string              `json:"teamName" bson:"teamName"`
	TeamLeader  Person              `json:"teamLeader" bson:"teamLeader"`
	Members     [MemberCount]Person `json:"members" bson:"members"`
	Payment     Payment             `json:"payment" bson:"payment"`
	SubmittedAt time.Time           `json:"submittedAt" bson:"submittedAt"`
}

// WithoutScreenshot returns a copy suitable for listings and API responses.
func (r Registration) WithoutScreenshot() Registration {
	r.Payment.Screenshot = ""
	return r
}

// RegistrationKey derives the storage key: every character outside [A-Za-z0-9]
// is removed and the rest upper-cased. "Team Alpha" and "team-alpha" both map
// to TEAMALPHA.
func RegistrationKey(teamName string) string {
	var b strings.Builder
	b.Grow(len(teamName))
	for i := 0; i < len(teamName); i++ {
		c := teamName[i]
		switch {
		case c >= 'a' && c <= 'z':
			b.WriteByte(c - 'a' + 'A')
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Field names a uniqueness-checked input.
type Field string

const (
	FieldTeamName      Field = "teamName"
	FieldTransactionID Field = "transactionId"
	FieldLeaderRegNo   Field = "leaderRegNo"
)

// WatchedFields lists the fields observed by the availability checker.
var WatchedFields = []Field{FieldTeamName, FieldTransactionID, FieldLeaderRegNo}

func (f Field) IsValid() bool {
	switch f {
	case FieldTeamName, FieldTransactionID, FieldLeaderRegNo:
		return true
	}
	return false
}

func (f Field) String() string {
	return string(f)
}

// ErrorKey is the whole-form error key the field's availability is reported under.
func (f Field) ErrorKey() string {
	if f == FieldLeaderRegNo {
		return ErrorKey(RoleLeader, 0, PersonRegNo)
	}
	return string(f)
}
