package models

import (
	"strconv"
	"strings"
)

// Screenshot is the raw image chosen for the payment proof.
type Screenshot struct {
	Filename    string
	ContentType string
	Data        []byte
}

// PaymentDraft is the editable payment section. Screenshot stays nil until chosen.
type PaymentDraft struct {
	TransactionID string      `json:"transactionId"`
	Screenshot    *Screenshot `json:"-"`
}

// Draft is the in-progress registration as edited by the user. It is also the
// JSON wire shape of the registration part of a submission.
type Draft struct {
	TeamName   string              `json:"teamName"`
	TeamLeader Person              `json:"teamLeader"`
	Members    [MemberCount]Person `json:"members"`
	Payment    PaymentDraft        `json:"payment"`
}

// Clone returns a copy that shares no mutable state with d.
func (d Draft) Clone() Draft {
	if d.Payment.Screenshot != nil {
		shot := *d.Payment.Screenshot
		shot.Data = append([]byte(nil), shot.Data...)
		d.Payment.Screenshot = &shot
	}
	return d
}

// Person returns the person addressed by role. Index is ignored for the leader.
func (d *Draft) Person(role Role, index int) *Person {
	if role == RoleLeader {
		return &d.TeamLeader
	}
	if index < 0 || index >= MemberCount {
		return nil
	}
	return &d.Members[index]
}

// Role distinguishes the leader from members.
type Role string

const (
	RoleLeader Role = "teamLeader"
	RoleMember Role = "members"
)

// PersonField names an input of a Person.
type PersonField string

const (
	PersonName          PersonField = "name"
	PersonRegNo         PersonField = "regNo"
	PersonEmail         PersonField = "email"
	PersonPhone         PersonField = "phone"
	PersonGender        PersonField = "gender"
	PersonYear          PersonField = "year"
	PersonBranch        PersonField = "branch"
	PersonSection       PersonField = "section"
	PersonAccommodation PersonField = "accommodation"
	PersonHostelName    PersonField = "hostelName"
	PersonRoomNo        PersonField = "roomNo"
	PersonWardenName    PersonField = "wardenName"
	PersonWardenPhone   PersonField = "wardenPhone"
)

// PersonFields lists every Person input in form order.
var PersonFields = []PersonField{
	PersonName, PersonRegNo, PersonEmail, PersonPhone, PersonGender, PersonYear,
	PersonBranch, PersonSection, PersonAccommodation,
	PersonHostelName, PersonRoomNo, PersonWardenName, PersonWardenPhone,
}

// IsHostelField reports whether f only applies to hostlers.
func (f PersonField) IsHostelField() bool {
	switch f {
	case PersonHostelName, PersonRoomNo, PersonWardenName, PersonWardenPhone:
		return true
	}
	return false
}

// Get returns the value of field f.
func (p Person) Get(f PersonField) string {
	switch f {
	case PersonName:
		return p.Name
	case PersonRegNo:
		return p.RegNo
	case PersonEmail:
		return p.Email
	case PersonPhone:
		return p.Phone
	case PersonGender:
		return p.Gender
	case PersonYear:
		return p.Year
	case PersonBranch:
		return p.Branch
	case PersonSection:
		return p.Section
	case PersonAccommodation:
		return p.Accommodation
	case PersonHostelName:
		return p.HostelName
	case PersonRoomNo:
		return p.RoomNo
	case PersonWardenName:
		return p.WardenName
	case PersonWardenPhone:
		return p.WardenPhone
	}
	return ""
}

// Set assigns value to field f. Unknown fields are ignored.
func (p *Person) Set(f PersonField, value string) {
	switch f {
	case PersonName:
		p.Name = value
	case PersonRegNo:
		p.RegNo = value
	case PersonEmail:
		p.Email = value
	case PersonPhone:
		p.Phone = value
	case PersonGender:
		p.Gender = value
	case PersonYear:
		p.Year = value
	case PersonBranch:
		p.Branch = value
	case PersonSection:
		p.Section = value
	case PersonAccommodation:
		p.Accommodation = value
	case PersonHostelName:
		p.HostelName = value
	case PersonRoomNo:
		p.RoomNo = value
	case PersonWardenName:
		p.WardenName = value
	case PersonWardenPhone:
		p.WardenPhone = value
	}
}

// ClearHostel empties the hostel-only fields.
func (p *Person) ClearHostel() {
	p.HostelName = ""
	p.RoomNo = ""
	p.WardenName = ""
	p.WardenPhone = ""
}

// Normalized returns the person as it is persisted: trimmed, email lower-cased
// and hostel fields cleared for day scholars.
func (p Person) Normalized() Person {
	for _, f := range PersonFields {
		p.Set(f, strings.TrimSpace(p.Get(f)))
	}
	p.Email = strings.ToLower(p.Email)
	if !p.IsHostler() {
		p.ClearHostel()
	}
	return p
}

// ErrorKey is the whole-form error key of a person field:
// teamLeader_<field> or members_<i>_<field>.
func ErrorKey(role Role, index int, f PersonField) string {
	if role == RoleLeader {
		return "teamLeader_" + string(f)
	}
	return "members_" + strconv.Itoa(index) + "_" + string(f)
}
