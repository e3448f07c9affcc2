package form

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"outbreak/internal/registration/availability"
	"outbreak/internal/registration/models"
	"outbreak/internal/registration/validation"
)

type ReduceSuite struct {
	suite.Suite
}

func TestReduceSuite(t *testing.T) {
	suite.Run(t, new(ReduceSuite))
}

func (s *ReduceSuite) TestReduceDoesNotMutateInput() {
	st := NewState()
	st.Errors["teamName"] = validation.MsgRequired

	next := Reduce(st, ChangeTeamName{Value: "alpha"})

	s.Equal("ALPHA", next.Draft.TeamName)
	s.Empty(st.Draft.TeamName)
	s.Equal(validation.MsgRequired, st.Errors["teamName"])
	s.NotContains(next.Errors, "teamName")
}

func (s *ReduceSuite) TestEmailIsLowerCased() {
	next := Reduce(NewState(), ChangePerson{
		Role: models.RoleMember, Index: 1, Field: models.PersonEmail, Value: "Riya@KLU.ac.in",
	})
	s.Equal("riya@klu.ac.in", next.Draft.Members[1].Email)
}

func (s *ReduceSuite) TestPhoneMasking() {
	st := Reduce(NewState(), ChangePerson{Role: models.RoleLeader, Field: models.PersonPhone, Value: "98765"})
	s.Equal("98765", st.Draft.TeamLeader.Phone)

	s.Run("non digits are dropped", func() {
		next := Reduce(st, ChangePerson{Role: models.RoleLeader, Field: models.PersonPhone, Value: "98765a"})
		s.Equal("98765", next.Draft.TeamLeader.Phone)
	})
	s.Run("more than ten digits are dropped", func() {
		next := Reduce(st, ChangePerson{Role: models.RoleLeader, Field: models.PersonWardenPhone, Value: "12345678901"})
		s.Empty(next.Draft.TeamLeader.WardenPhone)
	})
	s.Run("room number accepts digits only", func() {
		next := Reduce(st, ChangePerson{Role: models.RoleLeader, Field: models.PersonRoomNo, Value: "12B"})
		s.Empty(next.Draft.TeamLeader.RoomNo)
		next = Reduce(st, ChangePerson{Role: models.RoleLeader, Field: models.PersonRoomNo, Value: "120"})
		s.Equal("120", next.Draft.TeamLeader.RoomNo)
	})
}

func (s *ReduceSuite) TestDayscholarClearsHostelFields() {
	st := NewState()
	for _, a := range []ChangePerson{
		{Role: models.RoleMember, Index: 0, Field: models.PersonAccommodation, Value: models.Hostler},
		{Role: models.RoleMember, Index: 0, Field: models.PersonHostelName, Value: "MH-2"},
		{Role: models.RoleMember, Index: 0, Field: models.PersonRoomNo, Value: "12"},
		{Role: models.RoleMember, Index: 0, Field: models.PersonWardenName, Value: "Warden"},
		{Role: models.RoleMember, Index: 0, Field: models.PersonWardenPhone, Value: "9123456780"},
	} {
		st = Reduce(st, a)
	}
	st.Errors["members_0_roomNo"] = validation.MsgDigits

	st = Reduce(st, ChangePerson{Role: models.RoleMember, Index: 0, Field: models.PersonAccommodation, Value: models.Dayscholar})

	m := st.Draft.Members[0]
	s.Equal(models.Dayscholar, m.Accommodation)
	s.Empty(m.HostelName)
	s.Empty(m.RoomNo)
	s.Empty(m.WardenName)
	s.Empty(m.WardenPhone)
	s.NotContains(st.Errors, "members_0_roomNo")
}

func (s *ReduceSuite) TestOutOfRangeMemberIsIgnored() {
	st := Reduce(NewState(), ChangePerson{Role: models.RoleMember, Index: 3, Field: models.PersonName, Value: "x"})
	s.Equal(NewState().Draft, st.Draft)
}

func (s *ReduceSuite) TestStatusChanged() {
	st := Reduce(NewState(), StatusChanged{Field: models.FieldLeaderRegNo, Status: availability.StatusTaken})
	s.Equal(validation.MsgAlreadyExists, st.Errors["teamLeader_regNo"])
	s.False(st.CanSubmit())

	st = Reduce(st, StatusChanged{Field: models.FieldLeaderRegNo, Status: availability.StatusAvailable})
	s.NotContains(st.Errors, "teamLeader_regNo")
	s.True(st.CanSubmit())

	s.Run("available keeps rule errors", func() {
		st := NewState()
		st.Errors["teamName"] = validation.MsgNoKey
		st = Reduce(st, StatusChanged{Field: models.FieldTeamName, Status: availability.StatusAvailable})
		s.Equal(validation.MsgNoKey, st.Errors["teamName"])
	})
}

func (s *ReduceSuite) TestSubmitLifecycle() {
	st := Reduce(NewState(), SubmitStarted{})
	s.True(st.Submitting)
	s.False(st.CanSubmit())

	failed := Reduce(st, SubmitFailed{
		Message: "Transaction ID already used!",
		Fields:  map[string]string{"transactionId": validation.MsgAlreadyExists},
	})
	s.False(failed.Submitting)
	s.Equal("Transaction ID already used!", failed.SubmitError)
	s.Equal(validation.MsgAlreadyExists, failed.Errors["transactionId"])

	done := Reduce(Reduce(failed, SubmitStarted{}), SubmitSucceeded{Registration: &models.Registration{ID: "TEAMALPHA"}})
	s.Empty(done.SubmitError)
	s.Equal("TEAMALPHA", done.Submitted.ID)
}

func TestCanSubmitWhileChecking(t *testing.T) {
	st := Reduce(NewState(), StatusChanged{Field: models.FieldTeamName, Status: availability.StatusChecking})
	assert.False(t, st.CanSubmit())
	st = Reduce(st, StatusChanged{Field: models.FieldTeamName, Status: availability.StatusUnset})
	assert.True(t, st.CanSubmit())
}
