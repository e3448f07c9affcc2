package form

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"outbreak/internal/registration/availability"
	"outbreak/internal/registration/models"
	"outbreak/internal/registration/validation"
	dErrors "outbreak/pkg/domain-errors"
)

type stubLookup struct {
	mu    sync.Mutex
	taken map[string]bool
}

func (l *stubLookup) IsTaken(_ context.Context, _ models.Field, value string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.taken[value], nil
}

type stubSubmitter struct {
	mu     sync.Mutex
	drafts []models.Draft
	err    error
}

func (s *stubSubmitter) Submit(_ context.Context, d models.Draft) (*models.Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts = append(s.drafts, d)
	if s.err != nil {
		return nil, s.err
	}
	return &models.Registration{ID: models.RegistrationKey(d.TeamName), TeamName: d.TeamName}, nil
}

type stubConnectivity struct {
	err error
}

func (c stubConnectivity) Ping(context.Context) error { return c.err }

type ControllerSuite struct {
	suite.Suite
	lookup    *stubLookup
	submitter *stubSubmitter
	conn      *stubConnectivity
	ctrl      *Controller
}

func TestControllerSuite(t *testing.T) {
	suite.Run(t, new(ControllerSuite))
}

func (s *ControllerSuite) SetupTest() {
	s.lookup = &stubLookup{taken: map[string]bool{}}
	s.submitter = &stubSubmitter{}
	s.conn = &stubConnectivity{}
	s.ctrl = NewController(s.lookup, s.submitter, s.conn,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCheckerOptions(availability.WithDelay(10*time.Millisecond)),
	)
}

func (s *ControllerSuite) TearDownTest() {
	s.ctrl.Close()
}

func (s *ControllerSuite) fill() {
	s.ctrl.Dispatch(ChangeTeamName{Value: "Team Alpha"})
	s.ctrl.Dispatch(ChangeTransactionID{Value: "UTR100"})
	s.ctrl.Dispatch(ChooseScreenshot{Screenshot: &models.Screenshot{Filename: "p.png", Data: []byte{1}}})
	person := func(role models.Role, i int, regNo string) {
		values := map[models.PersonField]string{
			models.PersonName:          "Name",
			models.PersonRegNo:         regNo,
			models.PersonEmail:         "a@klu.ac.in",
			models.PersonPhone:         "9876543210",
			models.PersonGender:        "Male",
			models.PersonYear:          "2",
			models.PersonBranch:        "ECE",
			models.PersonSection:       "S-1",
			models.PersonAccommodation: models.Dayscholar,
		}
		for f, v := range values {
			s.ctrl.Dispatch(ChangePerson{Role: role, Index: i, Field: f, Value: v})
		}
	}
	person(models.RoleLeader, 0, "L1")
	for i := 0; i < models.MemberCount; i++ {
		person(models.RoleMember, i, "M"+string(rune('0'+i)))
	}
}

func (s *ControllerSuite) waitSettled() {
	s.Eventually(func() bool {
		st := s.ctrl.State()
		for _, f := range models.WatchedFields {
			if st.WatchedValue(f) != "" && st.Statuses[f] != availability.StatusAvailable && st.Statuses[f] != availability.StatusTaken {
				return false
			}
		}
		return true
	}, time.Second, 5*time.Millisecond)
}

func (s *ControllerSuite) TestSubmitCommitsValidDraft() {
	s.fill()
	s.waitSettled()
	s.True(s.ctrl.CanSubmit())

	reg, err := s.ctrl.Submit(context.Background())

	s.Require().NoError(err)
	s.Equal("TEAMALPHA", reg.ID)
	st := s.ctrl.State()
	s.False(st.Submitting)
	s.Equal(reg, st.Submitted)
	s.Len(s.submitter.drafts, 1)
}

func (s *ControllerSuite) TestTakenTeamNameBlocksSubmit() {
	s.lookup.taken["TEAM ALPHA"] = true
	s.fill()

	s.Eventually(func() bool {
		return s.ctrl.State().Statuses[models.FieldTeamName] == availability.StatusTaken
	}, time.Second, 5*time.Millisecond)

	s.False(s.ctrl.CanSubmit())
	_, err := s.ctrl.Submit(context.Background())
	s.ErrorIs(err, ErrNotReady)
	s.Equal(validation.MsgAlreadyExists, s.ctrl.State().Errors["teamName"])
	s.Empty(s.submitter.drafts)
}

func (s *ControllerSuite) TestOfflineSkipsCommit() {
	s.fill()
	s.waitSettled()
	s.conn.err = errors.New("no route to host")

	_, err := s.ctrl.Submit(context.Background())

	s.ErrorIs(err, ErrOffline)
	s.Equal(MsgOffline, s.ctrl.State().SubmitError)
	s.False(s.ctrl.State().Submitting)
	s.Empty(s.submitter.drafts)
}

func (s *ControllerSuite) TestInvalidDraftIsNotSubmitted() {
	s.fill()
	s.ctrl.Dispatch(ChangePerson{Role: models.RoleMember, Index: 2, Field: models.PersonEmail, Value: "x@gmail.com"})
	s.waitSettled()

	_, err := s.ctrl.Submit(context.Background())

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Equal(validation.MsgEmailDomain, s.ctrl.State().Errors["members_2_email"])
	s.Empty(s.submitter.drafts)
}

func (s *ControllerSuite) TestCommitConflictKeepsDraft() {
	s.fill()
	s.waitSettled()
	s.submitter.err = dErrors.New(dErrors.CodeConflict, "Transaction ID already used!").
		WithFields(map[string]string{"transactionId": validation.MsgAlreadyExists})

	_, err := s.ctrl.Submit(context.Background())

	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	st := s.ctrl.State()
	s.Equal("Transaction ID already used!", st.SubmitError)
	s.Equal(validation.MsgAlreadyExists, st.Errors["transactionId"])
	s.Equal("UTR100", st.Draft.Payment.TransactionID)
	s.Equal("TEAM ALPHA", st.Draft.TeamName)
}

func (s *ControllerSuite) TestBlur() {
	s.ctrl.Dispatch(ChangePerson{Role: models.RoleLeader, Field: models.PersonPhone, Value: "123"})
	st := s.ctrl.BlurPerson(models.RoleLeader, 0, models.PersonPhone)
	s.Equal(validation.MsgTenDigits, st.Errors["teamLeader_phone"])

	st = s.ctrl.BlurTeamName()
	s.Equal(validation.MsgRequired, st.Errors["teamName"])

	st = s.ctrl.BlurPerson(models.RoleLeader, 0, models.PersonRoomNo)
	s.NotContains(st.Errors, "teamLeader_roomNo")
}
