// Package storetest is a behavioural suite shared by every store backend.
package storetest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"outbreak/internal/registration/models"
	"outbreak/internal/registration/store"
	"outbreak/pkg/platform/sentinel"
)

// Suite exercises a store.Store. Backends embed it and set New.
type Suite struct {
	suite.Suite
	// New returns an empty store. Called before every test.
	New   func() store.Store
	Store store.Store
	Ctx   context.Context
}

func (s *Suite) SetupTest() {
	s.Ctx = context.Background()
	s.Store = s.New()
}

// Registration builds a committed document for teamName.
func Registration(teamName, transactionID string, at time.Time) *models.Registration {
	person := func(regNo string) models.Person {
		return models.Person{
			Name:          "Person " + regNo,
			RegNo:         regNo,
			Email:         "p" + regNo + "@klu.ac.in",
			Phone:         "9876543210",
			Gender:        "Male",
			Year:          "3",
			Branch:        "CSE",
			Section:       "S-1",
			Accommodation: models.Dayscholar,
		}
	}
	key := models.RegistrationKey(teamName)
	reg := &models.Registration{
		ID:          key,
		TeamName:    teamName,
		TeamLeader:  person(key + "-L"),
		Payment:     models.Payment{TransactionID: transactionID, Screenshot: "data:image/jpeg;base64,AAAA"},
		SubmittedAt: at.UTC().Truncate(time.Millisecond),
	}
	for i := range reg.Members {
		reg.Members[i] = person(key + "-" + strconv.Itoa(i))
	}
	return reg
}

// Commit runs the read-then-write protocol against the store.
func (s *Suite) Commit(reg *models.Registration) error {
	return s.Store.RunInTx(s.Ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Get(ctx, reg.ID); err == nil {
			return store.ErrKeyTaken
		} else if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		exists, err := tx.TransactionIDExists(ctx, reg.Payment.TransactionID)
		if err != nil {
			return err
		}
		if exists {
			return store.ErrTransactionIDTaken
		}
		return tx.Create(ctx, reg)
	})
}

func (s *Suite) TestCreateAndFind() {
	reg := Registration("Team Alpha", "UTR-1", time.Now())
	s.Require().NoError(s.Commit(reg))

	found, err := s.Store.FindByKey(s.Ctx, "TEAMALPHA")
	s.Require().NoError(err)
	s.Equal(reg.TeamName, found.TeamName)
	s.Equal(reg.Payment, found.Payment)
	s.Equal(reg.Members, found.Members)
	s.True(reg.SubmittedAt.Equal(found.SubmittedAt))

	_, err = s.Store.FindByKey(s.Ctx, "MISSING")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestExistsByField() {
	reg := Registration("Team Alpha", "UTR-1", time.Now())
	s.Require().NoError(s.Commit(reg))

	cases := []struct {
		field models.Field
		value string
		want  bool
	}{
		{models.FieldTeamName, "Team Alpha", true},
		{models.FieldTeamName, "TEAM ALPHA", false},
		{models.FieldTransactionID, "UTR-1", true},
		{models.FieldTransactionID, "UTR-2", false},
		{models.FieldLeaderRegNo, reg.TeamLeader.RegNo, true},
		{models.FieldLeaderRegNo, reg.Members[0].RegNo, false},
	}
	for _, c := range cases {
		got, err := s.Store.ExistsByField(s.Ctx, c.field, c.value)
		s.Require().NoError(err)
		s.Equal(c.want, got, "%s=%s", c.field, c.value)
	}
}

func (s *Suite) TestDuplicateKeyRejected() {
	s.Require().NoError(s.Commit(Registration("Team Beta", "UTR-1", time.Now())))

	err := s.Commit(Registration("TeamBeta", "UTR-2", time.Now()))
	s.ErrorIs(err, store.ErrKeyTaken)

	exists, err := s.Store.ExistsByField(s.Ctx, models.FieldTransactionID, "UTR-2")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *Suite) TestDuplicateTransactionIDRejected() {
	s.Require().NoError(s.Commit(Registration("Team One", "UTR-1", time.Now())))

	err := s.Commit(Registration("Team Two", "UTR-1", time.Now()))
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)

	_, err = s.Store.FindByKey(s.Ctx, "TEAMTWO")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestFailedUnitWritesNothing() {
	boom := errors.New("boom")
	err := s.Store.RunInTx(s.Ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Create(ctx, Registration("Team Gamma", "UTR-9", time.Now())); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.Store.FindByKey(s.Ctx, "TEAMGAMMA")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestListNewestFirst() {
	base := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	s.Require().NoError(s.Commit(Registration("Old", "UTR-1", base)))
	s.Require().NoError(s.Commit(Registration("New", "UTR-2", base.Add(time.Hour))))

	list, err := s.Store.List(s.Ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 2)
	s.Equal("NEW", list[0].ID)
	s.Equal("OLD", list[1].ID)
}

// TestConcurrentCommitsSameKey verifies that of many racing commits for
// colliding team names exactly one succeeds.
func (s *Suite) TestConcurrentCommitsSameKey() {
	names := []string{"Team Delta", "TeamDelta", "team delta", "TEAM-DELTA"}
	const goroutines = 20

	var wg sync.WaitGroup
	var ok, conflict atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Commit(Registration(names[i%len(names)], "UTR-D"+strconv.Itoa(i), time.Now()))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrUnavailable):
				conflict.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), conflict.Load())

	list, err := s.Store.List(s.Ctx)
	s.Require().NoError(err)
	s.Len(list, 1)
}

// TestConcurrentCommitsSameTransactionID verifies transaction id uniqueness under races.
func (s *Suite) TestConcurrentCommitsSameTransactionID() {
	const goroutines = 10

	var wg sync.WaitGroup
	var ok atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if s.Commit(Registration("Team "+strconv.Itoa(i), "UTR-SHARED", time.Now())) == nil {
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
}
