package memory

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"outbreak/internal/registration/store"
	"outbreak/internal/registration/store/storetest"
)

type InMemoryStoreSuite struct {
	storetest.Suite
}

func TestInMemoryStoreSuite(t *testing.T) {
	s := new(InMemoryStoreSuite)
	s.New = func() store.Store { return NewInMemory() }
	suite.Run(t, s)
}
