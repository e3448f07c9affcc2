//go:build integration

package mongo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/bson"

	"outbreak/internal/registration/store"
	"outbreak/internal/registration/store/mongo"
	"outbreak/internal/registration/store/storetest"
	"outbreak/pkg/testutil/containers"
)

type MongoStoreSuite struct {
	storetest.Suite
	mongo *containers.MongoContainer
}

func TestMongoStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(MongoStoreSuite))
}

func (s *MongoStoreSuite) SetupSuite() {
	s.mongo = containers.GetManager().GetMongo(s.T())
	ms := mongo.NewMongo(s.mongo.Client, "outbreak_test")
	s.Require().NoError(ms.EnsureIndexes(context.Background()))
	s.New = func() store.Store {
		_, err := s.mongo.Client.Database("outbreak_test").Collection(store.Collection).
			DeleteMany(context.Background(), bson.D{})
		s.Require().NoError(err)
		return ms
	}
}
