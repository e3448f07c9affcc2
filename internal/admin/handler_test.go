package admin_test

import (
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"outbreak/internal/admin"
	"outbreak/internal/admin/mocks"
	jwttoken "outbreak/internal/jwt_token"
	"outbreak/internal/registration/models"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	tokens *jwttoken.JWTService
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupSuite() {
	s.tokens = jwttoken.NewJWTService("signing-key", "outbreak", "outbreak-admin")
}

func (s *HandlerSuite) newHandler(t *testing.T) (*mocks.MockAdminService, chi.Router) {
	t.Helper()
	svc := mocks.NewMockAdminService(gomock.NewController(t))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	admin.NewHandler(svc, jwttoken.NewJWTServiceAdapter(s.tokens), logger).Register(router)
	return svc, router
}

func (s *HandlerSuite) token(t *testing.T) string {
	t.Helper()
	token, _, err := s.tokens.GenerateAdminToken(admin.Subject, time.Now(), time.Hour)
	require.NoError(t, err)
	return token
}

func (s *HandlerSuite) TestCreateSession() {
	s.T().Run("valid key - 201", func(t *testing.T) {
		svc, router := s.newHandler(t)
		expires := time.Date(2026, 2, 14, 17, 0, 0, 0, time.UTC)
		svc.EXPECT().CreateSession(gomock.Any(), "open-sesame").
			Return(&admin.SessionResponse{Token: "tok", ExpiresAt: expires}, nil)

		req := testutil.NewJSONRequest(t, http.MethodPost, "/admin/session", admin.SessionRequest{AccessKey: "open-sesame"})
		rec := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		got := testutil.UnmarshalResponse[admin.SessionResponse](t, rec)
		assert.Equal(t, "tok", got.Token)
		assert.True(t, expires.Equal(got.ExpiresAt))
	})

	s.T().Run("wrong key - 401", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().CreateSession(gomock.Any(), "guess").
			Return(nil, dErrors.New(dErrors.CodeUnauthorized, "invalid access key"))

		rec := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/admin/session", `{"accessKey":"guess"}`))

		testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
	})

	s.T().Run("malformed body - 400", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().CreateSession(gomock.Any(), gomock.Any()).Times(0)

		rec := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/admin/session", `{bad`))

		testutil.AssertStatusAndError(t, rec, http.StatusBadRequest, string(dErrors.CodeBadRequest))
	})
}

func (s *HandlerSuite) TestListRequiresToken() {
	s.T().Run("missing token - 401", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().List(gomock.Any(), gomock.Any()).Times(0)

		rec := testutil.DoRequest(router, httptest.NewRequest(http.MethodGet, "/admin/registrations", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	s.T().Run("forged token - 401", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().List(gomock.Any(), gomock.Any()).Times(0)
		forger := jwttoken.NewJWTService("other-key", "outbreak", "outbreak-admin")
		token, _, err := forger.GenerateAdminToken(admin.Subject, time.Now(), time.Hour)
		require.NoError(t, err)

		rec := testutil.DoRequest(router, testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/admin/registrations", nil), token))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	s.T().Run("valid token - 200 with query", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().List(gomock.Any(), "alpha").Return([]*models.Registration{{ID: "TEAMALPHA", TeamName: "Team Alpha"}}, nil)

		req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/admin/registrations?q=alpha", nil), s.token(t))
		rec := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rec.Code)
		got := testutil.UnmarshalResponse[admin.RegistrationsListResponse](t, rec)
		assert.Equal(t, 1, got.Total)
		assert.Equal(t, "TEAMALPHA", got.Registrations[0].ID)
	})

	s.T().Run("empty result is an empty array", func(t *testing.T) {
		svc, router := s.newHandler(t)
		svc.EXPECT().List(gomock.Any(), "").Return(nil, nil)

		req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/admin/registrations", nil), s.token(t))
		rec := testutil.DoRequest(router, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"registrations":[],"total":0}`, rec.Body.String())
	})
}

func (s *HandlerSuite) TestExport() {
	svc, router := s.newHandler(s.T())
	var rec *httptest.ResponseRecorder

	testutil.Scenario(s.T(), "csv export",
		testutil.Given("one committed registration", func(t *testing.T) {
			svc.EXPECT().Export(gomock.Any(), "").Return("outbreak26_registrations_2026-02-14.csv",
				[]*models.Registration{{TeamName: "Team Alpha", Payment: models.Payment{TransactionID: "UTR-1"}}}, nil)
		}),
		testutil.When("an admin downloads the export", func(t *testing.T) {
			req := testutil.WithBearer(httptest.NewRequest(http.MethodGet, "/admin/registrations/export", nil), s.token(t))
			rec = testutil.DoRequest(router, req)
		}),
		testutil.Then("a csv attachment is returned", func(t *testing.T) {
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="outbreak26_registrations_2026-02-14.csv"`, rec.Header().Get("Content-Disposition"))

			rows, err := csv.NewReader(rec.Body).ReadAll()
			require.NoError(t, err)
			require.Len(t, rows, 2)
			assert.Equal(t, "Team Alpha", rows[1][0])
			assert.Equal(t, "UTR-1", rows[1][6])
		}),
	)
}
