package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"outbreak/internal/registration/handler/mocks"
	"outbreak/internal/registration/models"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/httputil"
	"outbreak/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) newHandler(t *testing.T, maxUpload int64) (*mocks.MockService, chi.Router) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	New(svc, logger, maxUpload).Register(router)
	return svc, router
}

func multipartBody(t *testing.T, registration string, shot []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if registration != "" {
		require.NoError(t, mw.WriteField(RegistrationPart, registration))
	}
	if shot != nil {
		fw, err := mw.CreateFormFile(ScreenshotPart, "proof.png")
		require.NoError(t, err)
		_, err = fw.Write(shot)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func do(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) httputil.ErrorResponse {
	t.Helper()
	var body httputil.ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func draftJSON(t *testing.T) string {
	t.Helper()
	d := models.Draft{TeamName: "Team Alpha", Payment: models.PaymentDraft{TransactionID: "UTR-1"}}
	d.TeamLeader.Email = "lead@klu.ac.in"
	b, err := json.Marshal(d)
	require.NoError(t, err)
	return string(b)
}

// draftWithMembers renders a registration part with n named members.
func draftWithMembers(t *testing.T, n int) string {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(draftJSON(t)), &raw))
	members := make([]models.Person, n)
	for i := range members {
		members[i].Name = fmt.Sprintf("member-%d", i)
	}
	raw["members"] = members
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	return string(b)
}

func (s *HandlerSuite) TestMemberCount() {
	for _, n := range []int{2, 4} {
		svc, router := s.newHandler(s.T(), 0)
		var rec *httptest.ResponseRecorder

		testutil.Scenario(s.T(), fmt.Sprintf("%d members", n),
			testutil.Given("a team with the wrong number of members", func(t *testing.T) {
				svc.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(0)
			}),
			testutil.When("the registration is posted", func(t *testing.T) {
				body, ct := multipartBody(t, draftWithMembers(t, n), []byte{0x89, 'P', 'N', 'G'})
				req := httptest.NewRequest(http.MethodPost, "/registrations", body)
				req.Header.Set("Content-Type", ct)
				rec = do(router, req)
			}),
			testutil.Then("it is rejected on the members field", func(t *testing.T) {
				require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
				errBody := decodeError(t, rec)
				assert.Equal(t, string(dErrors.CodeValidation), errBody.Error)
				assert.Equal(t, "Exactly 3 members", errBody.Fields["members"])
			}),
		)
	}
}

func (s *HandlerSuite) TestHealth() {
	s.T().Run("reachable store - 200", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Ping(gomock.Any()).Return(nil)

		rec := do(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	s.T().Run("store down - 503", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Ping(gomock.Any()).Return(dErrors.New(dErrors.CodeUnavailable, "System busy. Please try again in 5s."))

		rec := do(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func (s *HandlerSuite) TestAvailability() {
	s.T().Run("taken team name", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().IsTaken(gomock.Any(), models.FieldTeamName, "Team Alpha").Return(true, nil)

		rec := do(router, httptest.NewRequest(http.MethodGet, "/registrations/availability?field=teamName&value=Team+Alpha", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"field":"teamName","value":"Team Alpha","status":"taken"}`, rec.Body.String())
	})

	s.T().Run("free transaction id", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().IsTaken(gomock.Any(), models.FieldTransactionID, "UTR-9").Return(false, nil)

		rec := do(router, httptest.NewRequest(http.MethodGet, "/registrations/availability?field=transactionId&value=UTR-9", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"field":"transactionId","value":"UTR-9","status":"available"}`, rec.Body.String())
	})

	s.T().Run("unknown field - 400", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().IsTaken(gomock.Any(), models.Field("email"), "x").
			Return(false, dErrors.New(dErrors.CodeBadRequest, "unknown field"))

		rec := do(router, httptest.NewRequest(http.MethodGet, "/registrations/availability?field=email&value=x", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, string(dErrors.CodeBadRequest), decodeError(t, rec).Error)
	})

	s.T().Run("lookup failure - 503", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().IsTaken(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(false, dErrors.New(dErrors.CodeUnavailable, "System busy. Please try again in 5s."))

		rec := do(router, httptest.NewRequest(http.MethodGet, "/registrations/availability?field=teamName&value=x", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func (s *HandlerSuite) TestSubmit() {
	shot := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}

	s.T().Run("valid submission - 201 without screenshot", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ any, d models.Draft) (*models.Registration, error) {
				require.NotNil(t, d.Payment.Screenshot)
				assert.Equal(t, shot, d.Payment.Screenshot.Data)
				assert.Equal(t, "proof.png", d.Payment.Screenshot.Filename)
				assert.Equal(t, "Team Alpha", d.TeamName)
				return &models.Registration{
					ID:          "TEAMALPHA",
					TeamName:    d.TeamName,
					Payment:     models.Payment{TransactionID: "UTR-1", Screenshot: "data:image/jpeg;base64,AAAA"},
					SubmittedAt: time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC),
				}, nil
			})

		body, ct := multipartBody(t, draftJSON(t), shot)
		req := httptest.NewRequest(http.MethodPost, "/registrations", body)
		req.Header.Set("Content-Type", ct)
		rec := do(router, req)

		require.Equal(t, http.StatusCreated, rec.Code)
		var got models.Registration
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
		assert.Equal(t, "TEAMALPHA", got.ID)
		assert.Empty(t, got.Payment.Screenshot)
		assert.NotContains(t, rec.Body.String(), "base64")
	})

	s.T().Run("missing screenshot is left to validation", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ any, d models.Draft) (*models.Registration, error) {
				assert.Nil(t, d.Payment.Screenshot)
				return nil, dErrors.New(dErrors.CodeValidation, "validation failed").
					WithFields(map[string]string{"screenshot": "Required"})
			})

		body, ct := multipartBody(t, draftJSON(t), nil)
		req := httptest.NewRequest(http.MethodPost, "/registrations", body)
		req.Header.Set("Content-Type", ct)
		rec := do(router, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		errBody := decodeError(t, rec)
		assert.Equal(t, string(dErrors.CodeValidation), errBody.Error)
		assert.Equal(t, "Required", errBody.Fields["screenshot"])
	})

	s.T().Run("conflict - 409 with field", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).Return(nil,
			dErrors.New(dErrors.CodeConflict, "Team Name already taken! Please choose another.").
				WithFields(map[string]string{"teamName": "ALREADY EXISTS"}))

		body, ct := multipartBody(t, draftJSON(t), shot)
		req := httptest.NewRequest(http.MethodPost, "/registrations", body)
		req.Header.Set("Content-Type", ct)
		rec := do(router, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
		errBody := decodeError(t, rec)
		assert.Equal(t, "Team Name already taken! Please choose another.", errBody.ErrorDescription)
		assert.Equal(t, "ALREADY EXISTS", errBody.Fields["teamName"])
	})

	s.T().Run("missing registration part - 400", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(0)

		body, ct := multipartBody(t, "", shot)
		req := httptest.NewRequest(http.MethodPost, "/registrations", body)
		req.Header.Set("Content-Type", ct)
		rec := do(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("unknown json field - 400", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(0)

		body, ct := multipartBody(t, `{"teamName":"A","admin":true}`, shot)
		req := httptest.NewRequest(http.MethodPost, "/registrations", body)
		req.Header.Set("Content-Type", ct)
		rec := do(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("all members reach the service", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ any, d models.Draft) (*models.Registration, error) {
				assert.Equal(t, "member-0", d.Members[0].Name)
				assert.Equal(t, "member-2", d.Members[2].Name)
				return &models.Registration{ID: "TEAMALPHA"}, nil
			})

		body, ct := multipartBody(t, draftWithMembers(t, 3), shot)
		req := httptest.NewRequest(http.MethodPost, "/registrations", body)
		req.Header.Set("Content-Type", ct)
		rec := do(router, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	s.T().Run("not multipart - 400", func(t *testing.T) {
		svc, router := s.newHandler(t, 0)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(0)

		req := httptest.NewRequest(http.MethodPost, "/registrations", bytes.NewBufferString(draftJSON(t)))
		req.Header.Set("Content-Type", "application/json")
		rec := do(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	s.T().Run("upload over the cap - 400", func(t *testing.T) {
		svc, router := s.newHandler(t, 1024)
		svc.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(0)

		big := bytes.Repeat([]byte{0xff}, multipartOverhead+4096)
		body, ct := multipartBody(t, draftJSON(t), big)
		req := httptest.NewRequest(http.MethodPost, "/registrations", body)
		req.Header.Set("Content-Type", ct)
		rec := do(router, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "upload too large", decodeError(t, rec).ErrorDescription)
	})
}
