package handler_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"datamarket/internal/platform/logger"
	"datamarket/internal/registry/handler"
	"datamarket/internal/registry/models"
	"datamarket/internal/registry/service"
	"datamarket/internal/registry/store"
	id "datamarket/pkg/domain"
	"datamarket/pkg/platform/middleware/auth"
	"datamarket/pkg/platform/middleware/requestid"
	"datamarket/pkg/platform/middleware/requesttime"
	"datamarket/pkg/testutil"
)

const (
	signingKey   = "test-signing-key"
	adminAccount = "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"
	aliceAccount = "SP2J6ZY48GV1EZ5V2V5RB9MP66SW86PYKKNRV9EJ7"
	bobAccount   = "SP3FBR2AGK5H9QBDH3EEN6DF8EK8JY7RX8QJ5SVTE"
)

type HandlerSuite struct {
	suite.Suite
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	log := logger.New()
	ledger, err := service.New(store.NewInMemory(models.DefaultFeePercentage), adminAccount)
	s.Require().NoError(err)

	h := handler.New(ledger, auth.NewHMACVerifier(signingKey), log)

	router := chi.NewRouter()
	router.Use(requestid.Middleware)
	router.Use(requesttime.Middleware)
	router.Route("/v1", h.Register)
	s.router = router
}

func signToken(t *testing.T, account string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   account,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(signingKey))
	require.NoError(t, err)
	return signed
}

// register creates a record through the API and returns its id.
func (s *HandlerSuite) register(owner string) id.RecordID {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]any{
		"content_address": "ipfs://QmTest123",
		"price":           1_000_000,
		"metadata":        `{"title":"Test Dataset"}`,
	})
	req.Header.Set("Authorization", "Bearer "+signToken(s.T(), owner))
	rr := testutil.DoRequest(s.router, req)
	s.Require().Equal(http.StatusCreated, rr.Code)

	var resp struct {
		RecordID id.RecordID `json:"record_id"`
	}
	testutil.DecodeJSON(s.T(), rr, &resp)
	return resp.RecordID
}

func (s *HandlerSuite) TestAuthRequired() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]any{
		"content_address": "ipfs://QmX",
		"price":           100,
		"metadata":        "{}",
	})
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *HandlerSuite) TestInvalidTokenRejected() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]any{"price": 100})
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusUnauthorized, rr.Code)
}

func (s *HandlerSuite) TestRegisterAndFetch() {
	recordID := s.register(aliceAccount)
	s.Equal(id.RecordID(1), recordID)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/1"))
	s.Require().Equal(http.StatusOK, rr.Code)

	var record models.Record
	testutil.DecodeJSON(s.T(), rr, &record)
	s.Equal(id.RecordID(1), record.ID)
	s.Equal(id.AccountID(aliceAccount), record.Owner)
	s.Equal(uint64(1_000_000), record.Price)
	s.True(record.Active)
}

func (s *HandlerSuite) TestGetMissingRecord() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/99"))
	s.Equal(http.StatusNotFound, rr.Code)

	var resp struct {
		Error string `json:"error"`
	}
	testutil.DecodeJSON(s.T(), rr, &resp)
	s.Equal("not_found", resp.Error)
}

func (s *HandlerSuite) TestRegisterInvalidPrice() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records", map[string]any{
		"content_address": "ipfs://QmX",
		"price":           0,
		"metadata":        "{}",
	})
	req.Header.Set("Authorization", "Bearer "+signToken(s.T(), aliceAccount))
	rr := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusUnprocessableEntity, rr.Code)

	var resp struct {
		Error string `json:"error"`
	}
	testutil.DecodeJSON(s.T(), rr, &resp)
	s.Equal("invalid_price", resp.Error)
}

func (s *HandlerSuite) TestGrantAccessAdminOnly() {
	recordID := s.register(aliceAccount)

	grantReq := func(as string) int {
		req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/"+recordID.String()+"/access",
			map[string]string{"beneficiary": bobAccount})
		req.Header.Set("Authorization", "Bearer "+signToken(s.T(), as))
		return testutil.DoRequest(s.router, req).Code
	}

	s.Equal(http.StatusForbidden, grantReq(aliceAccount))
	s.Equal(http.StatusOK, grantReq(adminAccount))

	rr := testutil.DoRequest(s.router,
		testutil.NewRequest(s.T(), http.MethodGet, "/v1/records/"+recordID.String()+"/access/"+bobAccount))
	s.Require().Equal(http.StatusOK, rr.Code)

	var resp struct {
		HasAccess bool `json:"has_access"`
	}
	testutil.DecodeJSON(s.T(), rr, &resp)
	s.True(resp.HasAccess)
}

func (s *HandlerSuite) TestUpdateMetadataOwnerOnly() {
	recordID := s.register(aliceAccount)

	req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/records/"+recordID.String()+"/metadata",
		map[string]string{"metadata": `{"title":"Hijacked"}`})
	req.Header.Set("Authorization", "Bearer "+signToken(s.T(), bobAccount))
	s.Equal(http.StatusForbidden, testutil.DoRequest(s.router, req).Code)

	req = testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/records/"+recordID.String()+"/metadata",
		map[string]string{"metadata": `{"title":"Updated"}`})
	req.Header.Set("Authorization", "Bearer "+signToken(s.T(), aliceAccount))
	s.Equal(http.StatusOK, testutil.DoRequest(s.router, req).Code)
}

func (s *HandlerSuite) TestFeeEndpoints() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/platform/fee"))
	s.Require().Equal(http.StatusOK, rr.Code)

	var fee struct {
		FeePercentage int `json:"fee_percentage"`
	}
	testutil.DecodeJSON(s.T(), rr, &fee)
	s.Equal(5, fee.FeePercentage)

	setFee := func(as string, value int) int {
		req := testutil.NewJSONRequest(s.T(), http.MethodPut, "/v1/platform/fee",
			map[string]int{"fee_percentage": value})
		req.Header.Set("Authorization", "Bearer "+signToken(s.T(), as))
		return testutil.DoRequest(s.router, req).Code
	}

	s.Equal(http.StatusForbidden, setFee(aliceAccount, 10))
	s.Equal(http.StatusUnprocessableEntity, setFee(adminAccount, 25))
	s.Equal(http.StatusOK, setFee(adminAccount, 20))

	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/platform/fee"))
	testutil.DecodeJSON(s.T(), rr, &fee)
	s.Equal(20, fee.FeePercentage)
}

func (s *HandlerSuite) TestListings() {
	first := s.register(aliceAccount)
	second := s.register(aliceAccount)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/v1/records/"+first.String()+"/access",
		map[string]string{"beneficiary": bobAccount})
	req.Header.Set("Authorization", "Bearer "+signToken(s.T(), adminAccount))
	s.Require().Equal(http.StatusOK, testutil.DoRequest(s.router, req).Code)

	rr := testutil.DoRequest(s.router,
		testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/"+aliceAccount+"/records"))
	s.Require().Equal(http.StatusOK, rr.Code)

	var owned struct {
		RecordIDs []id.RecordID `json:"record_ids"`
	}
	testutil.DecodeJSON(s.T(), rr, &owned)
	s.Equal([]id.RecordID{first, second}, owned.RecordIDs)

	rr = testutil.DoRequest(s.router,
		testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/"+bobAccount+"/purchases"))
	s.Require().Equal(http.StatusOK, rr.Code)

	var purchased struct {
		RecordIDs []id.RecordID `json:"record_ids"`
	}
	testutil.DecodeJSON(s.T(), rr, &purchased)
	s.Equal([]id.RecordID{first}, purchased.RecordIDs)

	// Accounts with no entries get an empty list, never an error.
	rr = testutil.DoRequest(s.router,
		testutil.NewRequest(s.T(), http.MethodGet, "/v1/accounts/"+bobAccount+"/records"))
	s.Require().Equal(http.StatusOK, rr.Code)
	testutil.DecodeJSON(s.T(), rr, &owned)
	s.Empty(owned.RecordIDs)
}

func (s *HandlerSuite) TestBrowseAndDeactivate() {
	first := s.register(aliceAccount)
	second := s.register(bobAccount)

	req := testutil.NewRequest(s.T(), http.MethodPost, "/v1/records/"+first.String()+"/deactivate")
	req.Header.Set("Authorization", "Bearer "+signToken(s.T(), aliceAccount))
	s.Require().Equal(http.StatusOK, testutil.DoRequest(s.router, req).Code)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/records"))
	s.Require().Equal(http.StatusOK, rr.Code)

	var browse struct {
		Records []models.Record `json:"records"`
	}
	testutil.DecodeJSON(s.T(), rr, &browse)
	s.Len(browse.Records, 1)
	s.Equal(second, browse.Records[0].ID)
}

func (s *HandlerSuite) TestStats() {
	s.register(aliceAccount)
	s.register(bobAccount)

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/v1/platform/stats"))
	s.Require().Equal(http.StatusOK, rr.Code)

	var stats models.Stats
	testutil.DecodeJSON(s.T(), rr, &stats)
	s.Equal(uint64(2), stats.TotalRecords)
	s.Equal(uint64(2), stats.ActiveRecords)
}

func (s *HandlerSuite) TestMalformedBody() {
	req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/v1/records", "{not json")
	req.Header.Set("Authorization", "Bearer "+signToken(s.T(), aliceAccount))
	s.Equal(http.StatusBadRequest, testutil.DoRequest(s.router, req).Code)
}
