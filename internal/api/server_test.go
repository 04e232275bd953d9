package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sulimcode/drove/internal/config"
	"github.com/sulimcode/drove/internal/economy"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc123", want: "abc123"},
		{header: "bearer abc123", want: "abc123"},
		{header: "  Bearer   abc123  ", want: "abc123"},
		{header: "Basic abc123", want: ""},
		{header: "Bearer", want: ""},
		{header: "", want: ""},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, bearerToken(tc.header), "header %q", tc.header)
	}
}

func TestWriteDomainErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: economy.ErrNotFound, want: http.StatusNotFound},
		{err: economy.ErrAlreadyExists, want: http.StatusConflict},
		{err: economy.ErrAlreadyOwned, want: http.StatusConflict},
		{err: economy.ErrTargetProtected, want: http.StatusConflict},
		{err: economy.ErrAlreadyProtected, want: http.StatusConflict},
		{err: economy.ErrTxConflict, want: http.StatusConflict},
		{err: economy.ErrInsufficientFunds, want: http.StatusBadRequest},
		{err: economy.ErrInvalidTarget, want: http.StatusBadRequest},
		{err: economy.ErrInvalidOwnership, want: http.StatusBadRequest},
		{err: economy.ErrNotOwned, want: http.StatusBadRequest},
		{err: http.ErrBodyNotAllowed, want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		rec := httptest.NewRecorder()
		writeDomainError(rec, tc.err)
		require.Equal(t, tc.want, rec.Code, "error %v", tc.err)
		require.Contains(t, rec.Body.String(), "error")
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var out struct {
		BuyerID int64 `json:"buyer_id"`
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/purchases",
		strings.NewReader(`{"buyer_id": 1, "bogus": true}`))
	require.Error(t, decodeJSON(req, &out))

	req = httptest.NewRequest(http.MethodPost, "/v1/purchases",
		strings.NewReader(`{"buyer_id": 7}`))
	require.NoError(t, decodeJSON(req, &out))
	require.Equal(t, int64(7), out.BuyerID)
}

func TestAuthMiddleware(t *testing.T) {
	srv := New(config.Config{ServiceToken: "sekrit"}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// The health check stays outside the token wall.
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestInvalidPathID(t *testing.T) {
	srv := New(config.Config{}, nil, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/accounts/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivateShieldRejectsBadDuration(t *testing.T) {
	srv := New(config.Config{}, nil, nil)

	for _, body := range []string{
		`{"duration": "soon"}`,
		`{"duration": "-1h"}`,
		`{"duration": "0s"}`,
		`{"bogus": true}`,
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/accounts/5/shield",
			strings.NewReader(body))
		srv.Handler().ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %s", body)
	}
}

func TestRegisterRejectsBadBody(t *testing.T) {
	srv := New(config.Config{}, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/accounts",
		strings.NewReader(`{"id": 0}`))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/v1/transfers",
		strings.NewReader(`{"from_id": 1, "to_id": 2, "amount": -5}`))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
