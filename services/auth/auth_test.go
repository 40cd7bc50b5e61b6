package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTokens() *Tokens {
	return &Tokens{Secret: []byte("test-secret"), TTL: time.Hour}
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := testTokens()
	userID := uuid.New()

	signed, err := tokens.Issue(userID, "operator", "jbi")
	require.NoError(t, err)

	identity, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "operator", identity.Role)
	assert.Equal(t, "jbi", identity.FieldID)
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	tokens := testTokens()
	signed, err := tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	_, err = tokens.Verify(signed + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := &Tokens{Secret: []byte("other-secret"), TTL: time.Hour}
	_, err = other.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	tokens := &Tokens{Secret: []byte("test-secret"), TTL: -time.Minute}
	signed, err := tokens.Issue(uuid.New(), "operator", "jbi")
	require.NoError(t, err)

	_, err = tokens.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret"))
	assert.False(t, CheckPassword(hash, "wrong"))
	assert.False(t, CheckPassword("not-a-hash", "s3cret"))
}

func TestMiddleware(t *testing.T) {
	tokens := testTokens()
	userID := uuid.New()
	signed, err := tokens.Issue(userID, "admin", "rtu")
	require.NoError(t, err)

	var got Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := FromContext(r.Context())
		require.True(t, ok)
		got = identity
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(tokens)(next)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + signed, status: http.StatusOK},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + signed, status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not.a.jwt", status: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
		})
	}

	assert.Equal(t, userID, got.UserID)
	assert.Equal(t, "rtu", got.FieldID)
}
