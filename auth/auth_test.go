package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestVerifyJWT(t *testing.T) {
	secret := []byte("test-secret")
	verifier := NewVerifier(Config{HS256Secret: secret, Issuer: "covault"})

	token := signToken(t, secret, jwt.MapClaims{
		"sub":  "client-1",
		"role": "client",
		"iss":  "covault",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "client-1", claims.Subject)
	require.Equal(t, RoleClient, claims.Role)
}

func TestVerifyJWTRejections(t *testing.T) {
	secret := []byte("test-secret")
	verifier := NewVerifier(Config{HS256Secret: secret, Issuer: "covault"})

	cases := map[string]jwt.MapClaims{
		"expired": {
			"sub": "client-1", "role": "client", "iss": "covault",
			"exp": time.Now().Add(-time.Hour).Unix(),
		},
		"missing expiry": {
			"sub": "client-1", "role": "client", "iss": "covault",
		},
		"wrong issuer": {
			"sub": "client-1", "role": "client", "iss": "someone-else",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
		"unknown role": {
			"sub": "client-1", "role": "superuser", "iss": "covault",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
		"missing subject": {
			"role": "client", "iss": "covault",
			"exp": time.Now().Add(time.Hour).Unix(),
		},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := verifier.Verify(signToken(t, secret, claims))
			require.Error(t, err)
		})
	}

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, []byte("other-secret"), jwt.MapClaims{
			"sub": "client-1", "role": "client", "iss": "covault",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := verifier.Verify(token)
		require.Error(t, err)
	})
}

func TestVerifyDevToken(t *testing.T) {
	verifier := NewVerifier(Config{})

	claims, err := verifier.Verify("user-1|provider")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, RoleProvider, claims.Role)

	for _, token := range []string{"user-1", "user-1|superuser", "|client"} {
		_, err := verifier.Verify(token)
		require.Error(t, err, "token %q", token)
	}
}

func TestAuthenticateMiddleware(t *testing.T) {
	verifier := NewVerifier(Config{})
	handler := verifier.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := FromContext(r.Context())
		require.NoError(t, err)
		require.Equal(t, "user-1", claims.Subject)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer user-1|client")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	for name, header := range map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic dXNlcjpwYXNz",
		"bad token":      "Bearer not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)
			require.Equal(t, http.StatusUnauthorized, recorder.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	verifier := NewVerifier(Config{})
	handler := verifier.Authenticate(RequireRole(RoleProvider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer user-1|provider")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusOK, recorder.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer user-1|client")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)
	require.Equal(t, http.StatusForbidden, recorder.Code)
}
