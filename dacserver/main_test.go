package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func authRequest(h http.Handler, user string, pass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	if user != "" || pass != "" {
		req.SetBasicAuth(user, pass)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthDisabled(t *testing.T) {
	h := authRequired(okHandler, "")
	assert.Equal(t, http.StatusOK, authRequest(h, "", "").Code)
}

func TestAuth(t *testing.T) {
	h := authRequired(okHandler, "secret")

	user, pass := authCredentials("secret", "bench", time.Now().Add(time.Hour))
	require.Contains(t, user, "$bench")

	assert.Equal(t, http.StatusOK, authRequest(h, user, pass).Code)

	rec := authRequest(h, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Basic realm="MAX517"`, rec.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, authRequest(h, user, "zz").Code)
	assert.Equal(t, http.StatusUnauthorized, authRequest(h, user+"x", pass).Code)

	_, wrongKey := authCredentials("other", "bench", time.Now().Add(time.Hour))
	assert.Equal(t, http.StatusUnauthorized, authRequest(h, user, wrongKey).Code)

	expiredUser, expiredPass := authCredentials("secret", "", time.Now().Add(-time.Hour))
	assert.Equal(t, http.StatusUnauthorized, authRequest(h, expiredUser, expiredPass).Code)
}

func TestAuthValidExpiry(t *testing.T) {
	expiry := time.Unix(1700000000, 0)
	user, pass := authCredentials("secret", "", expiry)

	req := httptest.NewRequest("GET", "/", nil)
	req.SetBasicAuth(user, pass)

	assert.True(t, authValid("secret", req, expiry))
	assert.False(t, authValid("secret", req, expiry.Add(time.Second)))
}

func TestListenPort(t *testing.T) {
	port, err := listenPort(":8067")
	require.NoError(t, err)
	assert.Equal(t, 8067, port)

	_, err = listenPort("8067")
	assert.Error(t, err)
}
