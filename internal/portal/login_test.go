package portal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoportal/internal/models"
)

func TestSubmitLoginPostsToFixedEndpoint(t *testing.T) {
	var got url.Values
	var gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		got = r.PostForm
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	gateway, err := url.Parse(srv.URL)
	require.NoError(t, err)

	sub := NewSubmitter(srv.Client(), gateway.Host, srv.URL+"/fgtauth", srv.URL+"/logout")

	// The detected redirect belongs to the gateway; the POST must hit the
	// fixed login endpoint, with the redirect carried as a form field only.
	detected := srv.URL + "/fgtauth?0a1b2c3d"
	creds := models.Credentials{Username: "alice", Password: "s3cret"}
	token := models.PortalToken{LoginURL: detected, Magic: "0a1b2c3d"}

	require.NoError(t, sub.SubmitLogin(context.Background(), detected, creds, token))

	assert.Equal(t, "/fgtauth", gotPath)
	assert.Equal(t, "alice", got.Get("username"))
	assert.Equal(t, "s3cret", got.Get("password"))
	assert.Equal(t, "0a1b2c3d", got.Get("magic"))
	assert.Equal(t, detected, got.Get("4Tredir"))
}

func TestSubmitLoginForeignHostUsesDetectedURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := NewSubmitter(srv.Client(), "gateway.known.example:1003", "https://gateway.known.example:1003/fgtauth", "https://gateway.known.example:1003/logout")

	detected := srv.URL + "/other/portal"
	err := sub.SubmitLogin(context.Background(), detected, models.Credentials{}, models.PortalToken{Magic: "m"})
	require.NoError(t, err)
	assert.Equal(t, "/other/portal", gotPath)
}

func TestSubmitLoginRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("bad magic"))
	}))
	defer srv.Close()

	gateway, err := url.Parse(srv.URL)
	require.NoError(t, err)
	sub := NewSubmitter(srv.Client(), gateway.Host, srv.URL+"/fgtauth", srv.URL+"/logout")

	err = sub.SubmitLogin(context.Background(), srv.URL+"/fgtauth?x", models.Credentials{}, models.PortalToken{Magic: "x"})
	require.Error(t, err)

	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusForbidden, rejected.StatusCode)
	assert.Equal(t, "bad magic", rejected.Body)
}

func TestLogoutSwallowsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	sub := NewSubmitter(srv.Client(), "h", srv.URL+"/fgtauth", srv.URL+"/logout")

	// Error status and, after Close, connection refusal: neither may panic
	// or propagate.
	sub.Logout(context.Background())
	srv.Close()
	sub.Logout(context.Background())
}
