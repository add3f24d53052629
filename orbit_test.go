package orbit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginInstallsToken(t *testing.T) {
	var gotBody LoginOptions
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"ok":true,"data":{"token":"tok-123","user":{"id":5,"username":"ada"}}}`))
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	auth, err := client.Account.Login(context.Background(), &LoginOptions{Identifier: "ada", Password: "pw"})
	require.NoError(t, err)

	assert.Equal(t, "ada", gotBody.Identifier)
	assert.Equal(t, "tok-123", auth.Token)
	assert.Equal(t, int64(5), auth.User.ID)
	assert.Equal(t, "tok-123", client.token, "login installs the token for subsequent requests")
}

func TestMeSendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.Write([]byte(`{"ok":true,"data":{"id":5,"username":"ada","email":"ada@example.com"}}`))
	}))
	defer srv.Close()

	client := NewClient("tok-123", WithBaseURL(srv.URL))
	me, err := client.Account.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), me.ID)
	assert.Equal(t, "ada", me.Username)
}

func TestErrorEnvelopeSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"error":{"code":"unauthorized","message":"token expired"}}`))
	}))
	defer srv.Close()

	client := NewClient("stale", WithBaseURL(srv.URL))
	_, err := client.Account.Me(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "unauthorized", apiErr.Code)
}

func TestSendPrivateOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "POST", r.Method)
		require.Equal(t, "/api/messages/42", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["content"])
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient("tok", WithBaseURL(srv.URL))
	res, err := client.Messages.SendPrivate(context.Background(), 42, "hello")
	require.NoError(t, err)
	assert.True(t, res.OK)
}

func TestPaginationQueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Equal(t, "50", r.URL.Query().Get("offset"))
		w.Write([]byte(`{"ok":true,"data":[]}`))
	}))
	defer srv.Close()

	client := NewClient("tok", WithBaseURL(srv.URL))
	res, err := client.Messages.History(context.Background(), 2, &PaginationOptions{Limit: 25, Offset: 50})
	require.NoError(t, err)
	assert.True(t, res.OK)
}
