package intake

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(ClientConfig{BaseURL: srv.URL + "/rest/v3/"}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestAuthenticateMatchesLoginCaseInsensitively(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v3/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ACME", body["company"])
		assert.Equal(t, "Jane.Doe", body["user"])
		assert.Equal(t, "s3cret", body["password"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status":"ok","data":{"token":"tok-1"}}`)
	})
	mux.HandleFunc("/rest/v3/users", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"users":[{"id":7,"login":"john"},{"id":"42","login":"jane.doe"}]}}`)
	})

	c := newTestClient(t, mux)
	sess, err := c.Authenticate(context.Background(), "ACME", "Jane.Doe", "s3cret")
	require.NoError(t, err)
	require.Equal(t, Session{Token: "tok-1", UserID: "42"}, sess)
}

func TestAuthenticateUnknownUser(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/rest/v3/login", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"token":"tok-1"}}`)
	})
	mux.HandleFunc("/rest/v3/users", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"users":[{"id":7,"login":"john"}]}}`)
	})

	c := newTestClient(t, mux)
	_, err := c.Authenticate(context.Background(), "ACME", "jane", "pw")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLoginRejected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"status":"error","message":"bad credentials"}`)
	}))
	_, err := c.Login(context.Background(), "ACME", "jane", "nope")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestPostMediaSendsRawBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v3/forms/228400/medias/secavis_1.jpg", r.URL.Path)
		assert.Equal(t, "tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{0xff, 0xd8}, body)
		w.WriteHeader(http.StatusOK)
	}))
	require.NoError(t, c.PostMedia(context.Background(), "tok", "228400", "secavis_1.jpg", []byte{0xff, 0xd8}))
}

func TestPushFieldsPayload(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/v3/forms/228400/push", r.URL.Path)
		var body struct {
			Recipient string `json:"recipient_user_id"`
			Fields    Fields `json:"fields"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "42", body.Recipient)
		assert.Equal(t, "DUPONT", body.Fields[FieldLastName].Value)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	err := c.PushFields(context.Background(), "tok", "228400", "42", Fields{FieldLastName: {Value: "DUPONT"}})
	require.Error(t, err)
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(ClientConfig{}, nil)
	require.Error(t, err)
	_, err = NewClient(ClientConfig{BaseURL: "not a url"}, nil)
	require.Error(t, err)
}
