package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncgate/tokenserver/api"
	"github.com/syncgate/tokenserver/issuer"
	"github.com/syncgate/tokenserver/storage"
	"github.com/syncgate/tokenserver/storage/memory"
)

const (
	testAuthSecret = "test-auth-secret"
	testAdminToken = "test-admin-token"
)

type testServer struct {
	srv  *httptest.Server
	repo storage.Repository
	iss  *issuer.Issuer
}

func setupServer(t *testing.T, opts ...api.Option) *testServer {
	t.Helper()
	repo := memory.NewRepository()

	secrets, err := issuer.NewSecrets([]byte("test-master-secret"), []byte("test-hash-secret"))
	require.NoError(t, err)
	iss := issuer.New(repo, secrets, "api.accounts.example.com",
		issuer.WithClock(func() time.Time { return time.Unix(1_725_148_800, 0) }))

	verifier, err := api.NewHMACVerifier([]byte(testAuthSecret))
	require.NoError(t, err)

	opts = append([]api.Option{api.WithAdminToken(testAdminToken)}, opts...)
	a := api.New(repo, iss, verifier, opts...)
	r := chi.NewRouter()
	r.Mount("/", a.Router())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, repo: repo, iss: iss}
}

func (ts *testServer) seedAssignment(t *testing.T, accountID string, asg *storage.Assignment) {
	t.Helper()
	require.NoError(t, ts.repo.PutAssignment(t.Context(), ts.iss.LookupKey(accountID), asg))
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&reqBody).Encode(body))
	}
	req, err := http.NewRequestWithContext(t.Context(), method, url, &reqBody)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func bearer(t *testing.T, claims api.Claims) map[string]string {
	t.Helper()
	cred, err := api.SignCredential(claims, []byte(testAuthSecret))
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + cred}
}

func ptr[T any](v T) *T { return &v }

func TestGetToken(t *testing.T) {
	ts := setupServer(t)
	ts.seedAssignment(t, "user@example.com", &storage.Assignment{
		Node:          "https://node7.sync.example.com",
		UID:           42,
		ClientState:   []byte{0x01, 0x02},
		KeysChangedAt: ptr(uint64(9)),
		Generation:    4,
	})

	resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil,
		bearer(t, api.Claims{AccountID: "user@example.com", Generation: 4}))
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result issuer.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.NotEmpty(t, result.ID)
	assert.NotEmpty(t, result.Key)
	assert.Equal(t, int64(42), result.UID)
	assert.Equal(t, "https://node7.sync.example.com/1.5/42", result.APIEndpoint)
	assert.Equal(t, uint64(3600), result.Duration)
	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), result.HashedAccountID)
}

func TestGetTokenAuthFailures(t *testing.T) {
	ts := setupServer(t)

	cases := []struct {
		name    string
		headers map[string]string
	}{
		{"NoHeader", nil},
		{"WrongScheme", map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}},
		{"Garbage", map[string]string{"Authorization": "Bearer not.a.credential"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil, tc.headers)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}

	t.Run("WrongKey", func(t *testing.T) {
		cred, err := api.SignCredential(api.Claims{AccountID: "user@example.com"}, []byte("other-secret"))
		require.NoError(t, err)
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil,
			map[string]string{"Authorization": "Bearer " + cred})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestGetTokenUnknownAccount(t *testing.T) {
	ts := setupServer(t)

	resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil,
		bearer(t, api.Claims{AccountID: "nobody@example.com"}))
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The body must not echo the account identifier.
	var body api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "unknown account", body.Error)
	assert.NotContains(t, body.Error, "nobody")
}

func TestGetTokenClientState(t *testing.T) {
	ts := setupServer(t)
	ts.seedAssignment(t, "user@example.com", &storage.Assignment{
		Node:        "https://node7.sync.example.com",
		UID:         42,
		ClientState: []byte{0x01, 0x02},
	})

	t.Run("Match", func(t *testing.T) {
		headers := bearer(t, api.Claims{AccountID: "user@example.com"})
		headers["X-Client-State"] = "0102"
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil, headers)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("Mismatch", func(t *testing.T) {
		headers := bearer(t, api.Claims{AccountID: "user@example.com"})
		headers["X-Client-State"] = "0ff0"
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil, headers)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("BadEncoding", func(t *testing.T) {
		headers := bearer(t, api.Claims{AccountID: "user@example.com"})
		headers["X-Client-State"] = "zz"
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil, headers)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestGetTokenDuration(t *testing.T) {
	ts := setupServer(t, api.WithMaxDuration(7200))
	ts.seedAssignment(t, "user@example.com", &storage.Assignment{
		Node: "https://node7.sync.example.com",
		UID:  42,
	})

	request := func(t *testing.T, query string) *http.Response {
		t.Helper()
		return doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5"+query, nil,
			bearer(t, api.Claims{AccountID: "user@example.com"}))
	}

	t.Run("Default", func(t *testing.T) {
		resp := request(t, "")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var result issuer.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, uint64(3600), result.Duration)
	})

	t.Run("Explicit", func(t *testing.T) {
		resp := request(t, "?duration=600")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var result issuer.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, uint64(600), result.Duration)
	})

	t.Run("Clamped", func(t *testing.T) {
		resp := request(t, "?duration=999999")
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var result issuer.Result
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, uint64(7200), result.Duration)
	})

	t.Run("Zero", func(t *testing.T) {
		resp := request(t, "?duration=0")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("NotANumber", func(t *testing.T) {
		resp := request(t, "?duration=soon")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func adminHeaders() map[string]string {
	return map[string]string{"X-Admin-Token": testAdminToken}
}

func TestAdminAssignmentCRUD(t *testing.T) {
	ts := setupServer(t)

	resp := doJSON(t, http.MethodPut, ts.srv.URL+"/admin/v1/assignments/user@example.com",
		api.PutAssignmentRequest{
			Node:          "https://node7.sync.example.com",
			UID:           42,
			ClientState:   "AQI",
			KeysChangedAt: ptr(uint64(9)),
			Generation:    4,
		}, adminHeaders())
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.srv.URL+"/admin/v1/assignments/user@example.com", nil, adminHeaders())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got api.AssignmentResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "https://node7.sync.example.com", got.Node)
	assert.Equal(t, int64(42), got.UID)
	assert.Equal(t, "AQI", got.ClientState)
	require.NotNil(t, got.KeysChangedAt)
	assert.Equal(t, uint64(9), *got.KeysChangedAt)
	assert.Equal(t, uint64(4), got.Generation)

	resp = doJSON(t, http.MethodGet, ts.srv.URL+"/admin/v1/assignments", nil, adminHeaders())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list api.ListAssignmentsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, []string{"user@example.com@api.accounts.example.com"}, list.Assignments)

	resp = doJSON(t, http.MethodDelete, ts.srv.URL+"/admin/v1/assignments/user@example.com", nil, adminHeaders())
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, http.MethodGet, ts.srv.URL+"/admin/v1/assignments/user@example.com", nil, adminHeaders())
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAdminValidation(t *testing.T) {
	ts := setupServer(t)

	t.Run("MissingNode", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, ts.srv.URL+"/admin/v1/assignments/user@example.com",
			api.PutAssignmentRequest{UID: 42}, adminHeaders())
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("BadClientState", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, ts.srv.URL+"/admin/v1/assignments/user@example.com",
			api.PutAssignmentRequest{Node: "https://node7.sync.example.com", ClientState: "!!!"}, adminHeaders())
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("UnknownField", func(t *testing.T) {
		resp := doJSON(t, http.MethodPut, ts.srv.URL+"/admin/v1/assignments/user@example.com",
			map[string]any{"node": "https://node7.sync.example.com", "bogus": true}, adminHeaders())
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestAdminAuth(t *testing.T) {
	t.Run("WrongToken", func(t *testing.T) {
		ts := setupServer(t)
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/admin/v1/assignments", nil,
			map[string]string{"X-Admin-Token": "wrong"})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("MissingToken", func(t *testing.T) {
		ts := setupServer(t)
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/admin/v1/assignments", nil, nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("Disabled", func(t *testing.T) {
		ts := setupServer(t, api.WithAdminToken(""))
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/admin/v1/assignments", nil, adminHeaders())
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestHeartbeat(t *testing.T) {
	ts := setupServer(t, api.WithVersion("1.2.3"))

	resp := doJSON(t, http.MethodGet, ts.srv.URL+"/__heartbeat__", nil, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hb api.HeartbeatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hb))
	assert.Equal(t, "Ok", hb.Status)
	assert.Equal(t, "Ok", hb.Database)
	assert.Equal(t, "1.2.3", hb.Version)

	resp = doJSON(t, http.MethodGet, ts.srv.URL+"/__lbheartbeat__", nil, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

type failingCheckRepo struct {
	storage.Repository
}

func (failingCheckRepo) Check(context.Context) error {
	return errors.New("connection refused")
}

func TestHeartbeatStoreFailure(t *testing.T) {
	repo := failingCheckRepo{memory.NewRepository()}

	secrets, err := issuer.NewSecrets([]byte("m"), []byte("h"))
	require.NoError(t, err)
	verifier, err := api.NewHMACVerifier([]byte(testAuthSecret))
	require.NoError(t, err)
	a := api.New(repo, issuer.New(repo, secrets, "example.com"), verifier)
	srv := httptest.NewServer(a.Router())
	t.Cleanup(srv.Close)

	resp := doJSON(t, http.MethodGet, srv.URL+"/__heartbeat__", nil, nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var hb api.HeartbeatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hb))
	assert.Equal(t, "Err", hb.Status)
	assert.Equal(t, "Err", hb.Database)
}

func TestSecurityHeaders(t *testing.T) {
	ts := setupServer(t)

	resp := doJSON(t, http.MethodGet, ts.srv.URL+"/__lbheartbeat__", nil, nil)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
	assert.NotEmpty(t, resp.Header.Get("Content-Security-Policy"))
}

func TestAlertOnRepeatedAuthFailures(t *testing.T) {
	var mu sync.Mutex
	var alerts []api.AlertEvent
	ts := setupServer(t, api.WithAlertFunc(func(e api.AlertEvent) {
		mu.Lock()
		alerts = append(alerts, e)
		mu.Unlock()
	}))

	// The default threshold is 50 rejected credentials inside a minute.
	for i := 0; i < 50; i++ {
		resp := doJSON(t, http.MethodGet, ts.srv.URL+"/1.0/sync/1.5", nil,
			map[string]string{"Authorization": "Bearer bogus.credential"})
		resp.Body.Close()
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, alerts)
	assert.Equal(t, api.AlertAuthFailureSpike, alerts[0].Type)
}
