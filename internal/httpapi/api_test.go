package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licensedesk/internal/artifact"
	"licensedesk/internal/domain"
	"licensedesk/internal/license"
	"licensedesk/internal/usecase"
)

type memStore struct {
	mu      sync.Mutex
	records []domain.LicenseRecord
	nextID  int64
}

func (m *memStore) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) InsertAll(ctx context.Context, records []*domain.LicenseRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range records {
		m.nextID++
		rec.ID = m.nextID
		m.records = append(m.records, *rec)
	}
	return nil
}

func (m *memStore) ListAll(ctx context.Context) ([]domain.LicenseRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.LicenseRecord, len(m.records))
	copy(out, m.records)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *memStore) Count(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.records)), nil
}

func newTestAPI() (*API, *memStore) {
	store := &memStore{}
	logger := slog.New(slog.DiscardHandler)
	guard := license.NewGuard(license.NewGenerator().Generate, license.DefaultMaxAttempts)
	svc := usecase.NewIssuanceService(store, guard, nil, logger)
	renderer := artifact.NewRenderer("License certificate", "licensedesk", 128)
	return New(svc, renderer, nil, logger), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	api, _ := newTestAPI()
	w := doJSON(t, api.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}

func TestIssueAnonymous(t *testing.T) {
	api, store := newTestAPI()

	w := doJSON(t, api.Handler(), http.MethodPost, "/v1/issue", issueRequest{})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp licenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.ID)
	assert.True(t, license.IsWellFormed(resp.Key))
	assert.Empty(t, resp.HolderName)

	n, _ := store.Count(context.Background())
	assert.Equal(t, int64(1), n)
}

func TestIssueWithHolder(t *testing.T) {
	api, _ := newTestAPI()

	w := doJSON(t, api.Handler(), http.MethodPost, "/v1/issue", issueRequest{
		HolderName:  "Ada Lovelace",
		HolderPhone: "+44 20 7946 0321",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp licenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Ada Lovelace", resp.HolderName)
}

func TestIssueRejectsBadPhone(t *testing.T) {
	api, store := newTestAPI()

	w := doJSON(t, api.Handler(), http.MethodPost, "/v1/issue", issueRequest{
		HolderName:  "Bob",
		HolderPhone: "12",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	n, _ := store.Count(context.Background())
	assert.Zero(t, n)
}

func TestIssueRejectsMalformedJSON(t *testing.T) {
	api, _ := newTestAPI()

	req := httptest.NewRequest(http.MethodPost, "/v1/issue", strings.NewReader("{nope"))
	w := httptest.NewRecorder()
	api.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIssueBatch(t *testing.T) {
	api, store := newTestAPI()

	w := doJSON(t, api.Handler(), http.MethodPost, "/v1/issue-batch", issueBatchRequest{Count: 5})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp []licenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 5)

	keys := make(map[string]struct{})
	for _, r := range resp {
		keys[r.Key] = struct{}{}
	}
	assert.Len(t, keys, 5)

	n, _ := store.Count(context.Background())
	assert.Equal(t, int64(5), n)
}

func TestIssueBatchRejectsZeroCount(t *testing.T) {
	api, _ := newTestAPI()
	w := doJSON(t, api.Handler(), http.MethodPost, "/v1/issue-batch", issueBatchRequest{Count: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListLicenses(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	for i := 0; i < 3; i++ {
		doJSON(t, handler, http.MethodPost, "/v1/issue", issueRequest{})
	}

	w := doJSON(t, handler, http.MethodGet, "/v1/licenses", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []licenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 3)
	for i := 1; i < len(resp); i++ {
		assert.False(t, resp[i].CreatedAt.After(resp[i-1].CreatedAt))
	}
}

func TestArtifactEndpoint(t *testing.T) {
	api, _ := newTestAPI()
	handler := api.Handler()

	w := doJSON(t, handler, http.MethodPost, "/v1/issue", issueRequest{})
	require.Equal(t, http.StatusCreated, w.Code)
	var resp licenseResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = doJSON(t, handler, http.MethodGet, "/v1/licenses/"+resp.Key+"/artifact.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("content-type"))

	pngMagic := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	body := w.Body.Bytes()
	require.Greater(t, len(body), len(pngMagic))
	assert.Equal(t, pngMagic, body[:len(pngMagic)])
}

func TestArtifactUnknownKey(t *testing.T) {
	api, _ := newTestAPI()
	w := doJSON(t, api.Handler(), http.MethodGet, "/v1/licenses/AAAAA-AAAAA-AAAAA-AAAA1/artifact.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
