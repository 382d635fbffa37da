package waitlist

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shiploop/shiploop-api/internal/database"
	"github.com/shiploop/shiploop-api/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStores(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := NewFileStore(filepath.Join(t.TempDir(), "waitlist.json"))
	require.NoError(t, err)

	db, err := database.NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"file":   fs,
		"sqlite": NewSQLStore(database.NewRepository(db)),
	}
}

func newRouter(svc *Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/waitlist", svc.HandleJoin())
	r.GET("/api/waitlist", svc.HandleCount())
	r.GET("/api/admin/waitlist", svc.HandleAdminList())
	r.PATCH("/api/admin/waitlist", svc.HandleAdminInvite())
	return r
}

func do(r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestValidEmail(t *testing.T) {
	tests := []struct {
		email string
		want  bool
	}{
		{"maker@shiploop.dev", true},
		{"a.b+c@sub.example.io", true},
		{"not-an-email", false},
		{"missing@tld", false},
		{"spa ce@x.io", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidEmail(tt.email))
		})
	}
}

func TestJoinFlow(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			metrics := monitoring.NewMetrics()
			r := newRouter(NewService(store, metrics))

			w, body := do(r, http.MethodPost, "/api/waitlist", gin.H{"email": "first@x.io"})
			require.Equal(t, http.StatusCreated, w.Code)
			assert.EqualValues(t, 1, body["position"])

			w, body = do(r, http.MethodPost, "/api/waitlist", gin.H{"email": "second@x.io", "source": "twitter"})
			require.Equal(t, http.StatusCreated, w.Code)
			assert.EqualValues(t, 2, body["position"])

			// duplicate after normalization
			w, body = do(r, http.MethodPost, "/api/waitlist", gin.H{"email": "  FIRST@X.io "})
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, true, body["alreadyExists"])
			assert.EqualValues(t, 1, body["position"])

			w, body = do(r, http.MethodPost, "/api/waitlist", gin.H{"email": "not-an-email"})
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, body["error"])

			w, body = do(r, http.MethodGet, "/api/waitlist", nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.EqualValues(t, 2, body["count"])

			assert.EqualValues(t, 2, metrics.GetDomainStats()["waitlist_signups"])
		})
	}
}

func TestAdminInvite(t *testing.T) {
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			svc := NewService(store, nil)
			r := newRouter(svc)
			ctx := context.Background()

			for _, email := range []string{"a@x.io", "b@x.io", "c@x.io"} {
				_, err := svc.Join(ctx, email, "")
				require.NoError(t, err)
			}

			w, body := do(r, http.MethodPatch, "/api/admin/waitlist", gin.H{"emails": []string{"A@x.io", "c@x.io", "ghost@x.io"}})
			require.Equal(t, http.StatusOK, w.Code)
			assert.EqualValues(t, 2, body["updated"])

			// already invited entries are not counted again
			updated, err := svc.Invite(ctx, []string{"a@x.io"})
			require.NoError(t, err)
			assert.Zero(t, updated)

			w, body = do(r, http.MethodGet, "/api/admin/waitlist?invited=false", nil)
			require.Equal(t, http.StatusOK, w.Code)
			assert.EqualValues(t, 1, body["count"])

			invited := true
			entries, err := svc.List(ctx, &invited)
			require.NoError(t, err)
			require.Len(t, entries, 2)
			assert.Equal(t, "a@x.io", entries[0].Email)
			assert.NotNil(t, entries[0].InvitedAt)

			w, _ = do(r, http.MethodGet, "/api/admin/waitlist?invited=maybe", nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			w, _ = do(r, http.MethodPatch, "/api/admin/waitlist", gin.H{"emails": []string{" "}})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestFileStoreConcurrentJoins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "waitlist.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	svc := NewService(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Join(context.Background(), string(rune('a'+i))+"@x.io", "")
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := svc.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk []Entry
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Len(t, onDisk, 20)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".waitlist-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "waitlist.json"))
	require.NoError(t, err)

	n, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	entries, err := store.List(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	updated, err := store.MarkInvited(context.Background(), []string{"x@y.io"}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, updated)
}
