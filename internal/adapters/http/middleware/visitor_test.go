package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"signup/internal/adapters/backend"
	"signup/internal/adapters/backend/backendtest"
	"signup/internal/application/controller"
)

func newTestStore(t *testing.T, ttl time.Duration, opts ...StoreOption) (*VisitorStore, *atomic.Int64) {
	t.Helper()
	fake := backendtest.Default()
	t.Cleanup(fake.Close)

	var created atomic.Int64
	store := NewVisitorStore(ttl, func(string) (*controller.Controller, error) {
		created.Add(1)
		client, err := backend.NewClient(fake.URL, time.Second, zap.NewNop())
		if err != nil {
			return nil, err
		}
		return controller.New(client, controller.DefaultConfig()), nil
	}, zap.NewNop(), opts...)
	t.Cleanup(store.Close)
	return store, &created
}

// TestVisitorsMiddleware tests cookie issue and reuse.
func TestVisitorsMiddleware(t *testing.T) {
	store, created := newTestStore(t, time.Hour)
	var seen []string
	handler := Visitors(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, ok := GetVisitorFromContext(r.Context())
		require.True(t, ok)
		seen = append(seen, v.ID)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest("GET", "/", nil))
	cookies := first.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, VisitorCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	again := httptest.NewRequest("GET", "/", nil)
	again.AddCookie(cookies[0])
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, again)

	assert.Empty(t, second.Result().Cookies(), "known visitor keeps its cookie")
	require.Len(t, seen, 2)
	assert.Equal(t, seen[0], seen[1])
	assert.Equal(t, int64(1), created.Load())
}

// TestVisitorsMiddleware_UnknownCookie tests that a stale cookie gets a new visitor.
func TestVisitorsMiddleware_UnknownCookie(t *testing.T) {
	store, created := newTestStore(t, time.Hour)
	handler := Visitors(store)(okHandler)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: VisitorCookieName, Value: "gone"})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Len(t, rr.Result().Cookies(), 1)
	assert.NotEqual(t, "gone", rr.Result().Cookies()[0].Value)
	assert.Equal(t, int64(1), created.Load())
}

// TestVisitorsMiddleware_FactoryError tests the 500 path.
func TestVisitorsMiddleware_FactoryError(t *testing.T) {
	store := NewVisitorStore(time.Hour, func(string) (*controller.Controller, error) {
		return nil, errors.New("no backend")
	}, zap.NewNop())
	rr := httptest.NewRecorder()
	Visitors(store)(okHandler).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

// TestVisitorStoreExpiry tests that idle visitors are swept and closed.
func TestVisitorStoreExpiry(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	idle, err := store.Create()
	require.NoError(t, err)
	fresh, err := store.Create()
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	_, ok := store.Get(fresh.ID)
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 1, store.Len())

	select {
	case <-idle.Controller.Done():
	default:
		t.Fatal("expired controller was not closed")
	}

	_, ok = store.Get(idle.ID)
	assert.False(t, ok)
}

// TestVisitorStoreGetExpired tests lazy expiry on lookup.
func TestVisitorStoreGetExpired(t *testing.T) {
	store, _ := newTestStore(t, time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	v, err := store.Create()
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, ok := store.Get(v.ID)
	assert.False(t, ok)
	assert.Zero(t, store.Len())
}

// TestVisitorsMiddleware_CapsCookielessClients tests that clients which never
// send the cookie back cannot grow the store past its cap.
func TestVisitorsMiddleware_CapsCookielessClients(t *testing.T) {
	store, created := newTestStore(t, time.Hour, WithMaxVisitors(5))
	now := time.Now()
	store.now = func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
	var seen []*Visitor
	handler := Visitors(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := GetVisitorFromContext(r.Context())
		seen = append(seen, v)
	}))

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	first := seen[0]

	assert.Equal(t, int64(50), created.Load())
	assert.Equal(t, 5, store.Len())
	select {
	case <-first.Controller.Done():
	case <-time.After(time.Second):
		t.Fatal("evicted controller was not closed")
	}
}

// TestVisitorStoreEvictsLeastRecentlySeen tests that a full store keeps active visitors.
func TestVisitorStoreEvictsLeastRecentlySeen(t *testing.T) {
	store, _ := newTestStore(t, time.Hour, WithMaxVisitors(2))
	now := time.Now()
	store.now = func() time.Time { return now }

	a, err := store.Create()
	require.NoError(t, err)
	now = now.Add(time.Second)
	b, err := store.Create()
	require.NoError(t, err)
	now = now.Add(time.Second)
	_, ok := store.Get(a.ID)
	require.True(t, ok)

	now = now.Add(time.Second)
	c, err := store.Create()
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
	_, ok = store.Get(b.ID)
	assert.False(t, ok, "least recently seen visitor is evicted")
	_, ok = store.Get(a.ID)
	assert.True(t, ok)
	_, ok = store.Get(c.ID)
	assert.True(t, ok)
}

// TestVisitorStoreFirstContactTTL tests that one-shot visitors expire early
// while returning visitors keep the full ttl.
func TestVisitorStoreFirstContactTTL(t *testing.T) {
	store, _ := newTestStore(t, time.Hour, WithFirstContactTTL(time.Minute))
	now := time.Now()
	store.now = func() time.Time { return now }

	oneShot, err := store.Create()
	require.NoError(t, err)
	returning, err := store.Create()
	require.NoError(t, err)
	_, ok := store.Get(returning.ID)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())

	select {
	case <-oneShot.Controller.Done():
	default:
		t.Fatal("one-shot controller was not closed")
	}
	_, ok = store.Get(returning.ID)
	assert.True(t, ok)
}
