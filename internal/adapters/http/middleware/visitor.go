package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"signup/internal/application/controller"
	"signup/internal/metrics"
)

// contextKey is an unexported type for context keys in this package.
type contextKey string

const visitorContextKey contextKey = "visitor"

// VisitorCookieName identifies a browser to the portal.
const VisitorCookieName = "portal_visitor"

// SecureCookies sets the Secure flag on the visitor cookie.
var SecureCookies = false

// DefaultMaxVisitors caps the store when no limit is configured.
const DefaultMaxVisitors = 10000

// Visitor is one browser and its view controller.
type Visitor struct {
	ID         string
	Controller *controller.Controller
	lastSeen   time.Time

	// returned is set once the browser sends its cookie back.
	returned bool
}

// ControllerFactory builds a fresh controller for a new visitor.
type ControllerFactory func(visitorID string) (*controller.Controller, error)

// VisitorStore is an in-memory map of visitors. Idle visitors expire and
// their controllers are closed. A visitor that never returns its cookie
// expires after the shorter first-contact ttl, and the store never holds
// more than max visitors.
type VisitorStore struct {
	mu       sync.Mutex
	visitors map[string]*Visitor
	ttl      time.Duration
	firstTTL time.Duration
	max      int
	factory  ControllerFactory
	log      *zap.Logger
	now      func() time.Time
}

// StoreOption configures a VisitorStore.
type StoreOption func(*VisitorStore)

// WithMaxVisitors caps the number of live visitors. Creating one more evicts
// the visitor idle for longest.
func WithMaxVisitors(n int) StoreOption {
	return func(vs *VisitorStore) {
		if n > 0 {
			vs.max = n
		}
	}
}

// WithFirstContactTTL sets how long a visitor that made a single request is kept.
func WithFirstContactTTL(d time.Duration) StoreOption {
	return func(vs *VisitorStore) {
		if d > 0 && d < vs.ttl {
			vs.firstTTL = d
		}
	}
}

// NewVisitorStore creates an empty store.
// PRE: ttl > 0; factory is non-nil
func NewVisitorStore(ttl time.Duration, factory ControllerFactory, log *zap.Logger, opts ...StoreOption) *VisitorStore {
	if log == nil {
		log = zap.NewNop()
	}
	vs := &VisitorStore{
		visitors: make(map[string]*Visitor),
		ttl:      ttl,
		firstTTL: ttl,
		max:      DefaultMaxVisitors,
		factory:  factory,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(vs)
	}
	return vs
}

// expired reports whether v has been idle past its ttl.
func (vs *VisitorStore) expired(v *Visitor, now time.Time) bool {
	ttl := vs.firstTTL
	if v.returned {
		ttl = vs.ttl
	}
	return now.Sub(v.lastSeen) > ttl
}

// Get retrieves a live visitor and marks it seen.
// PRE: id is non-empty
// POST: Returns the visitor if known and not expired
func (vs *VisitorStore) Get(id string) (*Visitor, bool) {
	vs.mu.Lock()
	v, ok := vs.visitors[id]
	if !ok {
		vs.mu.Unlock()
		return nil, false
	}
	if vs.expired(v, vs.now()) {
		delete(vs.visitors, id)
		metrics.ActiveVisitors.Set(float64(len(vs.visitors)))
		vs.mu.Unlock()
		vs.expire(v)
		return nil, false
	}
	v.lastSeen = vs.now()
	v.returned = true
	vs.mu.Unlock()
	return v, true
}

// Create starts a controller for a new visitor. A full store first evicts
// the visitor idle for longest.
// POST: The visitor is stored under a fresh uuid; Len() <= max
func (vs *VisitorStore) Create() (*Visitor, error) {
	id := uuid.NewString()
	c, err := vs.factory(id)
	if err != nil {
		return nil, err
	}
	v := &Visitor{ID: id, Controller: c, lastSeen: vs.now()}

	vs.mu.Lock()
	var evicted []*Visitor
	for len(vs.visitors) >= vs.max {
		oldest := vs.oldestLocked()
		delete(vs.visitors, oldest.ID)
		evicted = append(evicted, oldest)
	}
	vs.visitors[id] = v
	metrics.ActiveVisitors.Set(float64(len(vs.visitors)))
	vs.mu.Unlock()

	for _, old := range evicted {
		old.Controller.Close()
		vs.log.Warn("visitor_evicted", zap.String("visitor", old.ID), zap.Int("max", vs.max))
	}
	vs.log.Debug("visitor_created", zap.String("visitor", id))
	return v, nil
}

// oldestLocked returns the least recently seen visitor.
// PRE: vs.mu is held; the store is non-empty
func (vs *VisitorStore) oldestLocked() *Visitor {
	var oldest *Visitor
	for _, v := range vs.visitors {
		if oldest == nil || v.lastSeen.Before(oldest.lastSeen) {
			oldest = v
		}
	}
	return oldest
}

// Len returns the number of stored visitors.
func (vs *VisitorStore) Len() int {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	return len(vs.visitors)
}

// Sweep closes every visitor idle for longer than the ttl.
func (vs *VisitorStore) Sweep() int {
	vs.mu.Lock()
	var expired []*Visitor
	now := vs.now()
	for id, v := range vs.visitors {
		if vs.expired(v, now) {
			expired = append(expired, v)
			delete(vs.visitors, id)
		}
	}
	metrics.ActiveVisitors.Set(float64(len(vs.visitors)))
	vs.mu.Unlock()

	for _, v := range expired {
		vs.expire(v)
	}
	return len(expired)
}

// Run sweeps expired visitors every interval until ctx is done.
func (vs *VisitorStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			vs.Sweep()
		}
	}
}

// Close stops every controller and empties the store.
func (vs *VisitorStore) Close() {
	vs.mu.Lock()
	all := make([]*Visitor, 0, len(vs.visitors))
	for id, v := range vs.visitors {
		all = append(all, v)
		delete(vs.visitors, id)
	}
	metrics.ActiveVisitors.Set(0)
	vs.mu.Unlock()

	for _, v := range all {
		v.Controller.Close()
	}
}

func (vs *VisitorStore) expire(v *Visitor) {
	v.Controller.Close()
	vs.log.Info("visitor_expired", zap.String("visitor", v.ID))
}

// Visitors returns middleware that attaches the caller's visitor to the
// request context, creating one (and its cookie) on first contact.
func Visitors(store *VisitorStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cookie, err := r.Cookie(VisitorCookieName); err == nil && cookie.Value != "" {
				if v, ok := store.Get(cookie.Value); ok {
					next.ServeHTTP(w, r.WithContext(ContextWithVisitor(r.Context(), v)))
					return
				}
			}
			v, err := store.Create()
			if err != nil {
				store.log.Error("visitor_create_failed", zap.Error(err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}
			setVisitorCookie(w, v.ID, store.ttl)
			next.ServeHTTP(w, r.WithContext(ContextWithVisitor(r.Context(), v)))
		})
	}
}

// GetVisitorFromContext extracts the visitor from the request context.
func GetVisitorFromContext(ctx context.Context) (*Visitor, bool) {
	v, ok := ctx.Value(visitorContextKey).(*Visitor)
	return v, ok
}

// ContextWithVisitor returns a context carrying v.
func ContextWithVisitor(ctx context.Context, v *Visitor) context.Context {
	return context.WithValue(ctx, visitorContextKey, v)
}

func setVisitorCookie(w http.ResponseWriter, id string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     VisitorCookieName,
		Value:    id,
		HttpOnly: true,
		Secure:   SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
	})
}
