// Package controller holds the per-visitor activity view controller.
//
// A Controller owns the visitor's session, catalog snapshot, modal state and
// messages. All of that state lives on one goroutine (the loop); every change
// is an event executed there, so no locks guard it. Backend calls run on their
// own goroutines and post their results back to the loop, which keeps the
// controller responsive while a request is outstanding.
//
// Catalog fetches are numbered. A response is applied only if it is newer than
// the last applied one, so an overtaken fetch can never roll the view back.
package controller

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"signup/internal/application/orchestrators"
	"signup/internal/application/projections"
	"signup/internal/domain/activity"
	"signup/internal/domain/banner"
	"signup/internal/domain/modal"
	"signup/internal/domain/session"
	"signup/internal/metrics"
)

// ErrClosed is returned when waiting on a controller that has been closed.
var ErrClosed = errors.New("view controller closed")

// Messages that do not come from the backend.
const (
	loginRequiredText   = "Teachers must log in to register students"
	loginSuccessText    = "Login successful"
	genericFailureText  = "An error occurred"
	unknownActivityText = "Activity not found"
)

// Backend is everything the controller needs from the activities API.
type Backend interface {
	orchestrators.BackendForStatus
	orchestrators.BackendForLogin
	orchestrators.BackendForLogout
	orchestrators.BackendForRoster
	projections.CatalogBackend
}

// Config holds the auto-dismiss delays.
type Config struct {
	BannerTTL          time.Duration
	LoginCloseDelay    time.Duration
	RegisterCloseDelay time.Duration
}

// DefaultConfig returns the delays used by the portal.
func DefaultConfig() Config {
	return Config{
		BannerTTL:          5 * time.Second,
		LoginCloseDelay:    time.Second,
		RegisterCloseDelay: 1500 * time.Millisecond,
	}
}

// Timer is the part of *time.Timer the controller uses.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it once wrapped.
type AfterFunc func(d time.Duration, f func()) Timer

// Option customises a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTimers replaces the clock and timer factory. Tests use it to fire
// dismissals by hand.
func WithTimers(now func() time.Time, after AfterFunc) Option {
	return func(c *Controller) {
		c.now = now
		c.after = after
	}
}

// View is an immutable snapshot of what the visitor should see.
type View struct {
	Session       session.Session
	Catalog       activity.Catalog
	CatalogLoaded bool
	CatalogError  string
	Modal         modal.State
	ModalMessage  banner.Message
	Banner        banner.Message
	// DismissIn is the time until the earliest scheduled dismissal, or 0.
	DismissIn time.Duration
	// ModalCloseIn is the time until the open modal closes itself, or 0.
	ModalCloseIn time.Duration
	Revision     uint64
}

// dismissal is a cancellable scheduled hide. gen increases on every cancel so
// a timer that already fired but has not been processed is ignored.
type dismissal struct {
	timer Timer
	gen   uint64
	due   time.Time
}

func (d *dismissal) cancel() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.due = time.Time{}
}

type state struct {
	view       View
	fetchSeq   uint64
	appliedSeq uint64
	bannerHide dismissal
	modalClose dismissal
}

func (st *state) changed() { st.view.Revision++ }

// knownActivity reports whether name is in the last applied catalog. Until a
// catalog has loaded successfully every name is let through to the backend.
func (st *state) knownActivity(name string) bool {
	if !st.view.CatalogLoaded || st.view.CatalogError != "" {
		return true
	}
	_, err := st.view.Catalog.Lookup(name)
	return !errors.Is(err, activity.ErrUnknownActivity)
}

// Controller is one visitor's activity view controller.
type Controller struct {
	backend Backend
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
	after   AfterFunc

	ctx       context.Context
	cancel    context.CancelFunc
	events    chan func(*state)
	done      chan struct{}
	ready     <-chan struct{}
	closeOnce sync.Once
}

// New starts a controller and its initial load: a session check followed by
// a catalog fetch. Ready reports when that load has been applied.
func New(b Backend, cfg Config, opts ...Option) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		backend: b,
		cfg:     cfg,
		log:     zap.NewNop(),
		now:     time.Now,
		after: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		ctx:    ctx,
		cancel: cancel,
		events: make(chan func(*state), 64),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.loop()
	c.ready = c.command(func(st *state, finish func()) {
		c.async(func(ctx context.Context) func(*state) {
			sess := orchestrators.ExecuteCheckStatus(ctx, orchestrators.CheckStatusDeps{Backend: c.backend, Log: c.log})
			return func(st *state) {
				c.setSession(st, sess, finish)
			}
		})
	})
	return c
}

// Ready is closed once the initial session check and catalog fetch are applied.
func (c *Controller) Ready() <-chan struct{} { return c.ready }

// Done is closed when the controller has stopped.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Close stops the loop, cancels in-flight calls and pending dismissals.
func (c *Controller) Close() {
	c.closeOnce.Do(c.cancel)
	<-c.done
}

// Wait blocks until ch is closed, the context ends, or the controller stops.
func (c *Controller) Wait(ctx context.Context, ch <-chan struct{}) error {
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClosed
	}
}

// Snapshot returns the current view.
func (c *Controller) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	ok := c.post(func(st *state) {
		v := st.view
		now := c.now()
		v.DismissIn = st.dismissIn(now)
		v.ModalCloseIn = st.modalClose.left(now)
		reply <- v
	})
	if !ok {
		return View{}, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-c.done:
		return View{}, ErrClosed
	}
}

// Refresh refetches the catalog.
func (c *Controller) Refresh() <-chan struct{} {
	return c.command(func(st *state, finish func()) {
		c.refresh(st, finish)
	})
}

// Login authenticates a teacher. Success shows the backend message in the
// login modal, closes it after LoginCloseDelay and refetches the catalog.
// Failure shows a banner and leaves the session untouched.
func (c *Controller) Login(email, password string) <-chan struct{} {
	input := orchestrators.LoginInput{Email: email, Password: password}
	return c.command(func(st *state, finish func()) {
		c.async(func(ctx context.Context) func(*state) {
			res, err := orchestrators.ExecuteLogin(ctx, input, orchestrators.LoginDeps{Backend: c.backend, Log: c.log})
			return func(st *state) {
				if err != nil {
					c.showBanner(st, banner.Error(orchestrators.LoginFailureMessage(err)))
					finish()
					return
				}
				msg := res.Message
				if msg == "" {
					msg = loginSuccessText
				}
				if st.view.Modal.IsLogin() {
					c.showModalMessage(st, banner.Success(msg), c.cfg.LoginCloseDelay)
				} else {
					c.showBanner(st, banner.Success(msg))
				}
				c.setSession(st, res.Session, finish)
			}
		})
	})
}

// Logout ends the teacher session and refetches the catalog.
func (c *Controller) Logout() <-chan struct{} {
	return c.command(func(st *state, finish func()) {
		c.async(func(ctx context.Context) func(*state) {
			err := orchestrators.ExecuteLogout(ctx, orchestrators.LogoutDeps{Backend: c.backend, Log: c.log})
			return func(st *state) {
				if err != nil {
					c.showBanner(st, banner.Error(orchestrators.LogoutFailureMessage(err)))
					finish()
					return
				}
				st.modalClose.cancel()
				st.view.Modal = st.view.Modal.Close()
				st.view.ModalMessage = banner.Message{}
				c.setSession(st, session.Anonymous(), finish)
			}
		})
	})
}

// Register signs a student up. Success refetches the catalog exactly once and
// closes the register modal after RegisterCloseDelay; failure shows a banner
// and does not refetch.
func (c *Controller) Register(activityName, email string) <-chan struct{} {
	input := orchestrators.RosterInput{Activity: activityName, Email: email}
	return c.command(func(st *state, finish func()) {
		if !st.view.Session.Authenticated {
			c.showBanner(st, banner.Error(loginRequiredText))
			finish()
			return
		}
		if !st.knownActivity(activityName) {
			c.showBanner(st, banner.Error(unknownActivityText))
			finish()
			return
		}
		c.async(func(ctx context.Context) func(*state) {
			msg, err := orchestrators.ExecuteRegisterStudent(ctx, input, orchestrators.RosterDeps{Backend: c.backend, Log: c.log})
			return func(st *state) {
				if err != nil {
					c.showBanner(st, banner.Error(orchestrators.RegisterFailureMessage(err)))
					finish()
					return
				}
				if st.view.Modal.IsRegister() {
					c.showModalMessage(st, banner.Success(msg), c.cfg.RegisterCloseDelay)
				} else {
					c.showBanner(st, banner.Success(msg))
				}
				c.refresh(st, finish)
			}
		})
	})
}

// Unregister removes a student. Success shows a banner and refetches;
// failure shows a banner and keeps the last good catalog.
func (c *Controller) Unregister(activityName, email string) <-chan struct{} {
	input := orchestrators.RosterInput{Activity: activityName, Email: email}
	return c.command(func(st *state, finish func()) {
		if !st.view.Session.Authenticated {
			c.showBanner(st, banner.Error(loginRequiredText))
			finish()
			return
		}
		c.async(func(ctx context.Context) func(*state) {
			msg, err := orchestrators.ExecuteUnregisterStudent(ctx, input, orchestrators.RosterDeps{Backend: c.backend, Log: c.log})
			return func(st *state) {
				if err != nil {
					c.showBanner(st, banner.Error(orchestrators.UnregisterFailureMessage(err)))
					finish()
					return
				}
				c.showBanner(st, banner.Success(msg))
				c.refresh(st, finish)
			}
		})
	})
}

// OpenLogin shows the login modal, replacing any other modal.
func (c *Controller) OpenLogin() <-chan struct{} {
	return c.command(func(st *state, finish func()) {
		st.modalClose.cancel()
		st.view.Modal = st.view.Modal.OpenLogin()
		st.view.ModalMessage = banner.Message{}
		st.changed()
		finish()
	})
}

// OpenRegister shows the register modal for an activity.
func (c *Controller) OpenRegister(activityName string) <-chan struct{} {
	return c.command(func(st *state, finish func()) {
		next, err := st.view.Modal.OpenRegister(activityName, st.view.Session.Authenticated)
		if err != nil {
			text := genericFailureText
			if errors.Is(err, modal.ErrNotAuthenticated) {
				text = loginRequiredText
			}
			c.showBanner(st, banner.Error(text))
			finish()
			return
		}
		if !st.knownActivity(activityName) {
			c.showBanner(st, banner.Error(unknownActivityText))
			finish()
			return
		}
		st.modalClose.cancel()
		st.view.Modal = next
		st.view.ModalMessage = banner.Message{}
		st.changed()
		finish()
	})
}

// CloseModal closes whatever modal is open.
func (c *Controller) CloseModal() <-chan struct{} {
	return c.command(func(st *state, finish func()) {
		st.modalClose.cancel()
		st.view.Modal = st.view.Modal.Close()
		st.view.ModalMessage = banner.Message{}
		st.changed()
		finish()
	})
}

func (c *Controller) loop() {
	st := &state{view: View{Modal: modal.Closed()}}
	for {
		select {
		case ev := <-c.events:
			ev(st)
		case <-c.ctx.Done():
			st.bannerHide.cancel()
			st.modalClose.cancel()
			close(c.done)
			return
		}
	}
}

// post queues an event for the loop. It reports false once the controller stops.
func (c *Controller) post(ev func(*state)) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// command posts ev and returns a channel closed when ev calls finish.
func (c *Controller) command(ev func(st *state, finish func())) <-chan struct{} {
	done := make(chan struct{})
	var once sync.Once
	finish := func() { once.Do(func() { close(done) }) }
	c.post(func(st *state) { ev(st, finish) })
	return done
}

// async runs work off the loop and applies the event it returns on the loop.
func (c *Controller) async(work func(ctx context.Context) func(*state)) {
	go func() {
		apply := work(c.ctx)
		c.post(apply)
	}()
}

// setSession records a session transition. Every transition refetches the
// catalog because visible controls depend on authentication.
func (c *Controller) setSession(st *state, sess session.Session, then func()) {
	st.view.Session = sess
	if !sess.Authenticated && st.view.Modal.IsRegister() {
		st.modalClose.cancel()
		st.view.Modal = st.view.Modal.Close()
		st.view.ModalMessage = banner.Message{}
	}
	st.changed()
	c.refresh(st, then)
}

// refresh issues a numbered catalog fetch. then runs once the response is
// applied or discarded.
func (c *Controller) refresh(st *state, then func()) {
	st.fetchSeq++
	seq := st.fetchSeq
	c.async(func(ctx context.Context) func(*state) {
		catalog, err := projections.QueryGetCatalog(ctx, projections.GetCatalogDeps{Backend: c.backend, Log: c.log})
		return func(st *state) {
			defer then()
			if seq <= st.appliedSeq {
				metrics.StaleCatalogResponses.Inc()
				c.log.Debug("catalog_response_discarded", zap.Uint64("seq", seq), zap.Uint64("applied", st.appliedSeq))
				return
			}
			st.appliedSeq = seq
			st.view.CatalogLoaded = true
			if err != nil {
				c.log.Warn("catalog_fetch_failed", zap.Uint64("seq", seq), zap.Error(err))
				st.view.Catalog = nil
				st.view.CatalogError = projections.CatalogFailureMessage
			} else {
				st.view.Catalog = catalog
				st.view.CatalogError = ""
			}
			st.changed()
		}
	})
}

// showBanner replaces the banner and reschedules its dismissal.
func (c *Controller) showBanner(st *state, msg banner.Message) {
	st.view.Banner = msg
	st.changed()
	c.schedule(&st.bannerHide, c.cfg.BannerTTL, func(st *state) {
		st.view.Banner = banner.Message{}
	})
}

// showModalMessage sets the inline modal message and schedules the modal to close.
func (c *Controller) showModalMessage(st *state, msg banner.Message, delay time.Duration) {
	st.view.ModalMessage = msg
	st.changed()
	c.schedule(&st.modalClose, delay, func(st *state) {
		st.view.Modal = st.view.Modal.Close()
		st.view.ModalMessage = banner.Message{}
	})
}

// schedule cancels d's pending timer and arms a new one running apply on the loop.
func (c *Controller) schedule(d *dismissal, delay time.Duration, apply func(*state)) {
	d.cancel()
	gen := d.gen
	d.due = c.now().Add(delay)
	d.timer = c.after(delay, func() {
		// d points into the loop's state, so it is only touched on the loop.
		c.post(func(st *state) {
			if d.gen != gen {
				return
			}
			d.timer = nil
			d.due = time.Time{}
			apply(st)
			st.changed()
		})
	})
}

func (st *state) dismissIn(now time.Time) time.Duration {
	var next time.Duration
	for _, d := range []*dismissal{&st.bannerHide, &st.modalClose} {
		left := d.left(now)
		if left == 0 {
			continue
		}
		if next == 0 || left < next {
			next = left
		}
	}
	return next
}

// left returns the time until d fires, or 0 when nothing is scheduled.
// A due dismissal not yet processed reports 1ms.
func (d *dismissal) left(now time.Time) time.Duration {
	if d.due.IsZero() {
		return 0
	}
	left := d.due.Sub(now)
	if left <= 0 {
		left = time.Millisecond
	}
	return left
}
