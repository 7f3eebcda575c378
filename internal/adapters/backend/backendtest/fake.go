// Package backendtest provides an in-process fake of the activities backend
// for tests. It mirrors the REST contract consumed by the portal, including
// the session cookie and the error details returned for rejected commands.
package backendtest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

const cookieName = "session_id"

// Activity is the fake's roster record.
type Activity struct {
	Description     string   `json:"description"`
	Schedule        string   `json:"schedule"`
	MaxParticipants int      `json:"max_participants"`
	Participants    []string `json:"participants"`
}

// Teacher is a login the fake accepts.
type Teacher struct {
	Password string
	Name     string
}

// Server is a running fake backend.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	activities map[string]*Activity
	teachers   map[string]Teacher
	sessions   map[string]string // token -> teacher name

	// BeforeActivities, when set, runs after the catalog snapshot is taken and
	// before it is written. Tests use it to hold or reorder catalog responses.
	BeforeActivities func(call int64)

	// FailStatus makes GET /auth/status answer 500.
	FailStatus atomic.Bool

	activityCalls atomic.Int64
	signupCalls   atomic.Int64
}

// New starts a fake seeded with the given teachers and activities.
func New(teachers map[string]Teacher, activities map[string]Activity) *Server {
	s := &Server{
		activities: make(map[string]*Activity, len(activities)),
		teachers:   teachers,
		sessions:   make(map[string]string),
	}
	for name, a := range activities {
		a.Participants = append([]string{}, a.Participants...)
		s.activities[name] = &a
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/status", s.handleStatus)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/logout", s.handleLogout)
	mux.HandleFunc("GET /activities", s.handleActivities)
	mux.HandleFunc("POST /activities/{name}/signup", s.handleSignup)
	mux.HandleFunc("DELETE /activities/{name}/unregister", s.handleUnregister)
	s.Server = httptest.NewServer(mux)
	return s
}

// Default starts a fake with one teacher and two activities.
func Default() *Server {
	return New(
		map[string]Teacher{"t@school.edu": {Password: "secret", Name: "Ms. Rivera"}},
		map[string]Activity{
			"Chess Club": {
				Description:     "Learn strategies and compete in chess tournaments",
				Schedule:        "Fridays, 3:30 PM - 5:00 PM",
				MaxParticipants: 2,
				Participants:    []string{"a@x.com", "b@x.com"},
			},
			"Art Studio": {
				Description:     "Explore *painting* and drawing",
				Schedule:        "Wednesdays, 3:30 PM - 5:00 PM",
				MaxParticipants: 10,
				Participants:    []string{},
			},
		},
	)
}

// ActivityCalls returns how many GET /activities requests were served.
func (s *Server) ActivityCalls() int64 { return s.activityCalls.Load() }

// SignupCalls returns how many signup requests were received.
func (s *Server) SignupCalls() int64 { return s.signupCalls.Load() }

// Participants returns a copy of an activity's roster.
func (s *Server) Participants(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[name]
	if !ok {
		return nil
	}
	return append([]string{}, a.Participants...)
}

func (s *Server) teacherFor(r *http.Request) (string, bool) {
	c, err := r.Cookie(cookieName)
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.sessions[c.Value]
	return name, ok
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.FailStatus.Load() {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	name, ok := s.teacherFor(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true, "teacher_name": name})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	password := r.URL.Query().Get("password")
	t, ok := s.teachers[email]
	if !ok || t.Password != password {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
		return
	}
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	token := hex.EncodeToString(b)
	s.mu.Lock()
	s.sessions[token] = t.Name
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: token, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome, " + t.Name + "!", "teacher_name": t.Name})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(cookieName); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: cookieName, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	call := s.activityCalls.Add(1)
	s.mu.Lock()
	snapshot := make(map[string]Activity, len(s.activities))
	for name, a := range s.activities {
		c := *a
		c.Participants = append([]string{}, a.Participants...)
		snapshot[name] = c
	}
	s.mu.Unlock()
	if s.BeforeActivities != nil {
		s.BeforeActivities(call)
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.signupCalls.Add(1)
	if _, ok := s.teacherFor(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
		return
	}
	name := r.PathValue("name")
	email := r.URL.Query().Get("email")

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Activity not found"})
		return
	}
	for _, p := range a.Participants {
		if strings.EqualFold(p, email) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Student is already signed up"})
			return
		}
	}
	if len(a.Participants) >= a.MaxParticipants {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Activity is full"})
		return
	}
	a.Participants = append(a.Participants, email)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Signed up " + email + " for " + name})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.teacherFor(r); !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication required"})
		return
	}
	name := r.PathValue("name")
	email := r.URL.Query().Get("email")

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.activities[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Activity not found"})
		return
	}
	for i, p := range a.Participants {
		if strings.EqualFold(p, email) {
			a.Participants = append(a.Participants[:i], a.Participants[i+1:]...)
			writeJSON(w, http.StatusOK, map[string]string{"message": "Unregistered " + email + " from " + name})
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Student is not signed up for this activity"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
