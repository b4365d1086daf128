package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/batalabs/finchat/internal/chat"
	"github.com/batalabs/finchat/internal/domain"
)

const (
	// SessionCookie names the cookie carrying the browser session ID.
	SessionCookie = "finchat_session"

	// SessionIdle is how long an untouched session is kept.
	SessionIdle = 24 * time.Hour
)

// session is one browser's chat state.
type session struct {
	ctrl *chat.Controller

	mu       sync.Mutex
	fresh    bool
	lastSeen time.Time
}

// Fresh reports whether the fresh-data checkbox is ticked.
func (s *session) Fresh() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fresh
}

// SetFresh records the fresh-data checkbox state.
func (s *session) SetFresh(v bool) {
	s.mu.Lock()
	s.fresh = v
	s.mu.Unlock()
}

func (s *session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen)
}

type sessionStore struct {
	mu   sync.Mutex
	byID map[string]*session
	now  func() time.Time
}

func newSessionStore() *sessionStore {
	return &sessionStore{byID: make(map[string]*session), now: time.Now}
}

func (st *sessionStore) get(id string) *session {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess := st.byID[id]
	if sess != nil {
		sess.touch(st.now())
	}
	return sess
}

// add stores sess under id and drops sessions idle longer than SessionIdle.
func (st *sessionStore) add(id string, sess *session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	now := st.now()
	for k, v := range st.byID {
		if v.idleSince(now) > SessionIdle {
			delete(st.byID, k)
		}
	}
	sess.touch(now)
	st.byID[id] = sess
}

// Len returns the number of live sessions.
func (st *sessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.byID)
}

// session returns the caller's session, creating one and setting the cookie
// when the request carries no known ID. A new session runs the controller's
// startup sequence before it is returned.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		if sess := s.sessions.get(c.Value); sess != nil {
			return sess
		}
	}

	id := domain.NewUUID()
	sess := &session{ctrl: s.newController(), fresh: s.prefs.CollectFresh}
	sess.ctrl.Init(r.Context())
	s.sessions.add(id, sess)
	s.log.Printf("web: new session %s", id[:8])

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return sess
}
