package pipeline

import (
	"container/list"
	"sync"
	"time"
)

// recentFingerprintLimit bounds how many image fingerprints a session
// remembers. Enough to keep "this image" references stable across a few
// turns without growing forever.
const recentFingerprintLimit = 32

// Switch is one recorded provider/model change within a session.
type Switch struct {
	FromModel  string
	ToModel    string
	FromFamily string
	ToFamily   string
	At         time.Time
}

type session struct {
	id           string
	mu           sync.Mutex
	activeModel  string
	activeFamily string
	switches     []Switch
	fingerprints []string
	lastActivity time.Time
}

// SessionView is a read-only snapshot of a session's state.
type SessionView struct {
	ID                 string
	ActiveModel        string
	ActiveFamily       string
	Switches           []Switch
	RecentFingerprints []string
	LastActivity       time.Time
}

// SessionStore tracks per-session state, bounded by an LRU over session ids.
// Updates are serialized per session but independent across sessions.
type SessionStore struct {
	mu           sync.Mutex
	capacity     int
	historyLimit int
	entries      map[string]*list.Element
	order        *list.List // front = most recently active

	now func() time.Time
}

func NewSessionStore(capacity, historyLimit int) *SessionStore {
	return &SessionStore{
		capacity:     capacity,
		historyLimit: historyLimit,
		entries:      make(map[string]*list.Element),
		order:        list.New(),
		now:          time.Now,
	}
}

// touch returns the session for id, creating it (and evicting the least
// recently active session if at capacity) as needed.
func (st *SessionStore) touch(id string) *session {
	st.mu.Lock()
	defer st.mu.Unlock()

	if el, ok := st.entries[id]; ok {
		st.order.MoveToFront(el)
		return el.Value.(*session)
	}
	if st.order.Len() >= st.capacity {
		oldest := st.order.Back()
		if oldest != nil {
			st.order.Remove(oldest)
			delete(st.entries, oldest.Value.(*session).id)
		}
	}
	s := &session{id: id}
	st.entries[id] = st.order.PushFront(s)
	return s
}

// RecordCompletion updates session state after a request reaches Done.
// Returns true when the provider family changed relative to the session's
// previous request.
func (st *SessionStore) RecordCompletion(id, model, family string, fingerprints []string) (switched bool) {
	if id == "" {
		return false
	}
	s := st.touch(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := st.now()
	if s.activeFamily != "" && s.activeFamily != family {
		switched = true
		s.switches = append(s.switches, Switch{
			FromModel:  s.activeModel,
			ToModel:    model,
			FromFamily: s.activeFamily,
			ToFamily:   family,
			At:         now,
		})
		if len(s.switches) > st.historyLimit {
			s.switches = s.switches[len(s.switches)-st.historyLimit:]
		}
	}
	s.activeModel = model
	s.activeFamily = family
	s.lastActivity = now

	for _, fp := range fingerprints {
		s.fingerprints = appendFingerprint(s.fingerprints, fp)
	}
	return switched
}

// appendFingerprint keeps fingerprints unique with the newest last, bounded.
func appendFingerprint(fps []string, fp string) []string {
	for i, existing := range fps {
		if existing == fp {
			return append(append(fps[:i:i], fps[i+1:]...), fp)
		}
	}
	fps = append(fps, fp)
	if len(fps) > recentFingerprintLimit {
		fps = fps[len(fps)-recentFingerprintLimit:]
	}
	return fps
}

// Get returns a snapshot of the session, if present. Does not refresh
// recency.
func (st *SessionStore) Get(id string) (SessionView, bool) {
	st.mu.Lock()
	el, ok := st.entries[id]
	st.mu.Unlock()
	if !ok {
		return SessionView{}, false
	}
	s := el.Value.(*session)

	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionView{
		ID:                 s.id,
		ActiveModel:        s.activeModel,
		ActiveFamily:       s.activeFamily,
		Switches:           append([]Switch(nil), s.switches...),
		RecentFingerprints: append([]string(nil), s.fingerprints...),
		LastActivity:       s.lastActivity,
	}, true
}

// Len returns the number of tracked sessions.
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.order.Len()
}
