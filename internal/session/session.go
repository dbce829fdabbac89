// Package session keeps per-conversation state in memory: the loaded
// dataset, its schema, chat history, and the charts of the previous turn.
// Sessions expire after a fixed idle TTL and are swept lazily on access.
package session

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/plotline-ai/plotline/internal/colschema"
	"github.com/plotline-ai/plotline/internal/dataset"
	"github.com/plotline-ai/plotline/internal/plan"
)

const (
	defaultTTLMinutes = 60
	maxInsights       = 20
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is the state of one conversation. Fields are owned by the Store;
// callers access them only through Store methods while holding no reference
// across turns.
type Session struct {
	ID             string
	DatasetPath    string
	Dataset        *dataset.Dataset
	Schema         colschema.Schema
	Profiles       []colschema.ColumnProfile
	History        []Message
	PreviousCharts []plan.Chart
	Insights       []string

	lastAccess time.Time
}

// Store is a TTL-bounded in-memory session registry. The zero value is not
// usable; construct with NewStore.
type Store struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]*Session
	now      func() time.Time
}

// NewStore builds a store with the TTL from SESSION_TTL_MINUTES, defaulting
// to an hour when the variable is unset or unparseable.
func NewStore() *Store {
	ttl := defaultTTLMinutes
	if v := os.Getenv("SESSION_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return &Store{
		ttl:      time.Duration(ttl) * time.Minute,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Create registers a new session around a loaded dataset and returns its id.
func (st *Store) Create(path string, ds *dataset.Dataset, s colschema.Schema, profiles []colschema.ColumnProfile) string {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()

	id := uuid.NewString()
	st.sessions[id] = &Session{
		ID:          id,
		DatasetPath: path,
		Dataset:     ds,
		Schema:      s,
		Profiles:    profiles,
		lastAccess:  st.now(),
	}
	return id
}

// Get returns the session for id, refreshing its TTL. Expired and unknown
// sessions both return an error.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()

	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session: %q not found or expired", id)
	}
	s.lastAccess = st.now()
	return s, nil
}

// RecordTurn appends a user/assistant exchange and remembers the charts that
// were produced, for reference resolution on the next turn.
func (st *Store) RecordTurn(id, userPrompt, reply string, charts []plan.Chart) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return
	}
	s.History = append(s.History,
		Message{Role: "user", Content: userPrompt},
		Message{Role: "assistant", Content: reply},
	)
	s.PreviousCharts = charts
	s.lastAccess = st.now()
}

// AddInsight appends a generated insight, keeping only the most recent ones.
func (st *Store) AddInsight(id, insight string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return
	}
	s.Insights = append(s.Insights, insight)
	if len(s.Insights) > maxInsights {
		s.Insights = s.Insights[len(s.Insights)-maxInsights:]
	}
}

// List returns the ids of all live sessions.
func (st *Store) List() []string {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sweepLocked()

	ids := make([]string, 0, len(st.sessions))
	for id := range st.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Delete removes a session immediately.
func (st *Store) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// sweepLocked drops sessions idle past the TTL. Callers hold st.mu.
func (st *Store) sweepLocked() {
	cutoff := st.now().Add(-st.ttl)
	for id, s := range st.sessions {
		if s.lastAccess.Before(cutoff) {
			delete(st.sessions, id)
		}
	}
}
