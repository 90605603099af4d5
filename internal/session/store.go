// Package session provides the process-wide conversation memory: a sharded map from
// session id to a bounded, ordered transcript of turns.
package session

import (
	"container/list"
	"errors"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/hyperjump/otasuke/internal/models"
	"go.uber.org/zap"
)

// ErrCapacityExceeded marks evictions caused by the session limit. It is only ever
// attached to log entries; callers of Store never receive it.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

const (
	defaultMaxTurns    = 20
	defaultMaxSessions = 10000
	defaultShards      = 32
)

// Store holds session transcripts. Operations on one session id are serialized by
// that id's shard lock; different shards never contend. There is no global lock.
type Store struct {
	shards      []*shard
	maxTurns    int
	maxSessions int
	ttl         time.Duration
	now         func() time.Time
	logger      *zap.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type shard struct {
	mu       sync.Mutex
	cap      int
	sessions map[string]*list.Element
	// lru is ordered by last access, most recent at the front.
	lru *list.List
}

type entry struct {
	id         string
	turns      []models.Turn
	nextIndex  int
	lastAccess time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithMaxTurns sets the per-session window W. Older turns are evicted first.
func WithMaxTurns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxTurns = n
		}
	}
}

// WithMaxSessions sets the process-wide session limit, split evenly across shards.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithTTL expires sessions idle for longer than ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

// WithShards sets the number of lock shards.
func WithShards(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.shards = make([]*shard, n)
		}
	}
}

// WithLogger sets a logger for eviction events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store. When a TTL is set a janitor goroutine removes expired
// sessions until Close is called.
func New(opts ...Option) *Store {
	s := &Store{
		shards:      make([]*shard, defaultShards),
		maxTurns:    defaultMaxTurns,
		maxSessions: defaultMaxSessions,
		now:         time.Now,
		logger:      zap.NewNop(),
		stop:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.shards) > s.maxSessions {
		s.shards = s.shards[:s.maxSessions]
	}
	// Shard caps add up to maxSessions, so the store never holds more than that.
	base, extra := s.maxSessions/len(s.shards), s.maxSessions%len(s.shards)
	for i := range s.shards {
		limit := base
		if i < extra {
			limit++
		}
		s.shards[i] = &shard{
			cap:      limit,
			sessions: make(map[string]*list.Element),
			lru:      list.New(),
		}
	}
	if s.ttl > 0 {
		s.wg.Add(1)
		go s.janitor(sweepInterval(s.ttl))
	}
	return s
}

func sweepInterval(ttl time.Duration) time.Duration {
	d := ttl / 2
	if d < time.Second {
		d = time.Second
	}
	if d > 10*time.Minute {
		d = 10 * time.Minute
	}
	return d
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// lookup returns the live entry for id, dropping it when expired. Caller holds sh.mu.
func (s *Store) lookup(sh *shard, id string, now time.Time) *list.Element {
	elem, ok := sh.sessions[id]
	if !ok {
		return nil
	}
	if s.expired(elem.Value.(*entry), now) {
		s.removeLocked(sh, elem, "ttl")
		return nil
	}
	return elem
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastAccess) > s.ttl
}

func (s *Store) removeLocked(sh *shard, elem *list.Element, reason string) {
	e := elem.Value.(*entry)
	sh.lru.Remove(elem)
	delete(sh.sessions, e.id)
	if reason != "" {
		fields := []zap.Field{zap.String("session_id", e.id), zap.String("reason", reason)}
		if reason == "capacity" {
			fields = append(fields, zap.Error(ErrCapacityExceeded))
		}
		s.logger.Debug("session evicted", fields...)
	}
}

// Get returns a copy of the session's turns in chronological order.
// Unknown or expired sessions yield an empty slice.
func (s *Store) Get(id string) []models.Turn {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	now := s.now()
	elem := s.lookup(sh, id, now)
	if elem == nil {
		return []models.Turn{}
	}
	e := elem.Value.(*entry)
	e.lastAccess = now
	sh.lru.MoveToFront(elem)
	out := make([]models.Turn, len(e.turns))
	for i, t := range e.turns {
		out[i] = t.Clone()
	}
	return out
}

// Append adds turn to the end of the session, creating the session if needed, and
// returns the turn's index. When the transcript grows past the window the oldest
// turns are dropped.
func (s *Store) Append(id string, turn models.Turn) int {
	idx := s.appendTurns(id, turn)
	return idx[0]
}

// AppendExchange appends a user turn and the assistant reply in one critical
// section, so no other append on the session can land between them.
func (s *Store) AppendExchange(id string, user, assistant models.Turn) (userIndex, assistantIndex int) {
	idx := s.appendTurns(id, user, assistant)
	return idx[0], idx[1]
}

func (s *Store) appendTurns(id string, turns ...models.Turn) []int {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	now := s.now()

	elem := s.lookup(sh, id, now)
	if elem == nil {
		elem = sh.lru.PushFront(&entry{id: id})
		sh.sessions[id] = elem
	}
	e := elem.Value.(*entry)
	e.lastAccess = now
	sh.lru.MoveToFront(elem)

	indices := make([]int, len(turns))
	for i, t := range turns {
		t = t.Clone()
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		t.Index = e.nextIndex
		e.nextIndex++
		e.turns = append(e.turns, t)
		indices[i] = t.Index
	}
	if over := len(e.turns) - s.maxTurns; over > 0 {
		e.turns = append([]models.Turn(nil), e.turns[over:]...)
	}

	for sh.lru.Len() > sh.cap {
		oldest := sh.lru.Back()
		if oldest == elem {
			break
		}
		s.removeLocked(sh, oldest, "capacity")
	}
	return indices
}

// Clear removes the session and reports whether it existed.
func (s *Store) Clear(id string) bool {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	elem := s.lookup(sh, id, s.now())
	if elem == nil {
		return false
	}
	s.removeLocked(sh, elem, "")
	return true
}

// List returns the ids of all live sessions, sorted.
func (s *Store) List() []string {
	now := s.now()
	ids := make([]string, 0)
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, elem := range sh.sessions {
			if !s.expired(elem.Value.(*entry), now) {
				ids = append(ids, id)
			}
		}
		sh.mu.Unlock()
	}
	sort.Strings(ids)
	return ids
}

// Stats returns the number of live sessions and the turns they hold.
func (s *Store) Stats() (sessions, turns int) {
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for _, elem := range sh.sessions {
			e := elem.Value.(*entry)
			if !s.expired(e, now) {
				sessions++
				turns += len(e.turns)
			}
		}
		sh.mu.Unlock()
	}
	return sessions, turns
}

// MaxTurns returns the per-session window.
func (s *Store) MaxTurns() int {
	return s.maxTurns
}

func (s *Store) janitor(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired sessions. The LRU back holds the least recently accessed
// session, so each shard is walked from the back until a live one is found.
func (s *Store) sweep() int {
	if s.ttl <= 0 {
		return 0
	}
	removed := 0
	now := s.now()
	for _, sh := range s.shards {
		sh.mu.Lock()
		for elem := sh.lru.Back(); elem != nil; elem = sh.lru.Back() {
			if !s.expired(elem.Value.(*entry), now) {
				break
			}
			s.removeLocked(sh, elem, "ttl")
			removed++
		}
		sh.mu.Unlock()
	}
	return removed
}

// Close stops the janitor. The store remains usable.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	return nil
}
