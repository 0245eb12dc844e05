// Package memory holds the episodic/knowledge memory store: items decay by
// ttl unless mentioned again soon enough to be promoted into knowledge.
package memory

import (
	"cmp"
	"io"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/sesm/sesm/internal/logger"
)

// Store is the in-process memory registry. All methods are safe for
// concurrent use.
type Store struct {
	mu        sync.Mutex
	items     map[string]*Item
	byContent map[string]string // content -> id
	nextSeq   uint64
	entropy   io.Reader

	now        func() time.Time
	window     time.Duration
	defaultTTL time.Duration
	observers  []Observer
	log        logger.Logger

	// notifyMu is taken before mu is released so observers see events in
	// the order the mutations happened.
	notifyMu sync.Mutex

	sweeperMu   sync.Mutex
	sweeperStop chan struct{}
	sweeperDone chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now. Tests use this to drive ttl and promotion.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithPromotionWindow sets how long after creation a repeat mention promotes.
func WithPromotionWindow(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithDefaultTTL sets the ttl used when Write is given a non-positive one.
func WithDefaultTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.defaultTTL = d
		}
	}
}

// WithObserver registers an observer for store events.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		items:      make(map[string]*Item),
		byContent:  make(map[string]string),
		now:        time.Now,
		window:     DefaultPromotionWindow,
		defaultTTL: DefaultTTL,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.entropy = ulid.Monotonic(rand.New(rand.NewSource(s.now().UnixNano())), 0)
	return s
}

// AddObserver registers an observer after construction.
func (s *Store) AddObserver(o Observer) {
	if o == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, o)
	s.mu.Unlock()
}

// Write records a mention of content. Novel content becomes a new episodic
// item with the given ttl; repeated content reinforces the existing item and
// may promote it to knowledge. A ttl on a repeat mention is ignored.
func (s *Store) Write(content string, ttl time.Duration) Item {
	s.mu.Lock()
	now := s.now()

	id, ok := s.byContent[content]
	if !ok {
		if ttl <= 0 {
			ttl = s.defaultTTL
		}
		s.nextSeq++
		it := &Item{
			ID:              ulid.MustNew(ulid.Timestamp(now), s.entropy).String(),
			Content:         content,
			Kind:            Episodic,
			TTL:             ttl,
			CreatedAt:       now,
			LastMentionedAt: now,
			Mentions:        1,
			Trust:           Trust(1),
			seq:             s.nextSeq,
		}
		s.items[it.ID] = it
		s.byContent[content] = it.ID
		out := *it
		s.emit(Event{Type: EventCreated, Item: out, At: now})
		return out
	}

	it := s.items[id]
	it.mention(now)

	evType := EventReinforced
	if it.Kind == Episodic && it.Mentions >= 2 && now.Sub(it.CreatedAt) <= s.window {
		it.promote()
		evType = EventPromoted
	}
	out := *it
	s.emit(Event{Type: evType, Item: out, At: now})

	if evType == EventPromoted {
		s.log.Debug("promoted to knowledge", "id", out.ID, "mentions", out.Mentions)
	}
	return out
}

// Get returns the live item with the given id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// ListEpisodic sweeps expired items and returns the remaining episodic ones,
// newest first.
func (s *Store) ListEpisodic() []Item {
	s.SweepOnce()
	return s.snapshot(func(it *Item) bool { return it.Kind == Episodic }, byCreatedDesc)
}

// ListKnowledge returns knowledge items, highest trust first. Knowledge never
// expires, so no sweep is needed.
func (s *Store) ListKnowledge() []Item {
	return s.snapshot(func(it *Item) bool { return it.Kind == Knowledge }, byTrustDesc)
}

// ListAll sweeps expired items and returns everything left, newest first.
func (s *Store) ListAll() []Item {
	s.SweepOnce()
	return s.snapshot(nil, byCreatedDesc)
}

// SweepOnce removes every episodic item older than its ttl and returns how
// many were removed.
func (s *Store) SweepOnce() int {
	s.mu.Lock()
	now := s.now()
	var expired []Item
	for id, it := range s.items {
		if !it.Expired(now) {
			continue
		}
		expired = append(expired, *it)
		delete(s.items, id)
		delete(s.byContent, it.Content)
	}
	if len(expired) == 0 {
		s.mu.Unlock()
		return 0
	}

	slices.SortFunc(expired, func(a, b Item) int { return cmp.Compare(a.seq, b.seq) })
	evs := make([]Event, len(expired))
	for i, it := range expired {
		evs[i] = Event{Type: EventExpired, Item: it, At: now}
	}
	s.emit(evs...)
	s.log.Debug("sweep", "expired", len(expired))
	return len(expired)
}

// Stats is a point-in-time count of live items by kind.
type Stats struct {
	Episodic  int
	Knowledge int
}

func (st Stats) Total() int { return st.Episodic + st.Knowledge }

// Stats counts live items. It does not sweep, so episodic items past their
// ttl are counted until the next sweep.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, it := range s.items {
		if it.Kind == Knowledge {
			st.Knowledge++
		} else {
			st.Episodic++
		}
	}
	return st
}

func (s *Store) snapshot(keep func(*Item) bool, order func(a, b Item) int) []Item {
	s.mu.Lock()
	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		if keep == nil || keep(it) {
			out = append(out, *it)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(out, order)
	return out
}

// Ties fall back to insertion order so listings are deterministic.
func byCreatedDesc(a, b Item) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

func byTrustDesc(a, b Item) int {
	if c := cmp.Compare(b.Trust, a.Trust); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// emit releases mu and delivers evs to the observers. Callers must hold mu.
func (s *Store) emit(evs ...Event) {
	obs := s.observers
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, ev := range evs {
		for _, o := range obs {
			o.Observe(ev)
		}
	}
}
