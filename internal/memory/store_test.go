package memory

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func testStore(t *testing.T, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	clk := newFakeClock()
	s := New(append([]Option{WithClock(clk.Now)}, opts...)...)
	t.Cleanup(s.Stop)
	return s, clk
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWriteNewItem(t *testing.T) {
	s, clk := testStore(t)

	it := s.Write("a", 60*time.Second)

	if it.ID == "" {
		t.Fatal("ID is empty")
	}
	if it.Kind != Episodic {
		t.Errorf("Kind = %q, want episodic", it.Kind)
	}
	if it.Mentions != 1 {
		t.Errorf("Mentions = %d, want 1", it.Mentions)
	}
	if !approx(it.Trust, 0.2) {
		t.Errorf("Trust = %v, want 0.2", it.Trust)
	}
	if it.TTL != 60*time.Second {
		t.Errorf("TTL = %v, want 60s", it.TTL)
	}
	if !it.CreatedAt.Equal(clk.Now()) || !it.LastMentionedAt.Equal(clk.Now()) {
		t.Errorf("timestamps = %v / %v, want %v", it.CreatedAt, it.LastMentionedAt, clk.Now())
	}
}

func TestPromotionScenario(t *testing.T) {
	s, clk := testStore(t)

	first := s.Write("a", 60*time.Second)

	clk.Advance(10 * time.Second)
	second := s.Write("a", 60*time.Second)
	if second.ID != first.ID {
		t.Fatalf("second write ID = %s, want %s", second.ID, first.ID)
	}
	if second.Kind != Knowledge {
		t.Errorf("Kind = %q, want knowledge", second.Kind)
	}
	if second.Mentions != 2 || !approx(second.Trust, 0.4) {
		t.Errorf("mentions/trust = %d/%v, want 2/0.4", second.Mentions, second.Trust)
	}
	if second.TTL != 0 || second.HasTTL() {
		t.Errorf("TTL = %v, want none", second.TTL)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt moved: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if !second.LastMentionedAt.Equal(clk.Now()) {
		t.Errorf("LastMentionedAt = %v, want %v", second.LastMentionedAt, clk.Now())
	}

	clk.Advance(time.Second)
	third := s.Write("a", 0)
	if third.ID != first.ID || third.Kind != Knowledge {
		t.Errorf("third write = %s/%s, want %s/knowledge", third.ID, third.Kind, first.ID)
	}
	if third.Mentions != 3 || !approx(third.Trust, 0.6) {
		t.Errorf("mentions/trust = %d/%v, want 3/0.6", third.Mentions, third.Trust)
	}
}

func TestPromotionWindow(t *testing.T) {
	tests := []struct {
		name     string
		gap      time.Duration
		wantKind Kind
	}{
		{"inside", 30 * time.Second, Knowledge},
		{"boundary", 120 * time.Second, Knowledge},
		{"exceeded", 130 * time.Second, Episodic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, clk := testStore(t)
			s.Write("c", 60*time.Second)
			clk.Advance(tt.gap)

			it := s.Write("c", 60*time.Second)
			if it.Mentions != 2 {
				t.Errorf("Mentions = %d, want 2", it.Mentions)
			}
			if it.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", it.Kind, tt.wantKind)
			}
			if tt.wantKind == Episodic && it.TTL != 60*time.Second {
				t.Errorf("TTL = %v, want 60s kept", it.TTL)
			}
		})
	}
}

func TestPromotionWindowOption(t *testing.T) {
	s, clk := testStore(t, WithPromotionWindow(5*time.Second))
	s.Write("x", time.Minute)
	clk.Advance(6 * time.Second)

	if it := s.Write("x", time.Minute); it.Kind != Episodic {
		t.Errorf("Kind = %q, want episodic outside a 5s window", it.Kind)
	}
}

func TestMissedWindowNeverPromotes(t *testing.T) {
	s, clk := testStore(t)
	s.Write("late", 10*time.Minute)
	clk.Advance(3 * time.Minute)

	for i := 0; i < 4; i++ {
		it := s.Write("late", 10*time.Minute)
		if it.Kind != Episodic {
			t.Fatalf("write %d promoted outside the window", i+2)
		}
	}
	if it := s.Write("late", 0); it.Mentions != 6 {
		t.Errorf("Mentions = %d, want 6", it.Mentions)
	}
}

func TestTrustSaturates(t *testing.T) {
	s, _ := testStore(t)

	var it Item
	for i := 1; i <= 8; i++ {
		it = s.Write("loud", time.Minute)
		if want := math.Min(1.0, 0.2*float64(i)); !approx(it.Trust, want) {
			t.Errorf("after %d mentions Trust = %v, want %v", i, it.Trust, want)
		}
	}
	if it.Trust != 1.0 {
		t.Errorf("Trust = %v, want 1.0", it.Trust)
	}
	if it.Mentions != 8 {
		t.Errorf("Mentions = %d, want 8", it.Mentions)
	}
}

func TestTrust(t *testing.T) {
	cases := map[int]float64{0: 0, 1: 0.2, 2: 0.4, 4: 0.8, 5: 1.0, 50: 1.0}
	for mentions, want := range cases {
		if got := Trust(mentions); !approx(got, want) {
			t.Errorf("Trust(%d) = %v, want %v", mentions, got, want)
		}
	}
}

func TestKnowledgeIgnoresTTL(t *testing.T) {
	s, clk := testStore(t)
	s.Write("k", time.Minute)
	s.Write("k", time.Minute)

	it := s.Write("k", 5*time.Second)
	if it.TTL != 0 || it.Kind != Knowledge {
		t.Errorf("TTL/Kind = %v/%s, want none/knowledge", it.TTL, it.Kind)
	}

	clk.Advance(24 * time.Hour)
	if n := s.SweepOnce(); n != 0 {
		t.Errorf("SweepOnce removed %d knowledge items", n)
	}
	if got := s.ListKnowledge(); len(got) != 1 || got[0].Mentions != 3 {
		t.Errorf("ListKnowledge = %+v, want one item with 3 mentions", got)
	}
}

func TestReinforcingWriteDoesNotRefreshTTL(t *testing.T) {
	s, clk := testStore(t)
	s.Write("r", 200*time.Second)
	clk.Advance(130 * time.Second)

	it := s.Write("r", time.Hour)
	if it.TTL != 200*time.Second {
		t.Errorf("TTL = %v, want original 200s", it.TTL)
	}

	clk.Advance(71 * time.Second)
	if n := s.SweepOnce(); n != 1 {
		t.Errorf("SweepOnce = %d, want 1 (expiry anchored to creation)", n)
	}
}

func TestNonPositiveTTLUsesDefault(t *testing.T) {
	s, _ := testStore(t, WithDefaultTTL(90*time.Second))

	if it := s.Write("zero", 0); it.TTL != 90*time.Second {
		t.Errorf("TTL = %v, want 90s", it.TTL)
	}
	if it := s.Write("neg", -time.Second); it.TTL != 90*time.Second {
		t.Errorf("TTL = %v, want 90s", it.TTL)
	}
}

func TestExpiry(t *testing.T) {
	s, clk := testStore(t)
	s.Write("b", time.Second)
	s.Write("k", time.Second)
	s.Write("k", time.Second) // promoted

	clk.Advance(2 * time.Second)
	if n := s.SweepOnce(); n != 1 {
		t.Fatalf("SweepOnce = %d, want 1", n)
	}

	all := s.ListAll()
	if len(all) != 1 || all[0].Content != "k" {
		t.Errorf("ListAll = %+v, want only k", all)
	}
	if eps := s.ListEpisodic(); len(eps) != 0 {
		t.Errorf("ListEpisodic = %+v, want empty", eps)
	}
}

func TestExpiryBoundary(t *testing.T) {
	s, clk := testStore(t)
	s.Write("edge", 10*time.Second)

	clk.Advance(10 * time.Second)
	if n := s.SweepOnce(); n != 0 {
		t.Errorf("age == ttl swept %d items, want 0", n)
	}
	clk.Advance(time.Nanosecond)
	if n := s.SweepOnce(); n != 1 {
		t.Errorf("age > ttl swept %d items, want 1", n)
	}
}

func TestListsSweepLazily(t *testing.T) {
	s, clk := testStore(t)
	s.Write("gone", time.Second)
	clk.Advance(2 * time.Second)

	if st := s.Stats(); st.Episodic != 1 {
		t.Fatalf("Stats before read = %+v, want 1 episodic", st)
	}
	if got := s.ListEpisodic(); len(got) != 0 {
		t.Errorf("ListEpisodic = %+v, want empty", got)
	}
	if st := s.Stats(); st.Total() != 0 {
		t.Errorf("Stats after read = %+v, want empty", st)
	}
}

func TestSweepIdempotent(t *testing.T) {
	s, clk := testStore(t)
	s.Write("one", time.Second)
	s.Write("two", time.Hour)
	clk.Advance(2 * time.Second)

	if n := s.SweepOnce(); n != 1 {
		t.Fatalf("first sweep = %d, want 1", n)
	}
	for i := 0; i < 3; i++ {
		if n := s.SweepOnce(); n != 0 {
			t.Errorf("repeat sweep %d removed %d", i, n)
		}
	}
}

func TestContentReusableAfterExpiry(t *testing.T) {
	s, clk := testStore(t)
	old := s.Write("again", time.Second)
	clk.Advance(2 * time.Second)
	s.SweepOnce()

	fresh := s.Write("again", time.Minute)
	if fresh.ID == old.ID {
		t.Error("expired item was resurrected")
	}
	if fresh.Mentions != 1 || fresh.Kind != Episodic {
		t.Errorf("fresh = %d/%s, want 1/episodic", fresh.Mentions, fresh.Kind)
	}
	if _, ok := s.Get(old.ID); ok {
		t.Error("Get found the expired id")
	}
}

func TestListEpisodicOrder(t *testing.T) {
	s, clk := testStore(t)
	s.Write("first", time.Hour)
	clk.Advance(time.Second)
	s.Write("tie-1", time.Hour)
	s.Write("tie-2", time.Hour)
	clk.Advance(time.Second)
	s.Write("last", time.Hour)

	got := contents(s.ListEpisodic())
	want := []string{"last", "tie-1", "tie-2", "first"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ListEpisodic = %v, want %v", got, want)
	}
	if all := contents(s.ListAll()); fmt.Sprint(all) != fmt.Sprint(want) {
		t.Errorf("ListAll = %v, want %v", all, want)
	}
}

func TestListKnowledgeOrder(t *testing.T) {
	s, clk := testStore(t)
	for _, c := range []string{"low", "high", "mid", "tie"} {
		s.Write(c, time.Hour)
		clk.Advance(time.Second)
	}
	s.Write("low", 0)
	for i := 0; i < 4; i++ {
		s.Write("high", 0)
	}
	s.Write("mid", 0)
	s.Write("mid", 0)
	s.Write("tie", 0)
	s.Write("tie", 0)

	got := contents(s.ListKnowledge())
	want := []string{"high", "mid", "tie", "low"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ListKnowledge = %v, want %v", got, want)
	}
}

func TestListAllMixesKinds(t *testing.T) {
	s, clk := testStore(t)
	s.Write("k", time.Hour)
	s.Write("k", time.Hour)
	clk.Advance(time.Second)
	s.Write("e", time.Hour)

	all := s.ListAll()
	if len(all) != 2 || all[0].Kind != Episodic || all[1].Kind != Knowledge {
		t.Errorf("ListAll = %+v", all)
	}
	if len(s.ListKnowledge()) != 1 || len(s.ListEpisodic()) != 1 {
		t.Error("kind filters disagree with ListAll")
	}
}

func TestReturnedItemsAreCopies(t *testing.T) {
	s, _ := testStore(t)
	it := s.Write("copy", time.Minute)
	it.Mentions = 99
	it.Kind = Knowledge

	got, ok := s.Get(it.ID)
	if !ok {
		t.Fatal("Get: not found")
	}
	if got.Mentions != 1 || got.Kind != Episodic {
		t.Errorf("store item mutated through copy: %+v", got)
	}
}

func TestEmptyStore(t *testing.T) {
	s, _ := testStore(t)
	if got := s.ListAll(); len(got) != 0 {
		t.Errorf("ListAll = %v", got)
	}
	if got := s.ListKnowledge(); len(got) != 0 {
		t.Errorf("ListKnowledge = %v", got)
	}
	if n := s.SweepOnce(); n != 0 {
		t.Errorf("SweepOnce = %d", n)
	}
}

func TestObserverEvents(t *testing.T) {
	var got []EventType
	s, clk := testStore(t, WithObserver(ObserverFunc(func(ev Event) {
		got = append(got, ev.Type)
	})))

	s.Write("a", time.Second)
	s.Write("a", time.Second)
	s.Write("a", time.Second)
	s.Write("b", time.Second)
	clk.Advance(2 * time.Second)
	s.SweepOnce()

	want := []EventType{EventCreated, EventPromoted, EventReinforced, EventCreated, EventExpired}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestConcurrentWrites(t *testing.T) {
	s := New()
	const writers, perWriter = 16, 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				s.Write("shared", time.Minute)
				s.Write(fmt.Sprintf("own-%d", w), time.Minute)
				s.ListAll()
			}
		}(w)
	}
	wg.Wait()

	all := s.ListAll()
	if len(all) != writers+1 {
		t.Fatalf("got %d items, want %d", len(all), writers+1)
	}
	for _, it := range all {
		if it.Content == "shared" && it.Mentions != writers*perWriter {
			t.Errorf("shared Mentions = %d, want %d", it.Mentions, writers*perWriter)
		}
		if it.Kind != Knowledge {
			t.Errorf("%s not promoted", it.Content)
		}
	}
}

func contents(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Content
	}
	return out
}
