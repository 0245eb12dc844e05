package memory

import "time"

// Kind is the lifecycle stage of a memory item.
type Kind string

const (
	Episodic  Kind = "episodic"
	Knowledge Kind = "knowledge"
)

const (
	// DefaultPromotionWindow is how long after creation a repeat mention still promotes.
	DefaultPromotionWindow = 120 * time.Second
	// DefaultTTL applies when a write carries no usable ttl.
	DefaultTTL = 60 * time.Second

	trustPerMention = 0.2
)

// Item is a single memory. Values handed out by the Store are copies.
type Item struct {
	ID              string
	Content         string
	Kind            Kind
	TTL             time.Duration // zero once promoted
	CreatedAt       time.Time
	LastMentionedAt time.Time
	Mentions        int
	Trust           float64

	seq uint64
}

// HasTTL reports whether the item is still subject to expiry.
func (it Item) HasTTL() bool {
	return it.Kind == Episodic && it.TTL > 0
}

// Expired reports whether the item has outlived its ttl at now.
func (it Item) Expired(now time.Time) bool {
	if !it.HasTTL() {
		return false
	}
	return now.Sub(it.CreatedAt) > it.TTL
}

// Trust scores a mention count: 0.2 per mention, saturating at 1.0.
func Trust(mentions int) float64 {
	t := trustPerMention * float64(mentions)
	if t > 1.0 {
		return 1.0
	}
	return t
}

// mention records a repeat write and keeps trust in step with mentions.
func (it *Item) mention(now time.Time) {
	it.Mentions++
	it.LastMentionedAt = now
	it.Trust = Trust(it.Mentions)
}

func (it *Item) promote() {
	it.Kind = Knowledge
	it.TTL = 0
}
