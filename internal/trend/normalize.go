package trend

import "sort"

// Normalize deduplicates items by id (first occurrence wins), orders them by
// their source rank, truncates to MaxItems and reassigns ranks 1..N.
// The input slice is not modified.
func Normalize(items []Item) []Item {
	seen := make(map[string]bool, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			continue
		}
		seen[it.ID] = true
		out = append(out, it)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Rank < out[j].Rank
	})

	if len(out) > MaxItems {
		out = out[:MaxItems]
	}
	return Rerank(out)
}

// Rerank assigns contiguous ranks 1..N in slice order.
func Rerank(items []Item) []Item {
	for i := range items {
		items[i].Rank = i + 1
	}
	return items
}

// Collector gathers items in source order, dropping repeated ids as they
// arrive, until MaxItems distinct items are held.
type Collector struct {
	seen  map[string]bool
	items []Item
}

// Add keeps it unless its id was already collected or the collector is full.
// It reports whether the item was kept.
func (c *Collector) Add(it Item) bool {
	if c.Full() || c.seen[it.ID] {
		return false
	}
	if c.seen == nil {
		c.seen = make(map[string]bool)
	}
	c.seen[it.ID] = true
	c.items = append(c.items, it)
	return true
}

// Full reports whether MaxItems distinct items are held.
func (c *Collector) Full() bool { return len(c.items) >= MaxItems }

// Len is the number of distinct items held.
func (c *Collector) Len() int { return len(c.items) }

func (c *Collector) Items() []Item { return c.items }

// IDs returns the ids of items in order.
func IDs(items []Item) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	return ids
}
