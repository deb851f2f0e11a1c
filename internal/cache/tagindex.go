package cache

import "sync"

// TagIndex maps tag → set of keys, maintained so that for every key k,
// k ∈ TagIndex[t] iff t ∈ entries[k].tags.
type TagIndex struct {
	mu   sync.Mutex
	tags map[string]map[string]struct{}
	keys map[string][]string // key -> tags, for Detach without a full scan
}

// NewTagIndex returns an empty TagIndex.
func NewTagIndex() *TagIndex {
	return &TagIndex{
		tags: make(map[string]map[string]struct{}),
		keys: make(map[string][]string),
	}
}

// Attach records that key carries the given tags, replacing any previous
// tag set for key (so repeated Set calls don't leak stale tag membership —
// including an overwrite that carries no tags at all).
func (t *TagIndex) Attach(key string, tags []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked(key)
	if len(tags) == 0 {
		return
	}
	for _, tag := range tags {
		set, ok := t.tags[tag]
		if !ok {
			set = make(map[string]struct{})
			t.tags[tag] = set
		}
		set[key] = struct{}{}
	}
	t.keys[key] = append([]string{}, tags...)
}

// Detach removes key from every tag set it belonged to, pruning empty tag
// sets.
func (t *TagIndex) Detach(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.detachLocked(key)
}

func (t *TagIndex) detachLocked(key string) {
	for _, tag := range t.keys[key] {
		if set, ok := t.tags[tag]; ok {
			delete(set, key)
			if len(set) == 0 {
				delete(t.tags, tag)
			}
		}
	}
	delete(t.keys, key)
}

// KeysForTags returns the union of keys referenced by any of the given
// tags.
func (t *TagIndex) KeysForTags(wantTags []string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	seen := make(map[string]struct{})
	for _, tag := range wantTags {
		for k := range t.tags[tag] {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out
}

// TagsOf returns the tags currently attached to key.
func (t *TagIndex) TagsOf(key string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string{}, t.keys[key]...)
}
