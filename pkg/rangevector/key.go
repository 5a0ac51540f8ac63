package rangevector

import (
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Label is one name/value pair of a RangeVectorKey.
type Label struct {
	Name  []byte
	Value []byte
}

// RangeVectorKey is a small immutable label map, canonicalized into a
// sorted slice so hashing and equality are O(n) without the allocation
// churn of a real map. The hash is computed once at construction with
// xxhash.
type RangeVectorKey struct {
	labels []Label
	hash   uint64
}

// NewRangeVectorKey builds a key from a label map, sorting by name so two
// keys built from the same set (in any map iteration order) compare equal.
func NewRangeVectorKey(labels map[string]string) RangeVectorKey {
	pairs := make([]Label, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, Label{Name: []byte(k), Value: []byte(v)})
	}
	return newSortedKey(pairs)
}

// NewRangeVectorKeyFromPairs builds a key from already-collected label
// pairs (e.g. lifted straight off a column-store series), avoiding the
// intermediate map allocation map-based construction requires.
func NewRangeVectorKeyFromPairs(pairs []Label) RangeVectorKey {
	cp := make([]Label, len(pairs))
	copy(cp, pairs)
	return newSortedKey(cp)
}

func newSortedKey(pairs []Label) RangeVectorKey {
	sort.Slice(pairs, func(i, j int) bool {
		return string(pairs[i].Name) < string(pairs[j].Name)
	})

	h := xxhash.New()
	for _, p := range pairs {
		h.Write(p.Name)
		h.Write([]byte{0})
		h.Write(p.Value)
		h.Write([]byte{0})
	}

	return RangeVectorKey{labels: pairs, hash: h.Sum64()}
}

// Labels returns the sorted label pairs backing this key. Callers must not
// mutate the returned slice.
func (k RangeVectorKey) Labels() []Label { return k.labels }

// Hash returns the precomputed xxhash of the canonicalized label set,
// suitable as a Go map key component or group-by bucket key.
func (k RangeVectorKey) Hash() uint64 { return k.hash }

// Get returns the value for a label name, or "" with ok=false if absent.
func (k RangeVectorKey) Get(name string) (string, bool) {
	for _, l := range k.labels {
		if string(l.Name) == name {
			return string(l.Value), true
		}
	}
	return "", false
}

// Equals compares two keys by content: same label set, same values.
func (k RangeVectorKey) Equals(o RangeVectorKey) bool {
	if k.hash != o.hash || len(k.labels) != len(o.labels) {
		return false
	}
	for i := range k.labels {
		if string(k.labels[i].Name) != string(o.labels[i].Name) ||
			string(k.labels[i].Value) != string(o.labels[i].Value) {
			return false
		}
	}
	return true
}

// WithLabel returns a new key with name=value added or replaced, used by
// present() stages (topk/bottomk/countValues) that re-key a group into
// several output series.
func (k RangeVectorKey) WithLabel(name, value string) RangeVectorKey {
	pairs := make([]Label, 0, len(k.labels)+1)
	replaced := false
	for _, l := range k.labels {
		if string(l.Name) == name {
			pairs = append(pairs, Label{Name: []byte(name), Value: []byte(value)})
			replaced = true
			continue
		}
		pairs = append(pairs, l)
	}
	if !replaced {
		pairs = append(pairs, Label{Name: []byte(name), Value: []byte(value)})
	}
	return newSortedKey(pairs)
}

func (k RangeVectorKey) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, l := range k.labels {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(l.Name)
		b.WriteByte('=')
		b.WriteByte('"')
		b.Write(l.Value)
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}
