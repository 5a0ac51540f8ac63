// Package tdigest implements a t-digest, the approximate-quantile sketch
// the Quantile aggregator uses as its reduce-mergeable intermediate
// value: a from-scratch implementation of Ted Dunning's merging digest,
// with centroids sorted by mean, built greedily under a uniform
// per-centroid size cap set by a compression factor, merged by re-running the same greedy
// pass over the union of two digests' centroids.
package tdigest

import (
	"encoding/binary"
	"math"
	"sort"
)

// Centroid is one cluster of the digest: a mean and the count of samples
// folded into it.
type Centroid struct {
	Mean  float64
	Count float64
}

// TDigest accumulates centroids up to a size bounded by Compression. A
// freshly constructed digest has zero centroids and zero total count.
type TDigest struct {
	Compression float64
	Centroids   []Centroid
	Total       float64
}

// New builds an empty digest with the given compression factor. Larger
// compression gives tighter quantile estimates at the cost of more
// centroids; 100 is a reasonable default.
func New(compression float64) *TDigest {
	if compression <= 0 {
		compression = 100
	}
	return &TDigest{Compression: compression}
}

// Add folds one sample into the digest.
func (t *TDigest) Add(x float64, weight float64) {
	if weight <= 0 {
		return
	}
	t.Centroids = append(t.Centroids, Centroid{Mean: x, Count: weight})
	t.Total += weight
	t.compress()
}

// Merge folds another digest's centroids into this one, the operation
// the reduce phase needs to combine partial digests.
func (t *TDigest) Merge(o *TDigest) {
	if o == nil || len(o.Centroids) == 0 {
		return
	}
	t.Centroids = append(t.Centroids, o.Centroids...)
	t.Total += o.Total
	t.compress()
}

// compress re-sorts all centroids by mean and greedily re-clusters them
// under a uniform size cap: a centroid absorbs the next one if their
// combined count stays within Total/Compression. The cap is the same at
// every quantile; it does not tighten toward the tails.
func (t *TDigest) compress() {
	if len(t.Centroids) == 0 {
		return
	}
	sort.Slice(t.Centroids, func(i, j int) bool { return t.Centroids[i].Mean < t.Centroids[j].Mean })

	out := make([]Centroid, 0, len(t.Centroids))
	cur := t.Centroids[0]
	cumulative := 0.0
	maxPerCluster := t.Total / t.Compression
	if maxPerCluster <= 0 {
		maxPerCluster = 1
	}

	for i := 1; i < len(t.Centroids); i++ {
		c := t.Centroids[i]
		if cur.Count+c.Count <= maxPerCluster {
			newCount := cur.Count + c.Count
			cur.Mean = (cur.Mean*cur.Count + c.Mean*c.Count) / newCount
			cur.Count = newCount
			continue
		}
		cumulative += cur.Count
		out = append(out, cur)
		cur = c
	}
	out = append(out, cur)
	t.Centroids = out
}

// Quantile returns the approximate value at quantile q (in [0,1]) using
// linear interpolation between the two bracketing centroids' cumulative
// weights, the standard t-digest quantile query.
func (t *TDigest) Quantile(q float64) float64 {
	if len(t.Centroids) == 0 || t.Total == 0 {
		return math.NaN()
	}
	if len(t.Centroids) == 1 {
		return t.Centroids[0].Mean
	}

	target := q * t.Total
	var cumulative float64
	for i, c := range t.Centroids {
		next := cumulative + c.Count
		if target <= next || i == len(t.Centroids)-1 {
			if i == 0 {
				return c.Mean
			}
			prev := t.Centroids[i-1]
			prevCum := cumulative - prev.Count
			span := next - prevCum
			if span <= 0 {
				return c.Mean
			}
			frac := (target - prevCum) / span
			return prev.Mean + frac*(c.Mean-prev.Mean)
		}
		cumulative = next
	}
	return t.Centroids[len(t.Centroids)-1].Mean
}

// Marshal encodes the digest as a flat byte string so it can ride
// through a Row's string column as a serialized intermediate value:
// little-endian float64 compression and total, then one (mean, count)
// pair per centroid, with no length prefix (the centroid count follows
// from the string's length).
func (t *TDigest) Marshal() string {
	buf := make([]byte, 16+16*len(t.Centroids))
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(t.Compression))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(t.Total))
	off := 16
	for _, c := range t.Centroids {
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(c.Mean))
		binary.LittleEndian.PutUint64(buf[off+8:off+16], math.Float64bits(c.Count))
		off += 16
	}
	return string(buf)
}

// Unmarshal decodes a digest previously produced by Marshal. An empty
// string decodes to a fresh zero-value digest, matching a not-yet-seen
// accumulator's initial serialized row.
func Unmarshal(data string) *TDigest {
	if len(data) < 16 {
		return New(100)
	}
	b := []byte(data)
	t := &TDigest{
		Compression: math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		Total:       math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
	}
	for off := 16; off+16 <= len(b); off += 16 {
		t.Centroids = append(t.Centroids, Centroid{
			Mean:  math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8])),
			Count: math.Float64frombits(binary.LittleEndian.Uint64(b[off+8 : off+16])),
		})
	}
	return t
}
