package disk

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/viant/vec/search"
)

var indexMagic = [4]byte{'L', 'Q', 'I', 'X'}

// flatIndex answers k-nearest queries by scanning every vector. Vectors are
// stored unit-length, so the score is the inner product (cosine similarity).
type flatIndex struct {
	dim  int
	vecs [][]float32
}

func newFlatIndex(dim int, vectors [][]float32) (*flatIndex, error) {
	idx := &flatIndex{dim: dim, vecs: make([][]float32, len(vectors))}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		idx.vecs[i] = normalize(v)
	}
	return idx, nil
}

func (x *flatIndex) Len() int { return len(x.vecs) }

type hit struct {
	pos   int
	score float64
}

// query returns at most k hits ordered by descending score; equal scores keep
// index order.
func (x *flatIndex) query(q []float32, k int) ([]hit, error) {
	if len(q) != x.dim {
		return nil, fmt.Errorf("query dimension %d, index dimension %d", len(q), x.dim)
	}
	if k <= 0 || len(x.vecs) == 0 {
		return nil, nil
	}
	qm := search.Float32s(q).Magnitude()
	hits := make([]hit, len(x.vecs))
	for i, v := range x.vecs {
		hits[i].pos = i
		vm := search.Float32s(v).Magnitude()
		if qm == 0 || vm == 0 {
			continue
		}
		s := 1 - float64(search.Float32s(v).CosineDistance(q))
		if math.IsNaN(s) {
			continue
		}
		hits[i].score = s
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// MarshalBinary layout: magic[4], dim(uint32), n(uint32), then n*dim float32,
// all little endian.
func (x *flatIndex) MarshalBinary() ([]byte, error) {
	out := make([]byte, 0, 12+4*x.dim*len(x.vecs))
	out = append(out, indexMagic[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(x.dim))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(x.vecs)))
	for _, v := range x.vecs {
		for _, f := range v {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(f))
		}
	}
	return out, nil
}

func (x *flatIndex) UnmarshalBinary(data []byte) error {
	if len(data) < 12 || [4]byte(data[:4]) != indexMagic {
		return errors.New("not an index file")
	}
	dim := int(binary.LittleEndian.Uint32(data[4:8]))
	n := int(binary.LittleEndian.Uint32(data[8:12]))
	if want := 12 + 4*dim*n; len(data) != want {
		return fmt.Errorf("index file has %d bytes, want %d", len(data), want)
	}
	off := 12
	vecs := make([][]float32, n)
	for i := range vecs {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		vecs[i] = v
	}
	x.dim, x.vecs = dim, vecs
	return nil
}

func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	m := search.Float32s(v).Magnitude()
	if m == 0 {
		copy(out, v)
		return out
	}
	for i, f := range v {
		out[i] = f / m
	}
	return out
}
