package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultHashDimensions is the vector size of the hash embedder.
const DefaultHashDimensions = 256

// hash is an offline embedder: tokens are hashed into a fixed number of
// signed buckets and the result is L2-normalised. Texts sharing words get
// positive similarity; it needs no model or network.
type hash struct {
	dims int
}

func newHash(opts Options) *hash {
	dims := opts.Dimensions
	if dims <= 0 {
		dims = DefaultHashDimensions
	}
	return &hash{dims: dims}
}

func (h *hash) Method() string   { return MethodHash }
func (h *hash) Model() string    { return fmt.Sprintf("fnv-%d", h.dims) }
func (h *hash) Endpoint() string { return "" }

func (h *hash) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		idx := sum % uint64(h.dims)
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
