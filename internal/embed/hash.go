package embed

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"go.uber.org/zap"
)

// batchSize bounds how many texts HashAdapter.EmbedMany processes between
// context.Err checks, so a cancelled context is honored promptly even for
// a very large batch (spec §4.5: "implementations should process in
// bounded batches").
const batchSize = 64

// HashAdapter is a deterministic, always-available Adapter with no model
// dependency: it projects token hashes into a fixed Dimensions-wide vector
// and L2-normalizes it. No retrieved example repo in the pack ships a
// local embedding model runtime (ONNX/GGUF) or vendors one - the
// production backends in the corpus (codenerd's Ollama/GenAI engines) both
// call out to a separately running service - so this repo's default
// adapter is this pure, in-process projection. It satisfies the "pure with
// respect to inputs" contract exactly (same text always yields the same
// vector, no I/O at all) and keeps Available() == true unconditionally,
// since there is no external model to go missing.
type HashAdapter struct {
	log *zap.Logger
}

// NewHashAdapter constructs a HashAdapter. log may be nil (a no-op logger
// is used), matching how internal/lifecycle wires every component's
// logger from a single *zap.Logger constructed at startup.
func NewHashAdapter(log *zap.Logger) *HashAdapter {
	if log == nil {
		log = zap.NewNop()
	}

	return &HashAdapter{log: log}
}

func (a *HashAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return embedText(text), nil
}

func (a *HashAdapter) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		for i := start; i < end; i++ {
			out[i] = embedText(texts[i])
		}

		a.log.Debug("embed_many batch", zap.Int("start", start), zap.Int("end", end), zap.Int("total", len(texts)))
	}

	return out, nil
}

func (a *HashAdapter) Available() bool { return true }

func (a *HashAdapter) Name() string { return "hash-projection" }

// embedText tokenizes text on non-alphanumeric runs, hashes each token
// into one of Dimensions buckets with FNV-1a, accumulates a signed count
// per bucket (sign taken from a second hash bit, the standard random
// hyperplane trick for turning token hashes into a quasi-random
// projection), and L2-normalizes the result so cosine distance between
// two embeddings reflects token overlap.
func embedText(text string) []float32 {
	vec := make([]float32, Dimensions)

	for _, token := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		sum := h.Sum64()

		bucket := int(sum % uint64(Dimensions))

		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}

		vec[bucket] += sign
	}

	normalize(vec)

	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sumSquares float64

	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}

	if sumSquares == 0 {
		return
	}

	norm := float32(math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] /= norm
	}
}

// EncodeFloat32 little-endian-encodes vec for storage in entries_vec,
// matching sqlite-vec's expected float32 blob layout.
func EncodeFloat32(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))

	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}

	return buf
}
