package pipeline

import (
	"container/list"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/siherrmann/knowledge/helper"
	"golang.org/x/sync/errgroup"
)

const batchEmbedConcurrency = 8

// HashingEmbedder returns the deterministic fallback embedder: no model
// download, no external dependency, always available. Text is
// normalized (lowercased, whitespace collapsed), tokenized into word
// n-grams (n=1,2,3), each n-gram hashed into a bucket via FNV-1a with a
// second hash bit choosing the bucket's sign, and the resulting vector
// L2-normalized. Empty or whitespace-only text yields the zero vector.
func HashingEmbedder(dim int) EmbedFunc {
	return func(text string) ([]float32, error) {
		if dim <= 0 {
			return nil, fmt.Errorf("embedding dimension must be positive")
		}

		normalized := normalizeForHashing(text)
		if normalized == "" {
			return make([]float32, dim), nil
		}

		tokens := strings.Fields(normalized)
		vec := make([]float32, dim)

		for n := 1; n <= 3; n++ {
			for _, ngram := range nGrams(tokens, n) {
				bucket, sign := hashNGram(ngram, dim)
				vec[bucket] += sign
			}
		}

		return l2Normalize(vec), nil
	}
}

func normalizeForHashing(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func nGrams(tokens []string, n int) []string {
	if len(tokens) < n {
		return nil
	}
	grams := make([]string, 0, len(tokens)-n+1)
	for i := 0; i+n <= len(tokens); i++ {
		grams = append(grams, strings.Join(tokens[i:i+n], " "))
	}
	return grams
}

func hashNGram(ngram string, dim int) (int, float32) {
	h := fnv.New64a()
	h.Write([]byte(ngram))
	sum := h.Sum64()

	bucket := int(sum % uint64(dim))
	sign := float32(1)
	if (sum>>63)&1 == 1 {
		sign = -1
	}
	return bucket, sign
}

func l2Normalize(vec []float32) []float32 {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	if sumSquares == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sumSquares))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}

// HugotEmbedder creates an embedder backed by a real ONNX sentence
// transformer via hugot, the teacher's path for a production-quality
// model. Provider failures are reported as ErrEmbeddingUnavailable so
// callers can fall back to HashingEmbedder without treating the failure
// as a hard error.
func HugotEmbedder(modelName string) (EmbedFunc, error) {
	modelPath, err := helper.PrepareModel(modelName, "")
	if err != nil {
		return nil, helper.NewError("prepare embedding model", fmt.Errorf("%w: %v", helper.ErrEmbeddingUnavailable, err))
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, helper.NewError("create hugot session", fmt.Errorf("%w: %v", helper.ErrEmbeddingUnavailable, err))
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		session.Destroy()
		return nil, helper.NewError("create embedding pipeline", fmt.Errorf("%w: %v", helper.ErrEmbeddingUnavailable, err))
	}

	return func(text string) ([]float32, error) {
		result, err := sentencePipeline.RunPipeline([]string{text})
		if err != nil {
			return nil, helper.NewError("run embedding pipeline", fmt.Errorf("%w: %v", helper.ErrEmbeddingUnavailable, err))
		}
		if len(result.Embeddings) == 0 {
			return nil, helper.NewError("run embedding pipeline", fmt.Errorf("%w: no embedding generated", helper.ErrEmbeddingUnavailable))
		}
		return result.Embeddings[0], nil
	}, nil
}

// LRUCache wraps an EmbedFunc with an LRU keyed on normalized text. A
// cache hit returns the exact stored vector, indistinguishable from a
// fresh computation.
func LRUCache(embed EmbedFunc, capacity int) EmbedFunc {
	if capacity <= 0 {
		return embed
	}

	type entry struct {
		key   string
		value []float32
	}

	mu := sync.Mutex{}
	order := list.New()
	index := make(map[string]*list.Element, capacity)

	return func(text string) ([]float32, error) {
		key := normalizeForHashing(text)

		mu.Lock()
		if el, ok := index[key]; ok {
			order.MoveToFront(el)
			cached := el.Value.(*entry).value
			mu.Unlock()
			return cached, nil
		}
		mu.Unlock()

		vec, err := embed(text)
		if err != nil {
			return nil, err
		}

		mu.Lock()
		defer mu.Unlock()
		if el, ok := index[key]; ok {
			order.MoveToFront(el)
			el.Value.(*entry).value = vec
			return vec, nil
		}

		el := order.PushFront(&entry{key: key, value: vec})
		index[key] = el
		if order.Len() > capacity {
			oldest := order.Back()
			if oldest != nil {
				order.Remove(oldest)
				delete(index, oldest.Value.(*entry).key)
			}
		}

		return vec, nil
	}
}

// BatchEmbed embeds texts concurrently via errgroup, bounded and order
// preserving: the returned slice's i-th entry is texts[i]'s embedding
// regardless of completion order.
func BatchEmbed(embed EmbedFunc, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	g := new(errgroup.Group)
	g.SetLimit(batchEmbedConcurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := embed(text)
			if err != nil {
				return err
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
