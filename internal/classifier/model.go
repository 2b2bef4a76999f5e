package classifier

import (
	"errors"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strings"

	"github.com/ashureev/cyberdesk/internal/domain"
)

// Sample is one labelled training message.
type Sample struct {
	Message string
	Topic   domain.Topic
}

// TrainOptions tunes the linear SVM trainer.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	Lambda       float64
	Seed         int64
}

// DefaultTrainOptions are suitable for datasets of a few hundred messages.
var DefaultTrainOptions = TrainOptions{
	Epochs:       30,
	LearningRate: 0.1,
	Lambda:       1e-4,
	Seed:         1,
}

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

type feature struct {
	index int
	value float64
}

// Model is a TF-IDF vectorizer paired with one-vs-rest linear SVMs.
// A trained Model is immutable and safe for concurrent Predict calls.
type Model struct {
	labels  []domain.Topic
	vocab   map[string]int
	idf     []float64
	weights [][]float64
	bias    []float64
}

// Train fits a Model on samples with hinge-loss SGD.
func Train(samples []Sample, opts TrainOptions) (*Model, error) {
	if len(samples) == 0 {
		return nil, errors.New("classifier: no training samples")
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultTrainOptions.Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions.LearningRate
	}
	if opts.Lambda < 0 {
		opts.Lambda = 0
	}

	m := &Model{vocab: make(map[string]int)}

	// Vocabulary and document frequencies.
	labelSet := make(map[domain.Topic]struct{})
	docTerms := make([][]string, len(samples))
	var df []int
	for i, s := range samples {
		labelSet[s.Topic] = struct{}{}
		terms := terms(s.Message)
		docTerms[i] = terms
		seen := make(map[int]struct{}, len(terms))
		for _, t := range terms {
			idx, ok := m.vocab[t]
			if !ok {
				idx = len(m.vocab)
				m.vocab[t] = idx
				df = append(df, 0)
			}
			if _, dup := seen[idx]; !dup {
				seen[idx] = struct{}{}
				df[idx]++
			}
		}
	}
	if len(labelSet) < 2 {
		return nil, errors.New("classifier: training needs at least two topics")
	}
	for l := range labelSet {
		m.labels = append(m.labels, l)
	}
	sort.Slice(m.labels, func(i, j int) bool { return m.labels[i] < m.labels[j] })

	n := float64(len(samples))
	m.idf = make([]float64, len(m.vocab))
	for i, d := range df {
		m.idf[i] = math.Log((1+n)/(1+float64(d))) + 1
	}

	vectors := make([][]feature, len(samples))
	for i, t := range docTerms {
		vectors[i] = m.vectorize(t)
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	m.weights = make([][]float64, len(m.labels))
	m.bias = make([]float64, len(m.labels))
	for li, label := range m.labels {
		w := make([]float64, len(m.vocab))
		var b float64
		for epoch := 0; epoch < opts.Epochs; epoch++ {
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			lr := opts.LearningRate / (1 + float64(epoch)*0.1)
			for _, i := range order {
				y := -1.0
				if samples[i].Topic == label {
					y = 1.0
				}
				if opts.Lambda > 0 {
					decay := 1 - lr*opts.Lambda
					for k := range w {
						w[k] *= decay
					}
				}
				if y*(dot(w, vectors[i])+b) < 1 {
					for _, f := range vectors[i] {
						w[f.index] += lr * y * f.value
					}
					b += lr * y
				}
			}
		}
		m.weights[li] = w
		m.bias[li] = b
	}
	return m, nil
}

// Predict returns the highest-scoring topic. It reports false when the
// message shares no vocabulary with the training set.
func (m *Model) Predict(message string) (domain.Topic, bool) {
	if m == nil {
		return domain.TopicNone, false
	}
	vec := m.vectorize(terms(message))
	if len(vec) == 0 {
		return domain.TopicNone, false
	}
	best := -1
	bestScore := math.Inf(-1)
	for li := range m.labels {
		score := dot(m.weights[li], vec) + m.bias[li]
		if score > bestScore {
			best, bestScore = li, score
		}
	}
	return m.labels[best], true
}

// Labels returns the topics the model was trained on.
func (m *Model) Labels() []domain.Topic {
	return append([]domain.Topic(nil), m.labels...)
}

func (m *Model) vectorize(terms []string) []feature {
	if len(terms) == 0 {
		return nil
	}
	counts := make(map[int]float64)
	for _, t := range terms {
		if idx, ok := m.vocab[t]; ok {
			counts[idx]++
		}
	}
	vec := make([]feature, 0, len(counts))
	var norm float64
	total := float64(len(terms))
	for idx, c := range counts {
		v := (c / total) * m.idf[idx]
		vec = append(vec, feature{index: idx, value: v})
		norm += v * v
	}
	if norm == 0 {
		return nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i].value /= norm
	}
	sort.Slice(vec, func(i, j int) bool { return vec[i].index < vec[j].index })
	return vec
}

// terms returns lowercase unigrams and adjacent bigrams.
func terms(message string) []string {
	words := tokenPattern.FindAllString(strings.ToLower(message), -1)
	out := make([]string, 0, len(words)*2)
	out = append(out, words...)
	for i := 0; i+1 < len(words); i++ {
		out = append(out, words[i]+"_"+words[i+1])
	}
	return out
}

func dot(w []float64, vec []feature) float64 {
	var s float64
	for _, f := range vec {
		s += w[f.index] * f.value
	}
	return s
}
