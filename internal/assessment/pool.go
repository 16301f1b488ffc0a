package assessment

import (
	"math"
	"sort"

	"lesson_engine_backend/internal/model"

	"go.uber.org/zap"
)

// Shortfall records a type whose requested count exceeded the available questions.
type Shortfall struct {
	Type      model.QuestionType `json:"type"`
	Requested int                `json:"requested"`
	Available int                `json:"available"`
}

type PoolSelection struct {
	Questions  []model.Question
	Shortfalls []Shortfall
}

// PoolSelector draws a constrained subset of a lesson's question bank.
type PoolSelector struct {
	log *zap.Logger
}

func NewPoolSelector(log *zap.Logger) *PoolSelector {
	if log == nil {
		log = zap.NewNop()
	}
	return &PoolSelector{log: log}
}

// Select picks up to poolSize questions. With a type distribution each type
// contributes exactly its requested count (or everything it has); without one
// the pool is split proportionally to what each type has available. The order
// of the returned questions carries no meaning.
func (s *PoolSelector) Select(questions []model.Question, poolSize int, distribution map[model.QuestionType]int, rng RNG) PoolSelection {
	if poolSize <= 0 || poolSize >= len(questions) {
		return PoolSelection{Questions: questions}
	}

	byType, order := groupByType(questions)

	var counts map[model.QuestionType]int
	var shortfalls []Shortfall
	if len(distribution) > 0 {
		counts, shortfalls = s.distributionCounts(byType, distribution)
	} else {
		counts = proportionalCounts(byType, order, poolSize, len(questions))
	}

	selected := make([]model.Question, 0, poolSize)
	for _, t := range order {
		n := counts[t]
		if n <= 0 {
			continue
		}
		selected = append(selected, Shuffle(byType[t], rng)[:n]...)
	}
	return PoolSelection{Questions: selected, Shortfalls: shortfalls}
}

func (s *PoolSelector) distributionCounts(byType map[model.QuestionType][]model.Question, distribution map[model.QuestionType]int) (map[model.QuestionType]int, []Shortfall) {
	counts := make(map[model.QuestionType]int, len(distribution))
	var shortfalls []Shortfall
	for _, t := range sortedTypes(distribution) {
		want := distribution[t]
		if want <= 0 {
			continue
		}
		have := len(byType[t])
		if have < want {
			s.log.Warn("question pool shortfall",
				zap.String("type", string(t)),
				zap.Int("requested", want),
				zap.Int("available", have))
			shortfalls = append(shortfalls, Shortfall{Type: t, Requested: want, Available: have})
			want = have
		}
		counts[t] = want
	}
	return counts, shortfalls
}

// proportionalCounts rounds each type's share and hands the rounding error to
// the type with the most questions. Anything that type cannot absorb spills
// over to the remaining types in order.
func proportionalCounts(byType map[model.QuestionType][]model.Question, order []model.QuestionType, poolSize, total int) map[model.QuestionType]int {
	counts := make(map[model.QuestionType]int, len(order))
	sum := 0
	var largest model.QuestionType
	for i, t := range order {
		avail := len(byType[t])
		n := int(math.Round(float64(poolSize) * float64(avail) / float64(total)))
		n = clamp(n, 0, avail)
		counts[t] = n
		sum += n
		if i == 0 || avail > len(byType[largest]) {
			largest = t
		}
	}

	diff := poolSize - sum
	if diff == 0 {
		return counts
	}
	adjusted := clamp(counts[largest]+diff, 0, len(byType[largest]))
	diff -= adjusted - counts[largest]
	counts[largest] = adjusted

	for _, t := range order {
		if diff == 0 {
			break
		}
		if t == largest {
			continue
		}
		n := clamp(counts[t]+diff, 0, len(byType[t]))
		diff -= n - counts[t]
		counts[t] = n
	}
	return counts
}

// groupByType buckets questions by type and returns the types in fixed order
// so selection never depends on map iteration.
func groupByType(questions []model.Question) (map[model.QuestionType][]model.Question, []model.QuestionType) {
	byType := make(map[model.QuestionType][]model.Question)
	for _, q := range questions {
		byType[q.Type] = append(byType[q.Type], q)
	}
	return byType, sortedTypes(byType)
}

func sortedTypes[V any](m map[model.QuestionType]V) []model.QuestionType {
	types := make([]model.QuestionType, 0, len(m))
	for _, t := range model.QuestionTypeOrder {
		if _, ok := m[t]; ok {
			types = append(types, t)
		}
	}
	var extra []model.QuestionType
	for t := range m {
		if !t.Valid() {
			extra = append(extra, t)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(types, extra...)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
