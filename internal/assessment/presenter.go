package assessment

import (
	"sort"

	"lesson_engine_backend/internal/model"
)

// PresentedOption keeps the original key of an ABCD option so that answers
// given against a shuffled display are graded against the stored key.
type PresentedOption struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// PresentedQuestion is what a student sees. It never carries the answer key.
type PresentedQuestion struct {
	ID         uint               `json:"id"`
	Type       model.QuestionType `json:"type"`
	Prompt     string             `json:"prompt"`
	ImageURL   string             `json:"imageUrl,omitempty"`
	Points     float64            `json:"points"`
	Options    []PresentedOption  `json:"options,omitempty"`
	Statements []string           `json:"statements,omitempty"`
}

type QuestionSet struct {
	Questions   []PresentedQuestion `json:"questions"`
	QuestionIDs []uint              `json:"-"`
	Shortfalls  []Shortfall         `json:"shortfalls,omitempty"`
}

// BuildQuestionSet runs pool selection, question shuffling and option
// shuffling, in that order, all drawing from the same rng.
func BuildQuestionSet(lesson *model.Lesson, rng RNG, selector *PoolSelector) QuestionSet {
	cfg := lesson.Randomization
	questions := orderedQuestions(lesson.Questions)

	var set QuestionSet
	if cfg.EnableQuestionPool {
		sel := selector.Select(questions, cfg.PoolSize, cfg.TypeDistribution, rng)
		set.Shortfalls = sel.Shortfalls
		questions = restoreOrder(sel.Questions, questions)
	}
	if cfg.ShuffleQuestions {
		questions = Shuffle(questions, rng)
	}

	set.Questions = make([]PresentedQuestion, 0, len(questions))
	set.QuestionIDs = make([]uint, 0, len(questions))
	for _, q := range questions {
		set.Questions = append(set.Questions, present(q, cfg.ShuffleAnswers, rng))
		set.QuestionIDs = append(set.QuestionIDs, q.ID)
	}
	return set
}

func present(q model.Question, shuffleAnswers bool, rng RNG) PresentedQuestion {
	p := PresentedQuestion{
		ID:       q.ID,
		Type:     q.Type,
		Prompt:   q.Prompt,
		ImageURL: q.ImageURL,
		Points:   EffectivePoints(q.Points),
	}
	switch q.Type {
	case model.QuestionABCD:
		opts := make([]PresentedOption, len(q.Options))
		for i, text := range q.Options {
			opts[i] = PresentedOption{Key: OptionLetter(i), Text: text}
		}
		if shuffleAnswers {
			opts = Shuffle(opts, rng)
		}
		p.Options = opts
	case model.QuestionTrueFalse:
		p.Statements = append([]string(nil), q.Options...)
	}
	return p
}

func orderedQuestions(questions []model.Question) []model.Question {
	out := append([]model.Question(nil), questions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// restoreOrder puts a pool selection back into authoring order.
func restoreOrder(selected, all []model.Question) []model.Question {
	pos := make(map[uint]int, len(all))
	for i, q := range all {
		pos[q.ID] = i
	}
	out := append([]model.Question(nil), selected...)
	sort.SliceStable(out, func(i, j int) bool { return pos[out[i].ID] < pos[out[j].ID] })
	return out
}
