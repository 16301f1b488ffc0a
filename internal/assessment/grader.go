package assessment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"lesson_engine_backend/internal/model"
)

// NoAnswer is recorded as the user answer when a question was left blank.
const NoAnswer = "no answer"

// Submission maps question IDs to the raw answer payload sent by the client.
// Payloads are untrusted and validated against each question's options.
type Submission map[uint]json.RawMessage

type WarningCode string

const (
	WarnAnswerKeyUnresolvable WarningCode = "answer_key_unresolvable"
	WarnAnswerKeyLength       WarningCode = "answer_key_length_mismatch"
	WarnInvalidAnswer         WarningCode = "invalid_answer"
	WarnUnknownType           WarningCode = "unknown_question_type"
)

// Warning is a data-quality anomaly found while grading. It never aborts grading.
type Warning struct {
	QuestionID uint        `json:"questionId"`
	Code       WarningCode `json:"code"`
	Message    string      `json:"message"`
}

type Result struct {
	Score       float64                 `json:"score"`
	TotalPoints float64                 `json:"totalPoints"`
	PerQuestion []model.QuestionOutcome `json:"perQuestion"`
	Warnings    []Warning               `json:"warnings,omitempty"`
}

type gradeFunc func(q model.Question, raw json.RawMessage, out *model.QuestionOutcome) []Warning

var strategies = map[model.QuestionType]gradeFunc{
	model.QuestionABCD:      gradeABCD,
	model.QuestionNumber:    gradeNumber,
	model.QuestionTrueFalse: gradeTrueFalse,
}

// Grade scores a submission against the answer key of questions. It reads
// nothing but its arguments.
func Grade(questions []model.Question, submission Submission) Result {
	res := Result{PerQuestion: make([]model.QuestionOutcome, 0, len(questions))}
	for _, q := range questions {
		out := model.QuestionOutcome{
			QuestionID: q.ID,
			Type:       q.Type,
			Points:     EffectivePoints(q.Points),
		}
		raw := submission[q.ID]

		grade, ok := strategies[q.Type]
		if !ok {
			out.UserAnswer = displayRaw(raw)
			res.Warnings = append(res.Warnings, Warning{
				QuestionID: q.ID,
				Code:       WarnUnknownType,
				Message:    fmt.Sprintf("question type %q cannot be graded", q.Type),
			})
		} else {
			res.Warnings = append(res.Warnings, grade(q, raw, &out)...)
		}

		res.Score += out.EarnedPoints
		res.TotalPoints += out.Points
		res.PerQuestion = append(res.PerQuestion, out)
	}
	return res
}

// EffectivePoints treats a missing or non-positive weight as one point.
func EffectivePoints(p float64) float64 {
	if p <= 0 {
		return 1
	}
	return p
}

func gradeABCD(q model.Question, raw json.RawMessage, out *model.QuestionOutcome) []Warning {
	var warns []Warning

	key, _ := decodeString(q.CorrectAnswer)
	out.CorrectAnswer = strings.ToUpper(strings.TrimSpace(key))
	correctIdx, keyOK := LetterIndex(key, len(q.Options))
	if !keyOK {
		warns = append(warns, Warning{
			QuestionID: q.ID,
			Code:       WarnAnswerKeyUnresolvable,
			Message:    fmt.Sprintf("correct answer %s does not match any of %d options", string(q.CorrectAnswer), len(q.Options)),
		})
	}

	if isBlank(raw) {
		out.UserAnswer = NoAnswer
		return warns
	}
	letter, ok := decodeString(raw)
	if !ok || strings.TrimSpace(letter) == "" {
		if ok {
			out.UserAnswer = NoAnswer
			return warns
		}
		out.UserAnswer = displayRaw(raw)
		return append(warns, invalidAnswer(q.ID, raw))
	}
	idx, valid := LetterIndex(letter, len(q.Options))
	out.UserAnswer = strings.ToUpper(strings.TrimSpace(letter))
	if !valid {
		return append(warns, invalidAnswer(q.ID, raw))
	}
	if keyOK && idx == correctIdx {
		out.IsCorrect = true
		out.EarnedPoints = out.Points
	}
	return warns
}

func gradeNumber(q model.Question, raw json.RawMessage, out *model.QuestionOutcome) []Warning {
	var warns []Warning

	key, ok := decodeScalarText(q.CorrectAnswer)
	key = strings.TrimSpace(key)
	out.CorrectAnswer = key
	if !ok || key == "" {
		warns = append(warns, Warning{
			QuestionID: q.ID,
			Code:       WarnAnswerKeyUnresolvable,
			Message:    "numeric answer key is empty",
		})
	}

	if isBlank(raw) {
		out.UserAnswer = NoAnswer
		return warns
	}
	given, ok := decodeScalarText(raw)
	if !ok {
		out.UserAnswer = displayRaw(raw)
		return append(warns, invalidAnswer(q.ID, raw))
	}
	given = strings.TrimSpace(given)
	if given == "" {
		out.UserAnswer = NoAnswer
		return warns
	}
	out.UserAnswer = given
	// Exact text comparison: "2.0" and "2" are different answers.
	if key != "" && given == key {
		out.IsCorrect = true
		out.EarnedPoints = out.Points
	}
	return warns
}

func gradeTrueFalse(q model.Question, raw json.RawMessage, out *model.QuestionOutcome) []Warning {
	if len(q.Options) == 0 {
		return gradeSingleBool(q, raw, out)
	}
	return gradeMultiBool(q, raw, out)
}

func gradeSingleBool(q model.Question, raw json.RawMessage, out *model.QuestionOutcome) []Warning {
	var warns []Warning

	key, keyOK := decodeBool(q.CorrectAnswer)
	if keyOK {
		out.CorrectAnswer = key
	} else {
		out.CorrectAnswer = displayRaw(q.CorrectAnswer)
		warns = append(warns, Warning{
			QuestionID: q.ID,
			Code:       WarnAnswerKeyUnresolvable,
			Message:    fmt.Sprintf("correct answer %s is not a boolean", string(q.CorrectAnswer)),
		})
	}

	if isBlank(raw) {
		out.UserAnswer = NoAnswer
		return warns
	}
	given, ok := decodeBool(raw)
	if !ok {
		out.UserAnswer = displayRaw(raw)
		return append(warns, invalidAnswer(q.ID, raw))
	}
	out.UserAnswer = given
	if keyOK && given == key {
		out.IsCorrect = true
		out.EarnedPoints = out.Points
	}
	return warns
}

func gradeMultiBool(q model.Question, raw json.RawMessage, out *model.QuestionOutcome) []Warning {
	var warns []Warning
	n := len(q.Options)

	key, ok := decodeBoolSlice(q.CorrectAnswer)
	if !ok {
		warns = append(warns, Warning{
			QuestionID: q.ID,
			Code:       WarnAnswerKeyUnresolvable,
			Message:    fmt.Sprintf("correct answer %s is not a list of booleans", string(q.CorrectAnswer)),
		})
	} else if len(key) != n {
		warns = append(warns, Warning{
			QuestionID: q.ID,
			Code:       WarnAnswerKeyLength,
			Message:    fmt.Sprintf("answer key has %d entries for %d statements", len(key), n),
		})
	}
	out.CorrectAnswer = derefBools(key, n)

	given := make([]*bool, n)
	if !isBlank(raw) {
		parsed, valid := decodeBoolSlice(raw)
		if !valid {
			warns = append(warns, invalidAnswer(q.ID, raw))
		}
		copy(given, parsed)
	}
	out.UserAnswer = given

	correct := 0
	for i := 0; i < n; i++ {
		if given[i] == nil || i >= len(key) || key[i] == nil {
			continue
		}
		if *given[i] == *key[i] {
			correct++
		}
	}

	multiplier := PartialCredit(n, correct)
	out.IsCorrect = multiplier == 1.0
	if n == 4 {
		out.EarnedPoints = out.Points * multiplier
	} else {
		// points*correct/n keeps results like 9*2/3 exact.
		out.EarnedPoints = out.Points * float64(correct) / float64(n)
	}
	return warns
}

func invalidAnswer(id uint, raw []byte) Warning {
	return Warning{
		QuestionID: id,
		Code:       WarnInvalidAnswer,
		Message:    fmt.Sprintf("answer %s is not valid for this question", displayRaw(raw)),
	}
}

// LetterIndex resolves an option letter ("A", "b", ...) against n options.
func LetterIndex(letter string, n int) (int, bool) {
	letter = strings.ToUpper(strings.TrimSpace(letter))
	if len(letter) != 1 {
		return 0, false
	}
	idx := int(letter[0]) - 'A'
	if idx < 0 || idx >= n {
		return 0, false
	}
	return idx, true
}

// OptionLetter is the inverse of LetterIndex.
func OptionLetter(idx int) string {
	return string(rune('A' + idx))
}

func isBlank(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeString(raw []byte) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// decodeScalarText accepts a JSON string or a JSON number and returns its
// literal text, so 2 and "2" read the same while 2.0 stays "2.0".
func decodeScalarText(raw []byte) (string, bool) {
	if s, ok := decodeString(raw); ok {
		return s, true
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", false
	}
	return n.String(), true
}

func decodeBool(raw []byte) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	if s, ok := decodeString(raw); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}

// decodeBoolSlice reads an array whose entries are booleans or null. Entries
// that are neither come back as nil and flag the whole payload as invalid.
func decodeBoolSlice(raw []byte) ([]*bool, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]*bool, len(items))
	valid := true
	for i, item := range items {
		if isBlank(item) {
			continue
		}
		b, ok := decodeBool(item)
		if !ok {
			valid = false
			continue
		}
		out[i] = &b
	}
	return out, valid
}

func derefBools(key []*bool, n int) []any {
	out := make([]any, n)
	for i := 0; i < n && i < len(key); i++ {
		if key[i] != nil {
			out[i] = *key[i]
		}
	}
	return out
}

func displayRaw(raw []byte) string {
	if isBlank(raw) {
		return NoAnswer
	}
	if s, ok := decodeString(raw); ok {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
