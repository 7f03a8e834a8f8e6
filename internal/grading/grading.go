// Package grading scores a submitted answer against a question's canonical
// answer. Every function here is pure.
package grading

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"live-assessment-service/internal/domain"
)

// Options tunes grading policy that is not fixed by question type.
type Options struct {
	// MultiSelectPartialCredit awards points*(hits-wrong)/|canonical| for
	// inexact MULTI_SELECT answers. IsCorrect still requires exact set equality.
	MultiSelectPartialCredit bool
}

// Grade scores answer for question q worth points. It never fails: missing or
// unparseable answers to auto-graded types score 0 with IsCorrect=false.
func Grade(q domain.Question, points int, answer domain.Answer, opts Options) domain.Verdict {
	maxScore := float64(points)
	switch q.Type {
	case domain.MultipleChoice:
		got, ok := decodeScalar(answer)
		return verdict(ok && len(q.Answer.Values) > 0 && got == q.Answer.Values[0], maxScore)
	case domain.MultiSelect:
		return gradeMultiSelect(q, answer, maxScore, opts)
	case domain.TrueFalse:
		got, ok := decodeBool(answer)
		return verdict(ok && q.Answer.Bool != nil && got == *q.Answer.Bool, maxScore)
	case domain.ShortAnswer:
		return gradeShortAnswer(q, answer, maxScore)
	case domain.Numeric:
		got, ok := decodeNumber(answer)
		if !ok || q.Answer.Number == nil {
			return verdict(false, maxScore)
		}
		tolerance := math.Abs(q.Answer.Tolerance)
		return verdict(math.Abs(got-*q.Answer.Number) <= tolerance, maxScore)
	case domain.Scale:
		return domain.Verdict{Score: 0, MaxScore: maxScore, RequiresManual: true}
	}
	return verdict(false, maxScore)
}

func gradeMultiSelect(q domain.Question, answer domain.Answer, maxScore float64, opts Options) domain.Verdict {
	got, ok := decodeStrings(answer)
	if !ok {
		return verdict(false, maxScore)
	}
	want := toSet(q.Answer.Values)
	picked := toSet(got)
	if equalSets(picked, want) {
		return verdict(len(want) > 0, maxScore)
	}
	v := verdict(false, maxScore)
	if opts.MultiSelectPartialCredit && len(want) > 0 {
		hits, wrong := 0, 0
		for value := range picked {
			if _, ok := want[value]; ok {
				hits++
			} else {
				wrong++
			}
		}
		fraction := float64(hits-wrong) / float64(len(want))
		if fraction > 0 {
			v.Score = domain.RoundScore(maxScore * fraction)
		}
	}
	return v
}

func gradeShortAnswer(q domain.Question, answer domain.Answer, maxScore float64) domain.Verdict {
	got, ok := decodeScalar(answer)
	got = strings.TrimSpace(got)
	if !ok || got == "" {
		return verdict(false, maxScore)
	}
	for _, accepted := range q.Answer.Values {
		if strings.EqualFold(got, strings.TrimSpace(accepted)) {
			return verdict(true, maxScore)
		}
	}
	// Unlisted free text may still be right; leave it to a reviewer.
	return domain.Verdict{Score: 0, MaxScore: maxScore, RequiresManual: true}
}

// Validate rejects answers whose JSON shape cannot belong to q's type, and
// choices outside the option set. Missing answers (null or empty) pass and are
// graded as wrong.
func Validate(q domain.Question, answer domain.Answer) error {
	if isMissing(answer) {
		return nil
	}
	kind := jsonKind(answer)
	switch q.Type {
	case domain.MultipleChoice:
		if kind != '"' && kind != 'n' {
			return fmt.Errorf("%w: %s expects a single option", domain.ErrValidation, q.Type)
		}
		got, _ := decodeScalar(answer)
		if !hasOption(q, got) {
			return fmt.Errorf("%w: unknown option %q", domain.ErrValidation, got)
		}
	case domain.MultiSelect:
		got, ok := decodeStrings(answer)
		if !ok {
			return fmt.Errorf("%w: %s expects a list of options", domain.ErrValidation, q.Type)
		}
		for _, value := range got {
			if !hasOption(q, value) {
				return fmt.Errorf("%w: unknown option %q", domain.ErrValidation, value)
			}
		}
	case domain.TrueFalse:
		if kind != 'b' && kind != '"' {
			return fmt.Errorf("%w: %s expects a boolean", domain.ErrValidation, q.Type)
		}
	case domain.ShortAnswer:
		if kind != '"' && kind != 'n' {
			return fmt.Errorf("%w: %s expects text", domain.ErrValidation, q.Type)
		}
	case domain.Numeric, domain.Scale:
		if kind != 'n' && kind != '"' {
			return fmt.Errorf("%w: %s expects a number", domain.ErrValidation, q.Type)
		}
	default:
		return fmt.Errorf("%w: unsupported question type %q", domain.ErrValidation, q.Type)
	}
	return nil
}

// SameAnswer reports whether two raw answers are identical JSON documents,
// ignoring insignificant whitespace.
func SameAnswer(a, b domain.Answer) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

func verdict(correct bool, maxScore float64) domain.Verdict {
	v := domain.Verdict{MaxScore: maxScore, IsCorrect: &correct}
	if correct {
		v.Score = maxScore
	}
	return v
}

func hasOption(q domain.Question, value string) bool {
	if len(q.Options) == 0 {
		return true
	}
	for _, opt := range q.Options {
		if opt.ID == value {
			return true
		}
	}
	return false
}

func isMissing(raw domain.Answer) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// jsonKind returns '"' for strings, 'n' for numbers, 'b' for booleans, '[' for
// arrays, '{' for objects and 0 otherwise.
func jsonKind(raw domain.Answer) byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return 0
	}
	switch c := trimmed[0]; {
	case c == '"' || c == '[' || c == '{':
		return c
	case c == 't' || c == 'f':
		return 'b'
	case c == '-' || (c >= '0' && c <= '9'):
		return 'n'
	}
	return 0
}

func decodeScalar(raw domain.Answer) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

func decodeStrings(raw domain.Answer) ([]string, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := decodeScalar(item)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func decodeBool(raw domain.Answer) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return parsed, true
		}
	}
	return false, false
}

func decodeNumber(raw domain.Answer) (float64, bool) {
	s, ok := decodeScalar(raw)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if _, ok := b[v]; !ok {
			return false
		}
	}
	return true
}
