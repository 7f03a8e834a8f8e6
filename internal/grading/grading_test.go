package grading

import (
	"errors"
	"testing"
	"time"

	"live-assessment-service/internal/domain"
)

func boolPtr(b bool) *bool { return &b }

func floatPtr(f float64) *float64 { return &f }

func raw(s string) domain.Answer { return domain.Answer(s) }

func isTrue(v domain.Verdict) bool { return v.IsCorrect != nil && *v.IsCorrect }

func isFalse(v domain.Verdict) bool { return v.IsCorrect != nil && !*v.IsCorrect }

func TestGradeMultipleChoice(t *testing.T) {
	q := domain.Question{
		ID:   "q1",
		Type: domain.MultipleChoice,
		Options: []domain.Option{
			{ID: "3", Text: "3"}, {ID: "4", Text: "4"}, {ID: "5", Text: "5"},
		},
		Answer: domain.AnswerKey{Values: []string{"4"}},
	}

	v := Grade(q, 10, raw(`"4"`), Options{})
	if !isTrue(v) || v.Score != 10 || v.MaxScore != 10 {
		t.Fatalf("expected full credit for 4, got %+v", v)
	}
	v = Grade(q, 10, raw(`"3"`), Options{})
	if !isFalse(v) || v.Score != 0 {
		t.Fatalf("expected zero for 3, got %+v", v)
	}
}

func TestGradeNumeric(t *testing.T) {
	q := domain.Question{Type: domain.Numeric, Answer: domain.AnswerKey{Number: floatPtr(10)}}

	if v := Grade(q, 1, raw(`"10"`), Options{}); !isTrue(v) {
		t.Fatalf("expected 10 correct, got %+v", v)
	}
	if v := Grade(q, 1, raw(`10`), Options{}); !isTrue(v) {
		t.Fatalf("expected numeric 10 correct, got %+v", v)
	}
	if v := Grade(q, 1, raw(`"10.5"`), Options{}); !isFalse(v) {
		t.Fatalf("expected 10.5 incorrect, got %+v", v)
	}

	q.Answer.Tolerance = 0.5
	if v := Grade(q, 1, raw(`"10.5"`), Options{}); !isTrue(v) {
		t.Fatalf("expected 10.5 within tolerance, got %+v", v)
	}
	if v := Grade(q, 1, raw(`"ten"`), Options{}); !isFalse(v) || v.RequiresManual {
		t.Fatalf("expected unparseable to be plain wrong, got %+v", v)
	}
}

func TestGradeMultiSelect(t *testing.T) {
	q := domain.Question{
		Type:    domain.MultiSelect,
		Options: []domain.Option{{ID: "A"}, {ID: "B"}, {ID: "C"}},
		Answer:  domain.AnswerKey{Values: []string{"A", "C"}},
	}

	tests := []struct {
		name    string
		answer  string
		correct bool
	}{
		{"partial set", `["A"]`, false},
		{"exact set", `["A","C"]`, true},
		{"reordered with duplicate", `["C","A","C"]`, true},
		{"superset", `["A","B","C"]`, false},
		{"empty", `[]`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Grade(q, 4, raw(tc.answer), Options{})
			if tc.correct && (!isTrue(v) || v.Score != 4) {
				t.Fatalf("expected correct, got %+v", v)
			}
			if !tc.correct && (!isFalse(v) || v.Score != 0) {
				t.Fatalf("expected incorrect with no credit, got %+v", v)
			}
		})
	}
}

func TestGradeMultiSelectPartialCredit(t *testing.T) {
	q := domain.Question{
		Type:   domain.MultiSelect,
		Answer: domain.AnswerKey{Values: []string{"A", "C"}},
	}
	opts := Options{MultiSelectPartialCredit: true}

	v := Grade(q, 4, raw(`["A"]`), opts)
	if !isFalse(v) || v.Score != 2 {
		t.Fatalf("expected half credit, got %+v", v)
	}
	v = Grade(q, 4, raw(`["A","B"]`), opts)
	if v.Score != 0 {
		t.Fatalf("expected wrong pick to cancel hit, got %+v", v)
	}
}

func TestGradeTrueFalse(t *testing.T) {
	q := domain.Question{Type: domain.TrueFalse, Answer: domain.AnswerKey{Bool: boolPtr(false)}}

	if v := Grade(q, 1, raw(`false`), Options{}); !isTrue(v) {
		t.Fatalf("expected false correct, got %+v", v)
	}
	if v := Grade(q, 1, raw(`"FALSE"`), Options{}); !isTrue(v) {
		t.Fatalf("expected string FALSE correct, got %+v", v)
	}
	if v := Grade(q, 1, raw(`true`), Options{}); !isFalse(v) {
		t.Fatalf("expected true incorrect, got %+v", v)
	}
}

func TestGradeShortAnswer(t *testing.T) {
	q := domain.Question{Type: domain.ShortAnswer, Answer: domain.AnswerKey{Values: []string{"Paris", "paris, france"}}}

	if v := Grade(q, 2, raw(`"  PARIS "`), Options{}); !isTrue(v) || v.Score != 2 {
		t.Fatalf("expected trimmed case-insensitive match, got %+v", v)
	}
	v := Grade(q, 2, raw(`"The city of light"`), Options{})
	if v.IsCorrect != nil || !v.RequiresManual || v.Score != 0 {
		t.Fatalf("expected manual review for unlisted text, got %+v", v)
	}
	v = Grade(q, 2, raw(`null`), Options{})
	if !isFalse(v) || v.RequiresManual {
		t.Fatalf("expected missing answer to be wrong, got %+v", v)
	}
}

func TestGradeScaleAlwaysManual(t *testing.T) {
	q := domain.Question{Type: domain.Scale}
	v := Grade(q, 5, raw(`4`), Options{})
	if v.IsCorrect != nil || !v.RequiresManual || v.Score != 0 || v.MaxScore != 5 {
		t.Fatalf("expected manual zero, got %+v", v)
	}
}

func TestGradeIsDeterministic(t *testing.T) {
	questions := []domain.Question{
		{Type: domain.MultipleChoice, Answer: domain.AnswerKey{Values: []string{"a"}}},
		{Type: domain.MultiSelect, Answer: domain.AnswerKey{Values: []string{"a", "b"}}},
		{Type: domain.TrueFalse, Answer: domain.AnswerKey{Bool: boolPtr(true)}},
		{Type: domain.ShortAnswer, Answer: domain.AnswerKey{Values: []string{"x"}}},
		{Type: domain.Numeric, Answer: domain.AnswerKey{Number: floatPtr(3), Tolerance: 0.1}},
		{Type: domain.Scale},
	}
	answers := []string{`"a"`, `["b","a"]`, `true`, `"y"`, `3.05`, `2`, `null`, `{}`}
	for _, q := range questions {
		for _, a := range answers {
			first := Grade(q, 3, raw(a), Options{})
			second := Grade(q, 3, raw(a), Options{})
			if first.Score != second.Score || first.RequiresManual != second.RequiresManual ||
				(first.IsCorrect == nil) != (second.IsCorrect == nil) ||
				(first.IsCorrect != nil && *first.IsCorrect != *second.IsCorrect) {
				t.Fatalf("%s/%s: non-deterministic %+v vs %+v", q.Type, a, first, second)
			}
		}
	}
}

func TestValidate(t *testing.T) {
	mc := domain.Question{Type: domain.MultipleChoice, Options: []domain.Option{{ID: "a"}, {ID: "b"}}}
	ms := domain.Question{Type: domain.MultiSelect, Options: []domain.Option{{ID: "a"}, {ID: "b"}}}
	num := domain.Question{Type: domain.Numeric}

	tests := []struct {
		name    string
		q       domain.Question
		answer  string
		wantErr bool
	}{
		{"mc ok", mc, `"a"`, false},
		{"mc unknown option", mc, `"z"`, true},
		{"mc array", mc, `["a"]`, true},
		{"ms ok", ms, `["a","b"]`, false},
		{"ms scalar", ms, `"a"`, true},
		{"ms unknown option", ms, `["a","z"]`, true},
		{"numeric object", num, `{"v":1}`, true},
		{"numeric text parses later", num, `"abc"`, false},
		{"missing passes", num, `null`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.q, raw(tc.answer))
			if tc.wantErr && !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSpeedFactor(t *testing.T) {
	p := DefaultSpeedPolicy()
	limit := 20 * time.Second

	tests := []struct {
		elapsed time.Duration
		want    float64
	}{
		{0, 1},
		{10 * time.Second, 0.75},
		{20 * time.Second, 0.5},
		{60 * time.Second, 0.5},
		{-time.Second, 1},
	}
	for _, tc := range tests {
		if got := p.Factor(tc.elapsed, limit); got != tc.want {
			t.Fatalf("elapsed %v: expected %v, got %v", tc.elapsed, tc.want, got)
		}
	}
	if got := p.Factor(time.Second, 0); got != 1 {
		t.Fatalf("untimed question should not decay, got %v", got)
	}
	if got := (SpeedPolicy{}).Factor(10*time.Second, limit); got != 1 {
		t.Fatalf("disabled policy should not decay, got %v", got)
	}
}

func TestApplySpeedOnlyScalesCorrect(t *testing.T) {
	right := domain.Verdict{Score: 10, MaxScore: 10, IsCorrect: boolPtr(true)}
	wrong := domain.Verdict{Score: 0, MaxScore: 10, IsCorrect: boolPtr(false)}

	if got := ApplySpeed(right, 0.75); got.Score != 7.5 {
		t.Fatalf("expected 7.5, got %v", got.Score)
	}
	if got := ApplySpeed(wrong, 0.75); got.Score != 0 {
		t.Fatalf("expected 0, got %v", got.Score)
	}
}

func TestSameAnswer(t *testing.T) {
	if !SameAnswer(raw(`["A", "C"]`), raw(`["A","C"]`)) {
		t.Fatalf("expected whitespace-insensitive match")
	}
	if SameAnswer(raw(`"A"`), raw(`"a"`)) {
		t.Fatalf("expected different answers to differ")
	}
}
