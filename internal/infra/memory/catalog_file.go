package memory

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"live-assessment-service/internal/domain"
)

type catalogFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadCatalogFile reads a YAML quiz catalog and returns a loader serving it.
// Every quiz needs an id and every question a known type.
func LoadCatalogFile(path string) (*StaticQuizLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes a YAML quiz catalog.
func ParseCatalog(data []byte) (*StaticQuizLoader, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	quizzes := make(map[string]domain.Quiz, len(file.Quizzes))
	for _, quiz := range file.Quizzes {
		if quiz.ID == "" {
			return nil, fmt.Errorf("catalog: quiz without id")
		}
		if _, dup := quizzes[quiz.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate quiz %q", quiz.ID)
		}
		seen := make(map[string]struct{}, len(quiz.Questions))
		for i, q := range quiz.Questions {
			if q.ID == "" {
				return nil, fmt.Errorf("catalog: quiz %q question %d without id", quiz.ID, i)
			}
			if _, dup := seen[q.ID]; dup {
				return nil, fmt.Errorf("catalog: quiz %q duplicate question %q", quiz.ID, q.ID)
			}
			seen[q.ID] = struct{}{}
			if !q.Type.Valid() {
				return nil, fmt.Errorf("catalog: quiz %q question %q has unknown type %q", quiz.ID, q.ID, q.Type)
			}
		}
		quizzes[quiz.ID] = quiz.Sorted()
	}
	return NewStaticQuizLoader(quizzes), nil
}
