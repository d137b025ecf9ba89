package rules

import (
	"fmt"

	"github.com/spf13/viper"
)

// Store loads the declarative rule set for a batch run. The set is read
// once at startup; stores never reload mid-batch.
type Store interface {
	LoadRuleSet() (*Set, error)
}

// FileStore reads phases from a YAML rules document:
//
//	phases:
//	  - key: deal_breakers
//	    rules:
//	      - name: minor
//	        condition: age < 18
//	        actions: ["minor"]
type FileStore struct {
	path string
}

// NewFileStore creates a store reading from the given YAML file.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// LoadRuleSet parses the rules document. Phases and rules keep their
// document order.
func (s *FileStore) LoadRuleSet() (*Set, error) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", s.path, err)
	}

	var phases []Phase
	if err := v.UnmarshalKey("phases", &phases); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", s.path, err)
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("rules file %s defines no phases", s.path)
	}

	return NewSet(phases)
}
