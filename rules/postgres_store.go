package rules

import (
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore loads the rule set from the rule_phases table. It is
// the deployment option for centres that manage rules centrally instead
// of shipping a YAML file with the job.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed rule store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// LoadRuleSet reads every rule ordered by phase position then rule
// position, so the loaded set evaluates in the same order the YAML
// store would.
func (s *PostgresStore) LoadRuleSet() (*Set, error) {
	rows, err := s.db.Query(`
		SELECT phase_key, name, condition, actions
		FROM rule_phases
		ORDER BY phase_position ASC, rule_position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule phases: %w", err)
	}
	defer rows.Close()

	var phases []Phase
	index := make(map[string]int)

	for rows.Next() {
		var phaseKey string
		var r Rule
		if err := rows.Scan(&phaseKey, &r.Name, &r.Condition, pq.Array(&r.Actions)); err != nil {
			return nil, fmt.Errorf("failed to scan rule row: %w", err)
		}

		i, ok := index[phaseKey]
		if !ok {
			i = len(phases)
			index[phaseKey] = i
			phases = append(phases, Phase{Key: phaseKey})
		}
		phases[i].Rules = append(phases[i].Rules, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule rows: %w", err)
	}
	if len(phases) == 0 {
		return nil, fmt.Errorf("rule_phases table defines no phases")
	}

	return NewSet(phases)
}
