package documents

import (
	"strings"
	"testing"
)

// The transition statements carry their legality rules in the WHERE clause.
// These assertions pin the guard predicates so a reworked query cannot
// silently widen the set of records a transition may touch.
func TestTransitionQueryGuards(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		guards []string
	}{
		{
			name:   "mark processing requires current status",
			query:  markProcessingQuery,
			guards: []string{"file_id = $1", "status = $3"},
		},
		{
			name:   "complete requires non-terminal status",
			query:  completeQuery,
			guards: []string{"file_id = $1", "status IN ($4, $5)"},
		},
		{
			name:   "fail requires non-terminal status",
			query:  failQuery,
			guards: []string{"file_id = $1", "status IN ($5, $6)"},
		},
		{
			name:   "mark callback requires pending callback on a terminal record",
			query:  markCallbackQuery,
			guards: []string{"file_id = $1", "callback_state = $3", "status IN ($4, $5)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, guard := range tt.guards {
				if !strings.Contains(tt.query, guard) {
					t.Errorf("query missing guard %q:\n%s", guard, tt.query)
				}
			}
		})
	}
}
