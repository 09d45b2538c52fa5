package rules

import (
	"context"
	"regexp"
	"strings"
)

// ApplicableRules returns the enabled rules for a document whose trigger
// pattern matches the query or is absent, ordered by score descending.
// A trigger pattern is treated as a case-insensitive regular expression; if
// it does not compile it falls back to a case-insensitive substring match.
func (s *Store) ApplicableRules(ctx context.Context, documentID, query string) ([]Rule, error) {
	enabled, err := s.List(ctx, ListFilter{DocumentID: documentID, EnabledOnly: true})
	if err != nil {
		return nil, err
	}

	var matched []Rule
	for _, r := range enabled {
		if triggerMatches(r.TriggerPattern, query) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

func triggerMatches(pattern, query string) bool {
	if pattern == "" {
		return true
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return strings.Contains(strings.ToLower(query), strings.ToLower(pattern))
	}
	return re.MatchString(query)
}
