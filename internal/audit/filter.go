package audit

import (
	"fmt"
	"whitelistbot/internal/types"

	json "github.com/goccy/go-json"
	"github.com/jmespath/go-jmespath"
)

// Match evaluates the JMESPath expression against the JSON form of ev.
// An empty expression matches everything. A non boolean result does not match.
func Match(expression string, ev types.AuditEvent) (bool, error) {
	if expression == "" {
		return true, nil
	}
	doc, err := toDocument(ev)
	if err != nil {
		return false, err
	}
	v, err := jmespath.Search(expression, doc)
	if err != nil {
		return false, fmt.Errorf("jmespath: %w", err)
	}
	matched, ok := v.(bool)
	return ok && matched, nil
}

// ValidateFilter compiles expression so a bad filter fails at startup, not per event.
func ValidateFilter(expression string) error {
	if expression == "" {
		return nil
	}
	if _, err := jmespath.Compile(expression); err != nil {
		return types.Err(types.ErrInvalidConfig, err, "audit filter %q", expression)
	}
	return nil
}

func toDocument(ev types.AuditEvent) (map[string]any, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
