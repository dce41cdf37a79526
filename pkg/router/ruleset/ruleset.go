package ruleset

import (
	"fmt"
	"strconv"
	"strings"
)

// ValidSteps lists the step names a route may reference. The router resolves
// these against its registered step implementations at chain build time.
var ValidSteps = map[string]bool{
	"normalize":     true,
	"composite_key": true,
	"persist":       true,
	"search_index":  true,
}

// Route defines when and how to process a document update.
type Route struct {
	Name       string            `hcl:"name,label"`
	Collection string            `hcl:"collection,optional"`
	Conditions map[string]string `hcl:"conditions,optional"`
	Steps      []string          `hcl:"steps"`
	Overrides  []StepOverride    `hcl:"step,block"`
}

// StepOverride carries per-route configuration for a single step.
type StepOverride struct {
	Name   string            `hcl:"name,label"`
	Config map[string]string `hcl:"config,optional"`
}

// Routes is a collection of routes.
type Routes []Route

// Matcher matches document updates against routes.
type Matcher struct {
	routes Routes
}

// NewMatcher creates a new route matcher.
func NewMatcher(routes Routes) *Matcher {
	return &Matcher{
		routes: routes,
	}
}

// Match returns the first route that matches the given collection and fields.
// Routes are evaluated in declaration order; the first match wins.
func (m *Matcher) Match(collection string, fields map[string]interface{}) (*Route, bool) {
	for i := range m.routes {
		if m.routes[i].Matches(collection, fields) {
			return &m.routes[i], true
		}
	}
	return nil, false
}

// MatchAll returns every route that matches. Used for introspection: the
// routing table endpoint reports all candidate routes for a document shape.
func (m *Matcher) MatchAll(collection string, fields map[string]interface{}) []Route {
	var matched []Route
	for _, route := range m.routes {
		if route.Matches(collection, fields) {
			matched = append(matched, route)
		}
	}
	return matched
}

// Routes returns the underlying route table.
func (m *Matcher) Routes() Routes {
	return m.routes
}

// Matches checks if this route matches the given collection and fields.
func (r *Route) Matches(collection string, fields map[string]interface{}) bool {
	// Collection attribute is a first-class filter; empty matches any.
	if r.Collection != "" && r.Collection != collection {
		return false
	}

	// If no conditions, match all (default route)
	if len(r.Conditions) == 0 {
		return true
	}

	// All conditions must match (AND logic)
	for key, expected := range r.Conditions {
		if !r.matchCondition(key, expected, collection, fields) {
			return false
		}
	}

	return true
}

// matchCondition checks if a single condition matches.
func (r *Route) matchCondition(key, expected, collection string, fields map[string]interface{}) bool {
	actual := r.getValue(key, collection, fields)

	// Handle different condition operators
	if strings.HasSuffix(key, "_gt") {
		// Greater than comparison (e.g., version_gt = "3")
		return r.compareGreaterThan(actual, expected)
	}

	if strings.HasSuffix(key, "_lt") {
		// Less than comparison (e.g., priority_lt = "10")
		return r.compareLessThan(actual, expected)
	}

	if strings.HasSuffix(key, "_contains") {
		// Contains comparison (e.g., title_contains = "draft")
		return r.compareContains(actual, expected)
	}

	// Default: exact match or IN operator (comma-separated values)
	return r.compareEquals(actual, expected)
}

// getValue extracts the value for a given key from the update.
func (r *Route) getValue(key, collection string, fields map[string]interface{}) interface{} {
	// Strip operator suffixes
	key = strings.TrimSuffix(key, "_gt")
	key = strings.TrimSuffix(key, "_lt")
	key = strings.TrimSuffix(key, "_contains")

	// "collection" is reserved; everything else reads the field map.
	if key == "collection" {
		return collection
	}

	if val, ok := fields[key]; ok {
		return val
	}

	return nil
}

// compareEquals checks if actual equals expected (or is in comma-separated list).
func (r *Route) compareEquals(actual interface{}, expected string) bool {
	if actual == nil {
		return false
	}

	actualStr := fmt.Sprintf("%v", actual)

	// Check if expected is a comma-separated list (IN operator)
	if strings.Contains(expected, ",") {
		values := strings.Split(expected, ",")
		for _, val := range values {
			if strings.TrimSpace(val) == actualStr {
				return true
			}
		}
		return false
	}

	// Exact match
	return actualStr == expected
}

// compareGreaterThan checks if actual > expected (numeric comparison).
func (r *Route) compareGreaterThan(actual interface{}, expected string) bool {
	if actual == nil {
		return false
	}

	actualNum, err := r.toNumber(actual)
	if err != nil {
		return false
	}

	expectedNum, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return false
	}

	return actualNum > expectedNum
}

// compareLessThan checks if actual < expected (numeric comparison).
func (r *Route) compareLessThan(actual interface{}, expected string) bool {
	if actual == nil {
		return false
	}

	actualNum, err := r.toNumber(actual)
	if err != nil {
		return false
	}

	expectedNum, err := strconv.ParseFloat(expected, 64)
	if err != nil {
		return false
	}

	return actualNum < expectedNum
}

// compareContains checks if actual contains expected (case-insensitive).
func (r *Route) compareContains(actual interface{}, expected string) bool {
	if actual == nil {
		return false
	}

	actualStr := fmt.Sprintf("%v", actual)
	return strings.Contains(strings.ToLower(actualStr), strings.ToLower(expected))
}

// toNumber converts a value to a float64.
func (r *Route) toNumber(val interface{}) (float64, error) {
	switch v := val.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to number", val)
	}
}

// StepConfig returns the configuration for a specific step, or nil when the
// route carries no override for it. Values are strings in HCL; steps decode
// them with weakly typed mapstructure.
func (r *Route) StepConfig(stepName string) map[string]interface{} {
	for _, override := range r.Overrides {
		if override.Name != stepName {
			continue
		}
		config := make(map[string]interface{}, len(override.Config))
		for k, v := range override.Config {
			config[k] = v
		}
		return config
	}
	return nil
}

// Validate checks if the route configuration is valid.
func (r *Route) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("route name is required")
	}

	if len(r.Steps) == 0 {
		return fmt.Errorf("route %s: steps are required", r.Name)
	}

	for _, step := range r.Steps {
		if !ValidSteps[step] {
			return fmt.Errorf("route %s: unknown step %q", r.Name, step)
		}
	}

	for _, override := range r.Overrides {
		if !ValidSteps[override.Name] {
			return fmt.Errorf("route %s: config for unknown step %q", r.Name, override.Name)
		}
	}

	return nil
}

// ValidateAll validates all routes in the collection and rejects duplicates.
func (rs Routes) ValidateAll() error {
	if len(rs) == 0 {
		return fmt.Errorf("at least one route is required")
	}

	seen := make(map[string]bool)
	for _, route := range rs {
		if seen[route.Name] {
			return fmt.Errorf("duplicate route name: %s", route.Name)
		}
		seen[route.Name] = true

		if err := route.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// Example route configurations:
//
// Route 1: People records get keyed and indexed
// route "people" {
//   collection = "people"
//   steps      = ["normalize", "composite_key", "persist", "search_index"]
//
//   step "normalize" {
//     config = {
//       canonical_keys = "true"
//       time_fields    = "createdAt,updatedAt"
//     }
//   }
// }
//
// Route 2: High-priority orders only
// route "orders-priority" {
//   collection = "orders"
//   conditions = {
//     priority_gt = "5"
//   }
//   steps = ["normalize", "composite_key", "persist", "search_index"]
// }
//
// Route 3: Catch-all fallback
// route "default" {
//   steps = ["normalize", "persist"]
// }
