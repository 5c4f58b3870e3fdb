package rbac

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/datarequests/pkg/teams"
)

// ErrDenied is returned by Authorize when no row grants the request
var ErrDenied = errors.New("permission denied")

//go:embed default_policy.yaml
var defaultPolicyYAML []byte

// Policy is an immutable, validated policy table
type Policy struct {
	rules []Rule
}

type policyFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewPolicy validates rules and builds a policy
func NewPolicy(rules []Rule) (*Policy, error) {
	for i, r := range rules {
		if err := r.validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return &Policy{rules: append([]Rule(nil), rules...)}, nil
}

// ParsePolicy decodes a YAML policy table. Unknown fields are rejected.
func ParsePolicy(data []byte) (*Policy, error) {
	var file policyFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	return NewPolicy(file.Rules)
}

// LoadPolicyFile reads and parses a policy file
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return ParsePolicy(data)
}

// DefaultPolicy returns the embedded default table
func DefaultPolicy() *Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default policy is invalid: %v", err))
	}
	return p
}

// Rules returns a copy of the table
func (p *Policy) Rules() []Rule {
	return append([]Rule(nil), p.rules...)
}

// IsAllowed reports whether any row grants role the action on resource.
// Conditions are not evaluated.
func (p *Policy) IsAllowed(role string, action Action, resource Resource) bool {
	for _, r := range p.rules {
		if r.matches(role, action, resource) {
			return true
		}
	}
	return false
}

// Authorize checks the matrix and the row conditions for a resolved role
// acting inside projectID.
func (p *Policy) Authorize(role *teams.TeamRole, projectID int64, action Action, resource Resource) error {
	if role == nil {
		return fmt.Errorf("no role: %w", ErrDenied)
	}

	matched := false
	for _, r := range p.rules {
		if !r.matches(role.Role, action, resource) {
			continue
		}
		matched = true
		if conditionHolds(r.Condition, role, projectID) {
			return nil
		}
	}

	if matched {
		return fmt.Errorf("role %s has no access to project %d: %w", role.Role, projectID, ErrDenied)
	}
	return fmt.Errorf("role %s may not %s %s: %w", role.Role, action, resource, ErrDenied)
}

func conditionHolds(c Condition, role *teams.TeamRole, projectID int64) bool {
	switch c {
	case "", ConditionNone:
		return true
	case ConditionProjectAccess:
		return role.CanAccessProject(projectID)
	default:
		return false
	}
}
