package rbac

import "fmt"

// Resource is a kind of resource a role may act on
type Resource string

const (
	ResourceDataRequest Resource = "dataRequest"
	ResourceAny         Resource = "*"
)

// Action is an operation on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionList   Action = "list"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionRun    Action = "run"
	ActionAny    Action = "*"
)

// Condition further restricts a granted row
type Condition string

const (
	ConditionNone          Condition = "none"
	ConditionProjectAccess Condition = "project_access"
)

// RoleAny matches every role
const RoleAny = "*"

// Rule is one row of the policy table
type Rule struct {
	Role      string    `yaml:"role"`
	Resource  Resource  `yaml:"resource"`
	Actions   []Action  `yaml:"actions"`
	Condition Condition `yaml:"condition,omitempty"`
}

func (r Rule) validate() error {
	if r.Role == "" {
		return fmt.Errorf("rule has no role")
	}
	if r.Resource == "" {
		return fmt.Errorf("rule for role %q has no resource", r.Role)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("rule for role %q on %q has no actions", r.Role, r.Resource)
	}
	switch r.Condition {
	case "", ConditionNone, ConditionProjectAccess:
	default:
		return fmt.Errorf("rule for role %q has unknown condition %q", r.Role, r.Condition)
	}
	return nil
}

func (r Rule) matches(role string, action Action, resource Resource) bool {
	if r.Role != RoleAny && r.Role != role {
		return false
	}
	if r.Resource != ResourceAny && r.Resource != resource {
		return false
	}
	for _, a := range r.Actions {
		if a == ActionAny || a == action {
			return true
		}
	}
	return false
}
