// Package rbac decides whether a team role may perform an action on a
// resource kind.
//
// # Policy table
//
// The decision matrix is data, not code. Each row grants a role a set of
// actions on a resource kind, optionally under a condition:
//
//	rules:
//	  - role: projectViewer
//	    resource: dataRequest
//	    actions: [read, list, run]
//	    condition: project_access
//
// "*" matches any role, resource or action. A default table is embedded and
// used when no file is configured.
//
// # Conditions
//
//	none            the matrix alone decides
//	project_access  the addressed project must be in the role's project set
//
// # Evaluation
//
// IsAllowed answers from the matrix only. Authorize applies the matrix and
// then the condition of the first matching row that is satisfied:
//
//	if err := holder.Policy().Authorize(role, projectID, rbac.ActionRun, rbac.ResourceDataRequest); err != nil {
//		// errors.Is(err, rbac.ErrDenied)
//	}
//
// # Reloading
//
// Holder keeps the active table behind an atomic pointer. Watch reloads the
// file when it changes; a file that fails to load leaves the previous table
// in place.
package rbac
