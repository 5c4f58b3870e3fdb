// Package api serves the data request endpoints.
//
// Every route lives under the ownership path of its dataset:
//
//	/team/{team_id}/projects/{project_id}/charts/{chart_id}/datasets/{dataset_id}/dataRequests
//
//	POST   .../dataRequests               create
//	GET    .../dataRequests               list
//	GET    .../dataRequests/{id}          read
//	PUT    .../dataRequests/{id}          update
//	DELETE .../dataRequests/{id}          delete
//	POST   .../dataRequests/{id}/request  run
//
// Each handler runs the access chain for the full path, then the permission
// policy, before touching storage. Handlers are the only place where error
// kinds become status codes:
//
//	access.ErrUnauthorized, rbac.ErrDenied  401 {"error":"Not authorized"}
//	models.ErrValidation                    400
//	storage.ErrNotFound                     400 (404 for an empty list)
//	executor.ErrUpstream                    200 {"dataRequest": ..., "error": ...}
//	anything else                           400
package api
