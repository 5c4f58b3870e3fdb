package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/datarequests/pkg/access"
	"github.com/platinummonkey/datarequests/pkg/executor"
	"github.com/platinummonkey/datarequests/pkg/httputil"
	"github.com/platinummonkey/datarequests/pkg/middleware"
	"github.com/platinummonkey/datarequests/pkg/models"
	"github.com/platinummonkey/datarequests/pkg/observability"
	"github.com/platinummonkey/datarequests/pkg/rbac"
	"github.com/platinummonkey/datarequests/pkg/storage"
	"github.com/platinummonkey/datarequests/pkg/teams"
)

// RootPath is the collection path of a dataset's data requests
const RootPath = "/team/{team_id}/projects/{project_id}/charts/{chart_id}/datasets/{dataset_id}/dataRequests"

// Store is the data request storage the handlers use
type Store interface {
	storage.DataRequestReader
	storage.DataRequestWriter
}

// AccessChecker runs the ownership chain for a target
type AccessChecker interface {
	CheckAccess(ctx context.Context, target access.Target) (*teams.TeamRole, error)
}

// PolicySource returns the permission table in effect
type PolicySource interface {
	Policy() *rbac.Policy
}

// Runner executes a data request
type Runner interface {
	Execute(ctx context.Context, req executor.Request) (*executor.Result, error)
}

// DataRequestHandlers handles the data request endpoints
type DataRequestHandlers struct {
	store   Store
	access  AccessChecker
	policy  PolicySource
	runner  Runner
	metrics *observability.Metrics
}

// NewDataRequestHandlers creates the handlers
func NewDataRequestHandlers(store Store, checker AccessChecker, policy PolicySource, runner Runner, metrics *observability.Metrics) *DataRequestHandlers {
	if metrics == nil {
		metrics = observability.NewNopMetrics()
	}
	return &DataRequestHandlers{
		store:   store,
		access:  checker,
		policy:  policy,
		runner:  runner,
		metrics: metrics,
	}
}

// RegisterRoutes registers the data request routes
func (h *DataRequestHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(RootPath, h.CreateDataRequest).Methods(http.MethodPost)
	router.HandleFunc(RootPath, h.ListDataRequests).Methods(http.MethodGet)
	router.HandleFunc(RootPath+"/{id}", h.GetDataRequest).Methods(http.MethodGet)
	router.HandleFunc(RootPath+"/{id}", h.UpdateDataRequest).Methods(http.MethodPut)
	router.HandleFunc(RootPath+"/{id}", h.DeleteDataRequest).Methods(http.MethodDelete)
	router.HandleFunc(RootPath+"/{id}/request", h.RunDataRequest).Methods(http.MethodPost)
}

// CreateDataRequest handles POST RootPath
func (h *DataRequestHandlers) CreateDataRequest(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(w, r, false)
	if !ok {
		return
	}

	if err := h.authorize(r, target, rbac.ActionCreate); err != nil {
		h.writeError(w, r, err)
		return
	}

	var body models.CreateDataRequest
	if err := httputil.ParseJSON(r, &body); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	// the body may omit the dataset; naming another one is a chain mismatch
	if body.DatasetID == 0 {
		body.DatasetID = target.DatasetID
	} else if body.DatasetID != target.DatasetID {
		h.writeError(w, r, access.ErrUnauthorized)
		return
	}

	if err := body.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	dr := &models.DataRequest{
		DatasetID:     body.DatasetID,
		Route:         body.Route,
		Method:        body.Method,
		Configuration: body.Configuration,
		ItemsLimit:    body.ItemsLimit,
	}
	if err := h.store.CreateDataRequest(r.Context(), dr); err != nil {
		h.writeError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithField("data_request_id", dr.ID).Info("Data request created")
	_ = httputil.WriteSuccess(w, dr)
}

// ListDataRequests handles GET RootPath
func (h *DataRequestHandlers) ListDataRequests(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(w, r, false)
	if !ok {
		return
	}
	if err := h.authorize(r, target, rbac.ActionList); err != nil {
		h.writeError(w, r, err)
		return
	}

	list, err := h.store.ListDataRequestsByDataset(r.Context(), target.DatasetID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(list) == 0 {
		httputil.WriteNotFound(w, "no data requests found")
		return
	}
	_ = httputil.WriteSuccess(w, list)
}

// GetDataRequest handles GET RootPath/{id}
func (h *DataRequestHandlers) GetDataRequest(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(w, r, true)
	if !ok {
		return
	}
	if err := h.authorize(r, target, rbac.ActionRead); err != nil {
		h.writeError(w, r, err)
		return
	}

	dr, err := h.store.GetDataRequest(r.Context(), target.DataRequestID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, dr)
}

// UpdateDataRequest handles PUT RootPath/{id}
func (h *DataRequestHandlers) UpdateDataRequest(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(w, r, true)
	if !ok {
		return
	}

	if err := h.authorize(r, target, rbac.ActionUpdate); err != nil {
		h.writeError(w, r, err)
		return
	}

	var body models.UpdateDataRequest
	if err := httputil.ParseJSON(r, &body); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if err := body.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	dr, err := h.store.UpdateDataRequest(r.Context(), target.DataRequestID, &body)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, dr)
}

// DeleteResponse is the body of a successful delete
type DeleteResponse struct {
	Deleted bool  `json:"deleted"`
	ID      int64 `json:"id"`
}

// DeleteDataRequest handles DELETE RootPath/{id}
func (h *DataRequestHandlers) DeleteDataRequest(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(w, r, true)
	if !ok {
		return
	}
	if err := h.authorize(r, target, rbac.ActionDelete); err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := h.store.DeleteDataRequest(r.Context(), target.DataRequestID); err != nil {
		h.writeError(w, r, err)
		return
	}

	observability.FromContext(r.Context()).WithField("data_request_id", target.DataRequestID).Info("Data request deleted")
	_ = httputil.WriteSuccess(w, DeleteResponse{Deleted: true, ID: target.DataRequestID})
}

// RunRequest is the body of a run. GetCache is accepted for older clients.
type RunRequest struct {
	NoSource bool  `json:"noSource"`
	UseCache *bool `json:"useCache,omitempty"`
	GetCache *bool `json:"getCache,omitempty"`
}

func (b RunRequest) useCache() bool {
	if b.UseCache != nil {
		return *b.UseCache
	}
	return b.GetCache != nil && *b.GetCache
}

// UpstreamFailure is the 200 body returned when the source call fails
type UpstreamFailure struct {
	DataRequest *models.DataRequest `json:"dataRequest"`
	Error       any                 `json:"error"`
}

// RunDataRequest handles POST RootPath/{id}/request
func (h *DataRequestHandlers) RunDataRequest(w http.ResponseWriter, r *http.Request) {
	target, ok := parseTarget(w, r, true)
	if !ok {
		return
	}

	if err := h.authorize(r, target, rbac.ActionRun); err != nil {
		h.writeError(w, r, err)
		return
	}

	var body RunRequest
	if err := httputil.ParseOptionalJSON(r, &body); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.runner.Execute(r.Context(), executor.Request{
		DataRequestID: target.DataRequestID,
		ChartID:       target.ChartID,
		NoSource:      body.NoSource,
		UseCache:      body.useCache(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	_ = httputil.WriteSuccess(w, result)
}

// authorize runs the access chain then the policy for action on a data request
func (h *DataRequestHandlers) authorize(r *http.Request, target access.Target, action rbac.Action) error {
	authCtx := middleware.GetAuthContext(r)
	if authCtx == nil {
		return access.ErrUnauthorized
	}
	target.UserID = authCtx.UserID

	role, err := h.access.CheckAccess(r.Context(), target)
	if err != nil {
		if isUnauthorized(err) {
			h.metrics.AccessDenialsTotal.WithLabelValues("chain").Inc()
		}
		return err
	}

	if err := h.policy.Policy().Authorize(role, target.ProjectID, action, rbac.ResourceDataRequest); err != nil {
		h.metrics.AccessDenialsTotal.WithLabelValues("policy").Inc()
		return err
	}
	return nil
}

// parseTarget reads the path ids. withID also requires the data request id.
func parseTarget(w http.ResponseWriter, r *http.Request, withID bool) (access.Target, bool) {
	var t access.Target
	var ok bool
	if t.TeamID, ok = httputil.ParsePathInt64OrError(w, r, "team_id"); !ok {
		return t, false
	}
	if t.ProjectID, ok = httputil.ParsePathInt64OrError(w, r, "project_id"); !ok {
		return t, false
	}
	if t.ChartID, ok = httputil.ParsePathInt64OrError(w, r, "chart_id"); !ok {
		return t, false
	}
	if t.DatasetID, ok = httputil.ParsePathInt64OrError(w, r, "dataset_id"); !ok {
		return t, false
	}
	if withID {
		if t.DataRequestID, ok = httputil.ParsePathInt64OrError(w, r, "id"); !ok {
			return t, false
		}
	}
	return t, true
}
