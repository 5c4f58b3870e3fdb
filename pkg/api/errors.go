package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/datarequests/pkg/access"
	"github.com/platinummonkey/datarequests/pkg/executor"
	"github.com/platinummonkey/datarequests/pkg/httputil"
	"github.com/platinummonkey/datarequests/pkg/observability"
	"github.com/platinummonkey/datarequests/pkg/rbac"
	"github.com/platinummonkey/datarequests/pkg/upstream"
)

func isUnauthorized(err error) bool {
	return errors.Is(err, access.ErrUnauthorized) || errors.Is(err, rbac.ErrDenied)
}

// writeError maps an error kind to its response
func (h *DataRequestHandlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.FromContext(r.Context()).WithError(err)

	var upErr *executor.UpstreamError
	switch {
	case isUnauthorized(err):
		logger.Info("Access denied")
		httputil.WriteUnauthorized(w)
	case errors.As(err, &upErr):
		logger.Warn("Data request run failed at the source")
		_ = httputil.WriteSuccess(w, UpstreamFailure{
			DataRequest: upErr.DataRequest,
			Error:       upstreamPayload(upErr),
		})
	default:
		logger.Info("Request failed")
		httputil.WriteBadRequest(w, err.Error())
	}
}

// upstreamPayload is what the source said, or the transport error text
func upstreamPayload(err *executor.UpstreamError) any {
	if statusErr, ok := upstream.IsStatusError(err); ok && statusErr.Body != nil {
		return statusErr.Body
	}
	return err.Err.Error()
}
