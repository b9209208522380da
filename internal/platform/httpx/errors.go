package httpx

import (
	"errors"
	"net/http"

	"github.com/opsledger/opsledger/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807. Cross-tenant
// probes are deliberately indistinguishable from plain not-found here.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrCrossTenant):
		Problem(w, http.StatusNotFound, "Not Found", shared.ErrNotFound.Error())
	case errors.Is(err, shared.ErrUnknownPermission):
		Problem(w, http.StatusBadRequest, "Unknown Permission", err.Error())
	case errors.Is(err, shared.ErrPermissionNotFound):
		Problem(w, http.StatusBadRequest, "Permission Not Found", err.Error())
	case errors.Is(err, shared.ErrDuplicateRole):
		Problem(w, http.StatusConflict, "Duplicate Role", err.Error())
	case errors.Is(err, shared.ErrRoleHierarchyViolation):
		Problem(w, http.StatusUnprocessableEntity, "Role Hierarchy Violation", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
