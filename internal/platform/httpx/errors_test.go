package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opsledger/opsledger/internal/shared"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{shared.ErrNotFound, http.StatusNotFound},
		{shared.ErrCrossTenant, http.StatusNotFound},
		{fmt.Errorf("%w: %q", shared.ErrUnknownPermission, "x:y"), http.StatusBadRequest},
		{fmt.Errorf("%w: %q", shared.ErrPermissionNotFound, "x:y"), http.StatusBadRequest},
		{shared.ErrDuplicateRole, http.StatusConflict},
		{shared.ErrRoleHierarchyViolation, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		if rec.Code != tc.status {
			t.Errorf("RespondError(%v) status = %d, want %d", tc.err, rec.Code, tc.status)
		}
	}
}

func TestCrossTenantBodyMatchesNotFound(t *testing.T) {
	decode := func(err error) ProblemDetail {
		rec := httptest.NewRecorder()
		RespondError(rec, err)
		var detail ProblemDetail
		if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return detail
	}
	if decode(shared.ErrNotFound) != decode(shared.ErrCrossTenant) {
		t.Fatal("cross-tenant response must be indistinguishable from not-found")
	}
}
