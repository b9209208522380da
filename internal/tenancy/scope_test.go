package tenancy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/shared"
)

func TestScopeBusinessID(t *testing.T) {
	businessID := uuid.New()
	scope := NewScope(businessID)

	got, err := scope.BusinessID()
	if err != nil {
		t.Fatalf("BusinessID: %v", err)
	}
	if got != businessID {
		t.Fatalf("BusinessID = %s, want %s", got, businessID)
	}
}

func TestNilScope(t *testing.T) {
	var scope *Scope
	_, err := scope.BusinessID()
	if !errors.Is(err, shared.ErrNoScope) {
		t.Fatalf("nil scope: got %v", err)
	}
}

func TestRunScopedReleasesScope(t *testing.T) {
	var leaked *Scope
	err := RunScoped(context.Background(), uuid.New(), func(ctx context.Context, scope *Scope) error {
		leaked = scope
		if ScopeFromContext(ctx) != scope {
			t.Fatal("scope not stored in context")
		}
		if _, err := scope.BusinessID(); err != nil {
			t.Fatalf("scope unusable inside fn: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunScoped: %v", err)
	}

	if _, err := leaked.BusinessID(); !errors.Is(err, shared.ErrScopeReleased) {
		t.Fatalf("leaked scope: got %v", err)
	}
}

func TestRunScopedPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := RunScoped(context.Background(), uuid.New(), func(context.Context, *Scope) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestScopeFromContextMissing(t *testing.T) {
	if ScopeFromContext(context.Background()) != nil {
		t.Fatal("expected nil scope for bare context")
	}
}
