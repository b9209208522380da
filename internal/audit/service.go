package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opsledger/opsledger/internal/tenancy"
)

// RepositoryPort defines the queries the timeline service needs.
type RepositoryPort interface {
	Timeline(ctx context.Context, scope *tenancy.Scope, filters TimelineFilters, limit, offset int) ([]Entry, error)
}

// TimelineFilters narrows the compliance timeline.
type TimelineFilters struct {
	Kind         string
	Permission   string
	TargetUserID *uuid.UUID
	Page         int
	PageSize     int
}

// PagingInfo describes the returned window.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result wraps timeline rows with paging information.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// Service reads the audit trail for the compliance surface.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Timeline fetches a page of audit entries, newest first.
func (s *Service) Timeline(ctx context.Context, scope *tenancy.Scope, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	entries, err := s.repo.Timeline(ctx, scope, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > pageSize
	if hasNext {
		entries = entries[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}
