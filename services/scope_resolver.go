package services

import (
	"context"
	"fmt"

	"filemanager/models"
	"filemanager/storage"
	"filemanager/utils"
)

// ScopeResolver derives the subtree an actor may touch. Level 0 actors
// see the whole storage root; everyone else is confined to their
// company's folder beneath it.
type ScopeResolver struct {
	root     PathSpec
	guard    *PathGuard
	provider AuthorizationProvider
}

func NewScopeResolver(root PathSpec, guard *PathGuard, provider AuthorizationProvider) *ScopeResolver {
	return &ScopeResolver{root: root, guard: guard, provider: provider}
}

// Root is the global storage root.
func (r *ScopeResolver) Root() PathSpec {
	return r.root
}

// ResolveScope fails closed: without a resolvable company a scoped actor
// gets no root at all.
func (r *ScopeResolver) ResolveScope(ctx context.Context, actor *models.Actor) (PathSpec, error) {
	if actor.IsRoot() {
		return r.root, nil
	}
	if actor.CompanyID == "" {
		return PathSpec{}, ErrNoCompany
	}

	name, err := r.provider.CompanyName(ctx, actor.CompanyID)
	if err != nil {
		return PathSpec{}, fmt.Errorf("resolve company %s: %w", actor.CompanyID, ErrNoCompany)
	}

	// a company name that is not a usable folder name grants nothing
	scope, err := r.guard.Join(r.root, name)
	if err != nil {
		utils.LogWarningf("company %s has unusable folder name %q: %v", actor.CompanyID, name, err)
		return PathSpec{}, ErrNoCompany
	}
	return scope, nil
}

// IsWithinScope reports whether p is the scope root or lies beneath it.
func IsWithinScope(scope, p PathSpec) bool {
	return storage.IsWithin(scope.Relative, p.Relative)
}

// CompanyFolder returns the folder a company's scope resolves to.
func (r *ScopeResolver) CompanyFolder(companyName string) (PathSpec, error) {
	return r.guard.Join(r.root, companyName)
}
