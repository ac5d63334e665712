package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/phillip/farewell-fund-go/models"
	"github.com/phillip/farewell-fund-go/store"
)

// RoleSource answers the caller's role in an event. ok is false when the
// source has no opinion, which lets the next source in a chain decide.
type RoleSource interface {
	Role(ctx context.Context, id *Identity, eventID string) (role models.Role, ok bool, err error)
}

// ClaimsRoles reads the role map carried in the session claims.
type ClaimsRoles struct{}

func (ClaimsRoles) Role(_ context.Context, id *Identity, eventID string) (models.Role, bool, error) {
	if id == nil || id.EventRoles == nil {
		return "", false, nil
	}
	role, ok := id.EventRoles[eventID]
	if !ok || role == "" {
		return "", false, nil
	}
	return role, true, nil
}

// MembershipRoles reads the authoritative membership store.
type MembershipRoles struct {
	Members store.MemberStore
}

func (m MembershipRoles) Role(ctx context.Context, id *Identity, eventID string) (models.Role, bool, error) {
	member, err := m.Members.GetMember(ctx, eventID, id.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return member.Role, true, nil
}

// Resolver walks its sources in order. For the admin check, a source only
// short-circuits with a yes; a non-admin or missing answer falls through, so
// a claim that lags a promotion is corrected by the store.
type Resolver struct {
	sources []RoleSource
	log     *zap.Logger
}

func NewResolver(log *zap.Logger, sources ...RoleSource) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{sources: sources, log: log}
}

// NewClaimsThenMembership is the standard chain: session claims first,
// membership store as the fallback.
func NewClaimsThenMembership(members store.MemberStore, log *zap.Logger) *Resolver {
	return NewResolver(log, ClaimsRoles{}, MembershipRoles{Members: members})
}

func (r *Resolver) IsEventAdmin(ctx context.Context, id *Identity, eventID string) (bool, error) {
	if id.Anonymous() {
		return false, nil
	}
	for _, src := range r.sources {
		role, ok, err := src.Role(ctx, id, eventID)
		if err != nil {
			return false, err
		}
		if ok && role.IsAdminTier() {
			return true, nil
		}
	}
	return false, nil
}

// IsEventMember reports whether any source knows the caller in eventID.
func (r *Resolver) IsEventMember(ctx context.Context, id *Identity, eventID string) (bool, error) {
	if id.Anonymous() {
		return false, nil
	}
	for _, src := range r.sources {
		_, ok, err := src.Role(ctx, id, eventID)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// RequireAdmin fails closed: no identity, no admin role, or a lookup error
// all deny.
func (r *Resolver) RequireAdmin(ctx context.Context, id *Identity, eventID string) error {
	if id.Anonymous() {
		return ErrUnauthenticated
	}
	ok, err := r.IsEventAdmin(ctx, id, eventID)
	if err != nil {
		return storageFailure(r.log, "resolve admin role", err)
	}
	if !ok {
		r.log.Warn("admin check denied", zap.String("user_id", id.UserID), zap.String("event_id", eventID))
		return ErrUnauthorized
	}
	return nil
}

func (r *Resolver) RequireMember(ctx context.Context, id *Identity, eventID string) error {
	if id.Anonymous() {
		return ErrUnauthenticated
	}
	ok, err := r.IsEventMember(ctx, id, eventID)
	if err != nil {
		return storageFailure(r.log, "resolve membership", err)
	}
	if !ok {
		r.log.Warn("membership check denied", zap.String("user_id", id.UserID), zap.String("event_id", eventID))
		return ErrUnauthorized
	}
	return nil
}
