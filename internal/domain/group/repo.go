package group

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a group does not exist.
var ErrNotFound = errors.New("group not found")

type Repository interface {
	Create(ctx context.Context, g *Group) error
	GetByID(ctx context.Context, id uuid.UUID) (*Group, error)
	List(ctx context.Context, limit, offset int) ([]*Group, int, error)
	// Members
	AddMember(ctx context.Context, m *Member) error
	RemoveMember(ctx context.Context, groupID, userID uuid.UUID) error
	ListMembers(ctx context.Context, groupID uuid.UUID) ([]*Member, error)
	// ListEditors returns members holding edit or admin permission,
	// the recipient set for deadline notifications.
	ListEditors(ctx context.Context, groupID uuid.UUID) ([]*Member, error)
}
