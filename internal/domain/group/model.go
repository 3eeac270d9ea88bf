package group

import (
	"time"

	"github.com/google/uuid"
)

// Permission levels for group members. Members holding edit or admin
// receive deadline notifications for disputes assigned to the group.
const (
	PermissionView  = "view"
	PermissionEdit  = "edit"
	PermissionAdmin = "admin"
)

var validPermissions = map[string]bool{
	PermissionView:  true,
	PermissionEdit:  true,
	PermissionAdmin: true,
}

// ValidPermission reports whether p is a known permission level.
func ValidPermission(p string) bool { return validPermissions[p] }

// Group maps to the groups table.
type Group struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
	Members   []Member  `json:"members,omitempty"`
}

// Member maps to the group_members table.
type Member struct {
	GroupID    uuid.UUID `db:"group_id" json:"group_id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	Permission string    `db:"permission" json:"permission"`
	AddedAt    time.Time `db:"added_at" json:"added_at"`
}

// CanEdit reports whether the member may modify disputes assigned to
// the group. Edit and admin qualify; view is read-only.
func (m *Member) CanEdit() bool {
	return m.Permission == PermissionEdit || m.Permission == PermissionAdmin
}
