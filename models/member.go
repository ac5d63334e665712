package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleJunior  Role = "junior"
	RoleGuest   Role = "guest"
)

var roles = []Role{RoleOwner, RoleAdmin, RoleStudent, RoleTeacher, RoleJunior, RoleGuest}

// IsAdminTier reports whether r grants management rights over event finances.
func (r Role) IsAdminTier() bool {
	return r == RoleOwner || r == RoleAdmin
}

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range roles {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Member struct {
	ID       string    `bson:"_id" json:"-"`
	EventID  string    `bson:"event_id" json:"event_id"`
	UserID   string    `bson:"user_id" json:"user_id"`
	Name     string    `bson:"name,omitempty" json:"name,omitempty"`
	Email    string    `bson:"email,omitempty" json:"email,omitempty"`
	Role     Role      `bson:"role" json:"role"`
	JoinedAt time.Time `bson:"joined_at" json:"joined_at"`
}

// MemberKey is the document key for a (event, user) membership row.
func MemberKey(eventID, userID string) string {
	return eventID + ":" + userID
}
