package services

import "github.com/phillip/farewell-fund-go/models"

// Identity is the caller as established by the session. EventRoles is the
// decoded per-event role claim and may lag behind the membership store.
type Identity struct {
	UserID     string
	Email      string
	EventRoles map[string]models.Role
}

func (id *Identity) Anonymous() bool {
	return id == nil || id.UserID == ""
}
