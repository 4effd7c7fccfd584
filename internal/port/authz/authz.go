// Package authz defines the authorization port.
package authz

import (
	"context"
	"strconv"
)

// Permission names checked against resources.
const (
	PermissionRead    = "READ"
	PermissionWrite   = "WRITE"
	PermissionExecute = "EXECUTE"
)

// Resource identifies a protected object.
type Resource struct {
	Kind  string
	ID    int64
	Owner string
}

// String renders the resource as "kind:id".
func (r Resource) String() string {
	return r.Kind + ":" + strconv.FormatInt(r.ID, 10)
}

// Authorizer decides whether the principal carried by ctx may act on a
// resource.
type Authorizer interface {
	IsAllowed(ctx context.Context, permission string, resource Resource) bool
	IsAdmin(ctx context.Context) bool
}
