package service

import "context"

const RoleAdmin = "ROLE_ADMIN"

// Caller is the authenticated principal, as established by the auth layer.
type Caller struct {
	Email    string
	Username string
	Roles    []string
}

func (c Caller) IsAdmin() bool {
	for _, r := range c.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// Name is what gets written as the actor of history and audit entries.
func (c Caller) Name() string {
	if c.Username != "" {
		return c.Username
	}
	return c.Email
}

func (c Caller) canAccess(ownerEmail string) bool {
	return c.IsAdmin() || (c.Email != "" && c.Email == ownerEmail)
}

type callerKey struct{}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

func CallerFromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok && c.Email != ""
}
