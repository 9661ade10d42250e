package service

import (
	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

// Authorization guards shared by the services. Handlers put the verified
// claims in context; services receive them as the actor and decide access
// next to the data they protect.

// RequireAuthenticated rejects anonymous callers.
func RequireAuthenticated(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	return nil
}

// RequireRole allows the listed roles. Admins pass regardless.
func RequireRole(actor *models.JWTClaims, roles ...models.UserRole) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if actor.Role == models.RoleAdmin {
		return nil
	}
	for _, role := range roles {
		if actor.Role == role {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "insufficient role")
}

// RequireOwner allows the owning user or an admin.
func RequireOwner(actor *models.JWTClaims, ownerID string) error {
	if err := RequireAuthenticated(actor); err != nil {
		return err
	}
	if actor.Role == models.RoleAdmin || actor.UserID == ownerID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "resource belongs to another user")
}
