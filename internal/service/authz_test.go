package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/course-market-api/internal/models"
	appErrors "github.com/noah-isme/course-market-api/pkg/errors"
)

func TestRequireAuthenticated(t *testing.T) {
	require.Error(t, RequireAuthenticated(nil))
	require.NoError(t, RequireAuthenticated(&models.JWTClaims{UserID: "u1"}))
}

func TestRequireRole(t *testing.T) {
	student := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	admin := &models.JWTClaims{UserID: "u2", Role: models.RoleAdmin}

	require.NoError(t, RequireRole(student, models.RoleStudent))
	require.NoError(t, RequireRole(admin, models.RoleInstructor))

	err := RequireRole(student, models.RoleInstructor)
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRequireOwner(t *testing.T) {
	owner := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	admin := &models.JWTClaims{UserID: "u2", Role: models.RoleAdmin}
	other := &models.JWTClaims{UserID: "u3", Role: models.RoleStudent}

	require.NoError(t, RequireOwner(owner, "u1"))
	require.NoError(t, RequireOwner(admin, "u1"))
	require.Error(t, RequireOwner(other, "u1"))
	require.Error(t, RequireOwner(nil, "u1"))
}
