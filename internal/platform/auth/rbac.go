package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Console roles. Front desk staff book and edit appointments, physicians
// only look, admins can do everything including reading the audit trail.
const (
	RoleAdmin        = "admin"
	RoleReceptionist = "receptionist"
	RolePhysician    = "physician"
)

var knownRoles = map[string]bool{
	RoleAdmin:        true,
	RoleReceptionist: true,
	RolePhysician:    true,
}

// ValidateRoles rejects role names the console does not grant anything to.
func ValidateRoles(roles []string) error {
	if len(roles) == 0 {
		return fmt.Errorf("at least one role is required")
	}
	for _, r := range roles {
		if !knownRoles[r] {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	return nil
}

// HasRole reports whether held contains any of required. admin holds every
// role.
func HasRole(held []string, required ...string) bool {
	for _, h := range held {
		if h == RoleAdmin {
			return true
		}
		for _, r := range required {
			if h == r {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that lets the request through when the
// caller holds one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	denied := fmt.Sprintf("required role: %s", strings.Join(roles, " or "))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return echo.NewHTTPError(http.StatusForbidden, denied)
			}
			return next(c)
		}
	}
}
