package server

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// TenantHeader selects the tenant of a request.
const TenantHeader = "X-Tenant-ID"

// Tenant returns the tenant named by the X-Tenant-ID header, then the
// "tenant" query parameter, then fallback.
func Tenant(c echo.Context, fallback string) string {
	if t := strings.TrimSpace(c.Request().Header.Get(TenantHeader)); t != "" {
		return t
	}
	if t := strings.TrimSpace(c.QueryParam("tenant")); t != "" {
		return t
	}
	return fallback
}
