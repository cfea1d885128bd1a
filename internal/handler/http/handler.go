package http

import (
	"net/http"

	"github.com/safespacefinder/safespace/internal/service"
	"github.com/safespacefinder/safespace/pkg/middleware"
)

// actorFrom returns the authenticated caller. Routes using it sit behind
// middleware.Auth, so a missing principal yields an empty actor that no
// ownership check accepts.
func actorFrom(r *http.Request) service.Actor {
	p, _ := middleware.PrincipalFromContext(r.Context())
	return service.Actor{UserID: p.UserID, Admin: p.IsAdmin()}
}
