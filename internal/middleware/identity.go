package middleware

// identity.go holds the helpers that read the caller placed in the Echo
// context by JWTAuth.

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/stay-reservation/internal/model"
)

const actorKey = "actor"

// ActorFrom returns the authenticated caller.  ok is false on routes that
// are not behind JWTAuth.
func ActorFrom(c echo.Context) (model.Actor, bool) {
	a, ok := c.Get(actorKey).(model.Actor)
	if !ok || a.ID == 0 {
		return model.Actor{}, false
	}
	return a, true
}

// currentUserID is the caller's id as a key fragment, "anon" when there is
// no authenticated caller.
func currentUserID(c echo.Context) string {
	if a, ok := ActorFrom(c); ok {
		return strconv.FormatUint(a.ID, 10)
	}
	return "anon"
}
