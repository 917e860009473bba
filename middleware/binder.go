package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Binder treats activity+json and ld+json request bodies as json; everything
// else falls through to echo's default binder.
type Binder struct{}

func (b *Binder) Bind(i any, c echo.Context) error {
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	if strings.HasPrefix(ctype, "application/activity+json") ||
		strings.HasPrefix(ctype, "application/ld+json") {
		if err := json.NewDecoder(c.Request().Body).Decode(i); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return nil
	}

	db := new(echo.DefaultBinder)
	return db.Bind(i, c)
}
