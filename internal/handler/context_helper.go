package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/swiss-arbiter-api/internal/middleware"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
)

// actorFromContext returns the arbiter recorded as changed_by. Routes that mutate state
// sit behind middleware.JWT, so an empty value means the route was mounted without it.
func actorFromContext(c *gin.Context) string {
	return middleware.ArbiterID(c)
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}

func intParam(c *gin.Context, name string) (int, error) {
	raw := c.Param(name)
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return 0, appErrors.Validation("invalid path parameter", appErrors.FieldError{
			Field:   name,
			Message: fmt.Sprintf("%q is not a positive integer", raw),
		})
	}
	return value, nil
}
