package middleware

import (
	"errors"
	"net/http"

	"cloudfund-settlement/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders the last error pushed onto the gin context as the tagged
// JSON failure shape. Unclassified errors become 500 INTERNAL.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var base errutil.BaseError
		if errors.As(last.Err, &base) {
			c.JSON(base.Code.HTTPStatus(), base.JSON())
			return
		}

		fallback := errutil.BaseError{Code: errutil.StatusInternal, Message: last.Err.Error()}
		c.JSON(http.StatusInternalServerError, fallback.JSON())
	}
}
