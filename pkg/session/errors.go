package session

import "github.com/gin-gonic/gin"

const (
	errorsKey       = "errors"
	sharedErrorsKey = "session.errors"
)

// ShareErrorsFromSession exposes validation errors flashed by the previous request through
// Errors. The value is always a non-nil map.
func ShareErrorsFromSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		errs := map[string]string{}
		if sess := From(c); sess != nil {
			switch v := sess.Get(errorsKey).(type) {
			case map[string]string:
				errs = v
			case map[string]any:
				for k, msg := range v {
					if s, ok := msg.(string); ok {
						errs[k] = s
					}
				}
			}
		}
		c.Set(sharedErrorsKey, errs)
		c.Next()
	}
}

// Errors returns the validation errors shared for this request.
func Errors(c *gin.Context) map[string]string {
	if v, ok := c.Get(sharedErrorsKey); ok {
		if errs, ok := v.(map[string]string); ok {
			return errs
		}
	}
	return map[string]string{}
}

// FlashErrors makes field errors available to the next request.
func FlashErrors(c *gin.Context, errs map[string]string) {
	if sess := From(c); sess != nil && len(errs) > 0 {
		sess.Flash(errorsKey, errs)
	}
}
