package middleware

import (
	"family-backend/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimitMiddleware applies the route policy to every request. Admitted
// requests carry X-RateLimit headers; rejected requests get a 429 with
// Retry-After. A limiter that is disabled or failing lets requests through.
func RateLimitMiddleware(policy *ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		limiter, ok := policy.Match(c.Request.URL.Path)
		if !ok {
			c.Next()
			return
		}

		result := limiter.Check(c.Request.Context(), policy.Request(c.Request))

		switch result.Status {
		case ratelimit.StatusDisabled:
			c.Next()
			return
		case ratelimit.StatusDenied:
			resp := limiter.Reject(result.Info)
			for key := range resp.Header {
				c.Header(key, resp.Header.Get(key))
			}
			c.AbortWithStatusJSON(resp.StatusCode, resp.Body)
			return
		}

		ratelimit.SetHeaders(c.Writer.Header(), result.Info)
		c.Next()
	}
}
