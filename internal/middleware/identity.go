package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the id of the requesting user. Authentication happens
// upstream; this service trusts the header.
const UserIDHeader = "X-User-ID"

const userIDKey = "userID"

// IdentityErrorResponse is the JSON body for a missing or malformed identity.
type IdentityErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Identity parses the requester id from UserIDHeader. When required is true a
// request without a valid id is rejected with 401; otherwise it continues
// anonymously.
func Identity(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserIDHeader)
		if raw == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, IdentityErrorResponse{
					Error:   "unauthorized",
					Message: UserIDHeader + " header is required",
				})
				return
			}
			c.Next()
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, IdentityErrorResponse{
				Error:   "invalidUserId",
				Message: UserIDHeader + " must be a positive integer",
			})
			return
		}

		c.Set(userIDKey, id)
		c.Next()
	}
}

// UserID returns the requester id set by Identity.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
