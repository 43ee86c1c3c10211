package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const UserCookieName = "answer_engine_uid"
const CookieMaxAge = 30 * 24 * 60 * 60 // 30 days

// IdentityMiddleware resolves the requesting user. Authenticated callers
// pass X-User-ID; anonymous browsers get a stable cookie identity so usage
// tracking and document ownership still work.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if header := c.GetHeader("X-User-ID"); header != "" {
			userID, err := uuid.Parse(header)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
				return
			}
			c.Set("userID", userID)
			c.Next()
			return
		}

		cookie, err := c.Cookie(UserCookieName)
		var userID uuid.UUID

		if err == http.ErrNoCookie {
			userID = uuid.New()
			c.SetCookie(UserCookieName, userID.String(), CookieMaxAge, "/", "", false, true)
		} else if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to read identity cookie"})
			return
		} else {
			userID, err = uuid.Parse(cookie)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid identity cookie"})
				return
			}
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// UserID extracts the identity set by IdentityMiddleware.
func UserID(c *gin.Context) (uuid.UUID, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}
