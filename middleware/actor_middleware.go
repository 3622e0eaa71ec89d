package middleware

import (
	"errors"
	"net/http"

	"filemanager/models"
	"filemanager/services"
	"filemanager/utils"

	"github.com/gin-gonic/gin"
)

const ContextActor = "actor"

// ActorMiddleware loads the authenticated employee's actor on every
// request, so permission or company changes apply immediately. It must run
// after AuthMiddleware.
func ActorMiddleware(provider services.AuthorizationProvider) gin.HandlerFunc {
	return func(c *gin.Context) {
		employeeID := c.GetString(ContextEmployeeID)
		if employeeID == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "User not authenticated", nil)
			c.Abort()
			return
		}

		actor, err := provider.LoadActor(c.Request.Context(), employeeID)
		if err != nil {
			if errors.Is(err, services.ErrActorNotFound) {
				utils.ErrorResponse(c, http.StatusUnauthorized, "Employee not found or inactive", nil)
			} else {
				utils.LogError("failed to load actor "+employeeID, err)
				utils.ErrorResponse(c, http.StatusInternalServerError, "Permission check failed", nil)
			}
			c.Abort()
			return
		}

		c.Set(ContextActor, actor)
		c.Next()
	}
}

// CurrentActor returns the actor set by ActorMiddleware.
func CurrentActor(c *gin.Context) (*models.Actor, bool) {
	v, ok := c.Get(ContextActor)
	if !ok {
		return nil, false
	}
	actor, ok := v.(*models.Actor)
	return actor, ok && actor != nil
}

// RequestMeta captures the client details recorded in audit entries.
func RequestMeta(c *gin.Context) models.RequestMeta {
	return models.RequestMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
