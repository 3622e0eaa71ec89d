package routes

import (
	"fmt"
	"net/http"
	"time"

	"filemanager/config"
	"filemanager/middleware"
	"filemanager/services"
	"filemanager/storage"

	"github.com/gin-gonic/gin"
)

// ServiceContainer holds all services and dependencies
type ServiceContainer struct {
	Config   *config.Config
	Backend  storage.Backend
	Provider services.AuthorizationProvider
	Audit    services.AuditSink
	FileTree *services.FileTreeService
}

// NewServiceContainer wires the file manager core on top of an already
// opened backend, actor provider and audit sink.
func NewServiceContainer(cfg *config.Config, backend storage.Backend, provider services.AuthorizationProvider, audit services.AuditSink) (*ServiceContainer, error) {
	guard := services.NewPathGuard(cfg.Limits.MaxPathLength, backend.Resolve)

	root, err := guard.Root(cfg.Storage.RootPath)
	if err != nil {
		return nil, fmt.Errorf("invalid storage root path %q: %w", cfg.Storage.RootPath, err)
	}

	scopes := services.NewScopeResolver(root, guard, provider)
	fileTree := services.NewFileTreeService(backend, guard, scopes, services.NewPermissionGate(), audit, services.FileTreeOptions{
		TreeMaxDepth:  cfg.Limits.TreeMaxDepth,
		TreeMaxNodes:  cfg.Limits.TreeMaxNodes,
		MaxUploadSize: cfg.Limits.MaxUploadBytes,
	})

	return &ServiceContainer{
		Config:   cfg,
		Backend:  backend,
		Provider: provider,
		Audit:    audit,
		FileTree: fileTree,
	}, nil
}

// SetupRouter builds the gin engine with CORS, the health check and all
// file manager routes.
func SetupRouter(container *ServiceContainer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(middleware.CORSMiddleware(container.Config.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"storage": container.Backend.Name(),
			"time":    time.Now().UTC(),
		})
	})

	RegisterFileManagerRoutes(&router.RouterGroup, container)
	return router
}
