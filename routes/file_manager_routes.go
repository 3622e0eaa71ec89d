package routes

import (
	"filemanager/controllers"
	"filemanager/middleware"

	"github.com/gin-gonic/gin"
)

func RegisterFileManagerRoutes(rg *gin.RouterGroup, container *ServiceContainer) {
	cfg := container.Config
	fc := controllers.NewFileManagerController(container.FileTree, cfg.Limits.MaxUploadBytes, cfg.Limits.ArchiveTimeout)

	fm := rg.Group("/filemanager")
	fm.Use(middleware.AuthMiddleware(cfg.JWT.Secret, cfg.JWT.Issuer)) // employee guard
	fm.Use(middleware.ActorMiddleware(container.Provider))

	timed := fm.Group("", middleware.RequestTimeout(cfg.Limits.RequestTimeout))
	{
		timed.GET("/files", fc.ListFiles)
		timed.GET("/files-tree", fc.FilesTree)
		timed.DELETE("/files/delete", fc.DeleteFile)
		timed.POST("/files/rename-file", fc.Rename)
		timed.POST("/files/copy-file", fc.CopyFile)
		timed.POST("/files/copy-files", fc.CopyFiles)
		timed.POST("/files/move-file", fc.MoveFile)
		timed.POST("/folders/create", fc.CreateFolder)
		timed.DELETE("/folders/delete", fc.DeleteFolder)
	}

	// transfers run as long as the client keeps reading or sending
	{
		fm.POST("/files/upload", fc.UploadFile)
		fm.POST("/folders/upload-directory", fc.UploadDirectory)
		fm.GET("/files/download", fc.DownloadFile)
		fm.GET("/files/view", fc.ViewFile)
		fm.GET("/folders/download", fc.DownloadFolder) // bounded by limits.archive_timeout
	}
}
