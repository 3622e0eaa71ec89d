package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"

	"filemanager/middleware"
	"filemanager/models"
	"filemanager/services"
	"filemanager/utils"

	"github.com/gin-gonic/gin"
)

// multipartOverhead is allowed on top of the upload limit for form fields
// and part headers.
const multipartOverhead = 1 << 20

type FileManagerController struct {
	fileTree       *services.FileTreeService
	maxUploadBytes int64
	archiveTimeout time.Duration
}

func NewFileManagerController(fileTree *services.FileTreeService, maxUploadBytes int64, archiveTimeout time.Duration) *FileManagerController {
	return &FileManagerController{
		fileTree:       fileTree,
		maxUploadBytes: maxUploadBytes,
		archiveTimeout: archiveTimeout,
	}
}

type deleteFileRequest struct {
	Filename string `json:"filename" form:"filename" binding:"required"`
	Path     string `json:"path" form:"path"`
}

type folderRequest struct {
	FolderName string `json:"folder_name" form:"folder_name" binding:"required"`
	Path       string `json:"path" form:"path"`
}

type renameRequest struct {
	OldName string `json:"old_name" form:"old_name" binding:"required"`
	NewName string `json:"new_name" form:"new_name" binding:"required"`
	Path    string `json:"path" form:"path"`
	Type    string `json:"type" form:"type" binding:"required,oneof=file folder"`
}

type transferRequest struct {
	Filename   string `json:"filename" form:"filename" binding:"required"`
	SourcePath string `json:"source_path" form:"source_path" binding:"required"`
	TargetPath string `json:"target_path" form:"target_path" binding:"required"`
}

type batchCopyRequest struct {
	Filenames  []string `json:"filenames" form:"filenames[]" binding:"required,min=1,dive,required"`
	SourcePath string   `json:"source_path" form:"source_path" binding:"required"`
	TargetPath string   `json:"target_path" form:"target_path" binding:"required"`
}

// GET /filemanager/files?path=
func (fc *FileManagerController) ListFiles(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	result, err := fc.fileTree.List(c.Request.Context(), actor, c.Query("path"))
	if err != nil {
		handleError(c, err)
		return
	}

	utils.MessageResponse(c, http.StatusOK, "Files retrieved", gin.H{
		"directories": result.Directories,
		"files":       result.Files,
		"path":        result.Path,
	})
}

// GET /filemanager/files-tree
func (fc *FileManagerController) FilesTree(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	node, err := fc.fileTree.Tree(c.Request.Context(), actor)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, services.SerializeForest(node))
}

// POST /filemanager/files/upload
func (fc *FileManagerController) UploadFile(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	if fc.maxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, fc.maxUploadBytes+multipartOverhead)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			utils.PayloadTooLargeResponse(c, services.Describe(services.ErrTooLarge))
			return
		}
		utils.UnprocessableEntityResponse(c, "A file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		utils.BadRequestResponse(c, "Invalid multipart form", nil)
		return
	}
	defer file.Close()

	target, err := fc.fileTree.Upload(c.Request.Context(), actor, middleware.RequestMeta(c), c.PostForm("path"), fileHeader.Filename, fileHeader.Size, file)
	if err != nil {
		handleError(c, err)
		return
	}

	utils.MessageResponse(c, http.StatusOK, "File uploaded successfully", gin.H{"path": target.Relative})
}

// POST /filemanager/folders/upload-directory
//
// Each part of files[] is paired with relative_paths[] by index. Clients
// that omit relative_paths[] send the relative path as the part filename.
func (fc *FileManagerController) UploadDirectory(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		utils.BadRequestResponse(c, "Invalid multipart form", nil)
		return
	}

	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}
	if len(files) == 0 {
		utils.UnprocessableEntityResponse(c, "No files provided", nil)
		return
	}

	relativePaths := form.Value["relative_paths[]"]
	if len(relativePaths) != 0 && len(relativePaths) != len(files) {
		utils.UnprocessableEntityResponse(c, "Files and relative paths count mismatch", nil)
		return
	}

	items := make([]services.UploadItem, 0, len(files))
	for i, fh := range files {
		rel := fh.Filename
		if len(relativePaths) != 0 {
			rel = relativePaths[i]
		}
		items = append(items, uploadItem(fh, rel))
	}

	result, err := fc.fileTree.UploadDirectory(c.Request.Context(), actor, middleware.RequestMeta(c), c.PostForm("path"), items)
	if err != nil {
		handleError(c, err)
		return
	}

	status, message := http.StatusOK, "Directory uploaded successfully"
	switch {
	case len(result.Succeeded) == 0:
		status, message = http.StatusUnprocessableEntity, "No files were uploaded"
	case len(result.Failed) > 0:
		status, message = http.StatusMultiStatus, fmt.Sprintf("Directory uploaded with %d failed files", len(result.Failed))
	}
	utils.MessageResponse(c, status, message, gin.H{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}

func uploadItem(fh *multipart.FileHeader, rel string) services.UploadItem {
	return services.UploadItem{
		RelativePath: rel,
		Size:         fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// DELETE /filemanager/files/delete
func (fc *FileManagerController) DeleteFile(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	var req deleteFileRequest
	if !bindRequest(c, &req) {
		return
	}

	if err := fc.fileTree.DeleteFile(c.Request.Context(), actor, middleware.RequestMeta(c), req.Path, req.Filename); err != nil {
		handleError(c, err)
		return
	}

	utils.MessageResponse(c, http.StatusOK, "File deleted successfully", nil)
}

// DELETE /filemanager/folders/delete
func (fc *FileManagerController) DeleteFolder(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	var req folderRequest
	if !bindRequest(c, &req) {
		return
	}

	if err := fc.fileTree.DeleteFolder(c.Request.Context(), actor, middleware.RequestMeta(c), req.Path, req.FolderName); err != nil {
		handleError(c, err)
		return
	}

	utils.MessageResponse(c, http.StatusOK, "Folder deleted successfully", nil)
}

// POST /filemanager/folders/create
func (fc *FileManagerController) CreateFolder(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	var req folderRequest
	if !bindRequest(c, &req) {
		return
	}

	created, err := fc.fileTree.CreateFolder(c.Request.Context(), actor, middleware.RequestMeta(c), req.Path, req.FolderName)
	if err != nil {
		handleError(c, err)
		return
	}

	utils.MessageResponse(c, http.StatusCreated, "Folder created successfully", gin.H{"path": created.Relative})
}

// POST /filemanager/files/rename-file
func (fc *FileManagerController) Rename(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	var req renameRequest
	if !bindRequest(c, &req) {
		return
	}

	renamed, err := fc.fileTree.Rename(c.Request.Context(), actor, middleware.RequestMeta(c), req.Path, req.OldName, req.NewName, models.NodeType(req.Type))
	if err != nil {
		handleError(c, err)
		return
	}

	message := "File renamed successfully"
	if req.Type == string(models.NodeFolder) {
		message = "Folder renamed successfully"
	}
	utils.MessageResponse(c, http.StatusOK, message, gin.H{"path": renamed.Relative})
}

// POST /filemanager/files/copy-file
func (fc *FileManagerController) CopyFile(c *gin.Context) {
	fc.transfer(c, models.OpCopy)
}

// POST /filemanager/files/move-file
func (fc *FileManagerController) MoveFile(c *gin.Context) {
	fc.transfer(c, models.OpMove)
}

func (fc *FileManagerController) transfer(c *gin.Context, op models.OperationKind) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	var req transferRequest
	if !bindRequest(c, &req) {
		return
	}

	run, message := fc.fileTree.Copy, "Copied successfully"
	if op == models.OpMove {
		run, message = fc.fileTree.Move, "Moved successfully"
	}

	dst, err := run(c.Request.Context(), actor, middleware.RequestMeta(c), req.Filename, req.SourcePath, req.TargetPath)
	if err != nil {
		handleError(c, err)
		return
	}

	utils.MessageResponse(c, http.StatusOK, message, gin.H{"path": dst.Relative})
}

// POST /filemanager/files/copy-files
func (fc *FileManagerController) CopyFiles(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	var req batchCopyRequest
	if !bindRequest(c, &req) {
		return
	}

	result, err := fc.fileTree.CopyBatch(c.Request.Context(), actor, middleware.RequestMeta(c), req.Filenames, req.SourcePath, req.TargetPath)
	if err != nil {
		handleError(c, err)
		return
	}

	results := append(append([]services.ItemResult{}, result.Succeeded...), result.Failed...)
	status, message := http.StatusOK, "Files copied successfully"
	switch {
	case len(result.Succeeded) == 0:
		status, message = http.StatusUnprocessableEntity, "No files were copied"
	case len(result.Failed) > 0:
		status, message = http.StatusMultiStatus, fmt.Sprintf("Copied %d of %d files", len(result.Succeeded), len(req.Filenames))
	}
	utils.MessageResponse(c, status, message, gin.H{"results": results})
}

// GET /filemanager/files/download?filename=&path=
func (fc *FileManagerController) DownloadFile(c *gin.Context) {
	fc.serveFile(c, models.OpDownload, "attachment")
}

// GET /filemanager/files/view?filename=&path=
func (fc *FileManagerController) ViewFile(c *gin.Context) {
	fc.serveFile(c, models.OpView, "inline")
}

func (fc *FileManagerController) serveFile(c *gin.Context, op models.OperationKind, disposition string) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	filename := c.Query("filename")
	if filename == "" {
		utils.UnprocessableEntityResponse(c, "filename is required", nil)
		return
	}

	content, err := fc.fileTree.OpenFile(c.Request.Context(), actor, op, c.Query("path"), filename)
	if err != nil {
		handleError(c, err)
		return
	}
	defer content.Reader.Close()

	c.DataFromReader(http.StatusOK, content.Size, content.ContentType, content.Reader, map[string]string{
		"Content-Disposition":    contentDisposition(disposition, content.Name),
		"X-Content-Type-Options": "nosniff",
		"Last-Modified":          content.ModTime.UTC().Format(http.TimeFormat),
	})
}

// GET /filemanager/folders/download?folder_name=&path=
func (fc *FileManagerController) DownloadFolder(c *gin.Context) {
	actor, ok := fc.actor(c)
	if !ok {
		return
	}

	folderName := c.Query("folder_name")
	if folderName == "" {
		utils.UnprocessableEntityResponse(c, "folder_name is required", nil)
		return
	}

	archive, err := fc.fileTree.PrepareFolderDownload(c.Request.Context(), actor, c.Query("path"), folderName)
	if err != nil {
		handleError(c, err)
		return
	}

	ctx := c.Request.Context()
	if fc.archiveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, fc.archiveTimeout)
		defer cancel()
	}

	c.Header("Content-Type", "application/zip")
	c.Header("Content-Disposition", contentDisposition("attachment", archive.Name+".zip"))
	c.Status(http.StatusOK)

	// headers are gone, so a failure can only cut the stream short
	files, err := archive.Stream(ctx, c.Writer)
	if err != nil {
		utils.LogError(fmt.Sprintf("folder download of %s aborted after %d files", archive.Path, files), err)
		return
	}
	utils.LogDebug(fmt.Sprintf("streamed %s with %d files to %s", archive.Path, files, actor.ID))
}

func (fc *FileManagerController) actor(c *gin.Context) (*models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		utils.UnauthorizedResponse(c, "User not authenticated")
		return nil, false
	}
	return actor, true
}

func bindRequest(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBind(req); err != nil {
		utils.UnprocessableEntityResponse(c, "Invalid request body", err.Error())
		return false
	}
	return true
}

func contentDisposition(disposition, filename string) string {
	return mime.FormatMediaType(disposition, map[string]string{"filename": filename})
}

// handleError turns a service error into its status code. Scope and
// permission failures are indistinguishable to the client.
func handleError(c *gin.Context, err error) {
	message := services.Describe(err)

	switch {
	case errors.Is(err, services.ErrInvalidPath):
		utils.BadRequestResponse(c, message, err.Error())
	case errors.Is(err, services.ErrOutOfScope), errors.Is(err, services.ErrForbidden):
		utils.ForbiddenResponse(c, message)
	case errors.Is(err, services.ErrNotFound):
		utils.NotFoundResponse(c, message)
	case errors.Is(err, services.ErrAlreadyExists):
		utils.ConflictResponse(c, message, nil)
	case errors.Is(err, services.ErrTooLarge):
		utils.PayloadTooLargeResponse(c, message)
	default:
		utils.LogError(fmt.Sprintf("%s %s failed", c.Request.Method, c.Request.URL.Path), err)
		utils.InternalServerErrorResponse(c, message, nil)
	}
}
