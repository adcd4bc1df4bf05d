// handlers_files.go - Document storage handlers
package api

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/well-timeline/backend/internal/storage"
)

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store         storage.Store
	allowedExts   []string
	allowDeletion bool
}

// NewFileHandler creates a new file handler instance. An empty extension
// list accepts every file.
func NewFileHandler(store storage.Store, allowedExts []string, allowDeletion bool) FileHandler {
	return &FileHandlerImpl{
		store:         store,
		allowedExts:   allowedExts,
		allowDeletion: allowDeletion,
	}
}

func (h *FileHandlerImpl) extensionAllowed(name string) bool {
	if len(h.allowedExts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range h.allowedExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// HandleUploadFile stores a document sent as multipart form field "file" or
// as a base64 JSON body.
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		return h.uploadBase64(c)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}
	if !h.extensionAllowed(file.Filename) {
		return NewBadRequestError("file type not allowed: "+filepath.Ext(file.Filename), nil)
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(c.Request().Context(), file.Filename, file.Header.Get(echo.HeaderContentType), src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	log.Infof("[Files] Stored %s (%d bytes) as %s", info.Name, info.Size, info.ID)
	return c.JSON(http.StatusCreated, info)
}

func (h *FileHandlerImpl) uploadBase64(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if err := req.validate(); err != nil {
		return err
	}
	if !h.extensionAllowed(req.Name) {
		return NewBadRequestError("file type not allowed: "+filepath.Ext(req.Name), nil)
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.Save(c.Request().Context(), req.Name, "", bytes.NewReader(decoded))
	if err != nil {
		return NewInternalError("failed to save file", err)
	}
	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles returns the most recently uploaded documents
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	limit := defaultRecentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return NewValidationError("limit")
		}
		limit = min(n, maxRecentLimit)
	}

	files, err := h.store.List(c.Request().Context(), limit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	info, err := h.store.Get(c.Request().Context(), id)
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile deletes a stored document
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if !h.allowDeletion {
		return NewForbiddenError("file deletion is disabled")
	}
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return FromError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the name of a file
func (h *FileHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(c.Request().Context(), id, strings.TrimSpace(req.Name))
	if err != nil {
		return FromError(err)
	}
	return c.JSON(http.StatusOK, info)
}

// Request/Response types

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}
