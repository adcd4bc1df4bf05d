// handlers_documents.go - Document conversion and segmentation handlers
package api

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/well-timeline/backend/internal/models"
	"github.com/well-timeline/backend/internal/parser"
	"github.com/well-timeline/backend/internal/storage"
)

// DocumentHandlerImpl implements the DocumentHandler interface
type DocumentHandlerImpl struct {
	store    storage.Store
	registry *parser.Registry
}

// NewDocumentHandler creates a new document handler instance
func NewDocumentHandler(store storage.Store, registry *parser.Registry) DocumentHandler {
	return &DocumentHandlerImpl{store: store, registry: registry}
}

// documentRequest names a stored document or carries plain text.
type documentRequest struct {
	FileID string `json:"fileId"`
	Text   string `json:"text"`
}

// HandleConvert converts a document to sanitized HTML and plain text
func (h *DocumentHandlerImpl) HandleConvert(c echo.Context) error {
	doc, _, err := readDocument(c, h.store, h.registry)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, doc)
}

// HandleInterventions converts a document and splits its well history into
// dated interventions
func (h *DocumentHandlerImpl) HandleInterventions(c echo.Context) error {
	doc, fileID, err := readDocument(c, h.store, h.registry)
	if err != nil {
		return err
	}

	items := parser.Segment(doc.Text)
	if fileID != "" && h.store != nil {
		if err := h.store.SetStatus(c.Request().Context(), fileID, storage.StatusSegmented); err != nil {
			log.Warnf("[Documents] Failed to mark %s segmented: %v", fileID, err)
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":          doc.Name,
		"count":         len(items),
		"interventions": items,
	})
}

// readDocument loads the request document from a multipart "file" field, a
// stored file id or a plain text body.
func readDocument(c echo.Context, store storage.Store, registry *parser.Registry) (*models.Document, string, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		file, err := c.FormFile("file")
		if err != nil {
			return nil, "", NewBadRequestError("no file provided", err)
		}
		src, err := file.Open()
		if err != nil {
			return nil, "", NewInternalError("failed to open uploaded file", err)
		}
		defer src.Close()
		data, err := io.ReadAll(src)
		if err != nil {
			return nil, "", NewBadRequestError("failed to read uploaded file", err)
		}
		doc, err := registry.Convert(file.Filename, data)
		if err != nil {
			return nil, "", NewUnprocessableError("failed to convert document", err)
		}
		return doc, "", nil
	}

	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return nil, "", NewBadRequestError("invalid request body", err)
	}
	return resolveDocument(c, store, registry, req.FileID, req.Text)
}

// resolveDocument converts a stored file, or wraps text as a document.
func resolveDocument(c echo.Context, store storage.Store, registry *parser.Registry, fileID, text string) (*models.Document, string, error) {
	switch {
	case fileID != "":
		if store == nil {
			return nil, "", NewServiceUnavailableError("document storage is not configured")
		}
		data, info, err := storage.ReadAll(c.Request().Context(), store, fileID)
		if err != nil {
			return nil, "", FromError(err)
		}
		doc, err := registry.Convert(info.Name, data)
		if err != nil {
			if serr := store.SetStatus(c.Request().Context(), fileID, storage.StatusError); serr != nil {
				log.Warnf("[Documents] Failed to mark %s as error: %v", fileID, serr)
			}
			return nil, "", NewUnprocessableError("failed to convert document", err)
		}
		return doc, fileID, nil
	case strings.TrimSpace(text) != "":
		return &models.Document{Name: "text", Format: "txt", Text: text}, "", nil
	}
	return nil, "", NewBadRequestError("provide a file, a fileId or text", nil)
}
