package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"

	"answer-engine/engine"
	"answer-engine/retrieval"
	"answer-engine/utils"
	"answer-engine/web/middleware"
	"answer-engine/web/types"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxUploadBytes = 20 << 20 // 20 MB

// DocumentReader is the read/delete side of document persistence the
// handler needs; the write path goes through the ingestion engine.
type DocumentReader interface {
	GetDocument(ctx context.Context, documentID, ownerID uuid.UUID) (*types.Document, error)
	ListDocuments(ctx context.Context, ownerID uuid.UUID, sourceCategory string) ([]types.Document, error)
	DeleteDocument(ctx context.Context, documentID, ownerID uuid.UUID) error
}

// DocumentHandler serves the document ingestion and management endpoints.
type DocumentHandler struct {
	engine *engine.Engine
	store  DocumentReader
	logger *zap.Logger
}

func NewDocumentHandler(eng *engine.Engine, store DocumentReader, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{engine: eng, store: store, logger: logger}
}

type uploadRequest struct {
	Title       string                    `json:"title"`
	Content     string                    `json:"content"`
	Tags        []string                  `json:"tags"`
	Specialized *types.SpecializedContext `json:"specialized"`
}

// Upload handles POST /api/documents. Accepts either a JSON body with raw
// content, or a multipart form with a file field (PDF or plain text).
// Returns 202 with the document in processing state; chunking and
// embedding continue in the background.
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondWithClientError(c, http.StatusUnauthorized, "missing user identity")
		return
	}

	doc := &types.Document{OwnerID: userID}

	contentType := c.GetHeader("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if !h.fillFromMultipart(c, doc) {
			return
		}
	} else {
		var req uploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithClientError(c, http.StatusBadRequest, "invalid document payload")
			return
		}
		doc.Title = req.Title
		doc.Content = req.Content
		doc.Tags = req.Tags
		doc.Specialized = req.Specialized
		if doc.Specialized != nil {
			doc.FileType = doc.Specialized.FileType
		}
	}

	if doc.Title == "" {
		doc.Title = "Untitled document"
	}

	if err := h.engine.Ingest(c.Request.Context(), doc); err != nil {
		status := statusFromError(err)
		if isClientError(status) {
			respondWithClientError(c, status, err.Error())
			return
		}
		respondWithError(c, status, err, "failed to ingest document", h.logger,
			zap.String("user_id", userID.String()))
		return
	}

	c.JSON(http.StatusAccepted, doc)
}

// fillFromMultipart extracts content from an uploaded file. PDFs go
// through text extraction; anything else is treated as plain text. An
// optional "specialized" form field carries a parsed component payload.
func (h *DocumentHandler) fillFromMultipart(c *gin.Context, doc *types.Document) bool {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "file field is required")
		return false
	}
	if fileHeader.Size > maxUploadBytes {
		respondWithClientError(c, http.StatusRequestEntityTooLarge, "file exceeds the 20 MB limit")
		return false
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "failed to read upload", h.logger)
		return false
	}
	defer file.Close()

	doc.Title = utils.SanitizeFilename(fileHeader.Filename)
	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	doc.FileType = strings.TrimPrefix(ext, ".")

	if ext == ".pdf" {
		text, err := retrieval.ExtractPDFText(file, fileHeader.Size, h.logger)
		if err != nil {
			respondWithClientError(c, http.StatusUnprocessableEntity, "could not extract text from PDF")
			return false
		}
		doc.Content = text
	} else {
		buf := make([]byte, fileHeader.Size)
		if _, err := file.ReadAt(buf, 0); err != nil {
			respondWithError(c, http.StatusInternalServerError, err, "failed to read upload", h.logger)
			return false
		}
		doc.Content = string(buf)
	}

	if field := c.PostForm("specialized"); field != "" {
		var sc types.SpecializedContext
		if err := json.Unmarshal([]byte(field), &sc); err != nil {
			respondWithClientError(c, http.StatusBadRequest, "invalid specialized payload")
			return false
		}
		doc.Specialized = &sc
		if sc.FileType != "" {
			doc.FileType = sc.FileType
		}
	}
	if field := c.PostForm("tags"); field != "" {
		for _, tag := range strings.Split(field, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				doc.Tags = append(doc.Tags, tag)
			}
		}
	}
	return true
}

// List handles GET /api/documents.
func (h *DocumentHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondWithClientError(c, http.StatusUnauthorized, "missing user identity")
		return
	}

	docs, err := h.store.ListDocuments(c.Request.Context(), userID, c.Query("category"))
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, err, "failed to list documents", h.logger,
			zap.String("user_id", userID.String()))
		return
	}
	if docs == nil {
		docs = []types.Document{}
	}

	// The raw content can be large; the listing only needs metadata.
	for i := range docs {
		docs[i].Content = ""
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// Get handles GET /api/documents/:id, mainly used to poll processing
// status after an upload.
func (h *DocumentHandler) Get(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondWithClientError(c, http.StatusUnauthorized, "missing user identity")
		return
	}

	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid document id")
		return
	}

	doc, err := h.store.GetDocument(c.Request.Context(), documentID, userID)
	if err != nil {
		status := statusFromError(err)
		if isClientError(status) {
			respondWithClientError(c, status, "document not found")
			return
		}
		respondWithError(c, status, err, "failed to load document", h.logger,
			zap.String("document_id", documentID.String()))
		return
	}

	c.JSON(http.StatusOK, doc)
}

// Delete handles DELETE /api/documents/:id.
func (h *DocumentHandler) Delete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		respondWithClientError(c, http.StatusUnauthorized, "missing user identity")
		return
	}

	documentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondWithClientError(c, http.StatusBadRequest, "invalid document id")
		return
	}

	if err := h.store.DeleteDocument(c.Request.Context(), documentID, userID); err != nil {
		status := statusFromError(err)
		if isClientError(status) {
			respondWithClientError(c, status, "document not found")
			return
		}
		respondWithError(c, status, err, "failed to delete document", h.logger,
			zap.String("document_id", documentID.String()))
		return
	}

	c.Status(http.StatusNoContent)
}
