package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/middleware"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/model"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/pkg/logger"
	"github.com/111KartoFan111/Aru-Kyzulzhar/backend/service"
)

const documentPrefix = "documents"

var allowedDocumentExts = map[string]bool{
	".pdf": true, ".doc": true, ".docx": true, ".txt": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".xls": true, ".xlsx": true, ".ppt": true, ".pptx": true,
	".zip": true, ".rar": true,
}

type DocumentHandler struct {
	store          service.Store
	files          service.FileStorage
	maxUploadBytes int64
	now            func() time.Time
}

func NewDocumentHandler(store service.Store, files service.FileStorage, maxUploadMB int) *DocumentHandler {
	return &DocumentHandler{
		store:          store,
		files:          files,
		maxUploadBytes: int64(maxUploadMB) << 20,
		now:            time.Now,
	}
}

// Upload stores a multipart file in object storage and records its metadata.
// Form fields: file, title, description, contract_id, tags, expiry_date.
func (h *DocumentHandler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	defer file.Close()

	if header.Size > h.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("File size exceeds maximum allowed size of %dMB", h.maxUploadBytes>>20),
		})
		return
	}
	ext := strings.ToLower(path.Ext(header.Filename))
	if !allowedDocumentExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File type not allowed"})
		return
	}

	contentType, err := detectContentType(file, header)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}

	ctx := c.Request.Context()
	now := h.now()
	doc := model.Document{
		Title:       strings.TrimSpace(c.PostForm("title")),
		Description: c.PostForm("description"),
		FileType:    contentType,
		FileSize:    header.Size,
		UploadedBy:  middleware.GetUserID(c),
		Tags:        model.ParseTags(c.PostForm("tags")),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if doc.Title == "" {
		doc.Title = header.Filename
	}
	if raw := c.PostForm("contract_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid contract_id"})
			return
		}
		if _, err := h.store.GetContract(ctx, id); err != nil {
			respondError(c, err, "Contract not found")
			return
		}
		doc.ContractID = &id
	}
	if raw := c.PostForm("expiry_date"); raw != "" {
		exp, err := model.ParseDate(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expiry date format"})
			return
		}
		doc.ExpiryDate = &exp
	}

	doc.ObjectName = service.DocumentObjectName(documentPrefix, header.Filename, now)
	if err := h.files.UploadFile(ctx, doc.ObjectName, file, header.Size, contentType); err != nil {
		logger.Error(ctx, "document upload failed", "object", doc.ObjectName, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upload file"})
		return
	}

	if err := h.store.CreateDocument(ctx, &doc); err != nil {
		if derr := h.files.DeleteFile(ctx, doc.ObjectName); derr != nil {
			logger.Warn(ctx, "orphaned document object", "object", doc.ObjectName, "error", derr)
		}
		respondError(c, err, "")
		return
	}

	logger.Info(ctx, "document uploaded", "document_id", doc.ID, "object", doc.ObjectName, "size", doc.FileSize)
	c.JSON(http.StatusCreated, doc)
}

func detectContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	if ct := header.Header.Get("Content-Type"); ct != "" && ct != "application/octet-stream" {
		return ct, nil
	}
	buf := make([]byte, 512)
	n, err := file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}

// List returns documents filtered by contract_id, a title search and tags.
func (h *DocumentHandler) List(c *gin.Context) {
	limit, offset, ok := paging(c)
	if !ok {
		return
	}
	contractID, ok := optionalID(c, "contract_id")
	if !ok {
		return
	}

	q := service.DocumentQuery{
		ContractID: contractID,
		Search:     c.Query("search"),
		Limit:      limit,
		Offset:     offset,
	}
	if raw := c.Query("tags"); raw != "" {
		q.Tags = model.ParseTags(raw)
	}

	docs, err := h.store.ListDocuments(c.Request.Context(), q)
	if err != nil {
		respondError(c, err, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// Get returns a single document
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	doc, err := h.store.GetDocument(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, "Document not found")
		return
	}

	c.JSON(http.StatusOK, doc)
}

// DocumentUpdateRequest changes only the fields that are present. An empty
// expiry_date clears the expiry.
type DocumentUpdateRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
	ExpiryDate  *string   `json:"expiry_date"`
	ContractID  *int64    `json:"contract_id"`
}

// Update applies a partial update. Only the uploader or an admin may edit.
func (h *DocumentHandler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req DocumentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	doc, err := h.store.GetDocument(ctx, id)
	if err != nil {
		respondError(c, err, "Document not found")
		return
	}
	if !canModify(c, doc.UploadedBy) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return
	}

	if req.Title != nil {
		doc.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		doc.Description = *req.Description
	}
	if req.Tags != nil {
		doc.Tags = model.ParseTags(strings.Join(*req.Tags, ","))
	}
	if req.ExpiryDate != nil {
		if *req.ExpiryDate == "" {
			doc.ExpiryDate = nil
		} else {
			exp, err := model.ParseDate(*req.ExpiryDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expiry date format"})
				return
			}
			doc.ExpiryDate = &exp
		}
	}
	if req.ContractID != nil {
		if *req.ContractID == 0 {
			doc.ContractID = nil
		} else {
			if _, err := h.store.GetContract(ctx, *req.ContractID); err != nil {
				respondError(c, err, "Contract not found")
				return
			}
			doc.ContractID = req.ContractID
		}
	}
	if err := doc.Validate(); err != nil {
		respondError(c, err, "")
		return
	}
	doc.UpdatedAt = h.now()

	if err := h.store.UpdateDocument(ctx, &doc); err != nil {
		respondError(c, err, "Document not found")
		return
	}

	c.JSON(http.StatusOK, doc)
}

// Delete removes the document row, then its stored object.
func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	doc, err := h.store.GetDocument(ctx, id)
	if err != nil {
		respondError(c, err, "Document not found")
		return
	}
	if !canModify(c, doc.UploadedBy) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return
	}

	if err := h.store.DeleteDocument(ctx, id); err != nil {
		respondError(c, err, "Document not found")
		return
	}
	if doc.ObjectName != "" {
		if err := h.files.DeleteFile(ctx, doc.ObjectName); err != nil {
			logger.Warn(ctx, "failed to delete document object", "object", doc.ObjectName, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "Document deleted successfully"})
}

// Download returns a time-limited URL for the stored file.
func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	doc, err := h.store.GetDocument(ctx, id)
	if err != nil {
		respondError(c, err, "Document not found")
		return
	}
	if doc.ObjectName == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	url, err := h.files.GetPresignedURL(ctx, doc.ObjectName)
	if err != nil {
		logger.Error(ctx, "failed to presign document", "object", doc.ObjectName, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to generate URL"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       url,
		"filename":  doc.Title,
		"file_type": doc.FileType,
	})
}

func canModify(c *gin.Context, ownerID int64) bool {
	return middleware.GetUserID(c) == ownerID || middleware.GetRole(c) == model.RoleAdmin
}
