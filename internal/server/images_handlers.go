package server

import (
	"errors"
	"net/http"

	"github.com/bloggy/backend/internal/images"
	"github.com/gin-gonic/gin"
)

const (
	uploadFileField      = "file"
	uploadArticleIDField = "articleId"
)

var (
	errMissingUploadFile      = errors.New("file is required")
	errMissingUploadArticleID = errors.New("articleId is required")
)

func (h *httpHandler) handleUploadImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.images.MaxBytes()+1024*1024)

	fileHeader, err := c.FormFile(uploadFileField)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondInvalid(c, "images.upload.too_large", err)
			return
		}
		h.respondInvalid(c, "images.upload.missing_file", errMissingUploadFile)
		return
	}
	articleID := c.PostForm(uploadArticleIDField)
	if articleID == "" {
		h.respondInvalid(c, "images.upload.missing_article_id", errMissingUploadArticleID)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.respondInvalid(c, "images.upload.unreadable_file", err)
		return
	}
	defer file.Close()

	image, err := h.images.Upload(c.Request.Context(), currentUserID(c), images.UploadInput{
		ArticleID:   articleID,
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        file,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, image)
}

func (h *httpHandler) handleListImages(c *gin.Context) {
	list, err := h.images.List(c.Request.Context(), c.Query(uploadArticleIDField))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *httpHandler) handleGetImage(c *gin.Context) {
	image, err := h.images.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, image)
}

func (h *httpHandler) handleDeleteImage(c *gin.Context) {
	if err := h.images.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image deleted successfully"})
}
