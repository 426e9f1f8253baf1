package handler

import (
	"net/http"

	"backoffice/internal/storage"

	"github.com/gin-gonic/gin"
)

// FileHandler serves migrated attachments. The route is public: attachment URLs are
// embedded in records and opened directly by browsers.
type FileHandler struct {
	store storage.Store
}

func NewFileHandler(store storage.Store) *FileHandler {
	return &FileHandler{store: store}
}

func (h *FileHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/files/:subfolder/:filename", h.ServeFile)
	router.HEAD("/api/files/:subfolder/:filename", h.ServeFile)
}

// ServeFile streams a stored attachment
// @Summary      Download attachment
// @Tags         files
// @Produce      octet-stream
// @Param        subfolder  path  string  true  "Attachment folder"
// @Param        filename   path  string  true  "Stored file name"
// @Success      200
// @Failure      404  {object}  response.Response
// @Router       /api/files/{subfolder}/{filename} [get]
func (h *FileHandler) ServeFile(c *gin.Context) {
	rc, info, err := h.store.Open(c.Request.Context(), c.Param("subfolder"), c.Param("filename"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.ContentType(info.Name)
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, rc, map[string]string{
		"Cache-Control":          "public, max-age=86400",
		"X-Content-Type-Options": "nosniff",
	})
}
