package handler

import (
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/api/middleware"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
)

type UploadHandler struct {
	uploadService *service.UploadService
	cfg           *config.Config
}

func NewUploadHandler(uploadService *service.UploadService, cfg *config.Config) *UploadHandler {
	return &UploadHandler{
		uploadService: uploadService,
		cfg:           cfg,
	}
}

// Upload 上传日记附件（照片、录音），先预占存储额度
// POST /api/v1/storage/files
func (h *UploadHandler) Upload(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.ParamError(c, "请上传文件")
		return
	}
	defer file.Close()

	if h.cfg.Upload.MaxSize > 0 && header.Size > h.cfg.Upload.MaxSize {
		response.ParamError(c, service.ErrFileTooLarge.Error())
		return
	}

	limit := header.Size
	if h.cfg.Upload.MaxSize > 0 {
		limit = h.cfg.Upload.MaxSize
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		response.ServerError(c, "文件读取失败")
		return
	}

	result, err := h.uploadService.Upload(c.Request.Context(), userID, header.Filename, data)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}

// Delete 删除附件并释放存储额度
// DELETE /api/v1/storage/files/*key
func (h *UploadHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	if key == "" {
		response.ParamError(c, "缺少文件标识")
		return
	}

	result, err := h.uploadService.Delete(c.Request.Context(), userID, key)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, result)
}
