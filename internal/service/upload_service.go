package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/oss"
)

var (
	ErrFileTooLarge  = errors.New("文件过大")
	ErrInvalidFormat = errors.New("不支持的文件格式")
	ErrEmptyFile     = errors.New("文件为空")
	ErrFileNotFound  = errors.New("文件不存在")
)

const bytesPerMB = 1024 * 1024

// ObjectStore 文件存储
type ObjectStore interface {
	Put(objectKey string, data []byte, contentType string) (string, error)
	Size(objectKey string) (int64, error)
	Delete(objectKey string) error
}

// UploadService 用户文件上传与删除，先在存储账本上预占空间再写入对象存储
type UploadService struct {
	store  ObjectStore
	ledger *QuotaLedger
	cfg    *config.Config
	log    logrus.FieldLogger
}

func NewUploadService(store ObjectStore, ledger *QuotaLedger, cfg *config.Config, log logrus.FieldLogger) *UploadService {
	return &UploadService{
		store:  store,
		ledger: ledger,
		cfg:    cfg,
		log:    log,
	}
}

// SizeMB 字节数向上取整到 MB
func SizeMB(size int64) int {
	return int((size + bytesPerMB - 1) / bytesPerMB)
}

func (s *UploadService) allowed(ext string) bool {
	if len(s.cfg.Upload.AllowedExtensions) == 0 {
		return true
	}
	for _, a := range s.cfg.Upload.AllowedExtensions {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

// Upload 上传文件：预占存储额度，写入失败时释放
func (s *UploadService) Upload(ctx context.Context, userID int64, filename string, data []byte) (*dto.UploadResponse, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !s.allowed(ext) {
		return nil, ErrInvalidFormat
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if s.cfg.Upload.MaxSize > 0 && int64(len(data)) > s.cfg.Upload.MaxSize {
		return nil, ErrFileTooLarge
	}

	mb := SizeMB(int64(len(data)))
	reserved, err := s.ledger.CreditStorage(ctx, userID, mb)
	if err != nil {
		return nil, err
	}

	key := oss.UserFileKey(userID, uuid.NewString(), ext)
	url, err := s.store.Put(key, data, oss.ContentType(ext))
	if err != nil {
		if _, cerr := s.ledger.CreditStorage(ctx, userID, -mb); cerr != nil {
			s.log.WithError(cerr).WithFields(logrus.Fields{
				"user_id": userID,
				"size_mb": mb,
			}).Error("failed to release storage after upload failure")
		}
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return &dto.UploadResponse{
		ObjectKey: key,
		URL:       url,
		SizeMB:    mb,
		Storage: dto.StorageResponse{
			UsedMB:    reserved.UsedMB,
			LimitMB:   reserved.LimitMB,
			OverQuota: reserved.OverQuota,
		},
	}, nil
}

// Delete 删除用户文件并释放存储额度
func (s *UploadService) Delete(ctx context.Context, userID int64, objectKey string) (*dto.StorageResponse, error) {
	if !oss.OwnedBy(objectKey, userID) {
		return nil, ErrFileNotFound
	}

	size, err := s.store.Size(objectKey)
	if err != nil {
		if errors.Is(err, oss.ErrObjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	if err := s.store.Delete(objectKey); err != nil {
		return nil, err
	}

	res, err := s.ledger.CreditStorage(ctx, userID, -SizeMB(size))
	if err != nil {
		return nil, err
	}
	return &dto.StorageResponse{
		UsedMB:    res.UsedMB,
		LimitMB:   res.LimitMB,
		OverQuota: res.OverQuota,
	}, nil
}
