package oss

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/journal_server/config"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

type Client struct {
	client     *oss.Client
	bucket     *oss.Bucket
	bucketName string
	cdnDomain  string
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket: %w", err)
	}

	return &Client{
		client:     client,
		bucket:     bucket,
		bucketName: cfg.BucketName,
		cdnDomain:  cfg.CDNDomain,
	}, nil
}

// Put 上传文件，返回访问 URL
func (c *Client) Put(objectKey string, data []byte, contentType string) (string, error) {
	err := c.bucket.PutObject(objectKey, bytes.NewReader(data), oss.ContentType(contentType))
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return c.GetURL(objectKey), nil
}

// Size 读取对象大小（字节）
func (c *Client) Size(objectKey string) (int64, error) {
	meta, err := c.bucket.GetObjectDetailedMeta(objectKey)
	if err != nil {
		var se oss.ServiceError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return 0, ErrObjectNotFound
		}
		return 0, fmt.Errorf("failed to get object meta: %w", err)
	}

	size, err := strconv.ParseInt(meta.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid content length for %s: %w", objectKey, err)
	}
	return size, nil
}

// Delete 删除文件
func (c *Client) Delete(objectKey string) error {
	err := c.bucket.DeleteObject(objectKey)
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// GetURL 获取文件访问 URL
func (c *Client) GetURL(objectKey string) string {
	if c.cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s", c.cdnDomain, objectKey)
	}
	return fmt.Sprintf("https://%s.%s/%s", c.bucketName, c.client.Config.Endpoint, objectKey)
}

// GetSignedURL 生成带签名的临时访问URL（默认1小时有效）
func (c *Client) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	expire := int64(3600)
	if len(expireSeconds) > 0 && expireSeconds[0] > 0 {
		expire = expireSeconds[0]
	}

	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, expire)
	if err != nil {
		return "", fmt.Errorf("failed to generate signed URL: %w", err)
	}

	return signedURL, nil
}

// ContentType 根据扩展名获取 Content-Type
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".m4a":
		return "audio/mp4"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// UserFileKey 用户文件的 object key
func UserFileKey(userID int64, name, ext string) string {
	return path.Join("files", strconv.FormatInt(userID, 10), name+strings.ToLower(ext))
}

// OwnedBy 判断 object key 是否属于该用户
func OwnedBy(objectKey string, userID int64) bool {
	prefix := "files/" + strconv.FormatInt(userID, 10) + "/"
	clean := path.Clean(objectKey)
	return strings.HasPrefix(clean, prefix) && clean == objectKey
}
