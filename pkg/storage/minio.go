package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO存储实现
// 论文路径直接作为对象名
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	// 检查存储桶是否存在，不存在则创建
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %v", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// objectName 将存储键规整为MinIO对象名
func objectName(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}

// Save 保存文件到MinIO存储
func (s *MinioStorage) Save(reader io.Reader, path string) (FileInfo, error) {
	obj := objectName(path)

	// 读取文件内容到内存，以获取大小和进行上传
	// 注意：对于大文件，应该使用流式上传而不是加载到内存
	content, err := io.ReadAll(reader)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to read file content: %v", err)
	}

	size := int64(len(content))
	name := filepath.Base(obj)
	contentType := getMimeType(name)

	_, err = s.client.PutObject(
		context.Background(),
		s.bucketName,
		obj,
		bytes.NewReader(content),
		size,
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %v", err)
	}

	return FileInfo{
		Path:     obj,
		Name:     name,
		Size:     size,
		MimeType: contentType,
	}, nil
}

// Get 按路径获取MinIO中的文件
func (s *MinioStorage) Get(path string) (io.ReadCloser, error) {
	obj := objectName(path)

	// GetObject是惰性的，先Stat确认对象存在
	_, err := s.client.StatObject(context.Background(), s.bucketName, obj, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to stat object: %v", err)
	}

	reader, err := s.client.GetObject(
		context.Background(),
		s.bucketName,
		obj,
		minio.GetObjectOptions{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %v", err)
	}
	return reader, nil
}

// Delete 按路径从MinIO中删除文件
func (s *MinioStorage) Delete(path string) error {
	obj := objectName(path)

	err := s.client.RemoveObject(
		context.Background(),
		s.bucketName,
		obj,
		minio.RemoveObjectOptions{},
	)
	if err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}

// List 列出MinIO中的所有文件
func (s *MinioStorage) List() ([]FileInfo, error) {
	var files []FileInfo

	objectCh := s.client.ListObjects(
		context.Background(),
		s.bucketName,
		minio.ListObjectsOptions{Recursive: true},
	)

	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %v", object.Err)
		}

		name := filepath.Base(object.Key)
		files = append(files, FileInfo{
			Path:     object.Key,
			Name:     name,
			Size:     object.Size,
			MimeType: getMimeType(name),
		})
	}

	return files, nil
}

// Exists 检查MinIO中是否存在指定路径的文件
func (s *MinioStorage) Exists(path string) (bool, error) {
	obj := objectName(path)

	_, err := s.client.StatObject(context.Background(), s.bucketName, obj, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %v", err)
	}
	return true, nil
}
