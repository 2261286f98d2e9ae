package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"mixflow/logger"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures a MinioStore.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioStore keeps files as objects <kind>/<name> in one bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

var _ Store = (*MinioStore)(nil)

// NewMinioStore 初始化 MinIO 客户端, 存储桶不存在时自动创建
func NewMinioStore(ctx context.Context, cfg MinioConfig) (*MinioStore, error) {
	logger.Info("正在连接 MinIO 服务器",
		logger.String("endpoint", cfg.Endpoint),
		logger.String("bucket", cfg.Bucket))

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, Error.New("创建 MinIO 客户端失败: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// 检查存储桶是否存在
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, Error.New("检查存储桶失败: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, Error.New("创建存储桶失败: %v", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.Bucket))
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Ping checks that the bucket is reachable.
func (s *MinioStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return Error.Wrap(err)
}

func objectName(kind Kind, name string) string {
	return path.Join(string(kind), name)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchObject":
		return Error.Wrap(fmt.Errorf("%w: %v", ErrNotExist, err))
	}
	return Error.Wrap(err)
}

func (s *MinioStore) Save(ctx context.Context, kind Kind, name string, r io.Reader) (int64, error) {
	if err := checkName(kind, name); err != nil {
		return 0, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, objectName(kind, name), r, -1, minio.PutObjectOptions{
		ContentType: contentTypeFor(name),
	})
	if err != nil {
		// 上传失败时清理残留对象
		_ = s.client.RemoveObject(context.WithoutCancel(ctx), s.bucket, objectName(kind, name), minio.RemoveObjectOptions{})
		return 0, Error.Wrap(err)
	}
	return info.Size, nil
}

func (s *MinioStore) Open(ctx context.Context, kind Kind, name string) (*File, error) {
	if err := checkName(kind, name); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(kind, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	oi, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, translate(err)
	}
	return &File{ReadSeekCloser: obj, Info: infoFromObject(kind, name, oi)}, nil
}

func (s *MinioStore) Stat(ctx context.Context, kind Kind, name string) (Info, error) {
	if err := checkName(kind, name); err != nil {
		return Info{}, err
	}
	oi, err := s.client.StatObject(ctx, s.bucket, objectName(kind, name), minio.StatObjectOptions{})
	if err != nil {
		return Info{}, translate(err)
	}
	return infoFromObject(kind, name, oi), nil
}

func (s *MinioStore) Remove(ctx context.Context, kind Kind, name string) error {
	if err := checkName(kind, name); err != nil {
		return err
	}
	err := s.client.RemoveObject(ctx, s.bucket, objectName(kind, name), minio.RemoveObjectOptions{})
	if err = translate(err); err != nil && !IsNotExist(err) {
		return err
	}
	return nil
}

func (s *MinioStore) Walk(ctx context.Context, kind Kind, fn func(Info) error) error {
	if !kind.Valid() {
		return Error.New("unknown kind %q", kind)
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	prefix := string(kind) + "/"
	for oi := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if oi.Err != nil {
			return Error.Wrap(oi.Err)
		}
		name := strings.TrimPrefix(oi.Key, prefix)
		if !ValidName(name) {
			continue
		}
		if err := fn(infoFromObject(kind, name, oi)); err != nil {
			return err
		}
	}
	return nil
}

func infoFromObject(kind Kind, name string, oi minio.ObjectInfo) Info {
	return Info{Kind: kind, Name: name, Size: oi.Size, ModTime: oi.LastModified}
}
