package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/config"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/logging"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/metrics"
	"github.com/therealutkarshpriyadarshi/streamflow/internal/provisioning"
)

const scriptContentType = "text/x-shellscript"

// Storage keeps the bootstrap script rendered for each allocation in an
// S3-compatible bucket so a misbehaving instance can be reproduced later.
type Storage struct {
	client     *minio.Client
	bucketName string
	logger     *logging.Logger
	now        func() time.Time
}

var _ provisioning.ScriptArchive = (*Storage)(nil)

// New creates a new storage client
func New(cfg config.StorageConfig, logger *logging.Logger) (*Storage, error) {
	if logger == nil {
		logger = logging.Nop()
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	// Ensure bucket exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &Storage{
		client:     client,
		bucketName: cfg.BucketName,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Archive uploads a rendered bootstrap script
func (s *Storage) Archive(ctx context.Context, channelID, script string) error {
	start := time.Now()
	objectName := scriptObjectName(channelID, s.now())

	_, err := s.client.PutObject(ctx, s.bucketName, objectName, strings.NewReader(script), int64(len(script)), minio.PutObjectOptions{
		ContentType: scriptContentType,
		UserMetadata: map[string]string{
			"channel-id": channelID,
		},
	})
	s.logger.LogStorageOperation("archive_script", s.bucketName, objectName, int64(len(script)), time.Since(start), err)
	metrics.RecordStorageOperation("archive_script", statusOf(err))
	if err != nil {
		return fmt.Errorf("failed to archive bootstrap script: %w", err)
	}

	return nil
}

// List lists a channel's archived scripts, oldest first
func (s *Storage) List(ctx context.Context, channelID string) ([]string, error) {
	var objects []string
	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    scriptPrefix(channelID),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", object.Err)
		}
		objects = append(objects, object.Key)
	}

	sort.Strings(objects)
	return objects, nil
}

// Latest returns the most recently archived script for a channel
func (s *Storage) Latest(ctx context.Context, channelID string) (string, error) {
	objects, err := s.List(ctx, channelID)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "", fmt.Errorf("no bootstrap script archived for channel %s", channelID)
	}

	object, err := s.client.GetObject(ctx, s.bucketName, objects[len(objects)-1], minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to download object: %w", err)
	}
	defer object.Close()

	data, err := io.ReadAll(object)
	if err != nil {
		return "", fmt.Errorf("failed to read object: %w", err)
	}

	return string(data), nil
}

// DeleteChannel removes every archived script for a channel
func (s *Storage) DeleteChannel(ctx context.Context, channelID string) error {
	objects, err := s.List(ctx, channelID)
	if err != nil {
		return err
	}

	for _, name := range objects {
		if err := s.client.RemoveObject(ctx, s.bucketName, name, minio.RemoveObjectOptions{}); err != nil {
			metrics.RecordStorageOperation("delete_script", "error")
			return fmt.Errorf("failed to delete object: %w", err)
		}
	}
	metrics.RecordStorageOperation("delete_script", "success")

	return nil
}

func scriptPrefix(channelID string) string {
	return fmt.Sprintf("channels/%s/", channelID)
}

// scriptObjectName sorts lexically in creation order
func scriptObjectName(channelID string, at time.Time) string {
	return fmt.Sprintf("%sbootstrap-%s.sh", scriptPrefix(channelID), at.UTC().Format("20060102T150405.000Z"))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
