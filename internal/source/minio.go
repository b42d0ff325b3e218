package source

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/TomerMadmon/md5-cracker/internal/errkind"
)

// S3Config holds the connection settings for an object-storage source.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Secure    bool
	Bucket    string
	Prefix    string
}

// S3Source reads CSV partitions straight from an S3-compatible bucket, so
// generated partitions never have to be copied to local disk first.
type S3Source struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Source creates a source over the CSV objects under cfg.Prefix.
func NewS3Source(cfg S3Config) (*S3Source, error) {
	endpoint, err := cleanEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, err
	}

	return &S3Source{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// cleanEndpoint reduces an endpoint URL to host:port form.
func cleanEndpoint(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if strings.Contains(endpoint, "/") {
			return "", fmt.Errorf("endpoint contains path but no protocol")
		}
		return endpoint, nil
	}

	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		return "", fmt.Errorf("endpoint URL cannot have paths, only host:port is allowed (got path: %s)", parsedURL.Path)
	}
	return parsedURL.Host, nil
}

// ListTasks lists the .csv objects under the configured prefix. The object's
// base name is the task ID, so the same checkpoint works whether partitions
// are read from a bucket or a local directory.
func (s *S3Source) ListTasks(ctx context.Context) ([]Task, error) {
	var tasks []Task
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, errkind.Wrapf(errkind.KindSourceUnreadable, "list bucket %s: %w", s.bucket, obj.Err)
		}
		if !strings.HasSuffix(obj.Key, ".csv") {
			continue
		}
		tasks = append(tasks, Task{ID: path.Base(obj.Key), Path: obj.Key})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// ReadBatches streams the object's records.
func (s *S3Source) ReadBatches(ctx context.Context, task Task, batchSize int, fn func([]Record) error) error {
	obj, err := s.client.GetObject(ctx, s.bucket, task.Path, minio.GetObjectOptions{})
	if err != nil {
		return errkind.Wrapf(errkind.KindSourceUnreadable, "get partition %s: %w", task.ID, err)
	}
	defer obj.Close()

	return readBatches(ctx, obj, task, batchSize, fn)
}
