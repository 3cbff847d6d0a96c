package aws

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"bitwise74/notes-api/internal/blob"
	"bitwise74/notes-api/internal/errs"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// Objects bigger than this are sent as a multipart upload
const minMultipartSize = 12 << 20

type S3Store struct {
	C      *s3.Client
	Bucket *string

	region    string
	endpoint  string
	pathStyle bool
	publicURL string
	now       func() time.Time
}

var _ blob.Store = (*S3Store)(nil)

func (s *S3Store) clock() time.Time {
	if s.now != nil {
		return s.now()
	}

	return time.Now()
}

// ObjectURL is where the object can be reached when the bucket (or the CDN in
// front of it) is public
func (s *S3Store) ObjectURL(key string) string {
	escaped := url.PathEscape(key)

	switch {
	case s.publicURL != "":
		return s.publicURL + "/" + escaped
	case s.endpoint != "":
		return s.endpoint + "/" + *s.Bucket + "/" + escaped
	case s.pathStyle:
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, *s.Bucket, escaped)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", *s.Bucket, s.region, escaped)
	}
}

// Upload streams r to the bucket. The manager uploader is used so bodies of
// unknown length work; it only switches to multipart past minMultipartSize.
func (s *S3Store) Upload(ctx context.Context, r io.Reader, name, mimeType string) (*blob.Object, error) {
	now := s.clock()
	key := blob.NewKey(now, name)

	counter := &countingReader{r: r}

	uploader := manager.NewUploader(s.C, func(u *manager.Uploader) {
		u.Concurrency = 5
		u.PartSize = minMultipartSize
	})

	contentType := mimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:             s.Bucket,
		Key:                aws.String(key),
		Body:               counter,
		ContentType:        aws.String(contentType),
		ContentDisposition: aws.String(blob.ContentDisposition(name)),
		Metadata:           blob.Metadata(name, mimeType, now),
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageWrite, "Failed to upload file to storage", err)
	}

	zap.L().Debug("Object uploaded", zap.String("key", key), zap.Int64("size", counter.n))

	return &blob.Object{
		Key:  key,
		URL:  s.ObjectURL(key),
		Size: counter.n,
	}, nil
}

func (s *S3Store) Download(ctx context.Context, key string) (io.ReadCloser, *blob.Info, error) {
	out, err := s.C.GetObject(ctx, &s3.GetObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, errs.Wrap(errs.StorageRead, "Failed to download file from storage", err)
	}

	return out.Body, &blob.Info{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		Metadata:     out.Metadata,
	}, nil
}

// Delete treats a missing object as deleted. S3 itself answers 204 for
// missing keys, some compatible stores answer 404.
func (s *S3Store) Delete(ctx context.Context, key string) (bool, error) {
	_, err := s.C.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return false, fmt.Errorf("failed to delete object %s, %w", key, err)
	}

	return true, nil
}

func (s *S3Store) Info(ctx context.Context, key string) (*blob.Info, error) {
	out, err := s.C.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: s.Bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errs.Wrap(errs.StorageRead, "Failed to get file information", err)
	}

	return &blob.Info{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: aws.ToTime(out.LastModified),
		ContentType:  aws.ToString(out.ContentType),
		Metadata:     out.Metadata,
	}, nil
}

func (s *S3Store) List(ctx context.Context) ([]blob.Info, error) {
	var out []blob.Info

	p := s3.NewListObjectsV2Paginator(s.C, &s3.ListObjectsV2Input{
		Bucket: s.Bucket,
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects, %w", err)
		}

		for _, o := range page.Contents {
			out = append(out, blob.Info{
				Key:          aws.ToString(o.Key),
				Size:         aws.ToInt64(o.Size),
				LastModified: aws.ToTime(o.LastModified),
			})
		}
	}

	return out, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
