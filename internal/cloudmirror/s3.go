package cloudmirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// S3Config holds the parameters for an S3-backed provider. Grounded
// on scttfrdmn-objectfs's aws-sdk-go-v2 usage, the only pack example
// wiring a real object-store SDK end to end.
type S3Config struct {
	Bucket string
	Prefix string
	Region string
}

// S3Provider mirrors artifacts to an S3 (or S3-compatible) bucket.
// S3 has no native rename, so Rename is implemented as copy+delete.
type S3Provider struct {
	cfg    S3Config
	client *s3.Client
}

// NewS3Provider constructs a provider that resolves credentials on
// Login via the default AWS credential chain.
func NewS3Provider(cfg S3Config) *S3Provider {
	return &S3Provider{cfg: cfg}
}

func (p *S3Provider) key(remotePath string) string {
	return strings.TrimPrefix(strings.TrimSuffix(p.cfg.Prefix, "/")+"/"+strings.TrimPrefix(remotePath, "/"), "/")
}

func (p *S3Provider) Login() error {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(p.cfg.Region))
	if err != nil {
		return fmt.Errorf("cloudmirror(s3): load AWS config: %w", err)
	}
	p.client = s3.NewFromConfig(cfg)
	return nil
}

func (p *S3Provider) Logout() error {
	p.client = nil
	return nil
}

// Mkdir is a no-op: S3 has no real directories, only key prefixes,
// which come into existence implicitly when an object is uploaded
// under them.
func (p *S3Provider) Mkdir(string) error { return nil }

func (p *S3Provider) Readdir(remotePath string) ([]Entry, error) {
	prefix := p.key(remotePath)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	out, err := p.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
		Bucket:    aws.String(p.cfg.Bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	})
	if err != nil {
		return nil, fmt.Errorf("cloudmirror(s3): list %s: %w", remotePath, err)
	}
	entries := make([]Entry, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, cp := range out.CommonPrefixes {
		entries = append(entries, Entry{Name: strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/"), IsDir: true})
	}
	for _, obj := range out.Contents {
		entries = append(entries, Entry{
			Name:    strings.TrimPrefix(aws.ToString(obj.Key), prefix),
			IsDir:   false,
			Size:    aws.ToInt64(obj.Size),
			ModTime: aws.ToTime(obj.LastModified),
		})
	}
	return entries, nil
}

func (p *S3Provider) Stat(remotePath string) (*Stat, bool, error) {
	out, err := p.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(remotePath)),
	})
	if err != nil {
		var notFound *types.NotFound
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &notFound) || (errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cloudmirror(s3): head %s: %w", remotePath, err)
	}
	return &Stat{
		IsDir: false,
		Size:  aws.ToInt64(out.ContentLength),
		MTime: aws.ToTime(out.LastModified),
	}, true, nil
}

func (p *S3Provider) Rename(oldPath, newPath string) error {
	ctx := context.Background()
	src := p.cfg.Bucket + "/" + p.key(oldPath)
	if _, err := p.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(p.cfg.Bucket),
		Key:        aws.String(p.key(newPath)),
		CopySource: aws.String(src),
	}); err != nil {
		return fmt.Errorf("cloudmirror(s3): copy %s -> %s: %w", oldPath, newPath, err)
	}
	if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(oldPath)),
	}); err != nil {
		return fmt.Errorf("cloudmirror(s3): delete old %s after copy: %w", oldPath, err)
	}
	return nil
}

func (p *S3Provider) Upload(localSrc, remoteDst string) error {
	f, err := os.Open(localSrc)
	if err != nil {
		return fmt.Errorf("cloudmirror(s3): open %s: %w", localSrc, err)
	}
	defer f.Close()

	_, err = p.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(remoteDst)),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("cloudmirror(s3): put %s: %w", remoteDst, err)
	}
	return nil
}

func (p *S3Provider) Download(remoteSrc, localDst string) error {
	out, err := p.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(remoteSrc)),
	})
	if err != nil {
		return fmt.Errorf("cloudmirror(s3): get %s: %w", remoteSrc, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localDst)
	if err != nil {
		return fmt.Errorf("cloudmirror(s3): create %s: %w", localDst, err)
	}
	defer f.Close()

	if _, err := f.ReadFrom(out.Body); err != nil {
		return fmt.Errorf("cloudmirror(s3): download %s -> %s: %w", remoteSrc, localDst, err)
	}
	return f.Close()
}

func (p *S3Provider) Remove(remotePath string) error {
	_, err := p.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(p.cfg.Bucket),
		Key:    aws.String(p.key(remotePath)),
	})
	if err != nil {
		return fmt.Errorf("cloudmirror(s3): delete %s: %w", remotePath, err)
	}
	return nil
}
