package artifacts

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	changelogContentTypeConstant       = "text/plain; charset=utf-8"
	signatureContentTypeConstant       = "application/pgp-signature"
	archiveClientErrorTemplateConstant = "unable to create object storage client for %s: %w"
	archiveUploadErrorTemplateConstant = "unable to upload %s to %s/%s: %w"
	ensureBucketErrorTemplateConstant  = "unable to ensure bucket %s: %w"
	dialTimeoutConstant                = 5 * time.Second
	dialKeepAliveConstant              = 30 * time.Second
	idleConnectionTimeoutConstant      = 90 * time.Second
	tlsHandshakeTimeoutConstant        = 5 * time.Second
	expectContinueTimeoutConstant      = 1 * time.Second
	maximumIdleConnectionsConstant     = 100
)

// ErrArchiveEndpointRequired indicates an archiver constructed without an endpoint.
var ErrArchiveEndpointRequired = errors.New("object storage endpoint required")

// Archiver uploads files to an S3 compatible bucket.
type Archiver struct {
	client *minio.Client
	bucket string
	region string
}

// NewArchiver connects to the configured object storage endpoint.
func NewArchiver(configuration Configuration) (*Archiver, error) {
	sanitized := configuration.sanitize()
	if !sanitized.ArchiveEnabled() {
		return nil, ErrArchiveEndpointRequired
	}

	client, clientError := minio.New(sanitized.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(sanitized.AccessKey, sanitized.SecretKey, ""),
		Secure:       sanitized.UseSSL,
		Region:       sanitized.Region,
		BucketLookup: minio.BucketLookupPath,
		Transport:    newTransport(),
	})
	if clientError != nil {
		return nil, fmt.Errorf(archiveClientErrorTemplateConstant, sanitized.Endpoint, clientError)
	}
	return &Archiver{client: client, bucket: sanitized.Bucket, region: sanitized.Region}, nil
}

// EnsureBucket creates the bucket when it does not exist.
func (archiver *Archiver) EnsureBucket(executionContext context.Context) error {
	exists, existsError := archiver.client.BucketExists(executionContext, archiver.bucket)
	if existsError != nil {
		return fmt.Errorf(ensureBucketErrorTemplateConstant, archiver.bucket, existsError)
	}
	if exists {
		return nil
	}
	if makeError := archiver.client.MakeBucket(executionContext, archiver.bucket, minio.MakeBucketOptions{Region: archiver.region}); makeError != nil {
		return fmt.Errorf(ensureBucketErrorTemplateConstant, archiver.bucket, makeError)
	}
	return nil
}

// Upload stores filePath under objectKey and returns the uploaded size.
func (archiver *Archiver) Upload(executionContext context.Context, objectKey string, filePath string, contentType string) (int64, error) {
	information, uploadError := archiver.client.FPutObject(executionContext, archiver.bucket, objectKey, filePath, minio.PutObjectOptions{ContentType: contentType})
	if uploadError != nil {
		return 0, fmt.Errorf(archiveUploadErrorTemplateConstant, filePath, archiver.bucket, objectKey, uploadError)
	}
	return information.Size, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   dialTimeoutConstant,
		KeepAlive: dialKeepAliveConstant,
	}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          maximumIdleConnectionsConstant,
		IdleConnTimeout:       idleConnectionTimeoutConstant,
		TLSHandshakeTimeout:   tlsHandshakeTimeoutConstant,
		ExpectContinueTimeout: expectContinueTimeoutConstant,
	}
}
