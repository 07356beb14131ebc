package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNoStorage is returned when Init did not succeed
var ErrNoStorage = errors.New("storage not available")

// ErrObjectTooLarge is returned when an object exceeds the fetch limit
var ErrObjectTooLarge = errors.New("object too large")

// ErrInvalidObject is returned for object paths outside the empresa prefix
var ErrInvalidObject = errors.New("invalid object path")

// MaxListedObjects bounds ListDocuments
const MaxListedObjects = 1000

var Client *minio.Client
var BucketName string

func Init() error {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "minio:9000"
	}

	accessKey := os.Getenv("MINIO_ACCESS_KEY")
	secretKey := os.Getenv("MINIO_SECRET_KEY")
	if accessKey == "" || secretKey == "" {
		return fmt.Errorf("%w: MINIO_ACCESS_KEY and MINIO_SECRET_KEY are required", ErrNoStorage)
	}

	BucketName = os.Getenv("MINIO_BUCKET")
	if BucketName == "" {
		BucketName = "nfe-documentos"
	}

	useSSL := os.Getenv("MINIO_USE_SSL") == "true"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// Verify bucket exists
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, BucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", BucketName)
	}

	Client = client
	return nil
}

// Available reports whether Init succeeded
func Available() bool {
	return Client != nil
}

// TenantObject resolves an object path inside the empresa's prefix.
// Paths may carry the bucket name; paths escaping the prefix are rejected.
// Layout: {empresa_alias}/YYYY/MM/{filename}
func TenantObject(empresaAlias, objectPath string) (string, error) {
	name := objectName(objectPath)
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidObject, objectPath)
	}
	if empresaAlias == "" {
		return clean, nil
	}
	if !strings.HasPrefix(clean, empresaAlias+"/") {
		return "", fmt.Errorf("%w: %q is outside %s/", ErrInvalidObject, objectPath, empresaAlias)
	}
	return clean, nil
}

// FetchDocument reads one NF-e object. Objects larger than maxBytes fail with
// ErrObjectTooLarge; maxBytes <= 0 disables the limit.
func FetchDocument(ctx context.Context, empresaAlias, objectPath string, maxBytes int64) ([]byte, error) {
	if Client == nil {
		return nil, ErrNoStorage
	}
	name, err := TenantObject(empresaAlias, objectPath)
	if err != nil {
		return nil, err
	}

	obj, err := Client.GetObject(ctx, BucketName, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", name, err)
	}
	defer obj.Close()

	var r io.Reader = obj
	if maxBytes > 0 {
		r = io.LimitReader(obj, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrObjectTooLarge, name)
	}
	return data, nil
}

// ListDocuments returns the XML and JSON objects under the empresa prefix
// joined with prefix, sorted by name as MinIO returns them
func ListDocuments(ctx context.Context, empresaAlias, prefix string) ([]string, error) {
	if Client == nil {
		return nil, ErrNoStorage
	}

	full := strings.TrimPrefix(prefix, "/")
	if empresaAlias != "" {
		full = empresaAlias + "/" + full
	}

	return collectDocuments(ctx, func(ctx context.Context) <-chan minio.ObjectInfo {
		return Client.ListObjects(ctx, BucketName, minio.ListObjectsOptions{
			Prefix:    full,
			Recursive: true,
		})
	}, MaxListedObjects)
}

// collectDocuments drains a listing into at most limit NF-e names. The
// listing context is cancelled on return so the lister stops sending.
func collectDocuments(ctx context.Context, list func(context.Context) <-chan minio.ObjectInfo, limit int) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var names []string
	for info := range list(ctx) {
		if info.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", info.Err)
		}
		if !IsDocumentObject(info.Key) {
			continue
		}
		names = append(names, info.Key)
		if len(names) >= limit {
			break
		}
	}
	return names, nil
}

// IsDocumentObject reports whether the object name looks like an NF-e file
func IsDocumentObject(name string) bool {
	switch strings.ToLower(path.Ext(name)) {
	case ".xml", ".json":
		return true
	default:
		return false
	}
}

func objectName(objectPath string) string {
	if BucketName != "" && strings.HasPrefix(objectPath, BucketName+"/") {
		return objectPath[len(BucketName)+1:]
	}
	return objectPath
}
