// Package objectstorage stores the files members upload, such as policy
// documents and identity scans, in a bucket. Objects are addressed by a key
// derived from their owner and the hash of their content.
package objectstorage

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	// ErrorObjectNotFound is returned when the requested object is not found in storage.
	ErrorObjectNotFound = fmt.Errorf("object not found")
	// ErrorInvalidObjectID is returned when the provided object key is invalid or empty.
	ErrorInvalidObjectID = fmt.Errorf("invalid object ID")
	// ErrorFileTypeNotSupported is returned when the file type is not in the supported types list.
	ErrorFileTypeNotSupported = fmt.Errorf("file type not supported")
	// ErrorFileTooLarge is returned for files over MaxObjectSize.
	ErrorFileTooLarge = fmt.Errorf("file too large")
)

// MaxObjectSize is the largest file accepted by Put.
const MaxObjectSize = 10 << 20

// ObjectFileType represents the MIME type of a stored object file.
type ObjectFileType string

const (
	// FileTypeJPEG represents the JPEG image MIME type.
	FileTypeJPEG ObjectFileType = "image/jpeg"
	// FileTypePNG represents the PNG image MIME type.
	FileTypePNG ObjectFileType = "image/png"
	// FileTypePDF represents the PDF document MIME type.
	FileTypePDF ObjectFileType = "application/pdf"
)

// DefaultSupportedFileTypes is a map of file types that are supported by default.
var DefaultSupportedFileTypes = map[ObjectFileType]bool{
	FileTypeJPEG: true,
	FileTypePNG:  true,
	FileTypePDF:  true,
}

var extensions = map[ObjectFileType]string{
	FileTypeJPEG: "jpeg",
	FileTypePNG:  "png",
	FileTypePDF:  "pdf",
}

// Object is a stored file.
type Object struct {
	Key         string
	ContentType string
	Owner       string
	Data        []byte
	CreatedAt   time.Time
}

// Bucket is the storage behind a Client. GetObject returns
// ErrorObjectNotFound for unknown keys and DeleteObject ignores them.
type Bucket interface {
	PutObject(ctx context.Context, obj *Object) error
	GetObject(ctx context.Context, key string) (*Object, error)
	DeleteObject(ctx context.Context, key string) error
}

// Config holds the configuration for the object storage client.
type Config struct {
	Bucket         Bucket
	SupportedTypes []ObjectFileType
	ServerURL      string
	CacheSize      int
}

// Client provides functionality for storing and retrieving objects.
// It includes an LRU cache in front of the bucket.
type Client struct {
	bucket         Bucket
	supportedTypes map[ObjectFileType]bool
	cache          *lru.Cache[string, Object]
	ServerURL      string
}

// New initializes a new Client over the configured bucket. Extra supported
// types are added to the default ones.
func New(conf *Config) (*Client, error) {
	if conf == nil || conf.Bucket == nil {
		return nil, fmt.Errorf("invalid object storage configuration")
	}
	supportedTypes := make(map[ObjectFileType]bool, len(DefaultSupportedFileTypes))
	for t := range DefaultSupportedFileTypes {
		supportedTypes[t] = true
	}
	for _, t := range conf.SupportedTypes {
		supportedTypes[t] = true
	}
	size := conf.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[string, Object](size)
	if err != nil {
		return nil, fmt.Errorf("cannot create cache: %w", err)
	}
	return &Client{
		bucket:         conf.Bucket,
		supportedTypes: supportedTypes,
		cache:          cache,
		ServerURL:      conf.ServerURL,
	}, nil
}

// Get retrieves an object by key. It first checks the cache, and if not
// found, retrieves it from the bucket.
func (osc *Client) Get(ctx context.Context, key string) (*Object, error) {
	if !validKey(key) {
		return nil, ErrorInvalidObjectID
	}
	if object, ok := osc.cache.Get(key); ok {
		return &object, nil
	}
	object, err := osc.bucket.GetObject(ctx, key)
	if err != nil {
		if err == ErrorObjectNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("error retrieving object: %w", err)
	}
	osc.cache.Add(key, *object)
	return object, nil
}

// Put stores the file read from data under the owner prefix and returns the
// stored object. The key is derived from the content, so uploading the same
// file twice yields the same key.
func (osc *Client) Put(ctx context.Context, data io.Reader, owner string) (*Object, error) {
	if owner == "" || strings.ContainsAny(owner, "/.") {
		return nil, ErrorInvalidObjectID
	}
	buff, err := io.ReadAll(io.LimitReader(data, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("cannot read file: %w", err)
	}
	if len(buff) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if len(buff) > MaxObjectSize {
		return nil, ErrorFileTooLarge
	}
	// checking the content type
	filetype := ObjectFileType(strings.Split(http.DetectContentType(buff), ";")[0])
	if !osc.supportedTypes[filetype] {
		return nil, ErrorFileTypeNotSupported
	}
	ext, ok := extensions[filetype]
	if !ok {
		ext = strings.Split(string(filetype), "/")[1]
	}
	object := &Object{
		Key:         fmt.Sprintf("%s/%s.%s", owner, calculateObjectID(buff), ext),
		ContentType: string(filetype),
		Owner:       owner,
		Data:        buff,
		CreatedAt:   time.Now().UTC(),
	}
	if err := osc.bucket.PutObject(ctx, object); err != nil {
		return nil, fmt.Errorf("cannot put object: %w", err)
	}
	osc.cache.Add(object.Key, *object)
	return object, nil
}

// Delete removes the object from the bucket and the cache.
func (osc *Client) Delete(ctx context.Context, key string) error {
	if !validKey(key) {
		return ErrorInvalidObjectID
	}
	osc.cache.Remove(key)
	return osc.bucket.DeleteObject(ctx, key)
}

// URL returns the download URL of the object.
func (osc *Client) URL(key string) string {
	return objectURL(osc.ServerURL, key)
}

// OwnerOf returns the owner prefix of a key.
func OwnerOf(key string) string {
	owner, _, _ := strings.Cut(key, "/")
	return owner
}

func validKey(key string) bool {
	owner, name, ok := strings.Cut(key, "/")
	return ok && owner != "" && name != "" && !strings.Contains(name, "/")
}

// calculateObjectID calculates the object name from the given data. It is
// the hex encoding of the first 12 bytes of the md5 hash of the data.
func calculateObjectID(data []byte) string {
	sum := md5.Sum(data)
	return fmt.Sprintf("%x", sum[:12])
}
