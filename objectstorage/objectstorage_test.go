package objectstorage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-chi/chi/v5"
	"github.com/infinityplans/portal/api/apicommon"
	"github.com/infinityplans/portal/auth"
)

var (
	pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}
	pdfHeader = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")
)

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, fmt.Errorf("read error") }

func TestNew(t *testing.T) {
	c := qt.New(t)

	client, err := New(nil)
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(client, qt.IsNil)

	client, err = New(&Config{})
	c.Assert(err, qt.Not(qt.IsNil))
	c.Assert(client, qt.IsNil)

	client, err = New(&Config{Bucket: NewMemoryBucket(), SupportedTypes: []ObjectFileType{"text/plain"}})
	c.Assert(err, qt.IsNil)
	c.Assert(client.supportedTypes["text/plain"], qt.IsTrue)
	c.Assert(client.supportedTypes[FileTypePDF], qt.IsTrue)
	// the defaults are not modified
	c.Assert(DefaultSupportedFileTypes["text/plain"], qt.IsFalse)
}

func TestPutGet(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	bucket := NewMemoryBucket()
	client, err := New(&Config{Bucket: bucket, ServerURL: "https://portal.example"})
	c.Assert(err, qt.IsNil)

	obj, err := client.Put(ctx, bytes.NewReader(pdfHeader), "INF001")
	c.Assert(err, qt.IsNil)
	c.Assert(obj.ContentType, qt.Equals, string(FileTypePDF))
	c.Assert(obj.Owner, qt.Equals, "INF001")
	c.Assert(strings.HasPrefix(obj.Key, "INF001/"), qt.IsTrue)
	c.Assert(strings.HasSuffix(obj.Key, ".pdf"), qt.IsTrue)
	c.Assert(OwnerOf(obj.Key), qt.Equals, "INF001")
	c.Assert(client.URL(obj.Key), qt.Equals, "https://portal.example/storage/"+obj.Key)

	// same content, same key
	again, err := client.Put(ctx, bytes.NewReader(pdfHeader), "INF001")
	c.Assert(err, qt.IsNil)
	c.Assert(again.Key, qt.Equals, obj.Key)
	c.Assert(bucket.Len(), qt.Equals, 1)

	got, err := client.Get(ctx, obj.Key)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Data, qt.DeepEquals, pdfHeader)

	// a cold cache reads from the bucket
	client.cache.Purge()
	got, err = client.Get(ctx, obj.Key)
	c.Assert(err, qt.IsNil)
	c.Assert(got.ContentType, qt.Equals, string(FileTypePDF))
	c.Assert(client.cache.Contains(obj.Key), qt.IsTrue)

	c.Assert(client.Delete(ctx, obj.Key), qt.IsNil)
	_, err = client.Get(ctx, obj.Key)
	c.Assert(err, qt.Equals, ErrorObjectNotFound)
	c.Assert(bucket.Len(), qt.Equals, 0)
}

func TestPutRejects(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	client, err := New(&Config{Bucket: NewMemoryBucket()})
	c.Assert(err, qt.IsNil)

	_, err = client.Put(ctx, bytes.NewReader([]byte("just some text")), "INF001")
	c.Assert(err, qt.Equals, ErrorFileTypeNotSupported)

	_, err = client.Put(ctx, bytes.NewReader(nil), "INF001")
	c.Assert(err, qt.Not(qt.IsNil))

	_, err = client.Put(ctx, errReader{}, "INF001")
	c.Assert(err, qt.ErrorMatches, "cannot read file: read error")

	_, err = client.Put(ctx, bytes.NewReader(pngHeader), "../etc")
	c.Assert(err, qt.Equals, ErrorInvalidObjectID)

	big := append(append([]byte{}, pngHeader...), make([]byte, MaxObjectSize)...)
	_, err = client.Put(ctx, bytes.NewReader(big), "INF001")
	c.Assert(err, qt.Equals, ErrorFileTooLarge)

	_, err = client.Get(ctx, "no-slash")
	c.Assert(err, qt.Equals, ErrorInvalidObjectID)
}

func TestDownloadHandler(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	client, err := New(&Config{Bucket: NewMemoryBucket()})
	c.Assert(err, qt.IsNil)
	obj, err := client.Put(ctx, bytes.NewReader(pngHeader), "INF001")
	c.Assert(err, qt.IsNil)

	router := chi.NewRouter()
	router.Get("/storage/{owner}/{objectName}", client.DownloadHandler)

	do := func(id *auth.Identity, path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if id != nil {
			req = req.WithContext(apicommon.WithIdentity(req.Context(), id))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	owner := &auth.Identity{UID: "u1", RegistrationID: "INF001"}
	other := &auth.Identity{UID: "u2", RegistrationID: "INF002"}
	admin := &auth.Identity{UID: "a1", Admin: true}

	rec := do(owner, "/storage/"+obj.Key)
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, string(FileTypePNG))
	c.Assert(rec.Body.Bytes(), qt.DeepEquals, pngHeader)

	c.Assert(do(admin, "/storage/"+obj.Key).Code, qt.Equals, http.StatusOK)
	c.Assert(do(other, "/storage/"+obj.Key).Code, qt.Equals, http.StatusForbidden)
	c.Assert(do(nil, "/storage/"+obj.Key).Code, qt.Equals, http.StatusUnauthorized)
	c.Assert(do(owner, "/storage/INF001/not-an-object").Code, qt.Equals, http.StatusBadRequest)
	c.Assert(do(owner, "/storage/INF001/000000000000000000000000.png").Code, qt.Equals, http.StatusNotFound)
}
