package s3

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const amzMetaPrefix = "X-Amz-Meta-"

// FakeBucket is an in-process http.RoundTripper speaking the subset of the S3
// REST API used by Store (HEAD, GET, PUT, DELETE, ListObjectsV2). It lets the
// archive exporter and its tests run without a network.
type FakeBucket struct {
	// PageSize bounds ListObjectsV2 pages; zero means 1000.
	PageSize int

	mu      sync.Mutex
	objects map[string]fakeObject
	now     func() time.Time
	calls   map[string]int
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
	modified    time.Time
}

// NewFakeBucket returns an empty fake.
func NewFakeBucket() *FakeBucket {
	return &FakeBucket{objects: make(map[string]fakeObject), now: time.Now, calls: make(map[string]int)}
}

// NewFake returns a Store wired to a fresh FakeBucket with static
// credentials and a path-style endpoint.
func NewFake(ctx context.Context, bucket string) (*Store, *FakeBucket, error) {
	fake := NewFakeBucket()
	store, err := New(ctx, Config{
		Bucket:          bucket,
		Region:          DefaultRegion,
		Endpoint:        "https://s3.fake.local",
		PathStyle:       true,
		AccessKeyID:     "AKIAFAKE",
		SecretAccessKey: "fake-secret",
		HTTPClient:      &http.Client{Transport: fake},
	})
	if err != nil {
		return nil, nil, err
	}
	return store, fake, nil
}

// Calls returns how many requests of the given method were served.
func (f *FakeBucket) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// Len returns the number of stored objects.
func (f *FakeBucket) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// RoundTrip serves req from the in-memory bucket.
func (f *FakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.Method]++
	// Path style: /<bucket>/<key>
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}
	query := req.URL.Query()
	switch {
	case req.Method == http.MethodGet && query.Get("list-type") == "2":
		return f.list(req, query.Get("prefix"), query.Get("continuation-token"))
	case req.Method == http.MethodHead:
		obj, ok := f.objects[key]
		if !ok {
			return respond(req, http.StatusNotFound, nil, nil), nil
		}
		return respond(req, http.StatusOK, obj.headers(), nil), nil
	case req.Method == http.MethodGet:
		obj, ok := f.objects[key]
		if !ok {
			return respond(req, http.StatusNotFound, xmlHeader(), noSuchKey(key)), nil
		}
		return respond(req, http.StatusOK, obj.headers(), obj.body), nil
	case req.Method == http.MethodPut:
		body, err := readPayload(req)
		if err != nil {
			return nil, err
		}
		obj := fakeObject{body: body, contentType: req.Header.Get("Content-Type"), metadata: http.Header{}, modified: f.now().UTC().Truncate(time.Second)}
		for name, values := range req.Header {
			if strings.HasPrefix(http.CanonicalHeaderKey(name), amzMetaPrefix) {
				obj.metadata[name] = values
			}
		}
		f.objects[key] = obj
		return respond(req, http.StatusOK, http.Header{"Etag": {obj.etag()}}, nil), nil
	case req.Method == http.MethodDelete:
		delete(f.objects, key)
		return respond(req, http.StatusNoContent, nil, nil), nil
	}
	return respond(req, http.StatusNotImplemented, nil, nil), nil
}

type listEntry struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

type listResult struct {
	XMLName               xml.Name    `xml:"ListBucketResult"`
	IsTruncated           bool        `xml:"IsTruncated"`
	KeyCount              int         `xml:"KeyCount"`
	NextContinuationToken string      `xml:"NextContinuationToken,omitempty"`
	Contents              []listEntry `xml:"Contents"`
}

func (f *FakeBucket) list(req *http.Request, prefix, after string) (*http.Response, error) {
	keys := make([]string, 0, len(f.objects))
	for k := range f.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	size := f.PageSize
	if size <= 0 {
		size = 1000
	}
	result := listResult{}
	if len(keys) > size {
		keys = keys[:size]
		result.IsTruncated = true
		result.NextContinuationToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		obj := f.objects[k]
		result.Contents = append(result.Contents, listEntry{
			Key:          k,
			Size:         int64(len(obj.body)),
			ETag:         obj.etag(),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	result.KeyCount = len(result.Contents)
	raw, err := xml.Marshal(result)
	if err != nil {
		return nil, err
	}
	return respond(req, http.StatusOK, xmlHeader(), raw), nil
}

func (o fakeObject) etag() string {
	sum := md5.Sum(o.body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (o fakeObject) headers() http.Header {
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(o.body))},
		"Etag":           {o.etag()},
		"Last-Modified":  {o.modified.Format(http.TimeFormat)},
	}
	if o.contentType != "" {
		h.Set("Content-Type", o.contentType)
	}
	for name, values := range o.metadata {
		h[name] = values
	}
	return h
}

func xmlHeader() http.Header { return http.Header{"Content-Type": {"application/xml"}} }

func noSuchKey(key string) []byte {
	return []byte(fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>%s</Key></Error>`, key))
}

func respond(req *http.Request, status int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode:    status,
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// readPayload returns the object bytes of a PUT, undoing aws-chunked framing
// when the SDK streams with a trailing checksum.
func readPayload(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if !strings.Contains(req.Header.Get("Content-Encoding"), "aws-chunked") {
		return raw, nil
	}
	return decodeAWSChunked(raw)
}

func decodeAWSChunked(raw []byte) ([]byte, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	var out bytes.Buffer
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("aws-chunked header: %w", err)
		}
		sizeField := strings.TrimSpace(line)
		if i := strings.IndexByte(sizeField, ';'); i >= 0 {
			sizeField = sizeField[:i]
		}
		size, err := strconv.ParseInt(sizeField, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("aws-chunked size %q: %w", sizeField, err)
		}
		if size == 0 {
			return out.Bytes(), nil
		}
		if _, err := io.CopyN(&out, r, size); err != nil {
			return nil, fmt.Errorf("aws-chunked body: %w", err)
		}
		if _, err := r.ReadString('\n'); err != nil {
			return nil, fmt.Errorf("aws-chunked terminator: %w", err)
		}
	}
}
