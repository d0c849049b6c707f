package platformtest

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/vulnblog/internal/client/platform"
	"github.com/dmitrijs2005/vulnblog/internal/common"
)

type blob struct {
	data        []byte
	contentType string
}

func (c *Conn) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	uid, err := c.caller(ctx)
	if err != nil {
		return "", err
	}

	p := c.p
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.enter(OpUpload, bucket); err != nil {
		return "", err
	}
	if bucket != platform.AvatarBucket {
		return "", &common.RemoteError{Status: 404, Code: "NoSuchBucket", Message: "Bucket not found"}
	}
	if uid == "" {
		return "", &common.RemoteError{Status: 403, Code: "AccessDenied", Message: "new row violates row-level security policy"}
	}
	key := bucket + "/" + path
	if _, ok := p.blobs[key]; ok {
		return "", &common.RemoteError{Status: 409, Code: "Duplicate", Message: "The resource already exists"}
	}
	p.blobs[key] = blob{data: append([]byte(nil), data...), contentType: contentType}
	return path, nil
}

func (c *Conn) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
		strings.TrimRight(c.p.baseURL, "/"), url.PathEscape(bucket), escapePath(path))
}

// Blob returns a stored object. Public buckets need no token, so neither
// does this.
func (p *Platform) Blob(bucket, path string) ([]byte, string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.blobs[bucket+"/"+path]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), b.data...), b.contentType, true
}

func escapePath(path string) string {
	parts := strings.Split(path, "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}
