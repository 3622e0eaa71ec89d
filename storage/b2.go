package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/kurin/blazer/b2"
)

// B2Options configures the Backblaze B2 backend.
type B2Options struct {
	KeyID          string `mapstructure:"key_id"`
	ApplicationKey string `mapstructure:"application_key"`
	Bucket         string `mapstructure:"bucket"`
	Prefix         string `mapstructure:"prefix"`
}

type b2Client struct {
	bucket *b2.Bucket
}

func NewB2Backend(ctx context.Context, opts B2Options) (*ObjectBackend, error) {
	if opts.KeyID == "" || opts.ApplicationKey == "" || opts.Bucket == "" {
		return nil, fmt.Errorf("b2 storage requires key_id, application_key and bucket")
	}

	client, err := b2.NewClient(ctx, opts.KeyID, opts.ApplicationKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create B2 client: %w", err)
	}

	bucket, err := client.Bucket(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to get bucket %s: %w", opts.Bucket, err)
	}

	return NewObjectBackend("b2", &b2Client{bucket: bucket}, opts.Prefix), nil
}

func (c *b2Client) List(ctx context.Context, prefix string, recursive bool) ([]ObjectInfo, []string, error) {
	listOpts := []b2.ListOption{b2.ListPrefix(prefix)}
	if !recursive {
		listOpts = append(listOpts, b2.ListDelimiter("/"))
	}

	var objects []ObjectInfo
	var prefixes []string
	iter := c.bucket.List(ctx, listOpts...)
	for iter.Next() {
		name := iter.Object().Name()
		// B2 reports delimiter folders as names ending in "/"
		if strings.HasSuffix(name, "/") {
			prefixes = append(prefixes, name)
			continue
		}
		objects = append(objects, ObjectInfo{Key: name})
	}
	if err := iter.Err(); err != nil {
		return nil, nil, err
	}
	return objects, prefixes, nil
}

func (c *b2Client) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := c.bucket.Object(key).Attrs(ctx)
	if err != nil {
		if b2.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, err
	}
	if attrs.Status != b2.Uploaded {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return &ObjectInfo{Key: key, Size: attrs.Size, ModTime: attrs.UploadTimestamp}, nil
}

func (c *b2Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return c.bucket.Object(key).NewReader(ctx), nil
}

// Put aborts the upload through ctx when r fails, so a partial object is
// never committed.
func (c *b2Client) Put(ctx context.Context, key string, r io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	writer := c.bucket.Object(key).NewWriter(ctx)
	if _, err := io.Copy(writer, r); err != nil {
		cancel()
		writer.Close()
		return fmt.Errorf("failed to upload %s to B2: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close B2 writer for %s: %w", key, err)
	}
	return nil
}

// CopyObject streams the object through this process; the B2 client has
// no server side copy.
func (c *b2Client) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	reader := c.bucket.Object(srcKey).NewReader(ctx)
	defer reader.Close()
	return c.Put(ctx, dstKey, reader)
}

func (c *b2Client) Remove(ctx context.Context, key string) error {
	if err := c.bucket.Object(key).Delete(ctx); err != nil {
		if b2.IsNotExist(err) {
			return fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return fmt.Errorf("failed to delete %s from B2: %w", key, err)
	}
	return nil
}
