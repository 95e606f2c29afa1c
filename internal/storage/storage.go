// SPDX-License-Identifier: GPL-3.0-or-later

// Package storage uploads completed files to S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/bassosimone/dnssteal"
)

// PutObjectOptions define optional parameters for uploading objects.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an uploaded object.
type ObjectInfo struct {
	Key  string
	Size int64
	ETag string
}

// Storage is an object store.
type Storage interface {
	// Put uploads an object under the given key.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
}

// ObjectSink implements [dnssteal.Sink] by uploading each completed
// file to a [Storage].
type ObjectSink struct {
	// Prefix is prepended to each object key.
	Prefix string

	// Storage is where files are uploaded.
	Storage Storage
}

var _ dnssteal.Sink = &ObjectSink{}

// NewObjectSink creates an [*ObjectSink] using the "transmitted/" prefix.
func NewObjectSink(store Storage) *ObjectSink {
	return &ObjectSink{Prefix: "transmitted/", Storage: store}
}

// Key returns the object key for the given file.
func (s *ObjectSink) Key(file dnssteal.CompletedFile) string {
	base := path.Base(path.Clean("/" + strings.ReplaceAll(file.Filename, "\\", "/")))
	if base == "/" {
		base = "unnamed"
	}
	return fmt.Sprintf("%s%d_%s", s.Prefix, file.CompletedAt.Unix(), base)
}

// Deliver implements [dnssteal.Sink].
func (s *ObjectSink) Deliver(ctx context.Context, file dnssteal.CompletedFile) error {
	opt := PutObjectOptions{
		Size:        int64(len(file.Content)),
		ContentType: "text/plain; charset=utf-8",
		Metadata: map[string]string{
			"filename": file.Filename,
			"md5":      file.ChecksumHex,
		},
	}
	_, err := s.Storage.Put(ctx, s.Key(file), strings.NewReader(file.Content), opt)
	return err
}
