// SPDX-License-Identifier: GPL-3.0-or-later

package dnssteal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Sink receives completed files.
//
// The [*Sweeper] calls Deliver from a dedicated goroutine per file and
// never waits for it before the next sweep, so a slow sink does not
// delay other transfers.
type Sink interface {
	Deliver(ctx context.Context, file CompletedFile) error
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc func(ctx context.Context, file CompletedFile) error

var _ Sink = SinkFunc(nil)

// Deliver implements [Sink].
func (fx SinkFunc) Deliver(ctx context.Context, file CompletedFile) error {
	return fx(ctx, file)
}

// MultiSink delivers each file to all the sinks in order. A failing
// sink does not prevent delivery to the following ones.
type MultiSink []Sink

var _ Sink = MultiSink{}

// Deliver implements [Sink].
func (ms MultiSink) Deliver(ctx context.Context, file CompletedFile) error {
	var errv []error
	for _, sink := range ms {
		if err := sink.Deliver(ctx, file); err != nil {
			errv = append(errv, err)
		}
	}
	return errors.Join(errv...)
}

// DiskSink writes each completed file into a directory.
type DiskSink struct {
	// Dir is the OPTIONAL output directory. Empty means the
	// current working directory.
	Dir string
}

var _ Sink = &DiskSink{}

// Path returns the path where the given file would be written.
//
// The name is transmitted_<unix-seconds>_<filename>, where only the
// base name of the transmitted filename is used.
func (ds *DiskSink) Path(file CompletedFile) string {
	base := filepath.Base(filepath.Clean("/" + file.Filename))
	if base == "/" || base == "." {
		base = "unnamed"
	}
	name := fmt.Sprintf("transmitted_%d_%s", file.CompletedAt.Unix(), base)
	return filepath.Join(ds.Dir, name)
}

// Deliver implements [Sink].
func (ds *DiskSink) Deliver(ctx context.Context, file CompletedFile) error {
	return os.WriteFile(ds.Path(file), []byte(file.Content), 0644)
}
