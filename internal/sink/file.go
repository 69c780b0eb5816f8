package sink

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"firestige.xyz/vrtbridge/internal/core"
)

const FileName = "file"

func init() {
	Register(FileName, func(opts map[string]any) (Sink, error) {
		var o FileOptions
		if err := decode(FileName, opts, &o); err != nil {
			return nil, err
		}
		return NewFile(o)
	})
}

type FileOptions struct {
	Path     string `mapstructure:"path"`
	Truncate bool   `mapstructure:"truncate"`
}

// File appends raw packets back to back. The result can be read again with
// vrt.Reader.
type File struct {
	opts FileOptions
	fh   *os.File
	w    *bufio.Writer
}

func NewFile(opts FileOptions) (*File, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("%w: file path is required", core.ErrConfigInvalid)
	}
	return &File{opts: opts}, nil
}

func (f *File) String() string {
	return fmt.Sprintf("VRT File [%s]", f.opts.Path)
}

func (f *File) Open(_ context.Context) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if f.opts.Truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	fh, err := os.OpenFile(f.opts.Path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.opts.Path, err)
	}
	f.fh = fh
	f.w = bufio.NewWriterSize(fh, 64*1024)
	return nil
}

func (f *File) Write(frame core.Frame) error {
	if f.w == nil {
		return fmt.Errorf("%s: %w", f, core.ErrSinkClosed)
	}
	_, err := f.w.Write(frame.Bytes)
	return err
}

// Close flushes buffered packets.
func (f *File) Close() error {
	if f.fh == nil {
		return nil
	}
	flushErr := f.w.Flush()
	closeErr := f.fh.Close()
	f.fh, f.w = nil, nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
