// Package source implements the I/Q inputs of the bridge.
package source

import (
	"context"
	"fmt"

	"firestige.xyz/vrtbridge/internal/config"
	"firestige.xyz/vrtbridge/internal/core"
)

// Kind tags the input variant.
type Kind string

const (
	KindEndpoint Kind = "endpoint"
	KindFile     Kind = "file"
)

// ChunkQueue receives chunks. Real-time inputs use TryPush and drop when it
// is full; replayed inputs use Push and wait.
type ChunkQueue interface {
	TryPush(chunk core.Chunk) bool
	Push(ctx context.Context, chunk core.Chunk) error
}

// Source produces I/Q chunks. Open acquires the underlying resource, Run
// delivers chunks until ctx ends or the input is exhausted, and Close
// releases the resource. Close is safe to call after a failed Open.
type Source interface {
	Kind() Kind
	Open(ctx context.Context) error
	Run(ctx context.Context, out ChunkQueue) error
	Close() error
	String() string
}

// New builds the source selected by cfg. Option errors surface here, before
// anything is opened.
func New(cfg config.IQInputConfig) (Source, error) {
	switch Kind(cfg.Type) {
	case KindEndpoint:
		var opts EndpointOptions
		if err := config.DecodeOptions("iq_input.endpoint", cfg.Endpoint, &opts); err != nil {
			return nil, err
		}
		return NewEndpoint(opts)
	case KindFile:
		var opts FileOptions
		if err := config.DecodeOptions("iq_input.file", cfg.File, &opts); err != nil {
			return nil, err
		}
		return NewFile(opts)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedInput, cfg.Type)
	}
}
