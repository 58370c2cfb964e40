package source

import (
	"context"
	"image"
)

// VideoSource yields decoded frames of one video in presentation order.
type VideoSource interface {
	FPS() float64
	// Next returns the next frame, or io.EOF after the last one. The returned
	// image is only valid until the following call.
	Next() (image.Image, error)
	Close() error
}

type Opener interface {
	Open(ctx context.Context, path string) (VideoSource, error)
}

type OpenerFunc func(ctx context.Context, path string) (VideoSource, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (VideoSource, error) {
	return f(ctx, path)
}
