package messaging

import (
	"context"
	"errors"
)

// ErrTranscriptionUnavailable is returned by NoopTranscriber.
var ErrTranscriptionUnavailable = errors.New("audio transcription not configured")

// Transcriber turns a downloaded voice note into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// NoopTranscriber rejects every voice note; customers are asked to type instead.
type NoopTranscriber struct{}

func (NoopTranscriber) Transcribe(context.Context, []byte, string) (string, error) {
	return "", ErrTranscriptionUnavailable
}
