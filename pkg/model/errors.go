package model

import "errors"

var (
	// ErrEmptyResponse means the provider answered with no usable text.
	ErrEmptyResponse = errors.New("empty response from provider")
	// ErrSchemaViolation means the response text did not match the expected structure.
	ErrSchemaViolation = errors.New("response does not match schema")
	// ErrTransport covers network, auth and quota failures talking to a provider.
	ErrTransport = errors.New("provider transport failure")

	ErrUnsupportedMedia = errors.New("only audio files are accepted")
	ErrEmptyAudio       = errors.New("audio payload is empty")
)
