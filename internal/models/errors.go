package models

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the failure categories the QA pipeline can produce.
// Callers match on the kind instead of parsing error strings.
type ErrorKind string

const (
	ErrKindUnsupportedProvider ErrorKind = "unsupported_provider"
	ErrKindMissingCredential   ErrorKind = "missing_credential"
	ErrKindInvalidCredential   ErrorKind = "invalid_credential"
	ErrKindEmptyCorpus         ErrorKind = "empty_corpus"
	ErrKindRetrieval           ErrorKind = "retrieval"
	ErrKindGeneration          ErrorKind = "generation"
	ErrKindTimeout             ErrorKind = "timeout"
	ErrKindNotReady            ErrorKind = "not_ready"
	ErrKindUnknown             ErrorKind = "unknown"
)

// UnsupportedProviderError indicates an unknown provider id was requested.
type UnsupportedProviderError struct {
	Provider string
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider: %s", e.Provider)
}

// MissingCredentialError indicates no usable API key was found for a provider
// after config, environment, and key store resolution.
type MissingCredentialError struct {
	Provider string
}

func (e *MissingCredentialError) Error() string {
	return fmt.Sprintf("API key not found for %s: provide it in config or set the environment variable", e.Provider)
}

// InvalidCredentialError indicates the backend rejected the configured key.
// Detection is best-effort: a lightweight probe call stands in for full
// validation, so the error may surface at first use instead of construction.
type InvalidCredentialError struct {
	Provider string
	Err      error
}

func (e *InvalidCredentialError) Error() string {
	return fmt.Sprintf("invalid credential for %s: %v", e.Provider, e.Err)
}

func (e *InvalidCredentialError) Unwrap() error { return e.Err }

// EmptyCorpusError indicates an index build was attempted with zero chunks.
type EmptyCorpusError struct{}

func (e *EmptyCorpusError) Error() string {
	return "cannot build index from an empty document set"
}

// RetrievalError wraps failures during query embedding or similarity search.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval failed: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError wraps failures during answer generation.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// TimeoutError indicates an outbound call exceeded its deadline.
// Op names the operation that timed out ("embed", "generate", "fetch").
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// KindOf classifies an error into its ErrorKind. Timeouts are reported as
// timeouts even when wrapped inside retrieval or generation errors.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}

	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return ErrKindTimeout
	}

	var unsupportedErr *UnsupportedProviderError
	if errors.As(err, &unsupportedErr) {
		return ErrKindUnsupportedProvider
	}

	var missingErr *MissingCredentialError
	if errors.As(err, &missingErr) {
		return ErrKindMissingCredential
	}

	var invalidErr *InvalidCredentialError
	if errors.As(err, &invalidErr) {
		return ErrKindInvalidCredential
	}

	var emptyErr *EmptyCorpusError
	if errors.As(err, &emptyErr) {
		return ErrKindEmptyCorpus
	}

	var retrievalErr *RetrievalError
	if errors.As(err, &retrievalErr) {
		return ErrKindRetrieval
	}

	var generationErr *GenerationError
	if errors.As(err, &generationErr) {
		return ErrKindGeneration
	}

	return ErrKindUnknown
}
