package chat

import (
	"errors"

	"github.com/hyperjump/otasuke/internal/knowledge"
	"github.com/hyperjump/otasuke/internal/session"
)

var (
	// ErrInvalidInput is returned when the message or session id is rejected. No
	// state changes.
	ErrInvalidInput = errors.New("invalid input")

	// ErrGenerationFailed is returned when every generation attempt failed. It wraps
	// the last cause. The session transcript is left untouched.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrRetrievalUnavailable never leaves Answer; a failed retrieval degrades to an
	// ungrounded answer instead.
	ErrRetrievalUnavailable = knowledge.ErrRetrievalUnavailable

	// ErrCapacityExceeded only appears in session eviction logs.
	ErrCapacityExceeded = session.ErrCapacityExceeded

	errNoKnowledgeBase = errors.New("no knowledge base configured")
)
