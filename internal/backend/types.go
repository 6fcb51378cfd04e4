package backend

import (
	"errors"
	"fmt"
)

const (
	TextPath         = "/lang-chain/text"
	ClearHistoryPath = "/lang-chain/clear-chat-history"
)

// TextRequest represents the request body for the text endpoint
type TextRequest struct {
	Text string `json:"text"`
}

// ClearHistoryResponse represents the response from the clear history endpoint
type ClearHistoryResponse struct {
	Message string `json:"message"`
}

// Reply is a successful answer to SendText
type Reply struct {
	Text string
}

// ErrorKind classifies backend failures
type ErrorKind string

const (
	KindTransport = ErrorKind("transport")
	KindStatus    = ErrorKind("status")
	KindDecode    = ErrorKind("decode")
	KindShape     = ErrorKind("shape")
)

// ErrProtocol matches every *Error with errors.Is
var ErrProtocol = errors.New("backend protocol error")

// Error is returned by every failed backend call
type Error struct {
	Op         string
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s: %s error: status %d: %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrProtocol
}
