package agent

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/temirov/gitcollect/internal/collect"
)

// Message types.
const (
	TypeScan   = "scan"
	TypeResult = "result"
	TypeError  = "error"
	TypeCancel = "cancel"
	TypePing   = "ping"
	TypePong   = "pong"
)

// Error kinds carried for failures that are not collection stage errors.
const (
	errorKindCanceledConstant         = "canceled"
	errorKindDeadlineExceededConstant = "deadline_exceeded"
)

// Envelope wraps every message with a type discriminator.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EnvelopeRaw defers payload decoding until the type is known.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEnvelope encodes a message of the given type.
func MarshalEnvelope(messageType string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: messageType, Payload: payload})
}

// ScanMessage asks the agent to scan a repository.
type ScanMessage struct {
	RequestID string              `json:"request_id"`
	Request   collect.ScanRequest `json:"request"`
}

// ResultMessage carries a successful scan.
type ResultMessage struct {
	RequestID string             `json:"request_id"`
	Result    collect.ScanResult `json:"result"`
}

// ErrorMessage carries a failed scan. Kind is a collect.ErrorKind for stage failures.
type ErrorMessage struct {
	RequestID string `json:"request_id"`
	Kind      string `json:"kind,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Cause     string `json:"cause,omitempty"`
}

// CancelMessage cancels an in-flight scan.
type CancelMessage struct {
	RequestID string `json:"request_id"`
}

// NewErrorMessage flattens err for transport.
func NewErrorMessage(requestID string, err error) ErrorMessage {
	message := ErrorMessage{RequestID: requestID}
	var operationError collect.OperationError
	switch {
	case errors.As(err, &operationError):
		message.Kind = string(operationError.Kind)
		message.Subject = operationError.Subject
		if operationError.Cause != nil {
			message.Cause = operationError.Cause.Error()
		}
	case errors.Is(err, context.Canceled):
		message.Kind = errorKindCanceledConstant
	case errors.Is(err, context.DeadlineExceeded):
		message.Kind = errorKindDeadlineExceededConstant
	default:
		message.Cause = err.Error()
	}
	return message
}

// Err rebuilds the error described by the message.
func (message ErrorMessage) Err() error {
	switch message.Kind {
	case errorKindCanceledConstant:
		return context.Canceled
	case errorKindDeadlineExceededConstant:
		return context.DeadlineExceeded
	case "":
		return errors.New(message.Cause)
	}

	operationError := collect.OperationError{Kind: collect.ErrorKind(message.Kind), Subject: message.Subject}
	if len(message.Cause) > 0 {
		operationError.Cause = errors.New(message.Cause)
	}
	return operationError
}
