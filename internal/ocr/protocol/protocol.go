// Package protocol defines the messages exchanged between the OCR pool and a
// worker process, and the framing used to carry them over the worker's
// stdin/stdout pipes.
//
// Inbound (pool -> worker) messages implement Command: Process and Stop.
// Outbound (worker -> pool) messages implement Reply: Success, Failure and
// Fatal. Each message travels as one frame: a 4-byte big-endian length
// followed by a msgpack-encoded envelope tagged with its Kind.
package protocol

import (
	"errors"
	"fmt"
)

// Kind tags an envelope on the wire.
type Kind string

const (
	KindProcess Kind = "process"
	KindStop    Kind = "stop"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindFatal   Kind = "fatal"
)

// Command is a message sent to a worker.
type Command interface {
	commandKind() Kind
}

// Process asks the worker to classify Image and reply under RequestID.
type Process struct {
	RequestID string
	Image     []byte
}

// Stop asks the worker to leave its command loop and exit.
type Stop struct{}

func (Process) commandKind() Kind { return KindProcess }
func (Stop) commandKind() Kind    { return KindStop }

// Reply is a message sent by a worker.
type Reply interface {
	replyKind() Kind
}

// Success carries recognised text for one request.
type Success struct {
	RequestID string
	Text      string
}

// Failure reports that one request could not be processed.
type Failure struct {
	RequestID string
	Message   string
}

// Fatal reports that the worker could not initialise and is exiting.
// It is not tied to any request.
type Fatal struct {
	Message string
}

func (Success) replyKind() Kind { return KindSuccess }
func (Failure) replyKind() Kind { return KindError }
func (Fatal) replyKind() Kind   { return KindFatal }

// ErrUnexpectedMessage is returned by the decoder for a well-formed frame
// whose kind is not valid in the current direction. The frame has been
// consumed; the stream stays usable.
var ErrUnexpectedMessage = errors.New("unexpected protocol message")

// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("protocol frame too large")

type unexpectedMessageError struct{ kind Kind }

func (e unexpectedMessageError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnexpectedMessage.Error(), string(e.kind))
}

func (e unexpectedMessageError) Unwrap() error { return ErrUnexpectedMessage }

// envelope is the single on-wire shape of every message.
type envelope struct {
	Kind      Kind   `msgpack:"kind"`
	RequestID string `msgpack:"id,omitempty"`
	Image     []byte `msgpack:"image,omitempty"`
	Text      string `msgpack:"text,omitempty"`
	Error     string `msgpack:"error,omitempty"`
}

func commandEnvelope(c Command) (envelope, error) {
	switch m := c.(type) {
	case Process:
		return envelope{Kind: KindProcess, RequestID: m.RequestID, Image: m.Image}, nil
	case Stop:
		return envelope{Kind: KindStop}, nil
	default:
		return envelope{}, fmt.Errorf("encode command %T: %w", c, ErrUnexpectedMessage)
	}
}

func replyEnvelope(r Reply) (envelope, error) {
	switch m := r.(type) {
	case Success:
		return envelope{Kind: KindSuccess, RequestID: m.RequestID, Text: m.Text}, nil
	case Failure:
		return envelope{Kind: KindError, RequestID: m.RequestID, Error: m.Message}, nil
	case Fatal:
		return envelope{Kind: KindFatal, Error: m.Message}, nil
	default:
		return envelope{}, fmt.Errorf("encode reply %T: %w", r, ErrUnexpectedMessage)
	}
}

func (e envelope) command() (Command, error) {
	switch e.Kind {
	case KindProcess:
		return Process{RequestID: e.RequestID, Image: e.Image}, nil
	case KindStop:
		return Stop{}, nil
	default:
		return nil, unexpectedMessageError{kind: e.Kind}
	}
}

func (e envelope) reply() (Reply, error) {
	switch e.Kind {
	case KindSuccess:
		return Success{RequestID: e.RequestID, Text: e.Text}, nil
	case KindError:
		return Failure{RequestID: e.RequestID, Message: e.Error}, nil
	case KindFatal:
		return Fatal{Message: e.Error}, nil
	default:
		return nil, unexpectedMessageError{kind: e.Kind}
	}
}
