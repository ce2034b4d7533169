package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownEventType is returned for event names outside the vocabulary.
	// The frame should be reported and skipped.
	ErrUnknownEventType = errors.New("unknown event type")

	// ErrMalformedPayload is returned when a known event carries a payload that
	// cannot be parsed. It is a transport error for the session.
	ErrMalformedPayload = errors.New("malformed event payload")

	// ErrInvalidEvent is returned when a payload parses but lacks a required
	// field or carries an impossible value. The event is a protocol
	// violation: it is reported and skipped, the stream goes on.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrKeepAlive is returned for heartbeat frames that carry no state.
	ErrKeepAlive = errors.New("keep-alive event")
)

// Decode turns a raw frame into a typed Event.
//
// The error event is accepted in every shape the backend has been seen to
// produce: {"message": "..."}, a bare JSON string, or plain text.
func Decode(eventType string, data []byte) (Event, error) {
	switch Type(eventType) {
	case TypeStreamStart:
		return decodeInto[StreamStart](data)
	case TypeFileCreated:
		return decodeInto[FileCreated](data)
	case TypeCodeChunk:
		return decodeInto[CodeChunk](data)
	case TypeFileUpdated:
		return decodeInto[FileUpdated](data)
	case TypeProgressUpdate:
		return decodeInto[ProgressUpdate](data)
	case TypeBuildProgress:
		return decodeInto[BuildProgress](data)
	case TypePreviewReady:
		return decodeInto[PreviewReady](data)
	case TypeStreamComplete:
		return decodeInto[StreamComplete](data)
	case TypeError:
		return decodeError(data), nil
	case TypeHeartbeat, TypePing:
		return nil, ErrKeepAlive
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
}

func decodeInto[T Event](data []byte) (Event, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := v.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, v.Kind(), err)
	}
	return v, nil
}

const defaultErrorMessage = "stream error"

func decodeError(data []byte) StreamError {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return StreamError{Message: defaultErrorMessage}
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return StreamError{Message: nonEmpty(s)}
		}
	case '{':
		var obj struct {
			Message string `json:"message"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(trimmed, &obj); err == nil {
			if obj.Message != "" {
				return StreamError{Message: obj.Message}
			}
			if obj.Error != "" {
				return StreamError{Message: obj.Error}
			}
		}
	}
	return StreamError{Message: string(trimmed)}
}

func nonEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return defaultErrorMessage
	}
	return s
}
