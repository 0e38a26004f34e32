package http3

import (
	"fmt"

	"github.com/quic-go/quic-go"
)

// ErrorCode is one of the H3_* / QPACK_* codes a connection or stream can
// be closed with.
type ErrorCode quic.ApplicationErrorCode

const (
	ErrorNoError              ErrorCode = 0x100
	ErrorGeneralProtocolError ErrorCode = 0x101
	ErrorInternalError        ErrorCode = 0x102
	ErrorStreamCreationError  ErrorCode = 0x103
	ErrorClosedCriticalStream ErrorCode = 0x104
	ErrorFrameUnexpected      ErrorCode = 0x105
	ErrorFrameError           ErrorCode = 0x106
	ErrorExcessiveLoad        ErrorCode = 0x107
	ErrorIDError              ErrorCode = 0x108
	ErrorSettingsError        ErrorCode = 0x109
	ErrorMissingSettings      ErrorCode = 0x10a
	ErrorRequestRejected      ErrorCode = 0x10b
	ErrorRequestCanceled      ErrorCode = 0x10c
	ErrorRequestIncomplete    ErrorCode = 0x10d
	ErrorMessageError         ErrorCode = 0x10e
	ErrorConnectError         ErrorCode = 0x10f
	ErrorVersionFallback      ErrorCode = 0x110

	ErrorQPACKDecompressionFailed ErrorCode = 0x200
	ErrorQPACKEncoderStreamError  ErrorCode = 0x201
	ErrorQPACKDecoderStreamError  ErrorCode = 0x202
)

func (e ErrorCode) String() string {
	switch e {
	case ErrorNoError:
		return "H3_NO_ERROR"
	case ErrorGeneralProtocolError:
		return "H3_GENERAL_PROTOCOL_ERROR"
	case ErrorInternalError:
		return "H3_INTERNAL_ERROR"
	case ErrorStreamCreationError:
		return "H3_STREAM_CREATION_ERROR"
	case ErrorClosedCriticalStream:
		return "H3_CLOSED_CRITICAL_STREAM"
	case ErrorFrameUnexpected:
		return "H3_FRAME_UNEXPECTED"
	case ErrorFrameError:
		return "H3_FRAME_ERROR"
	case ErrorExcessiveLoad:
		return "H3_EXCESSIVE_LOAD"
	case ErrorIDError:
		return "H3_ID_ERROR"
	case ErrorSettingsError:
		return "H3_SETTINGS_ERROR"
	case ErrorMissingSettings:
		return "H3_MISSING_SETTINGS"
	case ErrorRequestRejected:
		return "H3_REQUEST_REJECTED"
	case ErrorRequestCanceled:
		return "H3_REQUEST_CANCELLED"
	case ErrorRequestIncomplete:
		return "H3_REQUEST_INCOMPLETE"
	case ErrorMessageError:
		return "H3_MESSAGE_ERROR"
	case ErrorConnectError:
		return "H3_CONNECT_ERROR"
	case ErrorVersionFallback:
		return "H3_VERSION_FALLBACK"
	case ErrorQPACKDecompressionFailed:
		return "QPACK_DECOMPRESSION_FAILED"
	case ErrorQPACKEncoderStreamError:
		return "QPACK_ENCODER_STREAM_ERROR"
	case ErrorQPACKDecoderStreamError:
		return "QPACK_DECODER_STREAM_ERROR"
	default:
		return fmt.Sprintf("unknown error code: %#x", uint64(e))
	}
}

// Class says what a given Error tears down: nothing, the stream it was
// raised on, or the whole connection.
type Class int

const (
	ClassNone Class = iota
	ClassStream
	ClassConnection
	ClassApplication
)

// Error pairs a wire ErrorCode with the class of teardown it causes and a
// human-readable reason, the unit every handler/dispatcher/enforcer in this
// package returns instead of a bare error code.
type Error struct {
	Code   ErrorCode
	Class  Class
	Reason string
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

func connError(code ErrorCode, reason string) *Error {
	return &Error{Code: code, Class: ClassConnection, Reason: reason}
}

func streamError(code ErrorCode, reason string) *Error {
	return &Error{Code: code, Class: ClassStream, Reason: reason}
}
