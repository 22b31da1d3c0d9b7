package pipeline

import (
	"context"
	"errors"
	"time"

	"murmur/capture"
	"murmur/inject"
	"murmur/model"
	"murmur/transcribe"
)

type Stage string

const (
	StageIdle         Stage = "idle"
	StageCapturing    Stage = "capturing"
	StageTranscribing Stage = "transcribing"
	StageInjecting    Stage = "injecting"
	StageFailed       Stage = "failed"
)

// Status is one state-transition event. Detail carries the error
// classification on StageFailed and is empty otherwise.
type Status struct {
	Stage  Stage
	Detail string
	Time   time.Time
}

// Classification labels for failure status events. Consumers render these
// into user-facing messages; they are stable identifiers, not prose.
const (
	ClassDeviceUnavailable = "device_unavailable"
	ClassDevicePermission  = "device_permission"
	ClassFormat            = "format_unsupported"
	ClassModelMissing      = "model_missing"
	ClassModelCorrupt      = "model_corrupt"
	ClassModelDownload     = "model_download_failed"
	ClassModelMemory       = "model_insufficient_memory"
	ClassInference         = "inference_failed"
	ClassCancelled         = "cancelled"
	ClassInjectPermission  = "inject_permission"
	ClassInjectNoTarget    = "inject_no_target"
	ClassInjectTimeout     = "inject_timeout"
	ClassInjectSystem      = "inject_system"
	ClassBackpressure      = "inject_queue_full"
	ClassAlreadyActive     = "already_active"
	ClassTimeout           = "timeout"
	ClassInternal          = "internal"
)

// Classify maps a stage error to its classification label.
func Classify(err error) string {
	var te *inject.TimeoutError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return ClassTimeout
	case errors.Is(err, capture.ErrPermissionDenied):
		return ClassDevicePermission
	case errors.Is(err, capture.ErrDeviceUnavailable),
		errors.Is(err, capture.ErrDeviceEnumeration):
		return ClassDeviceUnavailable
	case errors.Is(err, capture.ErrUnsupportedFormat),
		errors.Is(err, transcribe.ErrInvalidAudioFormat):
		return ClassFormat
	case errors.Is(err, capture.ErrAlreadyRecording):
		return ClassAlreadyActive
	case errors.Is(err, model.ErrCorruptModel):
		return ClassModelCorrupt
	case errors.Is(err, model.ErrDownloadFailed):
		return ClassModelDownload
	case errors.Is(err, transcribe.ErrModelNotLoaded):
		return ClassModelMissing
	case errors.Is(err, transcribe.ErrInsufficientMemory):
		return ClassModelMemory
	case errors.Is(err, transcribe.ErrCancelled):
		return ClassCancelled
	case errors.Is(err, transcribe.ErrProcessingFailed):
		return ClassInference
	case errors.As(err, &te):
		return ClassInjectTimeout
	case errors.Is(err, inject.ErrPermissionDenied):
		return ClassInjectPermission
	case errors.Is(err, inject.ErrNoActiveInput):
		return ClassInjectNoTarget
	case errors.Is(err, inject.ErrQueueFull):
		return ClassBackpressure
	case errors.Is(err, inject.ErrSystem):
		return ClassInjectSystem
	default:
		return ClassInternal
	}
}
