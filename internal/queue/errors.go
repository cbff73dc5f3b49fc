package queue

import (
	"vidingest/internal/services"
)

// FailureStatus maps a pipeline error to the status the workflow persists.
//
// Failures a retry cannot fix (bad input, missing, private, deleted, region
// blocked or age-restricted videos) need review. Everything else is failed
// and may be retried.
func FailureStatus(err error) Status {
	switch services.KindOf(err) {
	case services.KindValidation,
		services.KindInvalidArgument,
		services.KindNotFound,
		services.KindAgeRestricted:
		return StatusReview
	case services.KindTransient,
		services.KindAccessDenied,
		services.KindResourceExhausted,
		services.KindToolFailure,
		services.KindTimeout,
		services.KindCancelled:
		return StatusFailed
	default:
		return StatusFailed
	}
}
