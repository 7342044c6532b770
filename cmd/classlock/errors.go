package main

import (
	"errors"
	"fmt"

	devicesvc "classroom-lock/client/internal/device/service"
	"classroom-lock/client/internal/mdm"
)

// describeError turns an error into the message shown to the teacher.
func describeError(err error) string {
	prefix := ""
	switch devicesvc.FailedStep(err) {
	case devicesvc.StepSetOwner:
		prefix = "Could not assign the device owner: "
	case devicesvc.StepApplyLock:
		prefix = "Owner assigned, but the app lock failed: "
	case devicesvc.StepStopLock:
		prefix = "Could not unlock: "
	}

	var se *mdm.ServerError
	switch mdm.Kind(err) {
	case mdm.KindAuthenticationFailed:
		return prefix + "the MDM API rejected the credentials."
	case mdm.KindNetworkUnavailable:
		return prefix + "the MDM API is unreachable; check the network connection."
	case mdm.KindInvalidURL:
		return prefix + "the MDM base URL is invalid."
	case mdm.KindDecodingFailed, mdm.KindInvalidResponse:
		return prefix + "the MDM API returned an unexpected response."
	case mdm.KindServerError:
		if errors.As(err, &se) && se.Message != "" {
			return fmt.Sprintf("%sserver error %d: %s", prefix, se.StatusCode, se.Message)
		}
		if se != nil {
			return fmt.Sprintf("%sserver error %d.", prefix, se.StatusCode)
		}
	}
	return prefix + err.Error()
}
