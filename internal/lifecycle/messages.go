package lifecycle

import (
	"fmt"

	"violation-service/internal/models"
)

func violationIssuedMessage(v models.Violation) string {
	msg := fmt.Sprintf("A violation has been recorded against vehicle %s.", v.VehicleID)
	if v.Location != "" {
		msg += " Location: " + v.Location + "."
	}
	return msg + " You may appeal it while it is pending."
}

func appealSubmittedMessage(v models.Violation) string {
	return fmt.Sprintf("Your appeal for the violation on vehicle %s was received and awaits review.", v.VehicleID)
}

func appealReviewedMessage(c models.Contest, v models.Violation) string {
	var msg string
	switch c.Status {
	case models.ContestApproved:
		msg = fmt.Sprintf("Your appeal was approved. The violation on vehicle %s is resolved.", v.VehicleID)
	case models.ContestDenied:
		msg = fmt.Sprintf("Your appeal was denied. The violation on vehicle %s stands.", v.VehicleID)
	default:
		msg = fmt.Sprintf("Your appeal for the violation on vehicle %s is under review.", v.VehicleID)
	}
	if c.ReviewNotes != "" {
		msg += " Notes: " + c.ReviewNotes
	}
	return msg
}

func violationRejectedMessage(v models.Violation, reason string) string {
	msg := fmt.Sprintf("The violation on vehicle %s has been withdrawn.", v.VehicleID)
	if reason != "" {
		msg += " Reason: " + reason
	}
	return msg
}
