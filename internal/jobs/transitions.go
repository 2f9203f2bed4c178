package jobs

import (
	"github.com/dcastano/repairhub-backend/pkg/enums"
	pkgerrors "github.com/dcastano/repairhub-backend/pkg/errors"
)

// allowedTransitions is the single authority on job status movement. Every
// mutation funnels through Transition; nothing writes the status column
// directly. The quote_negotiating <-> in_repair pair is the cost
// adjustment loop.
var allowedTransitions = map[enums.JobStatus][]enums.JobStatus{
	enums.JobStatusRequested: {
		enums.JobStatusQuoteNegotiating,
		enums.JobStatusQuoteAccepted,
		enums.JobStatusCancelled,
	},
	enums.JobStatusQuoteNegotiating: {
		enums.JobStatusQuoteAccepted,
		enums.JobStatusInRepair,
		enums.JobStatusCancelled,
	},
	enums.JobStatusQuoteAccepted: {
		enums.JobStatusPickupScheduled,
		enums.JobStatusCancelled,
	},
	enums.JobStatusPickupScheduled: {
		// the device is at the center: repair work runs from here, with
		// the adjustment loop available until the work is finished
		enums.JobStatusQuoteNegotiating,
		enums.JobStatusRepairCompleted,
		enums.JobStatusCancelled,
	},
	enums.JobStatusInRepair: {
		enums.JobStatusQuoteNegotiating,
		enums.JobStatusRepairCompleted,
	},
	enums.JobStatusRepairCompleted: {
		enums.JobStatusReadyForReturn,
	},
	enums.JobStatusReadyForReturn: {
		enums.JobStatusReturned,
	},
	enums.JobStatusReturned: {
		enums.JobStatusCompleted,
	},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to enums.JobStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// guardTransition returns a state-conflict error explaining the current
// status when the requested transition is not legal.
func guardTransition(from, to enums.JobStatus) error {
	if from.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "job is already "+from.String())
	}
	if !CanTransition(from, to) {
		return pkgerrors.New(pkgerrors.CodeStateConflict,
			"cannot move job from "+from.String()+" to "+to.String())
	}
	return nil
}
