package enums

// NotificationType classifies read-model notification rows.
type NotificationType string

const (
	NotificationTypeDeviceReturned        NotificationType = "device_returned_confirmed"
	NotificationTypeSatisfactionConfirmed NotificationType = "satisfaction_confirmed"
	NotificationTypeJobCompleted          NotificationType = "job_completed"
	NotificationTypeCostAdjustment        NotificationType = "cost_adjustment_requested"
	NotificationTypeAdjustmentResolved    NotificationType = "cost_adjustment_resolved"
	NotificationTypePayoutProcessed       NotificationType = "payout_processed"
)

func (n NotificationType) String() string {
	return string(n)
}
