package eventpubsub

const (
	EventIngested       = "EventIngested"
	AlertTriggeredEvent = "AlertTriggered"
	AlertResolvedEvent  = "AlertResolved"
	SystemNotification  = "SystemNotification"
)
