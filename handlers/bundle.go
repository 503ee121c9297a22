package handlers

import (
	"thefesta/cron"
	notification "thefesta/services/notification"
	payment "thefesta/services/payment"
)

// HandlerBundle groups the dependencies the HTTP layer needs. main.go builds
// one and hands it to the route registrations.
type HandlerBundle struct {
	Processor     *payment.Processor
	Tasks         *cron.TaskClient
	Notifier      notification.NotificationService
	WebhookSecret string
}
