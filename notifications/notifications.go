// Package notifications defines the services used to reach members by mail
// or SMS. Implementations live in the subpackages.
package notifications

import "context"

// Notification is a message for a single recipient. ToAddress is used by
// mail services and ToNumber by SMS services.
type Notification struct {
	ToName    string
	ToAddress string
	ToNumber  string
	ReplyTo   string
	Subject   string
	Body      string
	PlainBody string
}

// NotificationService sends notifications. New receives the configuration
// struct of the concrete service.
type NotificationService interface {
	New(conf any) error
	SendNotification(context.Context, *Notification) error
}
