// Package mailtemplates provides the mail templates sent by the portal, such
// as password reset codes, welcome mails and contact form relays, along with
// utilities for rendering their content.
package mailtemplates

import "github.com/infinityplans/portal/notifications"

// PasswordResetNotification is sent when a member requests a password reset.
// Data: Name, Code, Link.
var PasswordResetNotification = MailTemplate{
	File: "forgot_password",
	Placeholder: notifications.Notification{
		Subject: "Your password reset code",
		PlainBody: `Hello {{.Name}},

Your password reset code is: {{.Code}}

You can also use this link to reset your password: {{.Link}}`,
	},
	WebAppURI: "/account/password/reset",
}

// PasswordResetSMS is the short text sent to members who reset their
// password by phone. Data: Code.
var PasswordResetSMS = notifications.Notification{
	PlainBody: "Your password reset code is {{.Code}}",
}

// WelcomeNotification is sent when an admin registers a new member.
// Data: Name, RegistrationID, Link.
var WelcomeNotification = MailTemplate{
	File: "welcome",
	Placeholder: notifications.Notification{
		Subject: "Welcome, your registration id is {{.RegistrationID}}",
		PlainBody: `Hello {{.Name}},

Your membership has been registered with id {{.RegistrationID}}.

Sign in to review your plans: {{.Link}}`,
	},
	WebAppURI: "/login",
}

// ContactNotification relays a message of the public contact form to the
// office address configured in the site settings.
// Data: Name, Email, Phone, Message.
var ContactNotification = MailTemplate{
	File: "contact",
	Placeholder: notifications.Notification{
		Subject: "New contact request from {{.Name}}",
		PlainBody: `You have a new contact request:

Name: {{.Name}}
Email: {{.Email}}
Phone: {{.Phone}}

{{.Message}}`,
	},
}
