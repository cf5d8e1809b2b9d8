package notification

// NoticeType identifies a notification template.
type NoticeType string

// Notices sent by the identity workflow.
const (
	UserWelcomeNotice   NoticeType = "user.create.welcome"
	PasswordResetNotice NoticeType = "userpasswordreset.create.token"
	ProfileFindNotice   NoticeType = "profile.find.confirmation"
)

// NotificationData carries the recipient and template data for one send.
type NotificationData struct {
	To      string
	Subject string
	Body    string
	Data    map[string]string
}

// Notifier delivers a rendered notification over one transport (SMTP, etc.).
type Notifier interface {
	Send(notice NoticeType, notification NotificationData) error
}
