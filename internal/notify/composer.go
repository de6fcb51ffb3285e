package notify

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/subjectdesk/subjectdesk/internal/mail"
	"github.com/subjectdesk/subjectdesk/internal/request"
)

// ConfirmPath is the API path that confirms a request from an emailed link.
const ConfirmPath = "/v1/requests/confirm"

var typeNouns = map[request.Type]string{
	request.TypeErasure:       "account deletion",
	request.TypeRectification: "data correction",
	request.TypeComplaint:     "complaint",
}

// Composer renders notifications as email.
type Composer struct {
	baseURL string
}

// NewComposer creates a composer whose links point at baseURL.
func NewComposer(baseURL string) *Composer {
	return &Composer{baseURL: strings.TrimRight(baseURL, "/")}
}

// ConfirmLink returns the link that confirms the request carried by n.
func (c *Composer) ConfirmLink(n request.Notification) string {
	q := url.Values{}
	q.Set("type", string(n.Type))
	q.Set("key", n.Token)
	q.Set("email", n.Identity.Email)
	return c.baseURL + ConfirmPath + "?" + q.Encode()
}

// Compose renders n as an email addressed to the subject.
func (c *Composer) Compose(n request.Notification) (mail.Message, error) {
	noun, ok := typeNouns[n.Type]
	if !ok {
		noun = "request"
	}

	msg := mail.Message{To: n.Identity.Email}

	switch n.Kind {
	case request.NotificationConfirmRequest:
		msg.Subject = fmt.Sprintf("Confirm your %s request", noun)

		var b strings.Builder
		fmt.Fprintf(&b, "We received a %s request for this address.\n\n", noun)
		if n.Data != "" {
			fmt.Fprintf(&b, "Details you provided:\n%s\n\n", n.Data)
		}
		fmt.Fprintf(&b, "To confirm it, open this link:\n%s\n\n", c.ConfirmLink(n))
		b.WriteString("If you did not make this request you can ignore this message.\n")
		msg.Text = b.String()

	case request.NotificationAccountDeleted:
		msg.Subject = "Your account has been deleted"
		msg.Text = "Your account and the personal data associated with it have been deleted.\n"

	default:
		return mail.Message{}, fmt.Errorf("%w: unknown notification kind %q", ErrMalformedMessage, n.Kind)
	}

	return msg, nil
}
