package domain

import "context"

type Mailer interface {
	Send(ctx context.Context, subject, body string, recipients []string) error
}
