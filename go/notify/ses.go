package notify

import (
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

const charset = "UTF-8"

// SESNotifier sends the availability mail through Amazon SES.
type SESNotifier struct {
	client  sesiface.SESAPI
	from    string
	to      []string
	siteURL string
}

func NewSESNotifier(sess *session.Session, from string, to []string, siteURL string) *SESNotifier {
	return &SESNotifier{client: ses.New(sess), from: from, to: to, siteURL: siteURL}
}

func (n *SESNotifier) Name() string { return "ses" }

func (n *SESNotifier) Notify(ctx context.Context, delta crawler.Snapshot) error {
	if len(delta) == 0 {
		return nil
	}
	email, err := ComposeEmail(delta, n.siteURL)
	if err != nil {
		return err
	}

	_, err = n.client.SendEmailWithContext(ctx, &ses.SendEmailInput{
		Source:      aws.String(n.from),
		Destination: &ses.Destination{ToAddresses: aws.StringSlice(n.to)},
		Message: &ses.Message{
			Subject: &ses.Content{Charset: aws.String(charset), Data: aws.String(email.Subject)},
			Body: &ses.Body{
				Html: &ses.Content{Charset: aws.String(charset), Data: aws.String(email.HTML)},
				Text: &ses.Content{Charset: aws.String(charset), Data: aws.String(email.Text)},
			},
		},
	})
	if err != nil {
		return oops.Wrapf(err, "ses send to %v", n.to)
	}
	return nil
}
