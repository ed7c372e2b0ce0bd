// Package notify tells people and systems about apartments that just became
// available: by email through SMTP or SES, or as an event on a RabbitMQ queue.
package notify

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"github.com/samsarahq/go/oops"

	"github.com/KevinXing/ilive-tracker/go/crawler"
)

const cellStyle = "padding: 8px; border: 1px solid #ccc; text-align: left;"

var (
	// textPolicy strips markup from scraped values before they go into the mail.
	textPolicy = bluemonday.StrictPolicy()

	mdConverter = converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
)

type Email struct {
	Subject string
	HTML    string
	Text    string
}

// ComposeEmail builds the availability mail for a non-empty delta.
func ComposeEmail(delta crawler.Snapshot, siteURL string) (*Email, error) {
	if siteURL == "" {
		siteURL = crawler.DefaultURL
	}
	count := len(delta)

	var rows strings.Builder
	for _, id := range delta.IDs() {
		apt := delta[id]
		total := apt.Total
		if total == "" {
			total = "N/A"
		}
		rows.WriteString("<tr>")
		for _, cell := range []string{apt.ID, apt.Type, apt.Size, apt.ColdRent, apt.Utilities} {
			fmt.Fprintf(&rows, `<td style="%s">%s</td>`, cellStyle, textPolicy.Sanitize(cell))
		}
		fmt.Fprintf(&rows, `<td style="%s"><strong>%s</strong></td>`, cellStyle, textPolicy.Sanitize(total))
		rows.WriteString("</tr>\n")
	}

	var header strings.Builder
	for _, title := range []string{"Apartment", "Type", "Size", "Kaltmiete", "Nebenkosten", "Total"} {
		fmt.Fprintf(&header, `<th style="%s">%s</th>`, cellStyle, title)
	}

	body := fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px;">
<h2 style="color: #2e7d32;">Room Available at Campus Living Darmstadt!</h2>
<p>%d apartment(s) just became available:</p>
<table style="border-collapse: collapse; width: 100%%;">
<tr style="background: #e8f5e9;">%s</tr>
%s</table>
<p style="margin-top: 16px;">
<a href="%s" style="background: #2e7d32; color: white; padding: 10px 20px; text-decoration: none; border-radius: 4px;">View on Website</a>
</p>
<p style="color: #666; font-size: 12px; margin-top: 24px;">This alert was sent by Ilive Tracker.</p>
</body>
</html>
`, count, header.String(), rows.String(), textPolicy.Sanitize(siteURL))

	text, err := PlainText(body)
	if err != nil {
		return nil, err
	}

	return &Email{
		Subject: fmt.Sprintf("🏠 %d apartment(s) now available at Campus Living Darmstadt!", count),
		HTML:    body,
		Text:    text,
	}, nil
}

// PlainText renders the HTML body as markdown for the text/plain part.
func PlainText(body string) (string, error) {
	text, err := mdConverter.ConvertString(body)
	if err != nil {
		return "", oops.Wrapf(err, "convert email body to text")
	}
	return text, nil
}
