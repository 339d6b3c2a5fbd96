package email

import (
	"fmt"
	"html/template"
	"strings"
)

// TicketMail is what the ticket email shows.
type TicketMail struct {
	OrderID   string
	BuyerName string
	SaleName  string
	Tickets   []Ticket
}

type Ticket struct {
	ID       string
	ItemName string
}

var ticketsTemplate = template.Must(template.New("tickets").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">{{.SaleName}}</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">{{if .BuyerName}}Hello {{.BuyerName}},{{else}}Hello,{{end}}</p>
		<p>Your payment is confirmed. Show one of the codes below at the entrance for each ticket.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.OrderID}}</p>
		</div>

		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Ticket</th>
					<th style="padding: 12px; text-align: left; font-weight: 600;">Code</th>
				</tr>
			</thead>
			<tbody>
			{{- range .Tickets}}
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.ItemName}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; font-family: monospace;">{{.ID}}</td>
				</tr>
			{{- end}}
			</tbody>
		</table>

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">{{len .Tickets}} ticket(s). Tickets are personal and valid once.</p>
	</div>
</body>
</html>
`))

// BuildTicketsBody renders the HTML body of the ticket email.
func BuildTicketsBody(mail TicketMail) (string, error) {
	var b strings.Builder
	if err := ticketsTemplate.Execute(&b, mail); err != nil {
		return "", fmt.Errorf("render tickets mail: %w", err)
	}
	return b.String(), nil
}
