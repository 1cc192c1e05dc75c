package notify

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"strconv"
	"strings"

	"signalbot-backend/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05"

// StrengthLabel grades a 1-10 strength.
func StrengthLabel(strength int) string {
	switch {
	case strength >= 8:
		return "Very Strong"
	case strength >= 6:
		return "Strong"
	case strength >= 4:
		return "Moderate"
	default:
		return "Low"
	}
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatOptionalPrice(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatPrice(*v)
}

func formatTime(s domain.Signal) string {
	if s.CreatedAt.IsZero() {
		return "-"
	}
	return s.CreatedAt.Format(timeLayout)
}

func directionEmoji(d domain.Direction) string {
	if d == domain.DirectionBuy {
		return "🟢"
	}
	return "🔴"
}

// EmailSubject is the subject line of a signal email.
func EmailSubject(s domain.Signal) string {
	return fmt.Sprintf("MT5 Signal Bot: New %s Signal for %s", s.Direction, s.Symbol)
}

var emailTemplate = template.Must(template.New("signal").Parse(`<html>
<body>
  <h2>MT5 Signal Bot: New Trading Signal</h2>
  <table border="1" cellpadding="5">
    <tr>
      <th colspan="2" style="background-color: {{.Color}}; color: white;">{{.Direction}} SIGNAL ({{.Label}} - {{.Strength}}/10)</th>
    </tr>
    <tr><td><strong>Symbol</strong></td><td>{{.Symbol}}</td></tr>
    <tr><td><strong>Entry Price</strong></td><td>{{.Entry}}</td></tr>
    <tr><td><strong>Stop Loss</strong></td><td>{{.StopLoss}}</td></tr>
    <tr><td><strong>Take Profit</strong></td><td>{{.TakeProfit}}</td></tr>
    <tr><td><strong>Reason</strong></td><td>{{.Reason}}</td></tr>
    <tr><td><strong>Time</strong></td><td>{{.Time}}</td></tr>
  </table>
  <p>This is an automated message from your MT5 Signal Bot.</p>
</body>
</html>
`))

type emailView struct {
	Color      template.CSS
	Direction  string
	Label      string
	Strength   int
	Symbol     string
	Entry      string
	StopLoss   string
	TakeProfit string
	Reason     string
	Time       string
}

// EmailHTML renders the HTML body of a signal email.
func EmailHTML(s domain.Signal) (string, error) {
	color := "#F44336"
	if s.Direction == domain.DirectionBuy {
		color = "#4CAF50"
	}
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, emailView{
		Color:      template.CSS(color),
		Direction:  string(s.Direction),
		Label:      StrengthLabel(s.Strength),
		Strength:   s.Strength,
		Symbol:     s.Symbol,
		Entry:      formatPrice(s.EntryPrice),
		StopLoss:   formatOptionalPrice(s.StopLoss),
		TakeProfit: formatOptionalPrice(s.TakeProfit),
		Reason:     s.Reason,
		Time:       formatTime(s),
	})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}

// TelegramText renders the HTML-mode chat message for a signal.
func TelegramText(s domain.Signal) string {
	emoji := directionEmoji(s.Direction)
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>NEW %s SIGNAL</b> %s\n\n", emoji, s.Direction, emoji)
	fmt.Fprintf(&b, "<b>Symbol:</b> %s\n", html.EscapeString(s.Symbol))
	fmt.Fprintf(&b, "<b>Entry Price:</b> %s\n", formatPrice(s.EntryPrice))
	fmt.Fprintf(&b, "<b>Stop Loss:</b> %s\n", formatOptionalPrice(s.StopLoss))
	fmt.Fprintf(&b, "<b>Take Profit:</b> %s\n", formatOptionalPrice(s.TakeProfit))
	fmt.Fprintf(&b, "<b>Signal Strength:</b> %d/10\n", s.Strength)
	fmt.Fprintf(&b, "<b>Reason:</b> %s\n", html.EscapeString(s.Reason))
	fmt.Fprintf(&b, "<b>Time:</b> %s\n", formatTime(s))
	return b.String()
}

// PushTitle and PushBody are the short form used for device notifications.
func PushTitle(s domain.Signal) string {
	return fmt.Sprintf("%s %s %s", directionEmoji(s.Direction), s.Symbol, s.Direction)
}

func PushBody(s domain.Signal) string {
	return fmt.Sprintf("Entry %s, SL %s, TP %s (%s %d/10)",
		formatPrice(s.EntryPrice),
		formatOptionalPrice(s.StopLoss),
		formatOptionalPrice(s.TakeProfit),
		StrengthLabel(s.Strength), s.Strength)
}
