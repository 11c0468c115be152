// Package notify renders review notices for reviewer notifications.
package notify

import (
	"fmt"
	"html"
	"strings"

	"finextract/internal/port"
)

// Message is a rendered review notice.
type Message struct {
	Subject string
	Text    string
	HTML    string
}

// Render builds the subject and bodies of a review notice.
func Render(n port.ReviewNotice) Message {
	name := n.DocumentName
	if name == "" {
		name = "unnamed document"
	}
	accuracy := "n/a"
	if n.Accuracy != nil {
		accuracy = fmt.Sprintf("%.2f%%", *n.Accuracy)
	}

	subject := fmt.Sprintf("Extraction review needed: %s", name)

	var text strings.Builder
	fmt.Fprintf(&text, "Run %s (%s) needs review.\n\n", n.RunID, name)
	fmt.Fprintf(&text, "Total value: %.2f\nAccuracy: %s\n\nReasons:\n", n.TotalValue, accuracy)
	for _, r := range n.Reasons {
		fmt.Fprintf(&text, "- %s\n", r)
	}

	var items strings.Builder
	for _, r := range n.Reasons {
		fmt.Fprintf(&items, "    <li>%s</li>\n", html.EscapeString(r))
	}
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">Extraction review needed</h2>
  <p>Run <code>%s</code> for <strong>%s</strong> was flagged.</p>
  <p>Total value: %.2f<br>Accuracy: %s</p>
  <ul>
%s  </ul>
</body>
</html>`, n.RunID, html.EscapeString(name), n.TotalValue, accuracy, items.String())

	return Message{Subject: subject, Text: text.String(), HTML: body}
}
