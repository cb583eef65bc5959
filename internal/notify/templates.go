package notify

import (
	"fmt"
	"strings"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
)

const messagePreviewRunes = 50

// render builds the notification text for evt. actorName labels message
// senders and falls back to the actor id.
func render(evt events.Event, actorName string) (domain.NotificationType, string, string) {
	t := evt.Ticket
	title := strings.TrimSpace(t.Title)
	if title == "" {
		title = "Untitled"
	}

	switch evt.Type {
	case events.EventTicketCreated:
		return domain.NotificationTicketCreated,
			"New ticket: " + title,
			fmt.Sprintf("A %s priority ticket was opened for %s.", t.Priority, areaLabel(t.Area))
	case events.EventTicketEscalated:
		return domain.NotificationTicketEscalated,
			"Ticket escalated: " + title,
			withComment(fmt.Sprintf("The ticket is now %s and waits on the %s.", t.Status, t.ResponsibleRole), evt.Comment)
	case events.EventTicketCompleted:
		return domain.NotificationTicketCompleted,
			"Ticket completed: " + title,
			withComment("The ticket was completed.", evt.Comment)
	case events.EventTicketCancelled:
		return domain.NotificationTicketCancelled,
			"Ticket cancelled: " + title,
			withComment("The ticket was cancelled.", evt.Comment)
	case events.EventTicketMessage:
		return domain.NotificationNewMessage,
			"New message: " + title,
			fmt.Sprintf("%s: %s", actorName, preview(evt.Comment))
	case events.EventSLAViolated:
		return domain.NotificationSLAViolated,
			"SLA violated: " + title,
			fmt.Sprintf("The %s priority ticket in %s is past its SLA.", t.Priority, areaLabel(t.Area))
	default:
		return domain.NotificationTicketUpdated,
			"Ticket updated: " + title,
			withComment(fmt.Sprintf("The ticket is now %s.", t.Status), evt.Comment)
	}
}

func areaLabel(a domain.Area) string {
	if a == "" {
		return "no area"
	}
	return string(a)
}

func withComment(msg, comment string) string {
	if comment == "" {
		return msg
	}
	return msg + " " + comment
}

func preview(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	runes := []rune(body)
	if len(runes) <= messagePreviewRunes {
		return body
	}
	return string(runes[:messagePreviewRunes]) + "..."
}
