package notify

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"

	"github.com/adt-framework/adt-console/internal/governance"
)

// Kind classifies an event for presentation.
type Kind string

const (
	KindDenial        Kind = "denial"
	KindEscalation    Kind = "escalation"
	KindCompletion    Kind = "completion"
	KindInformational Kind = "informational"
)

// Consumer names an independent alert stream with its own watermark.
type Consumer string

const (
	ConsumerToast   Consumer = "toast"
	ConsumerDesktop Consumer = "desktop"
)

// Body length limits in runes, before the ellipsis.
const (
	ToastBodyLimit   = 80
	DesktopBodyLimit = 100
)

// DefaultDismiss is how long a toast stays visible.
const DefaultDismiss = 5000 * time.Millisecond

// Alert is one notification for one consumer.
type Alert struct {
	Kind         Kind
	Title        string
	Body         string
	Consumer     Consumer
	Event        governance.Event
	DismissAfter time.Duration
}

// Classify maps an action_type onto an alert kind by substring.
func Classify(actionType string) Kind {
	switch {
	case strings.Contains(actionType, "denied"), strings.Contains(actionType, "violation"):
		return KindDenial
	case strings.Contains(actionType, "escalation"), strings.Contains(actionType, "break_glass"):
		return KindEscalation
	case strings.Contains(actionType, "task_complete"):
		return KindCompletion
	default:
		return KindInformational
	}
}

// IsEscalation reports whether an event counts toward the ambient
// escalation total. Violations count here even though they present as
// denials.
func IsEscalation(actionType string) bool {
	return strings.Contains(actionType, "escalation") ||
		strings.Contains(actionType, "break_glass") ||
		strings.Contains(actionType, "violation")
}

var toastTitles = map[Kind]string{
	KindDenial:        "DENIED",
	KindEscalation:    "ESCALATION",
	KindCompletion:    "Completed",
	KindInformational: "Event",
}

var desktopTitles = map[Kind]string{
	KindDenial:        "DTTP Denial",
	KindEscalation:    "Escalation",
	KindCompletion:    "Task Completed",
	KindInformational: "ADT Event",
}

// Title returns the consumer-specific title for kind.
func Title(c Consumer, kind Kind) string {
	if c == ConsumerDesktop {
		return desktopTitles[kind]
	}
	return toastTitles[kind]
}

// Truncate strips terminal escapes from s and cuts it to limit runes,
// appending "..." when anything was dropped.
func Truncate(s string, limit int) string {
	s = ansi.Strip(s)
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "..."
}

// NewAlert builds the alert consumer c shows for ev.
func NewAlert(c Consumer, ev governance.Event) Alert {
	kind := Classify(ev.ActionType)
	limit := ToastBodyLimit
	if c == ConsumerDesktop {
		limit = DesktopBodyLimit
	}
	body := ev.Description
	if body == "" {
		body = ev.ActionType
	}
	a := Alert{
		Kind:     kind,
		Title:    Title(c, kind),
		Body:     Truncate(body, limit),
		Consumer: c,
		Event:    ev,
	}
	if c == ConsumerToast {
		a.DismissAfter = DefaultDismiss
	}
	return a
}
