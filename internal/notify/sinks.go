package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/time/rate"
)

// Toast is an alert queued for in-console display.
type Toast struct {
	ID      int
	Alert   Alert
	Created time.Time
}

// Expired reports whether t should no longer be shown at now.
func (t Toast) Expired(now time.Time) bool {
	return t.Alert.DismissAfter > 0 && now.Sub(t.Created) >= t.Alert.DismissAfter
}

// Toasts keeps the in-console toast queue. Every toast dismisses itself
// after its DismissAfter; the user may dismiss one early.
type Toasts struct {
	mu     sync.Mutex
	queue  []Toast
	nextID int
	max    int
	now    func() time.Time
}

// NewToasts creates a queue holding at most max toasts; older toasts are
// dropped first.
func NewToasts(max int) *Toasts {
	if max <= 0 {
		max = 5
	}
	return &Toasts{max: max, now: time.Now}
}

func (t *Toasts) Name() string { return "toast" }

// Notify queues a.
func (t *Toasts) Notify(_ context.Context, a Alert) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.queue = append(t.queue, Toast{ID: t.nextID, Alert: a, Created: t.now()})
	if len(t.queue) > t.max {
		t.queue = t.queue[len(t.queue)-t.max:]
	}
	return nil
}

// Visible prunes expired toasts and returns the rest, oldest first.
func (t *Toasts) Visible(now time.Time) []Toast {
	t.mu.Lock()
	defer t.mu.Unlock()
	kept := t.queue[:0]
	for _, toast := range t.queue {
		if !toast.Expired(now) {
			kept = append(kept, toast)
		}
	}
	t.queue = kept
	out := make([]Toast, len(kept))
	copy(out, kept)
	return out
}

// Dismiss removes the toast with id. It reports whether it was present.
func (t *Toasts) Dismiss(id int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, toast := range t.queue {
		if toast.ID == id {
			t.queue = append(t.queue[:i], t.queue[i+1:]...)
			return true
		}
	}
	return false
}

// ErrRateLimited is returned when the desktop sink drops an alert.
var ErrRateLimited = errors.New("desktop notification rate limit exceeded")

// Desktop raises OS notifications. It shells out to notify-send or
// osascript when available, otherwise it writes an OSC 777 notification
// to the terminal.
type Desktop struct {
	limiter *rate.Limiter
	out     *termenv.Output
	command func(ctx context.Context, title, body string) *exec.Cmd
}

// NewDesktop creates a desktop sink allowing perMinute notifications per
// minute. Fallback escape sequences go to w.
func NewDesktop(w io.Writer, perMinute int) *Desktop {
	if perMinute <= 0 {
		perMinute = 30
	}
	d := &Desktop{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		out:     termenv.NewOutput(w),
	}
	d.command = lookupNotifier()
	return d
}

func (d *Desktop) Name() string { return "desktop" }

// Notify raises a desktop notification for a.
func (d *Desktop) Notify(ctx context.Context, a Alert) error {
	if !d.limiter.Allow() {
		return ErrRateLimited
	}
	if d.command != nil {
		cmd := d.command(ctx, a.Title, a.Body)
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s: %w: %s", cmd.Path, err, strings.TrimSpace(string(out)))
		}
		return nil
	}
	d.out.Notify(a.Title, a.Body)
	return nil
}

func lookupNotifier() func(ctx context.Context, title, body string) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		if _, err := exec.LookPath("osascript"); err == nil {
			return func(ctx context.Context, title, body string) *exec.Cmd {
				script := fmt.Sprintf("display notification %s with title %s", appleQuote(body), appleQuote(title))
				return exec.CommandContext(ctx, "osascript", "-e", script)
			}
		}
	default:
		if _, err := exec.LookPath("notify-send"); err == nil {
			return func(ctx context.Context, title, body string) *exec.Cmd {
				return exec.CommandContext(ctx, "notify-send", "--app-name=ADT Console", title, body)
			}
		}
	}
	return nil
}

// appleQuote renders s as an AppleScript string literal.
func appleQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

var (
	kindStyles = map[Kind]lipgloss.Style{
		KindDenial:        lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		KindEscalation:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
		KindCompletion:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		KindInformational: lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
	}
	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Writer prints alerts as styled lines, for the watch command.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewWriter creates a line sink on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

func (w *Writer) Name() string { return "writer" }

// Notify writes one line for a.
func (w *Writer) Notify(_ context.Context, a Alert) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	style, ok := kindStyles[a.Kind]
	if !ok {
		style = kindStyles[KindInformational]
	}
	stamp := dimStyle.Render(w.now().Format("15:04:05"))
	_, err := fmt.Fprintf(w.w, "%s %s %s\n", stamp, style.Render(a.Title), a.Body)
	return err
}

// TitleAmbient mirrors the ambient status into the terminal window title.
type TitleAmbient struct {
	out  *termenv.Output
	mu   sync.Mutex
	last string
}

// NewTitleAmbient creates an ambient sink writing to w.
func NewTitleAmbient(w io.Writer) *TitleAmbient {
	return &TitleAmbient{out: termenv.NewOutput(w)}
}

func (t *TitleAmbient) Name() string { return "title" }

// SetAmbient updates the window title when the text changed.
func (t *TitleAmbient) SetAmbient(a Ambient) error {
	title := "ADT Console: " + a.Text
	t.mu.Lock()
	defer t.mu.Unlock()
	if title == t.last {
		return nil
	}
	t.last = title
	t.out.SetWindowTitle(title)
	return nil
}
