package observability

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

var startTime = time.Now()

const (
	colorReset    = "\033[0m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
)

// Screen layout in dashboard mode: banner on rows 1-9, the status line on
// statusRow, logs scroll from logRow down.
const (
	statusRow = 10
	logRow    = 12
)

// termMu serialises every terminal write so log output never lands in the
// middle of the status line's cursor save/restore.
var termMu sync.Mutex

type termWriter struct{}

func (termWriter) Write(p []byte) (int, error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns a stderr writer that is safe to share with
// PrintLiveStatus. serve mode routes both log and zap output through it.
func NewTermWriter() *termWriter {
	return &termWriter{}
}

const banner = `
    ____  ________ _    ____________
   / __ \/ ____/ /| |  / / ____/ __ \
  / / / / __/ / / | | / / __/ / /_/ /
 / /_/ / /___/ /__| |/ / /___/ _, _/
/_____/_____/_____/___/_____/_/ |_|

        >> PLAN . SEARCH . READ . REPORT <<
`

func PrintBanner() {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
		width = w
	}

	termMu.Lock()
	defer termMu.Unlock()
	fmt.Print("\033[2J\033[H")
	for _, line := range strings.Split(banner, "\n") {
		pad := max((width-len(line))/2, 0)
		fmt.Printf("%s%s%s%s\n", strings.Repeat(" ", pad), colorNeonCyan, line, colorReset)
	}
}

// InitializeTerminal confines scrolling to the log area below the status line.
func InitializeTerminal() {
	fmt.Printf("\033[%d;r\033[%d;1H", logRow, logRow)
}

func CleanupTerminal() {
	fmt.Print("\033[r\033[2J\033[H")
}

// pulse grades how recently the heartbeat loop last ticked.
func pulse(sinceHeartbeat time.Duration) (icon, label, color string) {
	switch {
	case sinceHeartbeat < 40*time.Second:
		return "🟢", "HEALTHY", colorNeonCyan
	case sinceHeartbeat < 90*time.Second:
		return "🟡", "LAGGING", colorPurple
	default:
		return "🔴", "OFFLINE", colorNeonMag
	}
}

// FormatStatus renders s as the one-line dashboard text, without cursor
// control sequences.
func FormatStatus(s Snapshot, now time.Time) string {
	icon, label, color := pulse(now.Sub(s.LastHeartbeat))

	phaseIcon := "💤"
	switch s.Phase {
	case PhasePlanner:
		phaseIcon = "🧭"
	case PhaseExecutor:
		phaseIcon = "⚙️"
	}

	query := s.Query
	if query == "" {
		query = "waiting for questions"
	}
	if len(query) > 32 {
		query = query[:29] + "..."
	}

	return fmt.Sprintf("[%s] %s%s %-7s%s | %s %-8s | %q | runs %d active / %d done | steps %d | up %v",
		s.LastHeartbeat.Format("15:04:05"),
		color, icon, label, colorReset,
		phaseIcon, s.Phase,
		query,
		s.ActiveRuns, s.CompletedRuns,
		s.Steps,
		now.Sub(startTime).Round(time.Second),
	)
}

// PrintLiveStatus redraws the status line in place.
func PrintLiveStatus() {
	line := FormatStatus(Status(), time.Now())

	termMu.Lock()
	defer termMu.Unlock()
	fmt.Printf("\033[s\033[%d;1H\033[K%s\033[u", statusRow, line)
}
