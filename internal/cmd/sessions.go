package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/collabd/internal/config"
	"github.com/Iron-Ham/collabd/internal/coordination"
	"github.com/Iron-Ham/collabd/internal/session"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List live collaboration sessions",
	Long: `List the sessions held by a running collabd server:
- Entity type and id
- Status (active, inactive)
- Participants, held locks and pending conflicts
- Current version and last activity`,
	RunE: runSessionsList,
}

var (
	sessionsServer string
	sessionsJSON   bool
)

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.Flags().StringVar(&sessionsServer, "server", "", "server base URL (default derived from server.addr)")
	sessionsCmd.Flags().BoolVar(&sessionsJSON, "json", false, "print raw JSON")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#A78BFA"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	ruleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func statusStyle(s session.Status) lipgloss.Style {
	switch s {
	case session.StatusActive:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	case session.StatusArchived:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
	default:
		return mutedStyle
	}
}

// serverURL derives the admin API base URL from a listen address.
func serverURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func fetchSessions(ctx context.Context, base string) ([]coordination.Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/v1/sessions", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %s", resp.Status)
	}

	var sums []coordination.Summary
	if err := json.NewDecoder(resp.Body).Decode(&sums); err != nil {
		return nil, fmt.Errorf("failed to decode sessions: %w", err)
	}
	return sums, nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	base := sessionsServer
	if base == "" {
		base = serverURL(config.Get().Server.Addr)
	}

	sums, err := fetchSessions(cmd.Context(), base)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if sessionsJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sums)
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	renderSessions(out, sums, width, time.Now())
	return nil
}

// renderSessions writes a table of sessions no wider than width.
func renderSessions(w io.Writer, sums []coordination.Summary, width int, now time.Time) {
	rule := ruleStyle.Render(strings.Repeat("─", max(width, 20)))
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, headerStyle.Render("collabd sessions"))
	fmt.Fprintln(w, rule)

	if len(sums) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No live sessions."))
		return
	}

	headers := []string{"ENTITY", "STATUS", "USERS", "LOCKS", "CONFLICTS", "VERSION", "IDLE"}
	rows := make([][]string, 0, len(sums))
	for _, s := range sums {
		rows = append(rows, []string{
			s.EntityType + "/" + s.EntityID,
			string(s.Status),
			strconv.Itoa(s.Participants),
			strconv.Itoa(s.Locks),
			strconv.Itoa(s.PendingConflicts),
			strconv.FormatInt(s.Version, 10),
			idleFor(now, s.LastActivity),
		})
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	// The entity column absorbs any shortfall.
	const gap = 2
	fixed := 0
	for _, cw := range widths[1:] {
		fixed += cw + gap
	}
	if avail := width - fixed; avail < widths[0] {
		widths[0] = max(avail, 8)
	}

	cells := make([]string, len(headers))
	for i, h := range headers {
		cells[i] = pad(h, widths[i])
	}
	fmt.Fprintln(w, headerStyle.Render(strings.Join(cells, strings.Repeat(" ", gap))))

	for ri, row := range rows {
		for i, cell := range row {
			cell = pad(truncate(cell, widths[i]), widths[i])
			switch i {
			case 1:
				cell = statusStyle(sums[ri].Status).Render(cell)
			case 4:
				if sums[ri].PendingConflicts > 0 {
					cell = warnStyle.Render(cell)
				}
			}
			cells[i] = cell
		}
		fmt.Fprintln(w, strings.Join(cells, strings.Repeat(" ", gap)))
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d session(s)", len(sums))))
}

func idleFor(now, last time.Time) string {
	if last.IsZero() {
		return "-"
	}
	d := now.Sub(last)
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

func pad(s string, width int) string {
	if n := lipgloss.Width(s); n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func truncate(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if width < 1 || width > len(r) {
		return s
	}
	return string(r[:width-1]) + "…"
}
