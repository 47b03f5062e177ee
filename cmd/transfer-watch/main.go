package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-resty/resty/v2"

	"github.com/skydeed/skydeed/internal/domain"
)

// 跨链转移监视面板：轮询 API 服务的转移历史并实时展示状态

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // 黄色
	sentStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // 青色
	deliveredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")) // 绿色
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")) // 红色
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

type transfersMsg struct {
	transfers []domain.TransferRecord
	err       error
}

type tickMsg time.Time

type model struct {
	api       *resty.Client
	transfers []domain.TransferRecord
	lastErr   error
	updatedAt time.Time
	interval  time.Duration
}

func newModel(baseURL string, interval time.Duration) model {
	return model{
		api:      resty.New().SetBaseURL(baseURL).SetTimeout(5 * time.Second),
		interval: interval,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.fetch, m.tick())
}

func (m model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m model) fetch() tea.Msg {
	var out struct {
		Transfers []domain.TransferRecord `json:"transfers"`
	}
	resp, err := m.api.R().SetResult(&out).Get("/api/transfers/")
	if err != nil {
		return transfersMsg{err: err}
	}
	if resp.IsError() {
		return transfersMsg{err: fmt.Errorf("api returned %d", resp.StatusCode())}
	}
	return transfersMsg{transfers: out.Transfers}
}

func (m model) clear() tea.Msg {
	_, err := m.api.R().Delete("/api/transfers/")
	if err != nil {
		return transfersMsg{err: err}
	}
	return m.fetch()
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.fetch
		case "c":
			return m, m.clear
		}
	case tickMsg:
		return m, tea.Batch(m.fetch, m.tick())
	case transfersMsg:
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.transfers = msg.transfers
		m.lastErr = nil
		m.updatedAt = time.Now()
	}
	return m, nil
}

func statusCell(s domain.TransferStatus) string {
	switch s {
	case domain.TransferPending:
		return pendingStyle.Render(string(s))
	case domain.TransferSent:
		return sentStyle.Render(string(s))
	case domain.TransferDelivered:
		return deliveredStyle.Render(string(s))
	case domain.TransferFailed:
		return failedStyle.Render(string(s))
	default:
		return string(s)
	}
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("SKYDEED 跨链转移监视"))
	b.WriteString("\n\n")

	if m.lastErr != nil {
		b.WriteString(errStyle.Render(fmt.Sprintf("请求失败: %v", m.lastErr)))
		b.WriteString("\n\n")
	}

	if len(m.transfers) == 0 {
		b.WriteString(dimStyle.Render("暂无转移记录"))
	} else {
		rows := []string{fmt.Sprintf("%-10s %-10s %-10s %-22s %-10s %s",
			"ID", "源链", "目标链", "TOKEN", "状态", "创建时间")}
		for _, rec := range m.transfers {
			rows = append(rows, fmt.Sprintf("%-10s %-10s %-10s %-22s %-10s %s",
				shorten(rec.ID, 10),
				rec.SourceChain,
				rec.DestChain,
				shorten(rec.Payload.Name, 22),
				statusCell(rec.Status),
				rec.CreatedAt.Local().Format("01-02 15:04:05")))
			if rec.Status == domain.TransferFailed && rec.FailReason != "" {
				rows = append(rows, dimStyle.Render("  └ "+shorten(rec.FailReason, 70)))
			}
		}
		b.WriteString(borderStyle.Render(strings.Join(rows, "\n")))
	}

	b.WriteString("\n\n")
	footer := "q 退出  r 刷新  c 清空历史"
	if !m.updatedAt.IsZero() {
		footer += dimStyle.Render(fmt.Sprintf("   更新于 %s", m.updatedAt.Format("15:04:05")))
	}
	b.WriteString(dimStyle.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func main() {
	var (
		apiURL   = flag.String("api", "http://127.0.0.1:8080", "skydeed API base url")
		interval = flag.Duration("interval", 2*time.Second, "refresh interval")
	)
	flag.Parse()

	p := tea.NewProgram(newModel(*apiURL, *interval))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
		os.Exit(1)
	}
}
