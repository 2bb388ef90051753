package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashureev/chatwidget/internal/chat"
	"github.com/ashureev/chatwidget/internal/domain"
	"github.com/ashureev/chatwidget/internal/submission"
)

// Controller is the slice of the orchestrator the terminal widget drives.
type Controller interface {
	Open(ctx context.Context) error
	Minimize(ctx context.Context) error
	SendText(ctx context.Context, text string) error
	SelectSuggestion(ctx context.Context, i int) error
	Clear(ctx context.Context) error
	OpenForm(ctx context.Context, kind domain.SubmissionKind) (string, error)
	SubmitInquiry(ctx context.Context, formID string, fields domain.Fields) error
	SubmitJobApplication(ctx context.Context, formID string, fields domain.Fields, resume submission.Resume) (<-chan chat.SubmissionResult, error)
}

var _ Controller = (*chat.Orchestrator)(nil)

type actionDoneMsg struct {
	action string
	err    error
}

type formOpenedMsg struct {
	kind   domain.SubmissionKind
	formID string
	err    error
}

type submitDoneMsg struct {
	entry *formEntry
	err   error
}

const defaultOpTimeout = 10 * time.Second

// withSession runs op and, when the session already ended, reopens the
// widget and runs op once more.
func withSession(ctx context.Context, ctl Controller, op func() error) error {
	err := op()
	if !errors.Is(err, domain.ErrSessionNotActive) {
		return err
	}
	if openErr := ctl.Open(ctx); openErr != nil {
		return openErr
	}
	return op()
}

func (m Model) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, m.opTimeout)
}

func (m Model) actionCmd(action string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.opContext()
		defer cancel()
		return actionDoneMsg{action: action, err: fn(ctx)}
	}
}

func (m Model) openCmd() tea.Cmd {
	return m.actionCmd("open", m.ctl.Open)
}

func (m Model) minimizeCmd() tea.Cmd {
	return m.actionCmd("minimize", m.ctl.Minimize)
}

func (m Model) clearCmd() tea.Cmd {
	return m.actionCmd("clear", m.ctl.Clear)
}

func (m Model) sendCmd(text string) tea.Cmd {
	return m.actionCmd("send", func(ctx context.Context) error {
		return withSession(ctx, m.ctl, func() error { return m.ctl.SendText(ctx, text) })
	})
}

func (m Model) selectCmd(i int) tea.Cmd {
	return m.actionCmd("suggestion", func(ctx context.Context) error {
		return m.ctl.SelectSuggestion(ctx, i)
	})
}

func (m Model) openFormCmd(kind domain.SubmissionKind) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.opContext()
		defer cancel()
		var formID string
		err := withSession(ctx, m.ctl, func() error {
			var err error
			formID, err = m.ctl.OpenForm(ctx, kind)
			return err
		})
		return formOpenedMsg{kind: kind, formID: formID, err: err}
	}
}

func (m Model) submitCmd(entry *formEntry) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := m.opContext()
		defer cancel()

		if entry.kind == domain.Inquiry {
			return submitDoneMsg{entry: entry, err: m.ctl.SubmitInquiry(ctx, entry.formID, entry.values)}
		}

		resume, err := submission.LoadResume(entry.resumePath)
		if err != nil {
			return submitDoneMsg{entry: entry, err: err}
		}
		ch, err := m.ctl.SubmitJobApplication(ctx, entry.formID, entry.values, resume)
		if err != nil {
			return submitDoneMsg{entry: entry, err: err}
		}
		// Uploads may outlive the per-action timeout.
		select {
		case res := <-ch:
			return submitDoneMsg{entry: entry, err: res.Err}
		case <-m.ctx.Done():
			return submitDoneMsg{entry: entry, err: m.ctx.Err()}
		}
	}
}
