package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/xonecas/tally/internal/api"
	"github.com/xonecas/tally/internal/constants"
	"github.com/xonecas/tally/internal/nav"
)

var (
	errInvalidAmount  = errors.New("enter an amount like 12.50")
	errNoDebtor       = errors.New("money requests need a chat with exactly one other person")
	errNoParticipants = errors.New("this chat has nobody to split with")
)

// parseAmount converts a decimal amount to cents.
func parseAmount(s string) (int64, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, errInvalidAmount
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if hasFrac && (len(frac) == 0 || len(frac) > 2) {
		return 0, errInvalidAmount
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units < 0 {
		return 0, errInvalidAmount
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, errInvalidAmount
	}
	total := units*100 + cents
	if total <= 0 {
		return 0, errInvalidAmount
	}
	return total, nil
}

// splitEvenly divides amount between me and others. The remainder from
// rounding goes to me so the shares add up to amount.
func splitEvenly(amount int64, me string, others []string) []api.Split {
	n := int64(len(others) + 1)
	share := amount / n
	splits := []api.Split{{Email: me, Amount: amount - share*int64(len(others))}}
	for _, o := range others {
		splits = append(splits, api.Split{Email: o, Amount: share})
	}
	return splits
}

// iouScreen requests money from one person, or splits a bill with every
// participant of the report.
type iouScreen struct {
	env      *screenEnv
	reportID string
	bill     bool
	form     form

	busy bool
	err  error
}

func newIOUScreen(env *screenEnv, reportID string, bill bool) *iouScreen {
	return &iouScreen{
		env:      env,
		reportID: reportID,
		bill:     bill,
		form: newForm(
			fieldSpec{label: "Amount (" + constants.DefaultCurrency + ")", placeholder: "0.00", charLimit: 16},
			fieldSpec{label: "What for?", placeholder: "Dinner", charLimit: 200},
		),
	}
}

func (s *iouScreen) Init() tea.Cmd { return nil }

func (s *iouScreen) TakesText() bool { return true }

func (s *iouScreen) submit() tea.Cmd {
	amount, err := parseAmount(s.form.Value(0))
	if err != nil {
		s.err = err
		return nil
	}
	comment := s.form.Value(1)
	others := s.env.otherParticipants(s.reportID)
	env := s.env

	if s.bill {
		if len(others) == 0 {
			s.err = errNoParticipants
			return nil
		}
		split := api.IOUSplit{
			Comment:  comment,
			Amount:   amount,
			Currency: constants.DefaultCurrency,
			Splits:   splitEvenly(amount, env.sessionEmail(), others),
		}
		s.busy = true
		return runAction("split bill", func() (string, error) {
			ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
			defer cancel()
			reportID, err := env.actions.CreateIOUSplit(ctx, split)
			if err != nil {
				return "", err
			}
			return nav.ReportRoute(reportID), nil
		})
	}

	if len(others) != 1 {
		s.err = errNoDebtor
		return nil
	}
	req := api.IOURequest{
		Comment:     comment,
		Amount:      amount,
		Currency:    constants.DefaultCurrency,
		DebtorEmail: others[0],
	}
	s.busy = true
	return runAction("request money", func() (string, error) {
		ctx, cancel := context.WithTimeout(env.ctx, constants.APIRequestTimeout)
		defer cancel()
		reportID, err := env.actions.CreateIOUTransaction(ctx, req)
		if err != nil {
			return "", err
		}
		return nav.ReportRoute(reportID), nil
	})
}

func (s *iouScreen) Update(msg tea.Msg) (screen, tea.Cmd) {
	switch msg := msg.(type) {
	case actionResultMsg:
		s.busy = false
		s.err = msg.err
		if msg.err == nil && msg.next != "" {
			return s, navigateTo(msg.next)
		}
		return s, nil
	case tea.KeyMsg:
		if key.Matches(msg, submitKey) {
			if s.busy {
				return s, nil
			}
			s.err = nil
			return s, s.submit()
		}
	}
	var cmd tea.Cmd
	s.form, cmd = s.form.Update(msg)
	return s, cmd
}

func (s *iouScreen) View(width, height int) string {
	title := "REQUEST MONEY"
	if s.bill {
		title = "SPLIT BILL"
	}
	details := s.env.personalDetails()
	var names []string
	for _, login := range s.env.otherParticipants(s.reportID) {
		names = append(names, s.env.displayName(details, login))
	}
	with := "nobody"
	if len(names) > 0 {
		with = strings.Join(names, ", ")
	}

	lines := []string{renderSectionTitle(title, width), ""}
	lines = append(lines, labelStyle.Render("With ")+valueStyle.Render(truncateWithEllipsis(with, width-5)), "")
	lines = append(lines, s.form.View(width))

	if amount, err := parseAmount(s.form.Value(0)); err == nil && s.bill && len(names) > 0 {
		share := amount / int64(len(names)+1)
		lines = append(lines, dimmedStyle.Render(fmt.Sprintf("Each pays %s", formatAmount(share, constants.DefaultCurrency))))
	}
	switch {
	case s.busy:
		lines = append(lines, pendingStyle.Render("Sending…"))
	case s.err != nil:
		lines = append(lines, errorStyle.Render(s.err.Error()))
	}
	lines = append(lines, hintStyle.Render("enter send · tab next field · esc close"))
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
