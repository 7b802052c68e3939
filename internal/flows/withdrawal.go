package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/workflow"
)

var (
	ErrInvalidAmount = errors.New("flows: invalid amount")
	ErrInvalidPhone  = errors.New("flows: invalid phone")
	ErrInvalidInput  = errors.New("flows: invalid input")
)

// Withdrawal walks an eligible user through payout method, amount, and
// delivery details, then submits the request for admin review.
type Withdrawal struct {
	wf       *workflow.Service
	sessions session.Manager
	prog     config.ProgramConfig
	phoneRe  func(string) bool
}

func NewWithdrawal(wf *workflow.Service, sessions session.Manager, prog config.ProgramConfig) *Withdrawal {
	re := models.PhonePattern(prog.PhonePrefix)
	return &Withdrawal{
		wf:       wf,
		sessions: sessions,
		prog:     prog,
		phoneRe:  re.MatchString,
	}
}

// Start checks eligibility and opens the flow. The account is returned
// so the caller can show the available balance; on eligibility errors
// it is returned alongside the error when known.
func (w *Withdrawal) Start(ctx context.Context, userID int64) (*models.Account, error) {
	acc, err := w.wf.CheckEligibility(ctx, userID)
	if err != nil {
		return acc, err
	}
	w.sessions.Begin(userID, session.FlowWithdrawal)
	return acc, nil
}

// ChooseMethod records the payout method and advances to the amount step.
func (w *Withdrawal) ChooseMethod(userID int64, method models.PayoutMethod) error {
	switch method {
	case models.MethodTelebirr, models.MethodCBE:
	default:
		return ErrInvalidInput
	}
	w.sessions.Mutate(userID, func(s *session.Session) {
		s.Withdrawal.Method = string(method)
		s.Step = session.StepAmount
	})
	return nil
}

// HandleAmount parses the requested amount, validates it against the
// program floor and the current balance, and advances to the details
// step for the chosen method.
func (w *Withdrawal) HandleAmount(ctx context.Context, userID int64, text string) error {
	amount, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || amount <= 0 {
		return ErrInvalidAmount
	}
	if amount < w.prog.MinWithdrawal {
		return workflow.ErrBelowMinimum
	}
	acc, err := w.wf.CheckEligibility(ctx, userID)
	if err != nil {
		return err
	}
	if amount > acc.Balance {
		return workflow.ErrExceedsBalance
	}
	w.sessions.Mutate(userID, func(s *session.Session) {
		s.Withdrawal.Amount = amount
		if models.PayoutMethod(s.Withdrawal.Method) == models.MethodTelebirr {
			s.Step = session.StepPhone
		} else {
			s.Step = session.StepAccountNumber
		}
	})
	return nil
}

// HandlePhone validates the mobile wallet number and submits the request.
func (w *Withdrawal) HandlePhone(ctx context.Context, userID int64, text string) (*models.Withdrawal, error) {
	phone := strings.TrimSpace(text)
	if !w.phoneRe(phone) {
		return nil, ErrInvalidPhone
	}
	sess := w.sessions.Get(userID)
	if sess.Flow != session.FlowWithdrawal {
		return nil, ErrNoActiveFlow
	}
	return w.submit(ctx, userID, workflow.WithdrawalRequest{
		UserID: userID,
		Amount: sess.Withdrawal.Amount,
		Method: models.MethodTelebirr,
		Phone:  phone,
	})
}

// HandleAccountNumber records the bank account as typed and advances to
// the holder-name step. Any non-empty text is accepted.
func (w *Withdrawal) HandleAccountNumber(userID int64, text string) error {
	num := strings.TrimSpace(text)
	if num == "" {
		return ErrInvalidInput
	}
	w.sessions.Mutate(userID, func(s *session.Session) {
		s.Withdrawal.AccountNumber = num
		s.Step = session.StepAccountName
	})
	return nil
}

// HandleAccountName records the holder name and submits the request.
func (w *Withdrawal) HandleAccountName(ctx context.Context, userID int64, text string) (*models.Withdrawal, error) {
	name := strings.TrimSpace(text)
	if len([]rune(name)) < 2 {
		return nil, ErrInvalidInput
	}
	sess := w.sessions.Get(userID)
	if sess.Flow != session.FlowWithdrawal {
		return nil, ErrNoActiveFlow
	}
	return w.submit(ctx, userID, workflow.WithdrawalRequest{
		UserID:        userID,
		Amount:        sess.Withdrawal.Amount,
		Method:        models.MethodCBE,
		AccountNumber: sess.Withdrawal.AccountNumber,
		AccountName:   name,
	})
}

// Cancel abandons the flow without submitting.
func (w *Withdrawal) Cancel(userID int64) {
	w.sessions.Clear(userID)
}

func (w *Withdrawal) submit(ctx context.Context, userID int64, req workflow.WithdrawalRequest) (*models.Withdrawal, error) {
	wd, err := w.wf.SubmitWithdrawal(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("submit withdrawal: %w", err)
	}
	w.sessions.Clear(userID)
	return wd, nil
}
