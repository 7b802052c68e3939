// Package flows implements the multi-step chat conversations:
// student registration and withdrawal requests. The flows are
// transport-agnostic; the telegram layer renders their results.
package flows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/ledger"
	"github.com/jutclasses/enrollbot/internal/logger"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/store"
)

var (
	ErrAlreadyRegistered = errors.New("flows: already registered")
	ErrInvalidName       = errors.New("flows: invalid name")
	ErrInvalidID         = errors.New("flows: invalid institutional id")
	ErrIDTaken           = errors.New("flows: institutional id taken")
	ErrNoActiveFlow      = errors.New("flows: no active flow")
)

// Registration walks a new user through name, contact, institutional
// id, and stream, then creates the pending account.
type Registration struct {
	st       store.Store
	sessions session.Manager
	led      *ledger.Service
	prog     config.ProgramConfig
}

func NewRegistration(st store.Store, sessions session.Manager, led *ledger.Service, prog config.ProgramConfig) *Registration {
	return &Registration{st: st, sessions: sessions, led: led, prog: prog}
}

// Start begins the flow. A referral code from a deep link resolves to
// the referrer; unknown codes and self-referrals are silently dropped.
// Returns the referrer's account when the code resolved, else nil.
func (r *Registration) Start(ctx context.Context, userID int64, referralCode string) (*models.Account, error) {
	if _, err := r.st.Account(ctx, userID); err == nil {
		return nil, ErrAlreadyRegistered
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("start registration: %w", err)
	}

	var referrer *models.Account
	if referralCode != "" {
		ref, err := r.st.AccountByReferralCode(ctx, referralCode)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("resolve referral code: %w", err)
		case ref.TelegramID == userID:
		default:
			referrer = ref
		}
	}

	r.sessions.Begin(userID, session.FlowRegistration)
	if referrer != nil {
		r.sessions.Mutate(userID, func(s *session.Session) {
			s.Registration.ReferrerID = referrer.TelegramID
		})
	}

	logger.SVCFlows.Info("registration started",
		slog.String("event", "flows.registration.start"),
		slog.Int64("user_id", userID),
		slog.Bool("referred", referrer != nil),
	)
	return referrer, nil
}

// HandleName accepts the full name. Names under two characters are rejected.
func (r *Registration) HandleName(userID int64, text string) error {
	name := strings.TrimSpace(text)
	if len([]rune(name)) < 2 {
		return ErrInvalidName
	}
	r.sessions.Mutate(userID, func(s *session.Session) {
		s.Registration.FullName = name
		s.Step = session.StepContact
	})
	return nil
}

// HandleContact accepts the phone number shared via the contact button.
func (r *Registration) HandleContact(userID int64, phone string) error {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ErrInvalidName
	}
	r.sessions.Mutate(userID, func(s *session.Session) {
		s.Registration.Contact = phone
		s.Step = session.StepJUID
	})
	return nil
}

// HandleJUID accepts the institutional id, uppercased, and rejects both
// malformed and already-registered ids.
func (r *Registration) HandleJUID(ctx context.Context, userID int64, text string) error {
	id := strings.ToUpper(strings.TrimSpace(text))
	if !models.JUIDPattern.MatchString(id) {
		return ErrInvalidID
	}
	taken, err := r.st.JUIDExists(ctx, id)
	if err != nil {
		return fmt.Errorf("check institutional id: %w", err)
	}
	if taken {
		return ErrIDTaken
	}
	r.sessions.Mutate(userID, func(s *session.Session) {
		s.Registration.JUID = id
		s.Step = session.StepStream
	})
	return nil
}

// Profile carries the telegram identity captured at completion time.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// Complete creates the pending account from the accumulated draft and
// clears the session. The referrer's unpaid counter is bumped here;
// the commission itself waits for payment approval.
func (r *Registration) Complete(ctx context.Context, userID int64, stream models.Stream, prof Profile) (*models.Account, error) {
	sess := r.sessions.Get(userID)
	if sess.Flow != session.FlowRegistration {
		return nil, ErrNoActiveFlow
	}
	draft := sess.Registration

	code, err := r.uniqueReferralCode(ctx, draft.FullName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	acc := &models.Account{
		TelegramID:       userID,
		Username:         prof.Username,
		FirstName:        prof.FirstName,
		LastName:         prof.LastName,
		FullName:         draft.FullName,
		ContactNumber:    draft.Contact,
		JUID:             draft.JUID,
		Stream:           stream,
		Status:           models.AccountPending,
		ReferralCode:     code,
		RegistrationDate: now,
		LastSeen:         now,
	}
	if draft.ReferrerID != 0 {
		ref := draft.ReferrerID
		acc.ReferredBy = &ref
	}

	if err := r.st.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrAlreadyRegistered
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	if acc.ReferredBy != nil {
		if err := r.led.RecordPendingReferral(ctx, *acc.ReferredBy); err != nil {
			return nil, fmt.Errorf("record referral: %w", err)
		}
	}
	r.sessions.Clear(userID)

	logger.SVCFlows.Info("registration completed",
		slog.String("event", "flows.registration.complete"),
		slog.Int64("user_id", userID),
		slog.String("stream", string(stream)),
		slog.String("referral_code", acc.ReferralCode),
	)
	return acc, nil
}

// Cancel abandons whatever flow the user is in.
func (r *Registration) Cancel(userID int64) {
	r.sessions.Clear(userID)
}

// uniqueReferralCode derives a code from the name prefix plus a random
// suffix, retrying on collision. After a few collisions the suffix is
// widened instead of looping forever.
func (r *Registration) uniqueReferralCode(ctx context.Context, fullName string) (string, error) {
	prefix := codePrefix(fullName)
	for attempt := 0; attempt < 5; attempt++ {
		code := fmt.Sprintf("%s%03d", prefix, 100+rand.Intn(900))
		taken, err := r.st.ReferralCodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("referral code check: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	code := fmt.Sprintf("%s%04d", prefix, 1000+rand.Intn(9000))
	taken, err := r.st.ReferralCodeExists(ctx, code)
	if err != nil {
		return "", fmt.Errorf("referral code check: %w", err)
	}
	if taken {
		return "", errors.New("flows: referral code space exhausted")
	}
	return code, nil
}

// codePrefix takes the first three letters of the name, uppercased.
// Short names are padded with X.
func codePrefix(fullName string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(fullName) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() >= 3 {
				break
			}
		}
	}
	p := b.String()
	for len(p) < 3 {
		p += "X"
	}
	return p
}
