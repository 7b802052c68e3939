package telegram

import (
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/jutclasses/enrollbot/internal/flows"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/store"
	"github.com/jutclasses/enrollbot/internal/workflow"
)

// Callback keys. Kept short: Telegram limits callback data to 64 bytes.
const (
	cbStream   = "stream"
	cbWdMethod = "wd_method"
	cbCancel   = "flow_cancel"

	cbPayApprove = "pay_approve"
	cbPayReject  = "pay_reject"
	cbWdApprove  = "wd_approve"
	cbWdReject   = "wd_reject"

	cbAdmPayments       = "adm_payments"
	cbAdmWithdrawals    = "adm_withdrawals"
	cbAdmStats          = "adm_stats"
	cbAdmSearch         = "adm_search"
	cbAdmBroadcast      = "adm_broadcast"
	cbAdmMaint          = "adm_maint"
	cbAdmExportStudents = "adm_exp_students"
	cbAdmExportPayments = "adm_exp_payments"
	cbAdmExportPayouts  = "adm_exp_payouts"
	cbAdmBack           = "adm_back"

	cbUsrBlock   = "usr_block"
	cbUsrUnblock = "usr_unblock"
	cbUsrDelete  = "usr_delete"
	cbUsrMessage = "usr_msg"
)

// handleStart greets new users into registration and registered users
// with the main menu. A deep-link payload carries a referral code.
func (b *Bot) handleStart(c tele.Context) error {
	ctx := WithHandler(c, "start")
	userID := c.Sender().ID

	if _, err := b.st.Account(ctx, userID); err == nil {
		return SendMD(c, MsgAlreadyRegistered(), MainMenu())
	}

	if !b.settings.Features().Registration {
		return SendText(c, MsgFeatureDisabled())
	}

	code := strings.TrimSpace(c.Message().Payload)
	referrer, err := b.regFlow.Start(ctx, userID, code)
	if errors.Is(err, flows.ErrAlreadyRegistered) {
		return SendMD(c, MsgAlreadyRegistered(), MainMenu())
	}
	if err != nil {
		return err
	}

	if referrer != nil {
		return SendMD(c, MsgWelcomeReferred(referrer.FullName), RemoveKeyboard())
	}
	return SendMD(c, MsgWelcome(), RemoveKeyboard())
}

func (b *Bot) handleHelp(c tele.Context) error {
	WithHandler(c, "help")
	return SendMD(c, MsgHelp(b.cfg.Program))
}

func (b *Bot) handleCancel(c tele.Context) error {
	WithHandler(c, "cancel")
	b.sessions.Clear(c.Sender().ID)
	return SendMD(c, MsgCancelled(), MainMenu())
}

func (b *Bot) handleBalance(c tele.Context) error {
	ctx := WithHandler(c, "balance")
	acc, err := b.st.Account(ctx, c.Sender().ID)
	if errors.Is(err, store.ErrNotFound) {
		return SendText(c, "Use /start to register first.")
	}
	if err != nil {
		return err
	}
	return SendMD(c, MsgBalance(acc, b.cfg.Program.Currency), MainMenu())
}

func (b *Bot) handleReferrals(c tele.Context) error {
	ctx := WithHandler(c, "referrals")
	if !b.settings.Features().Referrals {
		return SendText(c, MsgFeatureDisabled())
	}
	acc, err := b.st.Account(ctx, c.Sender().ID)
	if errors.Is(err, store.ErrNotFound) {
		return SendText(c, "Use /start to register first.")
	}
	if err != nil {
		return err
	}
	recent, err := b.st.ReferralsByReferrer(ctx, acc.TelegramID, 10)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(recent))
	for _, r := range recent {
		if ref, err := b.st.Account(ctx, r.ReferredID); err == nil {
			names = append(names, ref.FullName)
		}
	}
	return SendMD(c, MsgReferrals(acc, b.cfg.Telegram.Username,
		b.cfg.Program.CommissionPerReferral, b.cfg.Program.Currency, names))
}

func (b *Bot) handleLeaderboard(c tele.Context) error {
	ctx := WithHandler(c, "leaderboard")
	userID := c.Sender().ID

	top, err := b.st.TopReferrers(ctx, 6)
	if err != nil {
		return err
	}

	rank := 0
	if acc, err := b.st.Account(ctx, userID); err == nil && acc.PaidReferrals > 0 {
		onBoard := false
		for _, a := range top {
			if a.TelegramID == userID {
				onBoard = true
				break
			}
		}
		if !onBoard {
			if r, err := b.st.ReferrerRank(ctx, userID); err == nil {
				rank = r
			}
		}
	}
	return SendMD(c, MsgLeaderboard(top, rank))
}

func (b *Bot) handlePayInstructions(c tele.Context) error {
	ctx := WithHandler(c, "pay")
	if !b.settings.Features().Payments {
		return SendText(c, MsgFeatureDisabled())
	}
	acc, err := b.st.Account(ctx, c.Sender().ID)
	if errors.Is(err, store.ErrNotFound) {
		return SendText(c, "Use /start to register first.")
	}
	if err != nil {
		return err
	}
	if acc.Status == models.AccountActive {
		return SendText(c, "✅ Your account is already active.")
	}
	return SendMD(c, MsgPaymentInstructions(b.cfg.PaymentMethods,
		b.cfg.Program.RegistrationFee, b.cfg.Program.Currency))
}

func (b *Bot) handleWithdrawStart(c tele.Context) error {
	ctx := WithHandler(c, "withdraw")
	if !b.settings.Features().Withdrawals {
		return SendText(c, MsgFeatureDisabled())
	}
	_, err := b.wdFlow.Start(ctx, c.Sender().ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return SendText(c, "Use /start to register first.")
	case errors.Is(err, workflow.ErrNotActive):
		return SendText(c, "⏳ Your account is not active yet. Complete the registration payment first.")
	case errors.Is(err, workflow.ErrMinReferrals):
		return SendMD(c, MsgWithdrawNotEligible(b.cfg.Program.MinPaidReferrals))
	case errors.Is(err, workflow.ErrDuplicatePending):
		return SendText(c, MsgWithdrawPendingAlready())
	case err != nil:
		return err
	}

	acc, err := b.st.Account(ctx, c.Sender().ID)
	if err != nil {
		return err
	}
	return SendMD(c, MsgWithdrawStart(acc.Balance, b.cfg.Program.MinWithdrawal, b.cfg.Program.Currency),
		methodMarkup())
}

func methodMarkup() *tele.ReplyMarkup {
	return InlineButtonsRows([]InlineBtn{
		{Text: "📱 telebirr", Unique: cbWdMethod, Data: string(models.MethodTelebirr)},
		{Text: "🏦 CBE", Unique: cbWdMethod, Data: string(models.MethodCBE)},
	})
}

// handleText is the single OnText entry point. Active conversations win
// over menu buttons; admin reply-collection flows win over user flows.
func (b *Bot) handleText(c tele.Context) error {
	userID := c.Sender().ID
	text := c.Text()
	sess := b.sessions.Get(userID)
	isAdmin := b.authz.IsAuthorized(userID)

	if isAdmin {
		switch sess.Flow {
		case session.FlowBroadcast:
			return b.adminRunBroadcast(c, text)
		case session.FlowRejectWithdrawal:
			return b.adminFinishRejectWithdrawal(c, sess.TargetID, text)
		case session.FlowRejectPayment:
			return b.adminFinishRejectPayment(c, sess.TargetID, text)
		case session.FlowMessageUser:
			return b.adminDeliverMessage(c, sess.TargetID, text)
		}
	}

	switch sess.Flow {
	case session.FlowRegistration:
		return b.registrationText(c, sess, text)
	case session.FlowWithdrawal:
		return b.withdrawalText(c, sess, text)
	}

	if isAdmin && sess.Flow == session.FlowSearch {
		return b.adminRunSearch(c, text)
	}

	switch text {
	case BtnBalance:
		return b.handleBalance(c)
	case BtnReferrals:
		return b.handleReferrals(c)
	case BtnLeaders:
		return b.handleLeaderboard(c)
	case BtnPay:
		return b.handlePayInstructions(c)
	case BtnWithdraw:
		return b.handleWithdrawStart(c)
	case BtnHelp:
		return b.handleHelp(c)
	}

	return SendMD(c, MsgUnknown(), MainMenu())
}

func (b *Bot) registrationText(c tele.Context, sess session.Session, text string) error {
	ctx := WithHandler(c, "registration")
	userID := c.Sender().ID

	switch sess.Step {
	case session.StepName:
		if err := b.regFlow.HandleName(userID, text); err != nil {
			return SendText(c, MsgInvalidName())
		}
		return SendText(c, MsgAskContact(), &tele.SendOptions{ReplyMarkup: ContactKeyboard("📱 Share my number")})
	case session.StepContact:
		// Typed text never advances this step; only a shared contact does.
		return SendText(c, MsgAskContact(), &tele.SendOptions{ReplyMarkup: ContactKeyboard("📱 Share my number")})
	case session.StepJUID:
		err := b.regFlow.HandleJUID(ctx, userID, text)
		switch {
		case errors.Is(err, flows.ErrInvalidID):
			return SendText(c, MsgInvalidJUID())
		case errors.Is(err, flows.ErrIDTaken):
			return SendText(c, MsgJUIDTaken())
		case err != nil:
			return err
		}
		return SendMD(c, MsgAskStream(), InlineButtonsRows([]InlineBtn{
			{Text: models.StreamLabel(models.StreamNatural), Unique: cbStream, Data: string(models.StreamNatural)},
			{Text: models.StreamLabel(models.StreamSocial), Unique: cbStream, Data: string(models.StreamSocial)},
		}))
	case session.StepStream:
		return SendText(c, MsgAskStream())
	}
	return nil
}

func (b *Bot) handleContact(c tele.Context) error {
	userID := c.Sender().ID
	sess := b.sessions.Get(userID)
	if sess.Flow != session.FlowRegistration || sess.Step != session.StepContact {
		return nil
	}
	contact := c.Message().Contact
	if contact == nil {
		return nil
	}
	if err := b.regFlow.HandleContact(userID, contact.PhoneNumber); err != nil {
		return SendText(c, MsgAskContact())
	}
	return SendMD(c, MsgAskJUID(), RemoveKeyboard())
}

func (b *Bot) cbChooseStream(c tele.Context) error {
	ctx := WithHandler(c, "registration.stream")
	userID := c.Sender().ID
	sess := b.sessions.Get(userID)
	if sess.Flow != session.FlowRegistration || sess.Step != session.StepStream {
		return nil
	}

	stream := models.Stream(CallbackPayload(c))
	if stream != models.StreamNatural && stream != models.StreamSocial {
		return nil
	}

	user := c.Sender()
	acc, err := b.regFlow.Complete(ctx, userID, stream, flows.Profile{
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
	})
	if errors.Is(err, flows.ErrAlreadyRegistered) {
		return SendMD(c, MsgAlreadyRegistered(), MainMenu())
	}
	if err != nil {
		return err
	}

	b.notify.NotifyAdmins(ctx, fmt.Sprintf(
		"🆕 New registration\n\n*%s*\nJU ID: `%s`\nStream: %s\nID: `%d`",
		acc.FullName, acc.JUID, models.StreamLabel(acc.Stream), acc.TelegramID))

	return SendMD(c, MsgRegistered(acc, b.cfg.Program.RegistrationFee, b.cfg.Program.Currency), MainMenu())
}

// handlePhoto treats any photo from a non-active account as a payment
// screenshot.
func (b *Bot) handlePhoto(c tele.Context) error {
	ctx := WithHandler(c, "payment.screenshot")
	if !b.settings.Features().ScreenshotUpload {
		return SendText(c, MsgFeatureDisabled())
	}
	userID := c.Sender().ID

	acc, err := b.st.Account(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return SendText(c, "Use /start to register first.")
	}
	if err != nil {
		return err
	}
	if acc.Status == models.AccountActive {
		return SendText(c, "✅ Your account is already active, no payment needed.")
	}

	photo := c.Message().Photo
	if photo == nil {
		return nil
	}

	p, err := b.wf.SubmitPayment(ctx, userID, photo.FileID)
	if errors.Is(err, workflow.ErrDuplicatePending) {
		return SendText(c, MsgPaymentPendingAlready())
	}
	if err != nil {
		return err
	}

	caption := fmt.Sprintf("💳 Payment review\n\n%s (@%s)\nJU ID: %s\nAmount: %d %s\nPayment: %s",
		acc.FullName, acc.Username, acc.JUID, p.Amount, b.cfg.Program.Currency, p.PaymentID)
	b.notify.SendPhotoToAdmins(ctx, p.ScreenshotFileID, caption, InlineButtonsRows([]InlineBtn{
		{Text: "✅ Approve", Unique: cbPayApprove, Data: p.PaymentID},
		{Text: "❌ Reject", Unique: cbPayReject, Data: p.PaymentID},
	}))

	return SendMD(c, MsgPaymentReceived(p.PaymentID))
}

func (b *Bot) withdrawalText(c tele.Context, sess session.Session, text string) error {
	ctx := WithHandler(c, "withdrawal")
	userID := c.Sender().ID

	switch sess.Step {
	case session.StepMethod:
		return SendMD(c, MsgAskMethod(), methodMarkup())
	case session.StepAmount:
		err := b.wdFlow.HandleAmount(ctx, userID, text)
		switch {
		case errors.Is(err, flows.ErrInvalidAmount):
			return SendText(c, "❌ Enter a whole number amount.")
		case errors.Is(err, workflow.ErrBelowMinimum):
			return SendMD(c, MsgWithdrawBelowMinimum(b.cfg.Program.MinWithdrawal, b.cfg.Program.Currency))
		case errors.Is(err, workflow.ErrExceedsBalance):
			return SendText(c, MsgWithdrawExceedsBalance())
		case err != nil:
			return err
		}
		if models.PayoutMethod(sess.Withdrawal.Method) == models.MethodTelebirr {
			return SendText(c, MsgAskPhone(b.cfg.Program.PhonePrefix))
		}
		return SendText(c, MsgAskAccountNumber())
	case session.StepPhone:
		wd, err := b.wdFlow.HandlePhone(ctx, userID, text)
		if errors.Is(err, flows.ErrInvalidPhone) {
			return SendText(c, MsgInvalidPhone(b.cfg.Program.PhonePrefix))
		}
		if err != nil {
			return err
		}
		return b.finishWithdrawal(c, wd)
	case session.StepAccountNumber:
		if err := b.wdFlow.HandleAccountNumber(userID, text); err != nil {
			return SendText(c, MsgAskAccountNumber())
		}
		return SendText(c, MsgAskAccountName())
	case session.StepAccountName:
		wd, err := b.wdFlow.HandleAccountName(ctx, userID, text)
		if errors.Is(err, flows.ErrInvalidInput) {
			return SendText(c, MsgAskAccountName())
		}
		if err != nil {
			return err
		}
		return b.finishWithdrawal(c, wd)
	}
	return nil
}

func (b *Bot) cbChooseMethod(c tele.Context) error {
	WithHandler(c, "withdrawal.method")
	userID := c.Sender().ID
	sess := b.sessions.Get(userID)
	if sess.Flow != session.FlowWithdrawal || sess.Step != session.StepMethod {
		return nil
	}

	method := models.PayoutMethod(CallbackPayload(c))
	if err := b.wdFlow.ChooseMethod(userID, method); err != nil {
		return nil
	}
	return SendText(c, MsgAskAmount())
}

func (b *Bot) finishWithdrawal(c tele.Context, wd *models.Withdrawal) error {
	ctx := BuildContext(c)
	detail := wd.Phone
	if wd.PaymentMethod == models.MethodCBE {
		detail = fmt.Sprintf("%s (%s)", wd.AccountNumber, wd.AccountName)
	}
	b.notify.NotifyAdmins(ctx, fmt.Sprintf(
		"💸 Withdrawal request\n\nUser: `%d`\nAmount: *%d %s*\nMethod: %s\nTo: %s\nID: `%s`",
		wd.UserID, wd.Amount, b.cfg.Program.Currency, wd.PaymentMethod, detail, wd.WithdrawalID),
		InlineButtonsRows([]InlineBtn{
			{Text: "✅ Approve", Unique: cbWdApprove, Data: wd.WithdrawalID},
			{Text: "❌ Reject", Unique: cbWdReject, Data: wd.WithdrawalID},
		}))
	return SendMD(c, MsgWithdrawSubmitted(wd, b.cfg.Program.Currency), MainMenu())
}

func (b *Bot) cbCancelFlow(c tele.Context) error {
	b.sessions.Clear(c.Sender().ID)
	return SendMD(c, MsgCancelled(), MainMenu())
}
