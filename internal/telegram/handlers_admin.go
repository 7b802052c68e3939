package telegram

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/jutclasses/enrollbot/internal/export"
	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/session"
	"github.com/jutclasses/enrollbot/internal/stats"
	"github.com/jutclasses/enrollbot/internal/store"
	"github.com/jutclasses/enrollbot/internal/workflow"
)

const pendingListLimit = 5

func adminName(c tele.Context) string {
	u := c.Sender()
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}

func dashboardMarkup(maintenance bool) *tele.ReplyMarkup {
	maintLabel := "🚧 Maintenance: off"
	if maintenance {
		maintLabel = "🚧 Maintenance: ON"
	}
	return InlineButtonsRows(
		[]InlineBtn{
			{Text: "💳 Pending payments", Unique: cbAdmPayments},
			{Text: "💸 Pending payouts", Unique: cbAdmWithdrawals},
		},
		[]InlineBtn{
			{Text: "📊 Analytics", Unique: cbAdmStats},
			{Text: "🔍 Search", Unique: cbAdmSearch},
		},
		[]InlineBtn{
			{Text: "📣 Broadcast", Unique: cbAdmBroadcast},
			{Text: maintLabel, Unique: cbAdmMaint},
		},
		[]InlineBtn{
			{Text: "📄 Students CSV", Unique: cbAdmExportStudents},
			{Text: "🔬 Natural", Unique: cbAdmExportStudents, Data: string(models.StreamNatural)},
			{Text: "📚 Social", Unique: cbAdmExportStudents, Data: string(models.StreamSocial)},
		},
		[]InlineBtn{
			{Text: "📄 Payments CSV", Unique: cbAdmExportPayments},
			{Text: "📄 Payouts CSV", Unique: cbAdmExportPayouts},
		},
	)
}

func (b *Bot) handleAdminDashboard(c tele.Context) error {
	ctx := WithHandler(c, "admin.dashboard")
	t, err := b.st.Totals(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("🛠 *Admin dashboard*\n\n"+
		"Students: %d (%d active)\nPending payments: %d\nPending payouts: %d",
		t.Students, t.ActiveStudents, t.PendingPayments, t.PendingPayouts)
	return SendMD(c, text, dashboardMarkup(b.settings.Maintenance()))
}

func (b *Bot) cbBackToDashboard(c tele.Context) error {
	return b.handleAdminDashboard(c)
}

// -- payment resolution --

func (b *Bot) cbApprovePayment(c tele.Context) error {
	ctx := WithHandler(c, "admin.payment.approve")
	paymentID := CallbackPayload(c)

	p, acc, err := b.wf.ApprovePayment(ctx, paymentID, adminName(c))
	switch {
	case errors.Is(err, workflow.ErrAlreadyResolved):
		return SendText(c, "⚠️ This payment was already resolved by another admin.")
	case errors.Is(err, store.ErrNotFound):
		return SendText(c, "⚠️ Payment not found.")
	case err != nil:
		return err
	}

	b.notify.SendToUser(ctx, p.UserID, MsgPaymentApproved())
	if acc.ReferredBy != nil {
		b.notify.SendToUser(ctx, *acc.ReferredBy, fmt.Sprintf(
			"💰 You earned *%d %s*! Your referral *%s* just activated their account.",
			b.cfg.Program.CommissionPerReferral, b.cfg.Program.Currency, acc.FullName))
	}
	return SendText(c, fmt.Sprintf("✅ Payment %s approved. %s is now active.", p.PaymentID, acc.FullName))
}

func (b *Bot) cbRejectPayment(c tele.Context) error {
	WithHandler(c, "admin.payment.reject")
	paymentID := CallbackPayload(c)
	adminID := c.Sender().ID

	b.sessions.Begin(adminID, session.FlowRejectPayment)
	b.sessions.Mutate(adminID, func(s *session.Session) { s.TargetID = paymentID })
	return SendText(c, fmt.Sprintf("✍️ Reply with the rejection reason for payment %s.", paymentID))
}

func (b *Bot) adminFinishRejectPayment(c tele.Context, paymentID, reason string) error {
	ctx := WithHandler(c, "admin.payment.reject")
	b.sessions.Clear(c.Sender().ID)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}

	p, err := b.wf.RejectPayment(ctx, paymentID, adminName(c), reason)
	switch {
	case errors.Is(err, workflow.ErrAlreadyResolved):
		return SendText(c, "⚠️ This payment was already resolved by another admin.")
	case errors.Is(err, store.ErrNotFound):
		return SendText(c, "⚠️ Payment not found.")
	case err != nil:
		return err
	}

	b.notify.SendToUser(ctx, p.UserID, MsgPaymentRejected(reason))
	return SendText(c, fmt.Sprintf("❌ Payment %s rejected.", p.PaymentID))
}

// -- withdrawal resolution --

func (b *Bot) cbApproveWithdrawal(c tele.Context) error {
	ctx := WithHandler(c, "admin.withdrawal.approve")
	withdrawalID := CallbackPayload(c)

	w, err := b.wf.ApproveWithdrawal(ctx, withdrawalID, adminName(c))
	switch {
	case errors.Is(err, workflow.ErrAlreadyResolved):
		return SendText(c, "⚠️ This withdrawal was already resolved by another admin.")
	case errors.Is(err, store.ErrNotFound):
		return SendText(c, "⚠️ Withdrawal not found.")
	case err != nil:
		return err
	}

	b.notify.SendToUser(ctx, w.UserID, MsgWithdrawApproved(w, b.cfg.Program.Currency))
	return SendText(c, fmt.Sprintf("✅ Withdrawal %s approved and debited.", w.WithdrawalID))
}

func (b *Bot) cbRejectWithdrawal(c tele.Context) error {
	WithHandler(c, "admin.withdrawal.reject")
	withdrawalID := CallbackPayload(c)
	adminID := c.Sender().ID

	b.sessions.Begin(adminID, session.FlowRejectWithdrawal)
	b.sessions.Mutate(adminID, func(s *session.Session) { s.TargetID = withdrawalID })
	return SendText(c, fmt.Sprintf("✍️ Reply with the rejection reason for withdrawal %s.", withdrawalID))
}

func (b *Bot) adminFinishRejectWithdrawal(c tele.Context, withdrawalID, reason string) error {
	ctx := WithHandler(c, "admin.withdrawal.reject")
	b.sessions.Clear(c.Sender().ID)

	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "no reason given"
	}

	w, err := b.wf.RejectWithdrawal(ctx, withdrawalID, adminName(c), reason)
	switch {
	case errors.Is(err, workflow.ErrAlreadyResolved):
		return SendText(c, "⚠️ This withdrawal was already resolved by another admin.")
	case errors.Is(err, store.ErrNotFound):
		return SendText(c, "⚠️ Withdrawal not found.")
	case err != nil:
		return err
	}

	b.notify.SendToUser(ctx, w.UserID, MsgWithdrawRejected(w, reason))
	return SendText(c, fmt.Sprintf("❌ Withdrawal %s rejected.", w.WithdrawalID))
}

// -- pending queues --

func (b *Bot) cbPendingPayments(c tele.Context) error {
	ctx := WithHandler(c, "admin.payments.pending")
	list, err := b.st.ListPayments(ctx, models.StatusPending, pendingListLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return SendText(c, "✅ No pending payments.")
	}
	for _, p := range list {
		caption := fmt.Sprintf("💳 %s\nUser: %d\nAmount: %d %s\nSubmitted: %s",
			p.PaymentID, p.UserID, p.Amount, b.cfg.Program.Currency,
			p.SubmittedAt.Format("2006-01-02 15:04"))
		photo := &tele.Photo{File: tele.File{FileID: p.ScreenshotFileID}, Caption: caption}
		if err := c.Send(photo, &tele.SendOptions{ReplyMarkup: InlineButtonsRows([]InlineBtn{
			{Text: "✅ Approve", Unique: cbPayApprove, Data: p.PaymentID},
			{Text: "❌ Reject", Unique: cbPayReject, Data: p.PaymentID},
		})}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) cbPendingWithdrawals(c tele.Context) error {
	ctx := WithHandler(c, "admin.withdrawals.pending")
	list, err := b.st.ListWithdrawals(ctx, models.StatusPending, pendingListLimit)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return SendText(c, "✅ No pending withdrawals.")
	}
	for _, w := range list {
		detail := w.Phone
		if w.PaymentMethod == models.MethodCBE {
			detail = fmt.Sprintf("%s (%s)", w.AccountNumber, w.AccountName)
		}
		text := fmt.Sprintf("💸 `%s`\nUser: `%d`\nAmount: *%d %s*\nMethod: %s\nTo: %s",
			w.WithdrawalID, w.UserID, w.Amount, b.cfg.Program.Currency, w.PaymentMethod, detail)
		if err := SendMD(c, text, InlineButtonsRows([]InlineBtn{
			{Text: "✅ Approve", Unique: cbWdApprove, Data: w.WithdrawalID},
			{Text: "❌ Reject", Unique: cbWdReject, Data: w.WithdrawalID},
		})); err != nil {
			return err
		}
	}
	return nil
}

// -- analytics and exports --

func (b *Bot) cbAnalytics(c tele.Context) error {
	ctx := WithHandler(c, "admin.analytics")
	snap, err := b.stats.Snapshot(ctx, 5)
	if err != nil {
		return err
	}
	return SendMD(c, stats.Render(snap, b.cfg.Program.Currency))
}

// cbExportStudents exports all students, or one stream when the button
// payload names it.
func (b *Bot) cbExportStudents(c tele.Context) error {
	ctx := WithHandler(c, "admin.export.students")
	filter := store.AccountFilter{}
	label := "students"
	switch models.Stream(CallbackPayload(c)) {
	case models.StreamNatural:
		filter.Stream = models.StreamNatural
		label = "students_natural"
	case models.StreamSocial:
		filter.Stream = models.StreamSocial
		label = "students_social"
	}

	accounts, err := b.st.ListAccounts(ctx, filter)
	if err != nil {
		return err
	}
	data, err := export.Students(accounts)
	if err != nil {
		return err
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: fmt.Sprintf("%s_%s.csv", label, time.Now().Format("2006-01-02")),
		MIME:     "text/csv",
	}
	return c.Send(doc)
}

func (b *Bot) cbExportPayments(c tele.Context) error {
	ctx := WithHandler(c, "admin.export.payments")
	var all []models.Payment
	for _, status := range []models.ResolutionStatus{
		models.StatusPending, models.StatusApproved, models.StatusRejected,
	} {
		list, err := b.st.ListPayments(ctx, status, 0)
		if err != nil {
			return err
		}
		all = append(all, list...)
	}
	data, err := export.Payments(all)
	if err != nil {
		return err
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: fmt.Sprintf("payments_%s.csv", time.Now().Format("2006-01-02")),
		MIME:     "text/csv",
	}
	return c.Send(doc)
}

func (b *Bot) cbExportWithdrawals(c tele.Context) error {
	ctx := WithHandler(c, "admin.export.payouts")
	approved, err := b.st.ListWithdrawals(ctx, models.StatusApproved, 0)
	if err != nil {
		return err
	}
	pending, err := b.st.ListWithdrawals(ctx, models.StatusPending, 0)
	if err != nil {
		return err
	}
	data, err := export.Withdrawals(append(pending, approved...))
	if err != nil {
		return err
	}
	doc := &tele.Document{
		File:     tele.FromReader(bytes.NewReader(data)),
		FileName: fmt.Sprintf("withdrawals_%s.csv", time.Now().Format("2006-01-02")),
		MIME:     "text/csv",
	}
	return c.Send(doc)
}

// -- maintenance --

func (b *Bot) cbToggleMaintenance(c tele.Context) error {
	WithHandler(c, "admin.maintenance")
	on := b.settings.ToggleMaintenance()
	state := "off"
	if on {
		state = "ON"
	}
	return SendMD(c, fmt.Sprintf("🚧 Maintenance mode is now *%s*.", state),
		dashboardMarkup(on))
}

// -- search and user management --

func (b *Bot) cbStartSearch(c tele.Context) error {
	WithHandler(c, "admin.search")
	b.sessions.Begin(c.Sender().ID, session.FlowSearch)
	return SendText(c, "🔍 Send a name, username, JU ID, or telegram id.")
}

func (b *Bot) adminRunSearch(c tele.Context, query string) error {
	ctx := WithHandler(c, "admin.search")
	b.sessions.Clear(c.Sender().ID)

	query = strings.TrimSpace(query)
	if query == "" {
		return SendText(c, "🔍 Empty query.")
	}
	results, err := b.st.SearchAccounts(ctx, query, 5)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return SendText(c, "🔍 No matches.")
	}

	for _, a := range results {
		text := fmt.Sprintf("👤 *%s* (@%s)\nID: `%d`\nJU ID: `%s`\nStatus: %s\n"+
			"Balance: %d %s\nReferrals: %d paid / %d total",
			a.FullName, a.Username, a.TelegramID, a.JUID, a.Status,
			a.Balance, b.cfg.Program.Currency, a.PaidReferrals, a.TotalReferrals)

		idStr := strconv.FormatInt(a.TelegramID, 10)
		blockBtn := InlineBtn{Text: "🚫 Block", Unique: cbUsrBlock, Data: idStr}
		if a.Status == models.AccountBlocked {
			blockBtn = InlineBtn{Text: "✅ Unblock", Unique: cbUsrUnblock, Data: idStr}
		}
		if err := SendMD(c, text, InlineButtonsRows(
			[]InlineBtn{
				blockBtn,
				{Text: "💬 Message", Unique: cbUsrMessage, Data: idStr},
			},
			[]InlineBtn{
				{Text: "🗑 Delete", Unique: cbUsrDelete, Data: idStr},
			},
		)); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) cbBlockUser(c tele.Context) error {
	ctx := WithHandler(c, "admin.user.block")
	userID, err := strconv.ParseInt(CallbackPayload(c), 10, 64)
	if err != nil {
		return nil
	}
	if err := b.st.SetAccountStatus(ctx, userID, models.AccountBlocked, "blocked by admin"); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SendText(c, "⚠️ User not found.")
		}
		return err
	}
	b.sessions.Clear(userID)
	b.notify.SendToUser(ctx, userID, MsgBlocked("blocked by admin"))
	return SendText(c, fmt.Sprintf("🚫 User %d blocked.", userID))
}

func (b *Bot) cbUnblockUser(c tele.Context) error {
	ctx := WithHandler(c, "admin.user.unblock")
	userID, err := strconv.ParseInt(CallbackPayload(c), 10, 64)
	if err != nil {
		return nil
	}
	if err := b.st.SetAccountStatus(ctx, userID, models.AccountActive, ""); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SendText(c, "⚠️ User not found.")
		}
		return err
	}
	b.notify.SendToUser(ctx, userID, "✅ Your account has been unblocked. Welcome back!")
	return SendText(c, fmt.Sprintf("✅ User %d unblocked.", userID))
}

func (b *Bot) cbDeleteUser(c tele.Context) error {
	ctx := WithHandler(c, "admin.user.delete")
	userID, err := strconv.ParseInt(CallbackPayload(c), 10, 64)
	if err != nil {
		return nil
	}
	if err := b.st.DeleteAccount(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return SendText(c, "⚠️ User not found.")
		}
		return err
	}
	b.sessions.Clear(userID)
	return SendText(c, fmt.Sprintf("🗑 User %d deleted along with their payments.", userID))
}

func (b *Bot) cbMessageUser(c tele.Context) error {
	WithHandler(c, "admin.user.message")
	target := CallbackPayload(c)
	adminID := c.Sender().ID

	b.sessions.Begin(adminID, session.FlowMessageUser)
	b.sessions.Mutate(adminID, func(s *session.Session) { s.TargetID = target })
	return SendText(c, fmt.Sprintf("✍️ Reply with the message for user %s.", target))
}

func (b *Bot) adminDeliverMessage(c tele.Context, target, text string) error {
	ctx := WithHandler(c, "admin.user.message")
	b.sessions.Clear(c.Sender().ID)

	userID, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return SendText(c, "⚠️ Bad target id.")
	}
	if b.notify.SendToUser(ctx, userID, "📩 *Message from admin:*\n\n"+text) {
		return SendText(c, "✅ Delivered.")
	}
	return SendText(c, "⚠️ Could not deliver (user may have blocked the bot).")
}

// -- broadcast --

func (b *Bot) cbStartBroadcast(c tele.Context) error {
	WithHandler(c, "admin.broadcast")
	b.sessions.Begin(c.Sender().ID, session.FlowBroadcast)
	return SendText(c, "📣 Send the broadcast text. It goes to every registered user. /cancel to abort.")
}

func (b *Bot) adminRunBroadcast(c tele.Context, text string) error {
	ctx := WithHandler(c, "admin.broadcast")
	b.sessions.Clear(c.Sender().ID)

	text = strings.TrimSpace(text)
	if text == "" {
		return SendText(c, "📣 Empty broadcast dropped.")
	}

	accounts, err := b.st.ListAccounts(ctx, store.AccountFilter{})
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(accounts))
	for _, a := range accounts {
		if a.Status != models.AccountBlocked {
			ids = append(ids, a.TelegramID)
		}
	}

	if err := SendText(c, fmt.Sprintf("📣 Broadcasting to %d users...", len(ids))); err != nil {
		return err
	}

	// Long-running: keep the handler free.
	go func() {
		res := b.notify.Broadcast(ctx, ids, text, func(done, total int) {
			b.notify.SendToUser(ctx, c.Sender().ID, fmt.Sprintf("📣 Progress: %d/%d", done, total))
		})
		b.notify.SendToUser(ctx, c.Sender().ID, fmt.Sprintf(
			"📣 Broadcast finished.\nSent: %d\nFailed: %d", res.Sent, res.Failed))
	}()
	return nil
}
