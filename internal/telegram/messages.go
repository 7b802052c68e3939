package telegram

import (
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/jutclasses/enrollbot/internal/config"
	"github.com/jutclasses/enrollbot/internal/models"
)

// Main menu button labels. The dispatcher matches on these exact strings.
const (
	BtnBalance   = "💰 My Balance"
	BtnReferrals = "🔗 My Referrals"
	BtnLeaders   = "🏆 Leaderboard"
	BtnPay       = "💳 Pay Registration"
	BtnWithdraw  = "💸 Withdraw"
	BtnHelp      = "ℹ️ Help"
)

// MainMenu is the persistent reply keyboard for registered users.
func MainMenu() *tele.ReplyMarkup {
	return ReplyButtons(
		[]string{BtnBalance, BtnReferrals},
		[]string{BtnPay, BtnWithdraw},
		[]string{BtnLeaders, BtnHelp},
	)
}

func MsgWelcome() string {
	return "👋 Welcome to the enrollment program!\n\n" +
		"Register, pay the one-time fee, and earn a commission for every " +
		"friend who joins through your link.\n\n" +
		"Let's get you registered. What is your full name?"
}

func MsgWelcomeReferred(referrerName string) string {
	return fmt.Sprintf("👋 Welcome! You were invited by *%s*.\n\n"+
		"Let's get you registered. What is your full name?", referrerName)
}

func MsgAlreadyRegistered() string {
	return "✅ You are already registered. Use the menu below."
}

func MsgAskContact() string {
	return "📱 Share your phone number using the button below."
}

func MsgAskJUID() string {
	return "🎓 Enter your JU ID (for example RU1234/18)."
}

func MsgInvalidJUID() string {
	return "❌ That doesn't look like a valid JU ID. The format is two letters, four digits, a slash, and two digits, e.g. RU1234/18."
}

func MsgJUIDTaken() string {
	return "❌ This JU ID is already registered. If you believe this is a mistake, contact support."
}

func MsgInvalidName() string {
	return "❌ Please enter your real full name (at least 2 characters)."
}

func MsgAskStream() string {
	return "📖 Which stream are you enrolling in?"
}

func MsgRegistered(a *models.Account, fee int64, currency string) string {
	return fmt.Sprintf("🎉 Registration received, *%s*!\n\n"+
		"Stream: %s\nJU ID: `%s`\nYour referral code: `%s`\n\n"+
		"To activate your account, pay the registration fee of *%d %s* "+
		"and send a screenshot of the payment.",
		a.FullName, models.StreamLabel(a.Stream), a.JUID, a.ReferralCode, fee, currency)
}

func MsgPaymentInstructions(methods map[string]config.PaymentMethod, fee int64, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💳 Registration fee: *%d %s*\n\nPay with any of:\n\n", fee, currency)
	for name, m := range methods {
		if !m.Active {
			continue
		}
		fmt.Fprintf(&b, "*%s*\n%s\nAccount: `%s`\n", strings.ToUpper(name), m.AccountName, m.AccountNumber)
		if m.Instructions != "" {
			b.WriteString(m.Instructions + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("📸 After paying, send the screenshot here.")
	return b.String()
}

func MsgPaymentReceived(paymentID string) string {
	return fmt.Sprintf("✅ Screenshot received!\n\nPayment ID: `%s`\n"+
		"An admin will verify it shortly. You'll be notified.", paymentID)
}

func MsgPaymentPendingAlready() string {
	return "⏳ You already have a payment under review. Please wait for verification."
}

func MsgPaymentApproved() string {
	return "🎉 Your payment was verified! Your account is now *active*.\n\n" +
		"Share your referral link to start earning."
}

func MsgPaymentRejected(reason string) string {
	return fmt.Sprintf("❌ Your payment was rejected.\n\nReason: %s\n\n"+
		"You can send a new screenshot to try again.", reason)
}

func MsgBalance(a *models.Account, currency string) string {
	return fmt.Sprintf("💰 *Your balance*\n\n"+
		"Available: *%d %s*\nTotal earned: %d %s\nTotal withdrawn: %d %s\n\n"+
		"Referrals: %d paid / %d total",
		a.Balance, currency, a.TotalEarned, currency, a.TotalWithdrawn, currency,
		a.PaidReferrals, a.TotalReferrals)
}

func MsgReferrals(a *models.Account, botUsername string, commission int64, currency string, recentNames []string) string {
	link := fmt.Sprintf("https://t.me/%s?start=%s", botUsername, a.ReferralCode)
	var b strings.Builder
	fmt.Fprintf(&b, "🔗 *Your referral link*\n%s\n\n"+
		"Code: `%s`\n"+
		"Paid referrals: %d\nPending referrals: %d\n\n"+
		"You earn *%d %s* for every friend who registers and pays.",
		link, a.ReferralCode, a.PaidReferrals, a.UnpaidReferrals, commission, currency)
	if len(recentNames) > 0 {
		b.WriteString("\n\n✅ Recently earned from:\n")
		for _, name := range recentNames {
			fmt.Fprintf(&b, "• %s\n", name)
		}
	}
	return b.String()
}

func MsgLeaderboard(top []models.Account, requesterRank int) string {
	if len(top) == 0 {
		return "🏆 No referrals yet. Be the first!"
	}
	var b strings.Builder
	b.WriteString("🏆 *Top referrers*\n\n")
	medals := []string{"🥇", "🥈", "🥉"}
	for i, a := range top {
		tag := fmt.Sprintf("%d.", i+1)
		if i < len(medals) {
			tag = medals[i]
		}
		fmt.Fprintf(&b, "%s %s: %d paid referrals\n", tag, a.FullName, a.PaidReferrals)
	}
	if requesterRank > len(top) {
		fmt.Fprintf(&b, "\nYour position: #%d", requesterRank)
	}
	return b.String()
}

func MsgWithdrawStart(balance, min int64, currency string) string {
	return fmt.Sprintf("💸 *Withdrawal*\n\nAvailable balance: *%d %s*\n"+
		"Minimum withdrawal: %d %s\n\nHow should we send your money?",
		balance, currency, min, currency)
}

func MsgWithdrawNotEligible(need int) string {
	return fmt.Sprintf("🔒 Withdrawals unlock after *%d paid referrals*. "+
		"Keep sharing your link!", need)
}

func MsgWithdrawPendingAlready() string {
	return "⏳ You already have a withdrawal request under review."
}

func MsgWithdrawBelowMinimum(min int64, currency string) string {
	return fmt.Sprintf("❌ The minimum withdrawal is %d %s.", min, currency)
}

func MsgWithdrawExceedsBalance() string {
	return "❌ That amount exceeds your available balance."
}

func MsgAskMethod() string {
	return "🏦 How should we send your money?"
}

func MsgAskAmount() string {
	return "💵 How much would you like to withdraw?"
}

func MsgAskPhone(prefix string) string {
	return fmt.Sprintf("📱 Enter your telebirr phone number (format: %s9XXXXXXXX).", prefix)
}

func MsgInvalidPhone(prefix string) string {
	return fmt.Sprintf("❌ Invalid phone number. It must start with %s and have 12 digits total.", prefix)
}

func MsgAskAccountNumber() string {
	return "🏦 Enter your CBE account number."
}

func MsgAskAccountName() string {
	return "👤 Enter the account holder's name."
}

func MsgWithdrawSubmitted(w *models.Withdrawal, currency string) string {
	return fmt.Sprintf("✅ Withdrawal request submitted!\n\n"+
		"ID: `%s`\nAmount: *%d %s*\n\nAn admin will process it shortly.",
		w.WithdrawalID, w.Amount, currency)
}

func MsgWithdrawApproved(w *models.Withdrawal, currency string) string {
	return fmt.Sprintf("💸 Your withdrawal of *%d %s* was paid out!\n\nID: `%s`",
		w.Amount, currency, w.WithdrawalID)
}

func MsgWithdrawRejected(w *models.Withdrawal, reason string) string {
	return fmt.Sprintf("❌ Your withdrawal `%s` was rejected.\n\nReason: %s\n\n"+
		"Your balance was not charged.", w.WithdrawalID, reason)
}

func MsgBlocked(reason string) string {
	if reason == "" {
		return "🚫 Your account has been blocked. Contact support if you believe this is a mistake."
	}
	return fmt.Sprintf("🚫 Your account has been blocked.\n\nReason: %s", reason)
}

func MsgHelp(prog config.ProgramConfig) string {
	return fmt.Sprintf("ℹ️ *How it works*\n\n"+
		"1. Register and pay the %d %s fee.\n"+
		"2. Share your referral link.\n"+
		"3. Earn %d %s per friend who registers and pays.\n"+
		"4. After %d paid referrals, withdraw from %d %s via telebirr or CBE.\n\n"+
		"Commands:\n/start - main menu\n/cancel - abort the current action",
		prog.RegistrationFee, prog.Currency,
		prog.CommissionPerReferral, prog.Currency,
		prog.MinPaidReferrals, prog.MinWithdrawal, prog.Currency)
}

func MsgCancelled() string {
	return "🚫 Cancelled."
}

func MsgFeatureDisabled() string {
	return "⚠️ This feature is temporarily disabled."
}

func MsgUnknown() string {
	return "🤔 I didn't understand that. Use the menu below or /help."
}
