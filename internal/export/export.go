// Package export renders admin CSV exports. The column layout is a
// compatibility contract with existing spreadsheets; do not reorder.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/jutclasses/enrollbot/internal/models"
)

var studentHeader = []string{
	"Telegram ID", "Full Name", "Username", "Contact", "JU ID",
	"Stream", "Status", "Balance", "Paid Referrals", "Total Referrals",
	"Registration Date",
}

// Students renders the account list as CSV.
func Students(accounts []models.Account) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(studentHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, a := range accounts {
		rec := []string{
			strconv.FormatInt(a.TelegramID, 10),
			a.FullName,
			a.Username,
			a.ContactNumber,
			a.JUID,
			string(a.Stream),
			string(a.Status),
			strconv.FormatInt(a.Balance, 10),
			strconv.Itoa(a.PaidReferrals),
			strconv.Itoa(a.TotalReferrals),
			a.RegistrationDate.Format(time.RFC3339),
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

var paymentHeader = []string{
	"Payment ID", "User ID", "Amount", "Status", "Submitted At",
	"Verified By", "Rejection Reason",
}

// Payments renders the registration-fee submissions as CSV.
func Payments(list []models.Payment) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(paymentHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, p := range list {
		rec := []string{
			p.PaymentID,
			strconv.FormatInt(p.UserID, 10),
			strconv.FormatInt(p.Amount, 10),
			string(p.Status),
			p.SubmittedAt.Format(time.RFC3339),
			p.VerifiedBy,
			p.RejectionReason,
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}

var withdrawalHeader = []string{
	"Withdrawal ID", "User ID", "Amount", "Method", "Phone",
	"Account Number", "Account Name", "Status", "Requested At",
	"Processed By",
}

// Withdrawals renders the payout list as CSV.
func Withdrawals(list []models.Withdrawal) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(withdrawalHeader); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, wd := range list {
		rec := []string{
			wd.WithdrawalID,
			strconv.FormatInt(wd.UserID, 10),
			strconv.FormatInt(wd.Amount, 10),
			string(wd.PaymentMethod),
			wd.Phone,
			wd.AccountNumber,
			wd.AccountName,
			string(wd.Status),
			wd.RequestedAt.Format(time.RFC3339),
			wd.ProcessedBy,
		}
		if err := w.Write(rec); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush: %w", err)
	}
	return buf.Bytes(), nil
}
