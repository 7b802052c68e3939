package export

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jutclasses/enrollbot/internal/models"
)

func TestStudentsCSVLayout(t *testing.T) {
	reg := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	data, err := Students([]models.Account{{
		TelegramID:       123456,
		FullName:         "Jane Doe",
		Username:         "janedoe",
		ContactNumber:    "251911000000",
		JUID:             "RU1234/18",
		Stream:           models.StreamNatural,
		Status:           models.AccountActive,
		Balance:          90,
		PaidReferrals:    3,
		TotalReferrals:   5,
		RegistrationDate: reg,
	}})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{
		"Telegram ID", "Full Name", "Username", "Contact", "JU ID",
		"Stream", "Status", "Balance", "Paid Referrals", "Total Referrals",
		"Registration Date",
	}, rows[0])
	require.Equal(t, []string{
		"123456", "Jane Doe", "janedoe", "251911000000", "RU1234/18",
		"natural", "active", "90", "3", "5", "2026-01-15T10:00:00Z",
	}, rows[1])
}

func TestStudentsCSVQuotesCommas(t *testing.T) {
	data, err := Students([]models.Account{{
		TelegramID: 1, FullName: "Doe, Jane", JUID: "RU1234/18",
	}})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Equal(t, "Doe, Jane", rows[1][1])
}

func TestPaymentsCSV(t *testing.T) {
	sub := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	data, err := Payments([]models.Payment{{
		PaymentID:       "PAY_1_1700000000000",
		UserID:          1,
		Amount:          500,
		Status:          models.StatusRejected,
		SubmittedAt:     sub,
		VerifiedBy:      "admin",
		RejectionReason: "blurry screenshot",
	}})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, []string{
		"Payment ID", "User ID", "Amount", "Status", "Submitted At",
		"Verified By", "Rejection Reason",
	}, rows[0])
	require.Equal(t, "PAY_1_1700000000000", rows[1][0])
	require.Equal(t, "500", rows[1][2])
	require.Equal(t, "rejected", rows[1][3])
	require.Equal(t, "blurry screenshot", rows[1][6])
}

func TestWithdrawalsCSV(t *testing.T) {
	req := time.Date(2026, 2, 1, 9, 30, 0, 0, time.UTC)
	data, err := Withdrawals([]models.Withdrawal{{
		WithdrawalID:  "WD_1_1700000000000",
		UserID:        1,
		Amount:        50,
		PaymentMethod: models.MethodTelebirr,
		Phone:         "251912345678",
		Status:        models.StatusApproved,
		RequestedAt:   req,
		ProcessedBy:   "admin",
	}})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "WD_1_1700000000000", rows[1][0])
	require.Equal(t, "telebirr", rows[1][3])
	require.Equal(t, "approved", rows[1][7])
}
