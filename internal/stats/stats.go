// Package stats assembles the admin analytics view.
package stats

import (
	"context"
	"fmt"
	"strings"

	"github.com/jutclasses/enrollbot/internal/models"
	"github.com/jutclasses/enrollbot/internal/store"
)

// Snapshot is the analytics payload shown to admins.
type Snapshot struct {
	Totals       store.Totals
	TopReferrers []models.Account
}

// Service reads aggregates from the store.
type Service struct {
	st store.Store
}

func NewService(st store.Store) *Service {
	return &Service{st: st}
}

// Snapshot collects current totals and the referral leaderboard.
func (s *Service) Snapshot(ctx context.Context, topN int) (*Snapshot, error) {
	totals, err := s.st.Totals(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats snapshot: %w", err)
	}
	top, err := s.st.TopReferrers(ctx, topN)
	if err != nil {
		return nil, fmt.Errorf("stats snapshot: %w", err)
	}
	return &Snapshot{Totals: *totals, TopReferrers: top}, nil
}

// Render formats the snapshot for a chat message.
func Render(s *Snapshot, currency string) string {
	t := s.Totals
	var b strings.Builder
	b.WriteString("📊 Program Analytics\n\n")
	fmt.Fprintf(&b, "👥 Students: %d (✅ %d active, ⏳ %d pending, 🚫 %d blocked)\n",
		t.Students, t.ActiveStudents, t.PendingStudents, t.BlockedStudents)
	fmt.Fprintf(&b, "🔬 Natural: %d | 📚 Social: %d\n", t.NaturalStream, t.SocialStream)
	fmt.Fprintf(&b, "💳 Pending payments: %d\n", t.PendingPayments)
	fmt.Fprintf(&b, "💸 Pending withdrawals: %d\n", t.PendingPayouts)
	fmt.Fprintf(&b, "💰 Earned: %d %s | Paid out: %d %s\n",
		t.TotalEarned, currency, t.TotalWithdrawn, currency)
	fmt.Fprintf(&b, "🔗 Referrals: %d\n", t.TotalReferrals)

	if len(s.TopReferrers) > 0 {
		b.WriteString("\n🏆 Top referrers:\n")
		for i, a := range s.TopReferrers {
			fmt.Fprintf(&b, "%d. %s - %d paid\n", i+1, a.FullName, a.PaidReferrals)
		}
	}
	return b.String()
}
