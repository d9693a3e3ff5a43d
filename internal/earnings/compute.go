package earnings

import (
	"github.com/shopspring/decimal"

	"github.com/dukerupert/tallyup/internal/model"
)

// Compute sums the logs whose timestamp falls in w. Approved logs count as
// verified and pending logs as pending; any other status contributes
// nothing. Each log is valued at its snapshotted rate, or at rates for its
// activity when it carries none. Logs with no rate either way are skipped.
func Compute(logs []model.LogEntry, rates map[string]decimal.Decimal, w Window) model.Earnings {
	e := model.Earnings{Pending: decimal.Zero, Verified: decimal.Zero}
	for _, l := range logs {
		if !w.Contains(l.Timestamp) {
			continue
		}
		amount, ok := amountOf(l, rates)
		if !ok {
			continue
		}
		switch l.VerificationStatus {
		case model.StatusApproved:
			e.Verified = e.Verified.Add(amount)
		case model.StatusPending:
			e.Pending = e.Pending.Add(amount)
		}
	}
	return e
}

func amountOf(l model.LogEntry, rates map[string]decimal.Decimal) (decimal.Decimal, bool) {
	if l.HasRate() {
		return l.Amount(), true
	}
	rate, ok := rates[l.ActivityID]
	if !ok {
		return decimal.Zero, false
	}
	return rate.Mul(decimal.NewFromInt(int64(l.Units))), true
}

func needsRates(logs []model.LogEntry) bool {
	for _, l := range logs {
		if !l.HasRate() {
			return true
		}
	}
	return false
}
