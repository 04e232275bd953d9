package economy

import "time"

type Account struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username,omitempty"`
	DisplayName  string     `json:"display_name,omitempty"`
	Balance      int64      `json:"balance"`
	Price        int64      `json:"price"`
	OwnerID      *int64     `json:"owner_id,omitempty"`
	ReferralCode string     `json:"referral_code"`
	ReferredBy   *int64     `json:"referred_by,omitempty"`
	ShieldUntil  *time.Time `json:"shield_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Protected reports whether the account's shield is active at the given
// instant. Expiry is purely a wall-clock comparison; no cleanup job exists.
func (a Account) Protected(now time.Time) bool {
	return a.ShieldUntil != nil && now.Before(*a.ShieldUntil)
}

type RegisterInput struct {
	ID           int64
	Username     string
	DisplayName  string
	ReferralCode string
}

// Receipt describes a committed purchase.
type Receipt struct {
	BuyerID      int64  `json:"buyer_id"`
	TargetID     int64  `json:"target_id"`
	SellerID     *int64 `json:"seller_id,omitempty"`
	PricePaid    int64  `json:"price_paid"`
	NewPrice     int64  `json:"new_price"`
	BuyerBalance int64  `json:"buyer_balance"`
}

type HistoryEntry struct {
	OwnedID    int64     `json:"owned_id"`
	OldOwnerID *int64    `json:"old_owner_id,omitempty"`
	NewOwnerID *int64    `json:"new_owner_id,omitempty"`
	PricePaid  int64     `json:"price_paid"`
	CreatedAt  time.Time `json:"created_at"`
}

type LeaderboardRow struct {
	Rank      int64  `json:"rank"`
	AccountID int64  `json:"account_id"`
	Username  string `json:"username,omitempty"`
	Score     int64  `json:"score"`
}

type MarketStats struct {
	TotalAccounts     int64 `json:"total_accounts"`
	OwnedAccounts     int64 `json:"owned_accounts"`
	AveragePrice      int64 `json:"average_price"`
	MaxPrice          int64 `json:"max_price"`
	TransactionsToday int64 `json:"transactions_today"`
}

// OwnershipChange is emitted after a purchase or a self-buyout commits.
type OwnershipChange struct {
	EventID   string `json:"event_id"`
	BuyerID   int64  `json:"buyer_id"`
	SellerID  *int64 `json:"seller_id,omitempty"`
	TargetID  int64  `json:"target_id"`
	PricePaid int64  `json:"price_paid"`
	NewPrice  int64  `json:"new_price"`
}

// IncomeCredit is emitted once per owner per income tick.
type IncomeCredit struct {
	EventID   string `json:"event_id"`
	OwnerID   int64  `json:"owner_id"`
	Amount    int64  `json:"amount"`
	Prisoners int    `json:"prisoners"`
}

// TickReport summarizes one income sweep.
type TickReport struct {
	Owners   int   `json:"owners"`
	Failed   int   `json:"failed"`
	Credited int64 `json:"credited"`
}
