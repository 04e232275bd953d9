package economy

import (
	"crypto/rand"
	"errors"
	"math"
	mathrand "math/rand"
	"time"
)

// Tunable rules for the prison economy. Zero values are replaced by these
// defaults in NewService so tests can build a Rules with only the fields
// they care about.
type Rules struct {
	StartingBalance   int64
	StartingPrice     int64
	PriceFloor        int64
	PriceGrowthFactor float64
	TransferFeeRate   float64
	ShieldDuration    time.Duration
	ShieldCostRate    float64
	IncomeMin         int64
	IncomeMax         int64
}

func DefaultRules() Rules {
	return Rules{
		StartingBalance:   300,
		StartingPrice:     100,
		PriceFloor:        50,
		PriceGrowthFactor: 1.3,
		TransferFeeRate:   0,
		ShieldDuration:    24 * time.Hour,
		ShieldCostRate:    0.35,
		IncomeMin:         1,
		IncomeMax:         3,
	}
}

var (
	ErrNotFound          = errors.New("account not found")
	ErrAlreadyExists     = errors.New("account already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidTarget     = errors.New("cannot target yourself")
	ErrAlreadyOwned      = errors.New("prisoner already owned by buyer")
	ErrInvalidOwnership  = errors.New("ownership change would create a cycle")
	ErrNotOwned          = errors.New("account is not owned by anyone")
	ErrTargetProtected   = errors.New("prisoner is protected by a shield")
	ErrAlreadyProtected  = errors.New("shield is already active")
	ErrTxConflict        = errors.New("transaction conflict, retry")
)

// NextPrice returns the price after a successful sale. Strictly greater
// than the current price for any valid input.
func NextPrice(price int64, factor float64) int64 {
	next := int64(math.Floor(float64(price) * factor))
	if next <= price {
		next = price + 1
	}
	return next
}

// ShieldCost is the activation fee, a fraction of the account's own price.
func ShieldCost(price int64, rate float64) int64 {
	return int64(math.Round(float64(price) * rate))
}

// TransferFee is withheld from the amount credited to the receiving side.
func TransferFee(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate))
}

// rollIncome draws one integer in [min,max] per prisoner and sums them.
func rollIncome(r *mathrand.Rand, prisoners int, min, max int64) int64 {
	if prisoners <= 0 || max < min {
		return 0
	}
	var total int64
	span := max - min + 1
	for i := 0; i < prisoners; i++ {
		total += min + r.Int63n(span)
	}
	return total
}

const referralAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const referralCodeLen = 8

// GenerateReferralCode mints a random code over an unambiguous alphabet.
// Uniqueness is enforced by the store; callers retry on collision.
func GenerateReferralCode() (string, error) {
	buf := make([]byte, referralCodeLen)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i := range buf {
		buf[i] = referralAlphabet[int(buf[i])%len(referralAlphabet)]
	}
	return string(buf), nil
}

// validatePurchase applies the purchase rules against a consistent snapshot
// of both rows. Order matters: the first failing rule wins.
func validatePurchase(buyer, target Account, now time.Time) error {
	if buyer.ID == target.ID {
		return ErrInvalidTarget
	}
	if target.Protected(now) {
		return ErrTargetProtected
	}
	if buyer.Balance < target.Price {
		return ErrInsufficientFunds
	}
	if target.OwnerID != nil && *target.OwnerID == buyer.ID {
		return ErrAlreadyOwned
	}
	if buyer.OwnerID != nil && *buyer.OwnerID == target.ID {
		return ErrInvalidOwnership
	}
	return nil
}
