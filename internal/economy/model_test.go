package economy

import (
	"errors"
	mathrand "math/rand"
	"strings"
	"testing"
	"time"
)

func TestNextPrice(t *testing.T) {
	tests := []struct {
		price  int64
		factor float64
		want   int64
	}{
		{price: 100, factor: 1.3, want: 130},
		{price: 130, factor: 1.3, want: 169},
		{price: 1, factor: 1.3, want: 2},
		{price: 10, factor: 1.05, want: 11},
		// Degenerate factors still move the price up.
		{price: 100, factor: 1.0, want: 101},
		{price: 100, factor: 0.5, want: 101},
	}
	for _, tc := range tests {
		got := NextPrice(tc.price, tc.factor)
		if got != tc.want {
			t.Fatalf("NextPrice(%d, %v) = %d, want %d", tc.price, tc.factor, got, tc.want)
		}
		if got <= tc.price {
			t.Fatalf("NextPrice(%d, %v) = %d is not strictly greater", tc.price, tc.factor, got)
		}
	}
}

func TestShieldCost(t *testing.T) {
	if got := ShieldCost(100, 0.35); got != 35 {
		t.Fatalf("ShieldCost(100, 0.35) = %d, want 35", got)
	}
	if got := ShieldCost(130, 0.35); got != 46 {
		t.Fatalf("ShieldCost(130, 0.35) = %d, want 46", got)
	}
	if got := ShieldCost(100, 0); got != 0 {
		t.Fatalf("ShieldCost(100, 0) = %d, want 0", got)
	}
}

func TestTransferFee(t *testing.T) {
	if got := TransferFee(200, 0); got != 0 {
		t.Fatalf("TransferFee(200, 0) = %d, want 0", got)
	}
	if got := TransferFee(200, 0.05); got != 10 {
		t.Fatalf("TransferFee(200, 0.05) = %d, want 10", got)
	}
}

func TestRollIncomeBounds(t *testing.T) {
	r := mathrand.New(mathrand.NewSource(1))
	for i := 0; i < 200; i++ {
		got := rollIncome(r, 3, 1, 3)
		if got < 3 || got > 9 {
			t.Fatalf("rollIncome out of bounds: %d", got)
		}
	}
	if got := rollIncome(r, 0, 1, 3); got != 0 {
		t.Fatalf("rollIncome with zero prisoners = %d, want 0", got)
	}
	if got := rollIncome(r, 5, 2, 2); got != 10 {
		t.Fatalf("rollIncome with min=max = %d, want 10", got)
	}
	if got := rollIncome(r, 3, 3, 1); got != 0 {
		t.Fatalf("rollIncome with inverted range = %d, want 0", got)
	}
}

func TestGenerateReferralCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateReferralCode()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(code) != referralCodeLen {
			t.Fatalf("code %q has length %d, want %d", code, len(code), referralCodeLen)
		}
		for _, c := range code {
			if !strings.ContainsRune(referralAlphabet, c) {
				t.Fatalf("code %q contains %q outside the alphabet", code, c)
			}
		}
		seen[code] = true
	}
	if len(seen) < 45 {
		t.Fatalf("suspiciously many collisions: %d unique of 50", len(seen))
	}
}

func TestValidatePurchaseOrder(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Hour)
	id := func(v int64) *int64 { return &v }

	tests := []struct {
		name   string
		buyer  Account
		target Account
		want   error
	}{
		{
			name:   "self purchase wins over everything",
			buyer:  Account{ID: 1, Balance: 0},
			target: Account{ID: 1, Price: 100, ShieldUntil: &future},
			want:   ErrInvalidTarget,
		},
		{
			name:   "shield checked before funds",
			buyer:  Account{ID: 1, Balance: 0},
			target: Account{ID: 2, Price: 100, ShieldUntil: &future},
			want:   ErrTargetProtected,
		},
		{
			name:   "funds checked before repeat purchase",
			buyer:  Account{ID: 1, Balance: 50},
			target: Account{ID: 2, Price: 100, OwnerID: id(1)},
			want:   ErrInsufficientFunds,
		},
		{
			name:   "repeat purchase",
			buyer:  Account{ID: 1, Balance: 500},
			target: Account{ID: 2, Price: 100, OwnerID: id(1)},
			want:   ErrAlreadyOwned,
		},
		{
			name:   "two node cycle",
			buyer:  Account{ID: 1, Balance: 500, OwnerID: id(2)},
			target: Account{ID: 2, Price: 100, OwnerID: id(3)},
			want:   ErrInvalidOwnership,
		},
		{
			name:   "expired shield does not protect",
			buyer:  Account{ID: 1, Balance: 500},
			target: Account{ID: 2, Price: 100, ShieldUntil: &now},
			want:   nil,
		},
		{
			name:   "owned buyer may purchase third parties",
			buyer:  Account{ID: 1, Balance: 500, OwnerID: id(3)},
			target: Account{ID: 2, Price: 100, OwnerID: id(4)},
			want:   nil,
		},
		{
			name:   "clean purchase of a free account",
			buyer:  Account{ID: 1, Balance: 100},
			target: Account{ID: 2, Price: 100},
			want:   nil,
		},
	}
	for _, tc := range tests {
		err := validatePurchase(tc.buyer, tc.target, now)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestAccountProtected(t *testing.T) {
	now := time.Now()
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	if (Account{}).Protected(now) {
		t.Fatal("account without shield reported protected")
	}
	if !(Account{ShieldUntil: &future}).Protected(now) {
		t.Fatal("active shield not reported")
	}
	if (Account{ShieldUntil: &past}).Protected(now) {
		t.Fatal("expired shield reported protected")
	}
	if (Account{ShieldUntil: &now}).Protected(now) {
		t.Fatal("shield expiring exactly now should not protect")
	}
}

func TestRulesWithDefaults(t *testing.T) {
	got := (Rules{}).withDefaults()
	if got != DefaultRules() {
		t.Fatalf("zero rules did not fill defaults: %+v", got)
	}

	custom := Rules{StartingBalance: 1000}.withDefaults()
	if custom.StartingBalance != 1000 {
		t.Fatalf("explicit balance overwritten: %d", custom.StartingBalance)
	}
	if custom.StartingPrice != 100 || custom.PriceGrowthFactor != 1.3 {
		t.Fatalf("unset fields not defaulted: %+v", custom)
	}
}
