package economy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	mathrand "math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Service struct {
	db     *pgxpool.Pool
	log    *slog.Logger
	notify Notifier
	rules  Rules
	mu     sync.Mutex
	rand   *mathrand.Rand
}

func NewService(db *pgxpool.Pool, rules Rules, logger *slog.Logger, notifier Notifier) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = LogNotifier{Log: logger}
	}
	return &Service{
		db:     db,
		log:    logger,
		notify: notifier,
		rules:  rules.withDefaults(),
		rand:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.StartingBalance == 0 {
		r.StartingBalance = d.StartingBalance
	}
	if r.StartingPrice == 0 {
		r.StartingPrice = d.StartingPrice
	}
	if r.PriceFloor == 0 {
		r.PriceFloor = d.PriceFloor
	}
	if r.PriceGrowthFactor == 0 {
		r.PriceGrowthFactor = d.PriceGrowthFactor
	}
	if r.ShieldDuration == 0 {
		r.ShieldDuration = d.ShieldDuration
	}
	if r.ShieldCostRate == 0 {
		r.ShieldCostRate = d.ShieldCostRate
	}
	if r.IncomeMin == 0 && r.IncomeMax == 0 {
		r.IncomeMin = d.IncomeMin
		r.IncomeMax = d.IncomeMax
	}
	return r
}

// inTx runs fn inside a Serializable transaction, retrying a bounded number
// of times when the database reports a serialization failure or deadlock.
// Validation errors pass through untouched; exhausted retries surface as
// ErrTxConflict.
func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(tx); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		if attempt == maxAttempts-1 {
			return ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return ErrTxConflict
}

const accountColumns = `id, username, display_name, balance, price, owner_id,
	referral_code, referred_by, shield_until, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.DisplayName, &a.Balance, &a.Price,
		&a.OwnerID, &a.ReferralCode, &a.ReferredBy, &a.ShieldUntil,
		&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return a, ErrNotFound
	}
	return a, err
}

func getAccountTx(ctx context.Context, tx pgx.Tx, id int64, forUpdate bool) (Account, error) {
	q := `SELECT ` + accountColumns + ` FROM prison.accounts WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	return scanAccount(tx.QueryRow(ctx, q, id))
}

// Account returns the current state of a single account.
func (s *Service) Account(ctx context.Context, id int64) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM prison.accounts WHERE id = $1`, id))
}

// Prisoners lists the accounts currently owned by ownerID, newest first.
// Callers must not rely on any other ordering guarantee.
func (s *Service) Prisoners(ctx context.Context, ownerID int64) ([]Account, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+accountColumns+`
		FROM prison.accounts
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// History returns the ownership history of an account, oldest first.
// Referral grants appear with price_paid = 0; self-buyouts with a NULL
// new owner.
func (s *Service) History(ctx context.Context, id int64) ([]HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owned_id, old_owner_id, new_owner_id, price_paid, created_at
		FROM prison.ownership_history
		WHERE owned_id = $1
		ORDER BY created_at ASC, id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.OwnedID, &h.OldOwnerID, &h.NewOwnerID, &h.PricePaid, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

var errReferralCodeTaken = errors.New("referral code collision")

// Register creates an account with the configured starting balance and
// price and a freshly minted referral code. A valid referral code of
// another account makes that account the registrant's initial owner at
// zero cost; unknown or self-referential codes are ignored.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Account, error) {
	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		code, err := GenerateReferralCode()
		if err != nil {
			return Account{}, err
		}
		acct, err := s.registerOnce(ctx, in, code)
		if errors.Is(err, errReferralCodeTaken) {
			lastErr = err
			continue
		}
		return acct, err
	}
	return Account{}, lastErr
}

func (s *Service) registerOnce(ctx context.Context, in RegisterInput, code string) (Account, error) {
	var out Account
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO prison.accounts (id, username, display_name, balance, price, referral_code)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, in.ID, strings.TrimSpace(in.Username), strings.TrimSpace(in.DisplayName),
			s.rules.StartingBalance, s.rules.StartingPrice, code)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				if strings.Contains(pgErr.ConstraintName, "referral_code") {
					return errReferralCodeTaken
				}
				return ErrAlreadyExists
			}
			return err
		}

		if refCode := strings.TrimSpace(in.ReferralCode); refCode != "" {
			var referrerID int64
			err := tx.QueryRow(ctx,
				`SELECT id FROM prison.accounts WHERE referral_code = $1`, refCode,
			).Scan(&referrerID)
			switch {
			case errors.Is(err, pgx.ErrNoRows):
				// Unknown codes never fail registration.
			case err != nil:
				return err
			case referrerID != in.ID:
				if _, err := tx.Exec(ctx, `
					UPDATE prison.accounts
					SET owner_id = $1, referred_by = $1, updated_at = now()
					WHERE id = $2
				`, referrerID, in.ID); err != nil {
					return err
				}
				if _, err := tx.Exec(ctx, `
					INSERT INTO prison.ownership_history (tx_group_id, owned_id, old_owner_id, new_owner_id, price_paid)
					VALUES ($1, $2, NULL, $3, 0)
				`, uuid.NewString(), in.ID, referrerID); err != nil {
					return err
				}
			}
		}

		out, err = getAccountTx(ctx, tx, in.ID, false)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	return out, nil
}

// Transfer moves amount from one account to another. The configured fee
// rate is withheld from the credited side.
func (s *Service) Transfer(ctx context.Context, fromID, toID, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be > 0")
	}
	if fromID == toID {
		return ErrInvalidTarget
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		// Lock in id order so concurrent opposite transfers cannot deadlock.
		firstID, secondID := fromID, toID
		if secondID < firstID {
			firstID, secondID = secondID, firstID
		}
		first, err := getAccountTx(ctx, tx, firstID, true)
		if err != nil {
			return err
		}
		second, err := getAccountTx(ctx, tx, secondID, true)
		if err != nil {
			return err
		}
		from := first
		if from.ID != fromID {
			from = second
		}
		if from.Balance < amount {
			return ErrInsufficientFunds
		}

		fee := TransferFee(amount, s.rules.TransferFeeRate)
		txGroup := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			UPDATE prison.accounts SET balance = balance - $1, updated_at = now() WHERE id = $2
		`, amount, fromID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE prison.accounts SET balance = balance + $1, updated_at = now() WHERE id = $2
		`, amount-fee, toID); err != nil {
			return err
		}
		if err := appendLedger(ctx, tx, txGroup, fromID, -amount, "transfer", map[string]any{"to": toID}); err != nil {
			return err
		}
		if err := appendLedger(ctx, tx, txGroup, toID, amount-fee, "transfer", map[string]any{"from": fromID}); err != nil {
			return err
		}
		if fee > 0 {
			if err := appendLedger(ctx, tx, txGroup, fromID, 0, "fee", map[string]any{"withheld": fee}); err != nil {
				return err
			}
		}
		return nil
	})
}

// ActivateShield protects an account from forced ownership changes for the
// given duration (the configured default when zero). Activation costs a
// fraction of the account's own price and fails while a shield is active.
func (s *Service) ActivateShield(ctx context.Context, id int64, duration time.Duration) error {
	if duration <= 0 {
		duration = s.rules.ShieldDuration
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		acct, err := getAccountTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		now := time.Now()
		if acct.Protected(now) {
			return ErrAlreadyProtected
		}
		cost := ShieldCost(acct.Price, s.rules.ShieldCostRate)
		if acct.Balance < cost {
			return ErrInsufficientFunds
		}
		until := now.Add(duration)
		if _, err := tx.Exec(ctx, `
			UPDATE prison.accounts
			SET balance = balance - $1, shield_until = $2, updated_at = now()
			WHERE id = $3
		`, cost, until, id); err != nil {
			return err
		}
		if cost > 0 {
			return appendLedger(ctx, tx, uuid.NewString(), id, -cost, "shield", map[string]any{"until": until})
		}
		return nil
	})
}

// DeactivateShield clears the protection flag early. Administrative.
func (s *Service) DeactivateShield(ctx context.Context, id int64) error {
	cmd, err := s.db.Exec(ctx, `
		UPDATE prison.accounts SET shield_until = NULL, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// BuyFreedom lets an owned account pay its own price to clear its
// ownership edge. The former owner is not compensated; the coins leave
// the economy. Blocked while the account's own shield is active.
func (s *Service) BuyFreedom(ctx context.Context, id int64) error {
	var ev OwnershipChange
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		acct, err := getAccountTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if acct.OwnerID == nil {
			return ErrNotOwned
		}
		if acct.Protected(time.Now()) {
			return ErrTargetProtected
		}
		if acct.Balance < acct.Price {
			return ErrInsufficientFunds
		}
		txGroup := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			UPDATE prison.accounts
			SET balance = balance - $1, owner_id = NULL, updated_at = now()
			WHERE id = $2
		`, acct.Price, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO prison.ownership_history (tx_group_id, owned_id, old_owner_id, new_owner_id, price_paid)
			VALUES ($1, $2, $3, NULL, $4)
		`, txGroup, id, *acct.OwnerID, acct.Price); err != nil {
			return err
		}
		if err := appendLedger(ctx, tx, txGroup, id, -acct.Price, "freedom", nil); err != nil {
			return err
		}
		ev = OwnershipChange{
			EventID:   txGroup,
			BuyerID:   id,
			SellerID:  acct.OwnerID,
			TargetID:  id,
			PricePaid: acct.Price,
			NewPrice:  acct.Price,
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.notify.OwnershipChanged(ctx, ev)
	return nil
}

// EmpireValue sums the prices of all accounts owned by ownerID.
func (s *Service) EmpireValue(ctx context.Context, ownerID int64) (int64, error) {
	var total int64
	err := s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(price), 0) FROM prison.accounts WHERE owner_id = $1
	`, ownerID).Scan(&total)
	return total, err
}

// Leaderboard ranks accounts by empire value ("value", the default),
// balance, or owned-prisoner count.
func (s *Service) Leaderboard(ctx context.Context, category string, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	var query string
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "balance":
		query = `
			SELECT id, username, balance AS score
			FROM prison.accounts
			ORDER BY score DESC, id ASC
			LIMIT $1`
	case "prisoners":
		query = `
			SELECT a.id, a.username, COUNT(p.id) AS score
			FROM prison.accounts a
			LEFT JOIN prison.accounts p ON p.owner_id = a.id
			GROUP BY a.id
			ORDER BY score DESC, a.id ASC
			LIMIT $1`
	default:
		query = `
			SELECT a.id, a.username, COALESCE(SUM(p.price), 0) AS score
			FROM prison.accounts a
			LEFT JOIN prison.accounts p ON p.owner_id = a.id
			GROUP BY a.id
			ORDER BY score DESC, a.id ASC
			LIMIT $1`
	}
	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardRow
	var rank int64 = 1
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.AccountID, &r.Username, &r.Score); err != nil {
			return nil, err
		}
		r.Rank = rank
		rank++
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats reports aggregate market numbers for operators.
func (s *Service) Stats(ctx context.Context) (MarketStats, error) {
	var out MarketStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(owner_id),
		       COALESCE(CAST(AVG(price) AS BIGINT), 0),
		       COALESCE(MAX(price), 0)
		FROM prison.accounts
	`).Scan(&out.TotalAccounts, &out.OwnedAccounts, &out.AveragePrice, &out.MaxPrice)
	if err != nil {
		return out, err
	}
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT tx_group_id)
		FROM prison.ledger_entries
		WHERE created_at >= date_trunc('day', now())
	`).Scan(&out.TransactionsToday)
	return out, err
}

// AdminAddCoins adjusts a balance outside the normal game rules. Negative
// amounts are allowed but may not drive the balance below zero.
func (s *Service) AdminAddCoins(ctx context.Context, id, amount int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		acct, err := getAccountTx(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if acct.Balance+amount < 0 {
			return ErrInsufficientFunds
		}
		if _, err := tx.Exec(ctx, `
			UPDATE prison.accounts SET balance = balance + $1, updated_at = now() WHERE id = $2
		`, amount, id); err != nil {
			return err
		}
		return appendLedger(ctx, tx, uuid.NewString(), id, amount, "admin_adjust", nil)
	})
}

// AdminSetPrice overrides an account's price. The floor still applies.
func (s *Service) AdminSetPrice(ctx context.Context, id, price int64) error {
	if price < s.rules.PriceFloor {
		return fmt.Errorf("price must be >= %d", s.rules.PriceFloor)
	}
	cmd, err := s.db.Exec(ctx, `
		UPDATE prison.accounts SET price = $1, updated_at = now() WHERE id = $2
	`, price, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func appendLedger(ctx context.Context, tx pgx.Tx, txGroup string, accountID, delta int64, kind string, extra map[string]any) error {
	meta := map[string]any{"kind": kind}
	for k, v := range extra {
		meta[k] = v
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO prison.ledger_entries (tx_group_id, account_id, delta, kind, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
	`, txGroup, accountID, delta, kind, string(raw))
	return err
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
