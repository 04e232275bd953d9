package economy

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Purchase transfers ownership of target to buyer at the target's current
// price. The previous owner, if any, is credited the price minus the
// configured fee; a first capture pays the system. On success the target's
// price is bumped by the growth factor and an OwnershipChange is emitted.
//
// Validation order is part of the contract: self-purchase, missing rows,
// active shield, funds, repeat purchase, then the two-node ownership cycle.
func (s *Service) Purchase(ctx context.Context, buyerID, targetID int64) (Receipt, error) {
	if buyerID == targetID {
		return Receipt{}, ErrInvalidTarget
	}
	var (
		out Receipt
		ev  OwnershipChange
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		target, err := getAccountTx(ctx, tx, targetID, true)
		if err != nil {
			return err
		}
		buyer, err := getAccountTx(ctx, tx, buyerID, true)
		if err != nil {
			return err
		}
		if err := validatePurchase(buyer, target, time.Now()); err != nil {
			return err
		}

		price := target.Price
		newPrice := NextPrice(price, s.rules.PriceGrowthFactor)
		fee := TransferFee(price, s.rules.TransferFeeRate)
		txGroup := uuid.NewString()

		if _, err := tx.Exec(ctx, `
			UPDATE prison.accounts SET balance = balance - $1, updated_at = now() WHERE id = $2
		`, price, buyerID); err != nil {
			return err
		}
		if target.OwnerID != nil {
			if _, err := tx.Exec(ctx, `
				UPDATE prison.accounts SET balance = balance + $1, updated_at = now() WHERE id = $2
			`, price-fee, *target.OwnerID); err != nil {
				return err
			}
			if err := appendLedger(ctx, tx, txGroup, *target.OwnerID, price-fee, "sale",
				map[string]any{"prisoner": targetID}); err != nil {
				return err
			}
			if fee > 0 {
				if err := appendLedger(ctx, tx, txGroup, *target.OwnerID, 0, "fee",
					map[string]any{"withheld": fee}); err != nil {
					return err
				}
			}
		}
		if _, err := tx.Exec(ctx, `
			UPDATE prison.accounts SET owner_id = $1, price = $2, updated_at = now() WHERE id = $3
		`, buyerID, newPrice, targetID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO prison.ownership_history (tx_group_id, owned_id, old_owner_id, new_owner_id, price_paid)
			VALUES ($1, $2, $3, $4, $5)
		`, txGroup, targetID, target.OwnerID, buyerID, price); err != nil {
			return err
		}
		if err := appendLedger(ctx, tx, txGroup, buyerID, -price, "purchase",
			map[string]any{"prisoner": targetID}); err != nil {
			return err
		}

		out = Receipt{
			BuyerID:      buyerID,
			TargetID:     targetID,
			SellerID:     target.OwnerID,
			PricePaid:    price,
			NewPrice:     newPrice,
			BuyerBalance: buyer.Balance - price,
		}
		ev = OwnershipChange{
			EventID:   txGroup,
			BuyerID:   buyerID,
			SellerID:  target.OwnerID,
			TargetID:  targetID,
			PricePaid: price,
			NewPrice:  newPrice,
		}
		return nil
	})
	if err != nil {
		return Receipt{}, err
	}
	s.notify.OwnershipChanged(ctx, ev)
	return out, nil
}
