package economy

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RunIncomeTick credits every owner with random income per prisoner held.
// Each owner is its own transaction; one failure is logged and counted
// without stopping the sweep.
func (s *Service) RunIncomeTick(ctx context.Context) (TickReport, error) {
	var report TickReport

	rows, err := s.db.Query(ctx, `
		SELECT owner_id, COUNT(*)
		FROM prison.accounts
		WHERE owner_id IS NOT NULL
		GROUP BY owner_id
		ORDER BY owner_id
	`)
	if err != nil {
		return report, err
	}
	type ownerCount struct {
		ownerID int64
		count   int
	}
	var owners []ownerCount
	for rows.Next() {
		var oc ownerCount
		if err := rows.Scan(&oc.ownerID, &oc.count); err != nil {
			rows.Close()
			return report, err
		}
		owners = append(owners, oc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	for _, oc := range owners {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		amount, err := s.creditOwner(ctx, oc.ownerID, oc.count)
		if err != nil {
			report.Failed++
			s.log.ErrorContext(ctx, "income credit failed",
				"owner_id", oc.ownerID, "error", err)
			continue
		}
		report.Owners++
		report.Credited += amount
	}
	return report, nil
}

func (s *Service) creditOwner(ctx context.Context, ownerID int64, prisoners int) (int64, error) {
	s.mu.Lock()
	amount := rollIncome(s.rand, prisoners, s.rules.IncomeMin, s.rules.IncomeMax)
	s.mu.Unlock()
	if amount <= 0 {
		return 0, nil
	}

	txGroup := uuid.NewString()
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		cmd, err := tx.Exec(ctx, `
			UPDATE prison.accounts SET balance = balance + $1, updated_at = now() WHERE id = $2
		`, amount, ownerID)
		if err != nil {
			return err
		}
		if cmd.RowsAffected() == 0 {
			return ErrNotFound
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO prison.income_log (owner_id, amount, prisoner_count)
			VALUES ($1, $2, $3)
		`, ownerID, amount, prisoners); err != nil {
			return err
		}
		return appendLedger(ctx, tx, txGroup, ownerID, amount, "income",
			map[string]any{"prisoners": prisoners})
	})
	if err != nil {
		return 0, err
	}
	s.notify.IncomeCredited(ctx, IncomeCredit{
		EventID:   txGroup,
		OwnerID:   ownerID,
		Amount:    amount,
		Prisoners: prisoners,
	})
	return amount, nil
}
