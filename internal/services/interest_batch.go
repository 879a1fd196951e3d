package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bankledger/internal/models"
	"bankledger/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type InterestBatchRequest struct {
	AccountTypeCode   string
	AnnualRatePercent decimal.Decimal
	Actor             string
}

type InterestBatchResult struct {
	BatchID          string `json:"batch_id"`
	AccountsCredited int    `json:"accounts_credited"`
	AccountsSkipped  int    `json:"accounts_skipped"`
	TotalPosted      int64  `json:"total_posted"`
}

// PostInterestBatch credits monthly interest to every ACTIVE account of
// the given type holding a positive balance, as one atomic batch.
//
// The batch runs in two phases over a cohort locked in ascending id
// order: phase one appends all INTEREST records from the snapshot
// balances, phase two applies the balance deltas. Interest is therefore
// always computed against the balance as of batch start, never against a
// balance already credited earlier in the same batch. Accounts already
// credited interest today are skipped, so re-running a batch for the same
// day cannot double-post.
func (s *LedgerService) PostInterestBatch(ctx context.Context, req InterestBatchRequest) (InterestBatchResult, error) {
	if !req.AnnualRatePercent.IsPositive() {
		return InterestBatchResult{}, ErrInvalidAmount
	}
	accountType, err := s.lookup.ResolveAccountType(ctx, req.AccountTypeCode)
	if err != nil {
		return InterestBatchResult{}, mapNoRows(err)
	}
	rate := monthlyRate(req.AnnualRatePercent)
	day := time.Now().UTC()
	reference := fmt.Sprintf("interest %s", day.Format("2006-01-02"))

	type credit struct {
		account  models.Account
		interest int64
	}
	result := InterestBatchResult{BatchID: uuid.NewString()}
	var credits []credit
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		credits = credits[:0]
		result.AccountsCredited = 0
		result.AccountsSkipped = 0
		result.TotalPosted = 0

		cohort, err := s.accounts.CohortForUpdate(ctx, tx, accountType.ID)
		if err != nil {
			return err
		}
		for _, account := range cohort {
			posted, err := s.ledger.SumByTypeOn(ctx, tx, account.ID, models.TxInterest, day)
			if err != nil {
				return err
			}
			if posted > 0 {
				result.AccountsSkipped++
				continue
			}
			interest := decimal.NewFromInt(account.Balance).Mul(rate).Round(0).IntPart()
			if interest <= 0 {
				result.AccountsSkipped++
				continue
			}
			if err := s.ledger.Append(ctx, tx, store.LedgerRecordInput{
				ID:        uuid.NewString(),
				AccountID: account.ID,
				Type:      models.TxInterest,
				Amount:    interest,
				Reference: &reference,
				Actor:     req.Actor,
			}); err != nil {
				return err
			}
			credits = append(credits, credit{account: account, interest: interest})
		}
		for _, c := range credits {
			if err := s.applyDelta(ctx, tx, c.account.ID, c.interest); err != nil {
				return err
			}
			result.AccountsCredited++
			result.TotalPosted += c.interest
		}
		detail, _ := json.Marshal(map[string]any{
			"account_type":        accountType.Code,
			"annual_rate_percent": req.AnnualRatePercent.String(),
			"accounts_credited":   result.AccountsCredited,
			"accounts_skipped":    result.AccountsSkipped,
			"total_posted":        result.TotalPosted,
		})
		return s.audit.Log(ctx, tx, req.Actor, "interest.post", "batch", result.BatchID, string(detail))
	})
	if err != nil {
		return InterestBatchResult{}, err
	}
	for _, c := range credits {
		s.notifyBalance(posting{
			TxnID:        result.BatchID,
			AccountID:    c.account.ID,
			CustomerID:   c.account.CustomerID,
			BalanceAfter: c.account.Balance + c.interest,
		})
	}
	return result, nil
}
