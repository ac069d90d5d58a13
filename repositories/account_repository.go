package repositories

import (
	"errors"
	"fmt"

	"permledger/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrInsufficientBalance is returned when the sender cannot cover a transfer.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrSelfTransfer is returned when sender and recipient are the same account.
	ErrSelfTransfer = errors.New("sender and recipient are the same")
)

// AccountRepository is the value-transfer mechanism used by the ledger.
type AccountRepository interface {
	// Balance returns the balance of a principal; unknown principals hold 0.
	Balance(principal models.Principal) (uint64, error)
	// Transfer moves amount from one account to another. Run it inside a
	// Store transaction to make it atomic with other writes.
	Transfer(amount uint64, from, to models.Principal) error
}

type accountRepository struct {
	db *gorm.DB
}

// Balance returns the balance of a principal
func (r *accountRepository) Balance(principal models.Principal) (uint64, error) {
	var account models.Account
	result := r.db.Where("principal = ?", principal).First(&account)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, result.Error
	}
	return account.Balance, nil
}

// Transfer debits the sender only if it can cover amount, then credits the
// recipient, creating its account when needed. A zero amount moves nothing.
func (r *accountRepository) Transfer(amount uint64, from, to models.Principal) error {
	if from == to {
		return ErrSelfTransfer
	}
	if amount == 0 {
		return nil
	}

	debit := r.db.Model(&models.Account{}).
		Where("principal = ? AND balance >= ?", from, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if debit.Error != nil {
		return fmt.Errorf("debit %s: %w", from, debit.Error)
	}
	if debit.RowsAffected == 0 {
		return ErrInsufficientBalance
	}

	credit := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "principal"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"balance": gorm.Expr("balance + ?", amount)}),
	}).Create(&models.Account{Principal: to, Balance: amount})
	if credit.Error != nil {
		return fmt.Errorf("credit %s: %w", to, credit.Error)
	}
	return nil
}
