package posting

//go:generate mockgen -source=ledger.go -destination=mocks/mock_ledger.go -package=mocks

import (
	"context"
	"errors"
)

var ErrVoucherNotFound = errors.New("voucher not found")

// Ledger is the external accounting system vouchers are posted to.
type Ledger interface {
	// CreateVoucher stores a balanced voucher and returns its identifier.
	CreateVoucher(ctx context.Context, v Voucher) (*VoucherRef, error)
	// CancelVoucher cancels a previously created voucher.
	CancelVoucher(ctx context.Context, ref VoucherRef) error
}
