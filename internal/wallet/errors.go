package wallet

import "errors"

var (
	ErrInsufficientFunds = errors.New("wallet: insufficient funds")
	ErrInvalidAddress    = errors.New("wallet: invalid address")
	ErrInvalidPrivateKey = errors.New("wallet: invalid private key")
	ErrInvalidPublicKey  = errors.New("wallet: invalid public key")
	ErrUnknownAccount    = errors.New("wallet: unknown account")
	ErrNoSelectedAccount = errors.New("wallet: no account selected")
)
