package domain

import "errors"

var (
	ErrZeroReserve           = errors.New("zero reserve on denominator leg")
	ErrZeroPrice             = errors.New("zero reference price")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrTradeReverted         = errors.New("settlement transaction reverted")
	ErrGuardBusy             = errors.New("execution guard busy")
	ErrSubscribe             = errors.New("swap subscription refused")
)
