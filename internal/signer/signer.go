// Package signer is the slasher's wallet and gas-filling collaborator. It is
// intentionally thin: constructing a signer from a raw private key and
// carrying a retry-aware gas filler is standard, well-trodden ground that
// the submitter treats as an external dependency.
package signer

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// gasScale is the fixed-point denominator used when converting a
// fractional multiplier into integer parts per million for uint256
// arithmetic.
const gasScale = 1_000_000

// GasFiller bumps gas fee parameters on each retry attempt: a base bump
// applied immediately, a per-retry tip bump, and a multiplier ceiling so
// repeated retries cannot run away.
type GasFiller struct {
	baseBumpPercent float64
	tipBumpPercent  float64
	maxMultiplier   float64
}

// NewDynamicGasFiller builds a GasFiller. (0.2, 0.05, 2.0) bumps the base
// fee 20% up front, 5% more per retry, and never exceeds 2x the estimate.
func NewDynamicGasFiller(baseBumpPercent, tipBumpPercent, maxMultiplier float64) *GasFiller {
	return &GasFiller{baseBumpPercent: baseBumpPercent, tipBumpPercent: tipBumpPercent, maxMultiplier: maxMultiplier}
}

// Apply scales a suggested gas fee cap for the given retry attempt (0 for
// the first try), capped at maxMultiplier times the original estimate.
// The bump is computed in uint256 fixed-point rather than big.Float so the
// scaling matches the integer arithmetic the rest of the stack does on
// wei amounts.
func (g *GasFiller) Apply(estimate *big.Int, attempt int) *big.Int {
	if estimate == nil || estimate.Sign() == 0 {
		return estimate
	}
	multiplier := 1 + g.baseBumpPercent + float64(attempt)*g.tipBumpPercent
	if multiplier > g.maxMultiplier {
		multiplier = g.maxMultiplier
	}
	base, overflow := uint256.FromBig(estimate)
	if overflow {
		return estimate
	}
	bp := uint256.NewInt(uint64(multiplier * gasScale))
	scaled := new(uint256.Int).Mul(base, bp)
	scaled.Div(scaled, uint256.NewInt(gasScale))
	return scaled.ToBig()
}

// Signer wraps a single in-memory private key. Multi-instance deployment
// against the same signer is unsupported: nonce assignment is left to the
// connected node's pending-nonce tracking, which only a single writer may
// rely on safely.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    *big.Int
	gasFiller  *GasFiller
}

// New constructs a Signer from a hex-encoded private key (no 0x prefix
// required).
func New(privateKeyHex string, chainID *big.Int, gasFiller *GasFiller) (*Signer, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, err
	}
	if gasFiller == nil {
		gasFiller = NewDynamicGasFiller(0.2, 0.05, 2.0)
	}
	return &Signer{
		privateKey: key,
		address:    crypto.PubkeyToAddress(key.PublicKey),
		chainID:    chainID,
		gasFiller:  gasFiller,
	}, nil
}

// Address returns the signer's Ethereum address.
func (s *Signer) Address() common.Address { return s.address }

// TransactOpts builds transaction options for attempt (0 for the first
// try of a given request). The options come from
// bind.NewKeyedTransactorWithChainID, which leaves GasFeeCap and GasTipCap
// unset, so the GasFiller bump below is not applied and attempt does not
// change the fees: they are left to bind's own estimation at send time.
func (s *Signer) TransactOpts(ctx context.Context, attempt int) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.privateKey, s.chainID)
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	if opts.GasFeeCap != nil {
		opts.GasFeeCap = s.gasFiller.Apply(opts.GasFeeCap, attempt)
	}
	if opts.GasTipCap != nil {
		opts.GasTipCap = s.gasFiller.Apply(opts.GasTipCap, attempt)
	}
	return opts, nil
}
