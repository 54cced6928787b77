// Package chainkit collects the small pieces of JSON-RPC plumbing every
// command-line entrypoint in this module needs: dialing a node, waiting for
// a transaction to mine, and resolving a human-friendly block reference
// ("latest", a number) to a concrete block. internal/chain.Reader builds on
// the same ethclient.Client but owns the marketplace-specific event
// filtering; this package is deliberately ignorant of the marketplace.
package chainkit

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
)

// Dial connects to the node at rawurl, retrying a handful of times with a
// short backoff: operators frequently start this process before their RPC
// endpoint has finished warming up behind a load balancer.
func Dial(ctx context.Context, rawurl string, attempts int, backoff time.Duration) (*ethclient.Client, error) {
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		client, err := ethclient.DialContext(ctx, rawurl)
		if err == nil {
			return client, nil
		}
		lastErr = err
		log.Warn("failed to dial node, retrying", "url", rawurl, "attempt", i+1, "err", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return nil, fmt.Errorf("chainkit: dial %s: %w", rawurl, lastErr)
}

// ChainID fetches the network's chain id, used to build an EIP-155 signer.
func ChainID(ctx context.Context, client *ethclient.Client) (*big.Int, error) {
	return client.ChainID(ctx)
}

// WaitMined blocks until tx is included, wrapping bind.WaitMined with a
// deadline so a stuck mempool entry cannot hang a command forever.
func WaitMined(ctx context.Context, client *ethclient.Client, tx *types.Transaction, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return bind.WaitMined(ctx, client, tx)
}

// ParseBlockRef resolves a CLI-supplied block reference to a concrete block
// number: "latest" (or an empty string) means the current head, anything
// else must parse as a non-negative integer.
func ParseBlockRef(ctx context.Context, client *ethclient.Client, ref string) (uint64, error) {
	if ref == "" || ref == "latest" {
		return client.BlockNumber(ctx)
	}
	n, err := strconv.ParseUint(ref, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("chainkit: invalid block reference %q: %w", ref, err)
	}
	return n, nil
}

// BlockTimestamp fetches the Unix timestamp of block number.
func BlockTimestamp(ctx context.Context, client *ethclient.Client, number uint64) (uint64, error) {
	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}
	if header == nil {
		return 0, fmt.Errorf("chainkit: header for block %d not found", number)
	}
	return header.Time, nil
}
