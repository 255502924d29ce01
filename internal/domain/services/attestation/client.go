// Package attestation retrieves signed certificates from the off-chain
// attestation authority. Retrieval only ever reads authority state, so it is
// idempotent and safe to re-enter after a restart with the same message hash.
package attestation

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/stablebridge/bridge_service/internal/domain/chain"
	"github.com/stablebridge/bridge_service/internal/domain/entities"
	apperrors "github.com/stablebridge/bridge_service/internal/domain/errors"
	"github.com/stablebridge/bridge_service/internal/infrastructure/adapters/iris"
	"github.com/stablebridge/bridge_service/internal/infrastructure/cache"
)

// Result is a completed attestation for one message hash
type Result struct {
	MessageHash  string `json:"message_hash"`
	Signature    string `json:"signature"`
	MessageBytes []byte `json:"message_bytes"`
}

// Config controls the poll schedule
type Config struct {
	InitialInterval time.Duration // I0
	MaxInterval     time.Duration // backoff cap
	OverallTimeout  time.Duration // T
	CacheTTL        time.Duration
}

// Client polls the attestation authority for a signature over a message hash
type Client struct {
	authority iris.AuthorityClient
	cache     cache.RedisClient // nil when caching is disabled
	hasher    chain.MessageHasher
	config    Config
	group     singleflight.Group
	logger    *zap.Logger
}

// NewClient creates an attestation client. cache may be nil.
func NewClient(authority iris.AuthorityClient, cacheClient cache.RedisClient, hasher chain.MessageHasher, config Config, logger *zap.Logger) *Client {
	return &Client{
		authority: authority,
		cache:     cacheClient,
		hasher:    hasher,
		config:    config,
		logger:    logger,
	}
}

// Fetch polls until the authority reports complete, reports failure, or the
// overall deadline passes. Concurrent calls for the same message hash are
// coalesced; both receive the same result and the authority sees one poll
// sequence.
func (c *Client) Fetch(ctx context.Context, messageHash string) (*Result, error) {
	if cached := c.fromCache(ctx, messageHash); cached != nil {
		return cached, nil
	}

	v, err, _ := c.group.Do(messageHash, func() (interface{}, error) {
		return c.poll(ctx, messageHash)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (c *Client) poll(ctx context.Context, messageHash string) (*Result, error) {
	deadline := time.Now().Add(c.config.OverallTimeout)
	interval := c.config.InitialInterval

	for attempt := 1; ; attempt++ {
		status, err := c.authority.GetAttestation(ctx, messageHash)
		switch {
		case err == nil && status.Complete():
			result, err := c.toResult(messageHash, status)
			if err != nil {
				return nil, err
			}
			c.toCache(ctx, result)
			c.logger.Info("Attestation complete",
				zap.String("message_hash", messageHash),
				zap.Int("polls", attempt))
			return result, nil

		case err == nil && status.Pending():
			// keep polling

		case err == nil:
			// Authority reported a terminal failure or a malformed status
			return nil, apperrors.New(
				fmt.Errorf("authority reported status %q: %s", status.Status, status.Error),
				entities.ErrKindAttestationFailed,
				"attestation authority rejected the message",
			).WithRetryable(true)

		case errors.Is(err, iris.ErrNotFound):
			// Recently confirmed burns may not be indexed yet; same as pending.

		case isTransient(err):
			c.logger.Warn("Transient attestation poll failure",
				zap.String("message_hash", messageHash),
				zap.Error(err))

		default:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, apperrors.New(err, entities.ErrKindAttestationFailed,
				"attestation authority request failed").WithRetryable(true)
		}

		if time.Now().Add(interval).After(deadline) {
			return nil, apperrors.New(
				fmt.Errorf("no attestation after %s", c.config.OverallTimeout),
				entities.ErrKindAttestationTimeout,
				"attestation polling timed out",
			).WithRetryable(true)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval *= 2
		if interval > c.config.MaxInterval {
			interval = c.config.MaxInterval
		}
	}
}

func (c *Client) toResult(messageHash string, status *iris.AttestationStatus) (*Result, error) {
	raw := strings.TrimPrefix(status.Message, "0x")
	messageBytes, err := hex.DecodeString(raw)
	if err != nil {
		return nil, apperrors.New(fmt.Errorf("decode message bytes: %w", err),
			entities.ErrKindAttestationFailed,
			"authority returned malformed message bytes").WithRetryable(true)
	}
	if c.hasher != nil && c.hasher(messageBytes) != messageHash {
		return nil, apperrors.New(
			fmt.Errorf("message bytes do not hash to %s", messageHash),
			entities.ErrKindAttestationFailed,
			"authority returned message bytes for a different digest",
		).WithRetryable(true)
	}
	return &Result{
		MessageHash:  messageHash,
		Signature:    status.Attestation,
		MessageBytes: messageBytes,
	}, nil
}

func (c *Client) fromCache(ctx context.Context, messageHash string) *Result {
	if c.cache == nil {
		return nil
	}
	var result Result
	if err := c.cache.Get(ctx, cacheKey(messageHash), &result); err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("Attestation cache read failed", zap.Error(err))
		}
		return nil
	}
	return &result
}

func (c *Client) toCache(ctx context.Context, result *Result) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(result.MessageHash), result, c.config.CacheTTL); err != nil {
		c.logger.Warn("Attestation cache write failed", zap.Error(err))
	}
}

func cacheKey(messageHash string) string {
	return "attestation:" + messageHash
}

func isTransient(err error) bool {
	var apiErr *iris.ErrorResponse
	if errors.As(err, &apiErr) {
		return apiErr.IsRateLimited()
	}
	// 5xx and connection failures surface as plain wrapped errors from the
	// adapter after its internal retries; polling continues until deadline.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
