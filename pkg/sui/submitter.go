package sui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/uhyunpark/suiperp/pkg/crypto"
	"github.com/uhyunpark/suiperp/pkg/util"
)

// LockedObjectError is the validator message for transient object lock contention
const LockedObjectError = "Failed to sign transaction by a quorum of validators because of locked objects"

const (
	DefaultMaxRetries    = 5
	DefaultRetryInterval = time.Second
)

// Executor runs one signed transaction. *Client satisfies it.
type Executor interface {
	ExecuteTransactionBlock(ctx context.Context, txBytes, signature string) (*TransactionResult, error)
}

// Recorder observes submission outcomes
type Recorder interface {
	ObserveAttempt()
	ObserveRetry()
	ObserveResult(success bool)
}

type SubmitterConfig struct {
	MaxRetries    int
	RetryInterval time.Duration
	Clock         util.Clock
	Logger        *zap.Logger
	Recorder      Recorder
}

// Submitter executes signed transactions, retrying only on lock contention
type Submitter struct {
	exec          Executor
	maxRetries    int
	retryInterval time.Duration
	clock         util.Clock
	log           *zap.Logger
	rec           Recorder
}

func NewSubmitter(exec Executor, cfg SubmitterConfig) *Submitter {
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = DefaultMaxRetries
	}
	retryInterval := cfg.RetryInterval
	if retryInterval <= 0 {
		retryInterval = DefaultRetryInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = util.RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Submitter{
		exec:          exec,
		maxRetries:    maxRetries,
		retryInterval: retryInterval,
		clock:         clock,
		log:           log,
		rec:           cfg.Recorder,
	}
}

// IsLockContention reports whether err is the transient locked-objects failure
func IsLockContention(err error) bool {
	return err != nil && strings.Contains(err.Error(), LockedObjectError)
}

// Execute submits txBytes with signature. The identical request is resent at a
// constant interval while validators report locked objects, up to MaxRetries attempts.
// Any other error, or a result without success status, is returned without retry.
func (s *Submitter) Execute(ctx context.Context, txBytes, signature string) (*TransactionResult, error) {
	attempts := 0
	op := func() (*TransactionResult, error) {
		attempts++
		s.observe(func(r Recorder) { r.ObserveAttempt() })
		res, err := s.exec.ExecuteTransactionBlock(ctx, txBytes, signature)
		if err == nil {
			s.observe(func(r Recorder) { r.ObserveResult(res.Succeeded()) })
			if !res.Succeeded() {
				return res, backoff.Permanent(res.Err())
			}
			return res, nil
		}
		if !IsLockContention(err) {
			s.observe(func(r Recorder) { r.ObserveResult(false) })
			return nil, backoff.Permanent(fmt.Errorf("execute transaction: %w", err))
		}
		if attempts < s.maxRetries {
			s.observe(func(r Recorder) { r.ObserveRetry() })
			s.log.Warn("tx_lock_contention_retry",
				zap.Int("attempt", attempts),
				zap.Int("max_retries", s.maxRetries),
				zap.Duration("wait", s.retryInterval))
		}
		return nil, err
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newClockBackOff(ctx, s.clock, backoff.NewConstantBackOff(s.retryInterval))),
		backoff.WithMaxTries(uint(s.maxRetries)),
		backoff.WithMaxElapsedTime(0))
	if err == nil {
		return res, nil
	}

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return res, permanent.Err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if IsLockContention(err) {
		s.observe(func(r Recorder) { r.ObserveResult(false) })
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrLockContention, attempts, err)
	}
	return res, err
}

func (s *Submitter) observe(fn func(Recorder)) {
	if s.rec != nil {
		fn(s.rec)
	}
}

// clockBackOff performs the waits of policy on clock itself, so Retry sees zero
// delays and tests control time through the injected clock.
type clockBackOff struct {
	ctx    context.Context
	clock  util.Clock
	policy backoff.BackOff
}

func newClockBackOff(ctx context.Context, clock util.Clock, policy backoff.BackOff) *clockBackOff {
	return &clockBackOff{ctx: ctx, clock: clock, policy: policy}
}

func (b *clockBackOff) NextBackOff() time.Duration {
	d := b.policy.NextBackOff()
	if d == backoff.Stop {
		return backoff.Stop
	}
	if err := util.Wait(b.ctx, b.clock, d); err != nil {
		return backoff.Stop
	}
	return 0
}

func (b *clockBackOff) Reset() { b.policy.Reset() }

// SignAndExecute signs base64 txBytes with keys and executes them
func (s *Submitter) SignAndExecute(ctx context.Context, keys *crypto.KeyMaterial, txBytes string) (*TransactionResult, error) {
	sig, err := keys.SignTransaction(txBytes)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, txBytes, sig)
}
