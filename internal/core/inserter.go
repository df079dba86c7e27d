package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JonMunkholm/tableinsert/internal/logging"
)

// Inserter streams rows into a table in concurrent batches and retries
// rejected rows with backoff.
type Inserter struct {
	store Store
	pool  *WorkerPool

	defaultRef      TableRef
	maxBatchBytes   int
	maxRowsPerBatch int
	backoff         BackoffPolicy
	limiter         *rate.Limiter

	sleep func(context.Context, time.Duration) error
}

// Option configures an Inserter.
type Option func(*Inserter)

// WithDefaultTable sets the table used when InsertAll gets a zero TableRef.
func WithDefaultTable(ref TableRef) Option {
	return func(i *Inserter) { i.defaultRef = ref }
}

// WithMaxBatchBytes sets the approximate row data budget per insert call.
func WithMaxBatchBytes(n int) Option {
	return func(i *Inserter) {
		if n > 0 {
			i.maxBatchBytes = n
		}
	}
}

// WithMaxRowsPerBatch sets the row cap per insert call.
func WithMaxRowsPerBatch(n int) Option {
	return func(i *Inserter) {
		if n > 0 {
			i.maxRowsPerBatch = n
		}
	}
}

// WithBackoff sets the retry policy.
func WithBackoff(p BackoffPolicy) Option {
	return func(i *Inserter) { i.backoff = p.normalized() }
}

// WithRateLimit throttles insert calls to rps requests per second across
// all batches of this Inserter. Zero or negative disables throttling.
func WithRateLimit(rps float64) Option {
	return func(i *Inserter) {
		if rps <= 0 {
			i.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		i.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewInserter creates an Inserter that runs its insert calls on pool.
// The pool is shared and owned by the caller.
func NewInserter(store Store, pool *WorkerPool, opts ...Option) *Inserter {
	i := &Inserter{
		store:           store,
		pool:            pool,
		maxBatchBytes:   DefaultMaxBatchBytes,
		maxRowsPerBatch: DefaultMaxRowsPerBatch,
		backoff:         DefaultBackoffPolicy(),
		sleep:           sleepContext,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// InsertSummary describes a completed InsertAll call.
type InsertSummary struct {
	Rows     int `json:"rows"`
	Attempts int `json:"attempts"`
	Batches  int `json:"batches"`
}

// InsertAll inserts every row of set into ref. Rows rejected by the store
// are retried, alone, until they succeed or the backoff policy runs out, in
// which case an *InsertFailedError lists them. Transport failures and
// cancellation end the call immediately.
func (i *Inserter) InsertAll(ctx context.Context, ref TableRef, set RowSet) (InsertSummary, error) {
	if ref.IsZero() {
		ref = i.defaultRef
	}
	summary := InsertSummary{Rows: set.Len()}

	if ref.Dataset == "" || ref.Table == "" {
		return summary, &ConfigurationError{Op: "insert", Msg: "no destination table"}
	}
	if err := set.Validate(); err != nil {
		return summary, err
	}

	logger := logging.WithFields(ctx, "table", ref.String())

	var (
		cur      = firstRound(set)
		next     round
		failures []rowFailure
		attempt  = 1
		state    = stateAttempting
	)

	for {
		switch state {
		case stateAttempting:
			batches := PlanBatches(cur.set, i.maxBatchBytes, i.maxRowsPerBatch)
			summary.Attempts = attempt
			summary.Batches += len(batches)

			results, err := i.uploadBatches(ctx, ref, cur, batches)
			if err != nil {
				return summary, err
			}
			failures, err = correlate(ref, batches, results)
			if err != nil {
				return summary, err
			}
			state = i.backoff.nextState(attempt, len(failures))

		case stateBackingOff:
			delay := i.backoff.Delay(attempt)
			next = cur.retry(failures)
			logger.Info("retrying failed inserts",
				"attempt", attempt,
				"failed_rows", next.set.Len(),
				"backoff", delay,
			)
			if err := i.sleep(ctx, delay); err != nil {
				return summary, &InterruptedError{Ref: ref, Phase: "waiting to retry", Rows: cur.failedRows(failures), Err: err}
			}
			cur = next
			attempt++
			state = stateAttempting

		case stateSucceeded:
			if attempt > 1 {
				logger.Info("insert succeeded after retries", "rows", summary.Rows, "attempts", attempt)
			}
			return summary, nil

		case stateExhausted:
			return summary, &InsertFailedError{Ref: ref, Attempts: attempt, Rows: cur.failedRows(failures)}
		}
	}
}

// batchOutcome is the result of one batch's insert call.
type batchOutcome struct {
	index int
	errs  []InsertError
	err   error
}

// uploadBatches sends every batch of cur through the pool and waits for all
// of them. The returned slice is indexed like batches.
func (i *Inserter) uploadBatches(ctx context.Context, ref TableRef, cur round, batches []Batch) ([][]InsertError, error) {
	results := make([][]InsertError, len(batches))
	if len(batches) == 0 {
		return results, nil
	}

	// pending holds the batches whose outcome is not known yet.
	pending := make(map[int]bool, len(batches))
	for idx := range batches {
		pending[idx] = true
	}

	// Dispatched calls keep running if the caller goes away.
	callCtx := context.WithoutCancel(ctx)
	done := make(chan batchOutcome, len(batches))

	for idx, b := range batches {
		err := i.pool.Submit(ctx, func() {
			errs, err := i.insertBatch(callCtx, ref, b)
			done <- batchOutcome{index: idx, errs: errs, err: err}
		})
		if errors.Is(err, ErrPoolClosed) {
			return nil, fmt.Errorf("insert into %s: %w", ref, err)
		}
		if err != nil {
			return nil, &InterruptedError{Ref: ref, Phase: "submitting batches", Rows: cur.pendingRows(batches, pending), Err: err}
		}
	}

	record := func(o batchOutcome) error {
		delete(pending, o.index)
		if o.err != nil {
			var te *TransportError
			if errors.As(o.err, &te) {
				return te
			}
			return &TransportError{Op: "insert", Ref: ref, Err: o.err}
		}
		results[o.index] = o.errs
		return nil
	}

	for len(pending) > 0 {
		select {
		case o := <-done:
			if err := record(o); err != nil {
				return nil, err
			}
		case <-ctx.Done():
			// Outcomes that already arrived still count.
			for drained := false; !drained && len(pending) > 0; {
				select {
				case o := <-done:
					if err := record(o); err != nil {
						return nil, err
					}
				default:
					drained = true
				}
			}
			if len(pending) == 0 {
				return results, nil
			}
			return nil, &InterruptedError{Ref: ref, Phase: "waiting for batches", Rows: cur.pendingRows(batches, pending), Err: ctx.Err()}
		}
	}
	return results, nil
}

func (i *Inserter) insertBatch(ctx context.Context, ref TableRef, b Batch) ([]InsertError, error) {
	if i.limiter != nil {
		if err := i.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return i.store.InsertRows(ctx, ref, b)
}
