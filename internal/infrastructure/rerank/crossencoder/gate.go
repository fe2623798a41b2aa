package crossencoder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/retrieval-fusion/internal/core/ports"
)

// Gate bounds how many scoring calls reach a shared model at once. Each call is a
// message carrying its own question and passages; the owning workers send the result
// back on a per-call channel, so no scoring state is shared between callers.
type Gate struct {
	encoder ports.CrossEncoder
	pool    *ants.Pool
	jobs    chan scoreJob
	logger  *slog.Logger

	closeOnce sync.Once
}

type scoreJob struct {
	ctx      context.Context
	question string
	passages []string
	reply    chan scoreResult
}

type scoreResult struct {
	scores []float64
	err    error
}

// NewGate starts size owning workers in front of encoder. A size of 1 serializes
// every call through a single worker.
func NewGate(encoder ports.CrossEncoder, size int, logger *slog.Logger) (*Gate, error) {
	if size <= 0 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := ants.NewPool(size, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create cross-encoder pool: %w", err)
	}
	g := &Gate{encoder: encoder, pool: pool, jobs: make(chan scoreJob), logger: logger}
	for i := 0; i < size; i++ {
		if err := pool.Submit(g.work); err != nil {
			g.Close()
			return nil, fmt.Errorf("start cross-encoder worker: %w", err)
		}
	}
	return g, nil
}

// Score waits for a free worker and for its reply, giving up as soon as ctx is done.
func (g *Gate) Score(ctx context.Context, question string, passages []string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	job := scoreJob{
		ctx:      ctx,
		question: question,
		// The worker owns its copy of the inputs for the whole call.
		passages: append([]string(nil), passages...),
		reply:    make(chan scoreResult, 1),
	}

	select {
	case g.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.reply:
		return res.scores, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (g *Gate) work() {
	for job := range g.jobs {
		job.reply <- g.run(job)
	}
}

func (g *Gate) run(job scoreJob) (res scoreResult) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error("crossencoder_panic", "recovered", fmt.Sprint(r))
			res = scoreResult{err: fmt.Errorf("cross-encoder panic: %v", r)}
		}
	}()
	if err := job.ctx.Err(); err != nil {
		return scoreResult{err: err}
	}
	scores, err := g.encoder.Score(job.ctx, job.question, job.passages)
	return scoreResult{scores: append([]float64(nil), scores...), err: err}
}

// Close stops the workers. Score must not be called afterwards.
func (g *Gate) Close() {
	g.closeOnce.Do(func() {
		close(g.jobs)
		g.pool.Release()
	})
}
