package crossencoder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// statefulModel mimics a model object that keeps the last question in a field; it is
// only correct when calls never overlap.
type statefulModel struct {
	question string
	inFlight int32
	overlap  int32
}

func (m *statefulModel) Score(_ context.Context, question string, passages []string) ([]float64, error) {
	if atomic.AddInt32(&m.inFlight, 1) > 1 {
		atomic.StoreInt32(&m.overlap, 1)
	}
	defer atomic.AddInt32(&m.inFlight, -1)

	m.question = question
	time.Sleep(time.Millisecond)
	out := make([]float64, len(passages))
	for i, p := range passages {
		if strings.Contains(p, m.question) {
			out[i] = 1
		}
	}
	return out, nil
}

type panicModel struct{}

func (panicModel) Score(context.Context, string, []string) ([]float64, error) {
	panic("tensor shape mismatch")
}

func TestGateSingleWorkerIsolatesCalls(t *testing.T) {
	model := &statefulModel{}
	gate, err := NewGate(model, 1, nil)
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	defer gate.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := fmt.Sprintf("q%02d", i)
			scores, err := gate.Score(context.Background(), q, []string{q + " match", "other"})
			if err != nil {
				errs <- err
				return
			}
			if scores[0] != 1 || scores[1] != 0 {
				errs <- fmt.Errorf("call %s saw foreign state: %v", q, scores)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&model.overlap) != 0 {
		t.Fatalf("single-worker gate let calls overlap")
	}
}

func TestGateRecoversPanic(t *testing.T) {
	gate, err := NewGate(panicModel{}, 1, nil)
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	defer gate.Close()

	_, err = gate.Score(context.Background(), "q", []string{"a"})
	if err == nil || !strings.Contains(err.Error(), "tensor shape mismatch") {
		t.Fatalf("expected recovered panic as error, got %v", err)
	}
	if _, err := gate.Score(context.Background(), "q", []string{"a"}); err == nil {
		t.Fatalf("expected gate to keep serving after panic")
	}
}

func TestGateHonoursCancelledContext(t *testing.T) {
	gate, err := NewGate(&statefulModel{}, 1, nil)
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	defer gate.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := gate.Score(ctx, "q", []string{"a"}); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

type blockingModel struct {
	entered chan struct{}
	release chan struct{}
}

func (m *blockingModel) Score(_ context.Context, _ string, passages []string) ([]float64, error) {
	m.entered <- struct{}{}
	<-m.release
	return make([]float64, len(passages)), nil
}

func TestGateQueuedCallerGivesUpAtDeadline(t *testing.T) {
	model := &blockingModel{entered: make(chan struct{}, 1), release: make(chan struct{})}
	gate, err := NewGate(model, 1, nil)
	if err != nil {
		t.Fatalf("NewGate() error = %v", err)
	}
	defer gate.Close()

	busy := make(chan error, 1)
	go func() {
		_, err := gate.Score(context.Background(), "first", []string{"a"})
		busy <- err
	}()
	<-model.entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = gate.Score(ctx, "second", []string{"b"})
	elapsed := time.Since(start)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed > 250*time.Millisecond {
		t.Fatalf("queued caller returned after %s, past its deadline", elapsed)
	}

	close(model.release)
	select {
	case err := <-busy:
		if err != nil {
			t.Fatalf("busy call error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("busy call did not finish")
	}
}
