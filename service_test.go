package tablebase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/endgamekit/tablebase/config"
	"github.com/endgamekit/tablebase/logger"
	"github.com/endgamekit/tablebase/types"
)

const kqkWhiteToMove = "4k3/8/8/8/8/8/8/3QK3 w - - 0 1"

// fakeOracle scripts the oracle client. A non-nil gate blocks every
// probe until the channel is closed.
type fakeOracle struct {
	result *types.OracleResult
	err    error
	gate   chan struct{}

	probeCalls int32
	movesCalls int32
	closed     int32
}

func (f *fakeOracle) Probe(_ context.Context, _ string) (*types.OracleResult, error) {
	atomic.AddInt32(&f.probeCalls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeOracle) ProbeMoves(_ context.Context, _ string, _ int) (*types.OracleResult, error) {
	atomic.AddInt32(&f.movesCalls, 1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeOracle) Close() {
	atomic.StoreInt32(&f.closed, 1)
}

func winResult() *types.OracleResult {
	dtz, dtm := 5, 11
	return &types.OracleResult{
		Category:   types.CategoryWin,
		WDL:        types.WDLWin,
		DTZ:        &dtz,
		DTM:        &dtm,
		PreciseDTZ: true,
	}
}

func newTestService(t *testing.T, oracle types.OracleClient) *Service {
	t.Helper()

	svc, err := New(context.Background(), config.Defaults(),
		WithLogger(logger.NewNop()),
		WithClient(oracle))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		if svc.IsRunning() {
			_ = svc.Stop()
		}
	})

	return svc
}

func TestEvaluationPerspectives(t *testing.T) {
	oracle := &fakeOracle{result: winResult()}
	svc := newTestService(t, oracle)

	// White to move, white asking: the win stays a win.
	ev, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White)
	if err != nil {
		t.Fatalf("Evaluation: %v", err)
	}
	if ev.Category != types.CategoryWin || ev.WDL != types.WDLWin {
		t.Fatalf("white view = %s/%d, want win/2", ev.Category, ev.WDL)
	}
	if ev.DTM == nil || *ev.DTM != 11 || !ev.Precise {
		t.Fatal("distance metrics lost")
	}

	// Same position, black asking: the same cached value reads as a loss.
	ev, err = svc.Evaluation(context.Background(), kqkWhiteToMove, types.Black)
	if err != nil {
		t.Fatalf("Evaluation: %v", err)
	}
	if ev.Category != types.CategoryLoss || ev.WDL != types.WDLLoss {
		t.Fatalf("black view = %s/%d, want loss/-2", ev.Category, ev.WDL)
	}

	if calls := atomic.LoadInt32(&oracle.probeCalls); calls != 1 {
		t.Fatalf("oracle probed %d times, want 1 (perspectives share one entry)", calls)
	}
}

func TestEvaluationCacheHitSkipsOracle(t *testing.T) {
	oracle := &fakeOracle{result: winResult()}
	svc := newTestService(t, oracle)

	for i := 0; i < 3; i++ {
		if _, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White); err != nil {
			t.Fatalf("Evaluation #%d: %v", i, err)
		}
	}

	if calls := atomic.LoadInt32(&oracle.probeCalls); calls != 1 {
		t.Fatalf("oracle probed %d times, want 1", calls)
	}

	stats := svc.CacheStats()
	if stats.Hits < 2 {
		t.Fatalf("cache hits = %d, want >= 2", stats.Hits)
	}
}

func TestEvaluationKeyNormalizationSharesEntries(t *testing.T) {
	oracle := &fakeOracle{result: winResult()}
	svc := newTestService(t, oracle)

	if _, err := svc.Evaluation(context.Background(), "4k3/8/8/8/8/8/8/3QK3 w - - 0 1", types.White); err != nil {
		t.Fatalf("Evaluation: %v", err)
	}
	if _, err := svc.Evaluation(context.Background(), "4k3/8/8/8/8/8/8/3QK3 w - - 42 99", types.White); err != nil {
		t.Fatalf("Evaluation: %v", err)
	}

	if calls := atomic.LoadInt32(&oracle.probeCalls); calls != 1 {
		t.Fatalf("oracle probed %d times, want 1 (counters must not split the key)", calls)
	}
}

func TestEvaluationCoalescesConcurrentRequests(t *testing.T) {
	oracle := &fakeOracle{result: winResult(), gate: make(chan struct{})}
	svc := newTestService(t, oracle)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Evaluation(context.Background(), kqkWhiteToMove, types.White)
		}(i)
	}

	// Let every caller reach the in-flight group before releasing the
	// single oracle round-trip.
	time.Sleep(50 * time.Millisecond)
	close(oracle.gate)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&oracle.probeCalls); calls != 1 {
		t.Fatalf("oracle probed %d times, want 1", calls)
	}
}

func TestEvaluationFailureIsNotCached(t *testing.T) {
	oracle := &fakeOracle{err: types.Errorf(types.ErrClientTimeout, "after 3 attempts")}
	svc := newTestService(t, oracle)

	_, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White)
	if !types.IsError(err, types.ErrTablebaseUnavailable) {
		t.Fatalf("err = %v, want ErrTablebaseUnavailable", err)
	}
	if entries := svc.CacheStats().Entries; entries != 0 {
		t.Fatalf("cache holds %d entries after a failed fetch, want 0", entries)
	}

	// Recovery: the next call fetches again instead of replaying the
	// failure.
	oracle.err = nil
	oracle.result = winResult()
	if _, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White); err != nil {
		t.Fatalf("Evaluation after recovery: %v", err)
	}
	if calls := atomic.LoadInt32(&oracle.probeCalls); calls != 2 {
		t.Fatalf("oracle probed %d times, want 2", calls)
	}
}

func TestEvaluationRejectionPassesThrough(t *testing.T) {
	oracle := &fakeOracle{err: types.Errorf(types.ErrPositionRejected, "HTTP 404")}
	svc := newTestService(t, oracle)

	_, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White)
	if !types.IsError(err, types.ErrPositionRejected) {
		t.Fatalf("err = %v, want ErrPositionRejected", err)
	}
}

func TestEvaluationMalformedResponseReadsAsUnavailable(t *testing.T) {
	oracle := &fakeOracle{err: types.Errorf(types.ErrResponseMalformed, "category \"victory\"")}
	svc := newTestService(t, oracle)

	_, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White)
	if !types.IsError(err, types.ErrTablebaseUnavailable) {
		t.Fatalf("err = %v, want ErrTablebaseUnavailable", err)
	}
	if types.IsError(err, types.ErrResponseMalformed) {
		t.Fatal("internal malformed-response detail leaked to the caller")
	}
}

func TestEvaluationRejectsInvalidFEN(t *testing.T) {
	oracle := &fakeOracle{result: winResult()}
	svc := newTestService(t, oracle)

	_, err := svc.Evaluation(context.Background(), "not a position", types.White)
	if !types.IsError(err, types.ErrPositionInvalid) {
		t.Fatalf("err = %v, want ErrPositionInvalid", err)
	}
	if calls := atomic.LoadInt32(&oracle.probeCalls); calls != 0 {
		t.Fatalf("oracle probed %d times for an invalid FEN, want 0", calls)
	}
}

func TestTopMovesRankedForMover(t *testing.T) {
	slow, fast := 21, 15
	oracle := &fakeOracle{result: &types.OracleResult{
		Category: types.CategoryWin,
		WDL:      types.WDLWin,
		Moves: []types.OracleMove{
			// Raw entries carry the opponent's perspective; both mates
			// read as losses for the side that has to face them.
			{UCI: "d1d7", SAN: "Qd7", Category: types.CategoryLoss, WDL: types.WDLLoss, DTM: &slow},
			{UCI: "d1h5", SAN: "Qh5+", Category: types.CategoryLoss, WDL: types.WDLLoss, DTM: &fast},
			{UCI: "d1d2", SAN: "Qd2", Category: types.CategoryDraw, WDL: types.WDLDraw},
		},
	}}
	svc := newTestService(t, oracle)

	moves, err := svc.TopMoves(context.Background(), kqkWhiteToMove, types.White, 0)
	if err != nil {
		t.Fatalf("TopMoves: %v", err)
	}
	if len(moves) != 3 {
		t.Fatalf("got %d moves, want 3", len(moves))
	}
	if moves[0].UCI != "d1h5" || moves[0].Category != types.CategoryWin {
		t.Fatalf("moves[0] = %s (%s), want d1h5 (win)", moves[0].UCI, moves[0].Category)
	}
	if moves[1].UCI != "d1d7" || moves[2].UCI != "d1d2" {
		t.Fatalf("ranking = %s, %s; want d1d7, d1d2", moves[1].UCI, moves[2].UCI)
	}

	limited, err := svc.TopMoves(context.Background(), kqkWhiteToMove, types.White, 1)
	if err != nil {
		t.Fatalf("TopMoves limited: %v", err)
	}
	if len(limited) != 1 || limited[0].UCI != "d1h5" {
		t.Fatalf("limited = %+v, want just d1h5", limited)
	}

	if calls := atomic.LoadInt32(&oracle.movesCalls); calls != 1 {
		t.Fatalf("oracle move probes = %d, want 1", calls)
	}
}

func TestTopMovesOppositePerspectiveFlips(t *testing.T) {
	dtm := 15
	oracle := &fakeOracle{result: &types.OracleResult{
		Category: types.CategoryWin,
		WDL:      types.WDLWin,
		Moves: []types.OracleMove{
			{UCI: "d1h5", Category: types.CategoryLoss, WDL: types.WDLLoss, DTM: &dtm},
		},
	}}
	svc := newTestService(t, oracle)

	moves, err := svc.TopMoves(context.Background(), kqkWhiteToMove, types.Black, 0)
	if err != nil {
		t.Fatalf("TopMoves: %v", err)
	}
	if moves[0].Category != types.CategoryLoss || moves[0].WDL != types.WDLLoss {
		t.Fatalf("black view of white's mating move = %s/%d, want loss/-2",
			moves[0].Category, moves[0].WDL)
	}
}

func TestEvaluationAndMovesCacheIndependently(t *testing.T) {
	oracle := &fakeOracle{result: winResult()}
	svc := newTestService(t, oracle)

	if _, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White); err != nil {
		t.Fatalf("Evaluation: %v", err)
	}
	if _, err := svc.TopMoves(context.Background(), kqkWhiteToMove, types.White, 0); err != nil {
		t.Fatalf("TopMoves: %v", err)
	}

	if probes := atomic.LoadInt32(&oracle.probeCalls); probes != 1 {
		t.Fatalf("evaluation probes = %d, want 1", probes)
	}
	if probes := atomic.LoadInt32(&oracle.movesCalls); probes != 1 {
		t.Fatalf("move probes = %d, want 1", probes)
	}
	if entries := svc.CacheStats().Entries; entries != 2 {
		t.Fatalf("cache entries = %d, want 2", entries)
	}
}

func TestServiceLifecycle(t *testing.T) {
	oracle := &fakeOracle{result: winResult()}
	svc, err := New(context.Background(), config.Defaults(),
		WithLogger(logger.NewNop()),
		WithClient(oracle))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := svc.Evaluation(context.Background(), kqkWhiteToMove, types.White); !types.IsError(err, types.ErrServiceNotRunning) {
		t.Fatalf("Evaluation before Start = %v, want ErrServiceNotRunning", err)
	}

	if err := svc.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := svc.Start(); !types.IsError(err, types.ErrServiceAlreadyRunning) {
		t.Fatalf("second Start = %v, want ErrServiceAlreadyRunning", err)
	}
	if !svc.IsRunning() {
		t.Fatal("IsRunning = false after Start")
	}

	if err := svc.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if atomic.LoadInt32(&oracle.closed) != 1 {
		t.Fatal("Stop did not close the oracle client")
	}
	if err := svc.Stop(); !types.IsError(err, types.ErrServiceNotRunning) {
		t.Fatalf("second Stop = %v, want ErrServiceNotRunning", err)
	}
}

func TestNewRejectsNilAndInvalidConfig(t *testing.T) {
	if _, err := New(context.Background(), nil); !types.IsError(err, types.ErrConfigIsNil) {
		t.Fatalf("New(nil) = %v, want ErrConfigIsNil", err)
	}

	cfg := config.Defaults()
	cfg.Cache.Capacity = -5
	if _, err := New(context.Background(), cfg, WithLogger(logger.NewNop())); err == nil {
		t.Fatal("New accepted a negative cache capacity")
	}
}

func TestAvailableDefaultsTrueWithoutProber(t *testing.T) {
	svc := newTestService(t, &fakeOracle{result: winResult()})
	if !svc.Available() {
		t.Fatal("Available = false with health probing disabled")
	}
}
