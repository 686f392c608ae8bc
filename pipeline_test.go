package mediator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// traceMW records phase execution order into a shared trace.
type traceMW struct {
	name  string
	trace *[]string

	short     any
	beforeErr error
	afterErr  error
	state     []any

	finallyErr error
	sawErr     error
	finallies  int
}

func (t *traceMW) Before(ctx context.Context, msg any) (BeforeResult, error) {
	*t.trace = append(*t.trace, "before:"+t.name)
	if t.beforeErr != nil {
		return BeforeResult{}, t.beforeErr
	}
	if t.short != nil {
		return ShortCircuit(t.short), nil
	}
	return Continue(t.state...), nil
}

func (t *traceMW) After(ctx context.Context, msg, result any, s *State) error {
	*t.trace = append(*t.trace, "after:"+t.name)
	return t.afterErr
}

func (t *traceMW) Finally(ctx context.Context, msg any, err error, s *State) error {
	*t.trace = append(*t.trace, "finally:"+t.name)
	t.finallies++
	t.sawErr = err
	return t.finallyErr
}

// finallyOnlyMW implements only the Finally phase.
type finallyOnlyMW struct {
	calls int
	got   error
}

func (f *finallyOnlyMW) Finally(ctx context.Context, msg any, err error, s *State) error {
	f.calls++
	f.got = err
	return nil
}

type PipelineSuite struct {
	suite.Suite

	trace []string
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.trace = nil
}

func (s *PipelineSuite) newMediator(handler func(ctx context.Context, p ping) (string, error)) *Mediator {
	m := New()
	HandleFunc(m, func(ctx context.Context, p ping) (string, error) {
		s.trace = append(s.trace, "handler")
		return handler(ctx, p)
	})
	return m
}

func (s *PipelineSuite) TestStackDiscipline() {
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	m.Use(&traceMW{name: "m1", trace: &s.trace}, WithOrder(1))
	m.Use(&traceMW{name: "m2", trace: &s.trace}, WithOrder(2))

	got, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.Equal("ok", got)
	s.Equal([]string{
		"before:m1", "before:m2",
		"handler",
		"after:m2", "after:m1",
		"finally:m2", "finally:m1",
	}, s.trace)
}

func (s *PipelineSuite) TestFinallyAlwaysRunsOnHandlerError() {
	wantErr := errors.New("boom")
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "", wantErr
	})
	fin := &finallyOnlyMW{}
	m.Use(fin)

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.Require().Error(err)
	s.Equal(wantErr, err, "original error must surface unchanged")
	s.Equal(1, fin.calls)
	s.Equal(wantErr, fin.got)
}

func (s *PipelineSuite) TestAfterSkippedOnHandlerError() {
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "", errors.New("boom")
	})
	mw := &traceMW{name: "m1", trace: &s.trace}
	m.Use(mw)

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.Error(err)
	s.Equal([]string{"before:m1", "handler", "finally:m1"}, s.trace)
	s.Error(mw.sawErr)
}

func (s *PipelineSuite) TestShortCircuitSkipsHandlerAndAfter() {
	handlerCalls := 0
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		handlerCalls++
		return "ok", nil
	})
	m.Use(&traceMW{name: "m1", trace: &s.trace, short: "blocked"}, WithOrder(1))
	m.Use(&traceMW{name: "m2", trace: &s.trace}, WithOrder(2))

	got, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.Equal("blocked", got)
	s.Equal(0, handlerCalls)
	s.Equal([]string{"before:m1", "finally:m2", "finally:m1"}, s.trace)
}

func (s *PipelineSuite) TestShortCircuitIsNotAFailure() {
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	mw := &traceMW{name: "m1", trace: &s.trace, short: "blocked"}
	m.Use(mw)

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.Equal(1, mw.finallies)
	s.NoError(mw.sawErr)
}

func (s *PipelineSuite) TestBeforeErrorSkipsHandler() {
	wantErr := errors.New("before failed")
	handlerCalls := 0
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		handlerCalls++
		return "ok", nil
	})
	m.Use(&traceMW{name: "m1", trace: &s.trace, beforeErr: wantErr})

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.ErrorIs(err, wantErr)
	s.Equal(0, handlerCalls)
	s.Equal([]string{"before:m1", "finally:m1"}, s.trace)
}

func (s *PipelineSuite) TestAfterErrorRunsFinallyWithError() {
	wantErr := errors.New("after failed")
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	mw := &traceMW{name: "m1", trace: &s.trace, afterErr: wantErr}
	m.Use(mw)

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.ErrorIs(err, wantErr)
	s.ErrorIs(mw.sawErr, wantErr)
}

func (s *PipelineSuite) TestFinallyErrorJoinsOriginal() {
	handlerErr := errors.New("handler failed")
	finallyErr := errors.New("cleanup failed")
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "", handlerErr
	})
	m.Use(&traceMW{name: "m1", trace: &s.trace, finallyErr: finallyErr})

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.ErrorIs(err, handlerErr)
	s.ErrorIs(err, finallyErr)
}

func (s *PipelineSuite) TestFinallyErrorAloneBecomesPipelineError() {
	finallyErr := errors.New("cleanup failed")
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	m.Use(&traceMW{name: "m1", trace: &s.trace, finallyErr: finallyErr})

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.ErrorIs(err, finallyErr)
}

func (s *PipelineSuite) TestStateFlowsToLaterPhases() {
	type requestID string

	var got requestID
	var ok bool
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	m.Use(&traceMW{name: "m1", trace: &s.trace, state: []any{requestID("r-1")}}, WithOrder(1))
	m.Use(&stateReaderMW{read: func(st *State) {
		got, ok = StateOf[requestID](st)
	}}, WithOrder(2))

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.True(ok)
	s.Equal(requestID("r-1"), got)
}

func (s *PipelineSuite) TestStateLastWriterWins() {
	type requestID string

	var got requestID
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	m.Use(&traceMW{name: "m1", trace: &s.trace, state: []any{requestID("first")}}, WithOrder(1))
	m.Use(&traceMW{name: "m2", trace: &s.trace, state: []any{requestID("second")}}, WithOrder(2))
	m.Use(&stateReaderMW{read: func(st *State) {
		got, _ = StateOf[requestID](st)
	}}, WithOrder(3))

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.Equal(requestID("second"), got)
}

func (s *PipelineSuite) TestExecuteWrapperRetriesWholePipeline() {
	attempts := 0
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		attempts++
		if attempts == 1 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	mw := &traceMW{name: "m1", trace: &s.trace}
	m.Use(mw, WithOrder(2))
	m.Use(&retryMW{attempts: 2}, WithOrder(1))

	got, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.Equal("ok", got)
	s.Equal(2, attempts, "retry re-runs the handler")
	s.Equal(2, mw.finallies, "retry re-runs every phase")
}

func (s *PipelineSuite) TestCancelledContextBehavesAsFailure() {
	handlerCalls := 0
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		handlerCalls++
		return "ok", nil
	})
	fin := &finallyOnlyMW{}
	m.Use(fin)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Invoke[string](ctx, m, ping{ID: "x"})

	s.ErrorIs(err, context.Canceled)
	s.Equal(0, handlerCalls)
	s.Equal(1, fin.calls)
	s.ErrorIs(fin.got, context.Canceled)
}

func (s *PipelineSuite) TestAppliesToRestrictsMiddleware() {
	mw := &countingMW{}
	m := New()
	HandleFunc(m, func(ctx context.Context, p ping) (string, error) { return "ok", nil })
	HandleFunc(m, func(ctx context.Context, p pong) (string, error) { return "ok", nil })
	m.Use(mw, AppliesTo[ping]())

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})
	s.NoError(err)
	_, err = Invoke[string](context.Background(), m, pong{Msg: "y"})
	s.NoError(err)

	s.Equal(1, mw.before, "middleware applies only to ping")
}

func (s *PipelineSuite) TestSpecificityBreaksOrderTies() {
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	// Universal registered first, exact second; exact still runs first on
	// an Order tie.
	m.Use(&traceMW{name: "all", trace: &s.trace})
	m.Use(&traceMW{name: "exact", trace: &s.trace}, AppliesTo[ping]())

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.Equal("before:exact", s.trace[0])
}

func (s *PipelineSuite) TestExplicitOnlyRequiresOptIn() {
	mw := &countingMW{}
	m := New()
	HandleFunc(m, func(ctx context.Context, p ping) (string, error) { return "ok", nil })
	HandleFunc(m, func(ctx context.Context, p pong) (string, error) { return "ok", nil },
		WithMiddleware[*countingMW]())
	m.Use(mw, ExplicitOnly())

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})
	s.NoError(err)
	s.Equal(0, mw.before, "handler did not opt in")

	_, err = Invoke[string](context.Background(), m, pong{Msg: "y"})
	s.NoError(err)
	s.Equal(1, mw.before, "opted-in handler gets the middleware")
}

func (s *PipelineSuite) TestUseRejectsPhaselessMiddleware() {
	m := New()
	s.Panics(func() {
		m.Use(struct{}{})
	})
}

// stateReaderMW exposes the state bag to a test callback from After.
type stateReaderMW struct {
	read func(*State)
}

func (r *stateReaderMW) After(ctx context.Context, msg, result any, s *State) error {
	r.read(s)
	return nil
}

// retryMW re-executes the remaining pipeline up to attempts times.
type retryMW struct {
	attempts int
}

func (r *retryMW) Execute(ctx context.Context, msg any, next Next) (any, error) {
	var (
		res any
		err error
	)
	for i := 0; i < r.attempts; i++ {
		res, err = next(ctx)
		if err == nil {
			return res, nil
		}
	}
	return res, err
}

// timingMW is a realistic Before+Finally pair used by the suite to keep the
// State contract honest with a non-string key type.
type timingMW struct {
	elapsed time.Duration
}

func (t *timingMW) Before(ctx context.Context, msg any) (BeforeResult, error) {
	return Continue(time.Now()), nil
}

func (t *timingMW) Finally(ctx context.Context, msg any, err error, s *State) error {
	if start, ok := StateOf[time.Time](s); ok {
		t.elapsed = time.Since(start)
	}
	return nil
}

func (s *PipelineSuite) TestTimingMiddlewareSeesOwnState() {
	m := s.newMediator(func(ctx context.Context, p ping) (string, error) {
		return "ok", nil
	})
	mw := &timingMW{}
	m.Use(mw)

	_, err := Invoke[string](context.Background(), m, ping{ID: "x"})

	s.NoError(err)
	s.Greater(mw.elapsed, time.Duration(0))
}
