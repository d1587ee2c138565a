package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test command/effect fixtures ---

type processCmd struct {
	id   int
	mode ExecutionMode
}

func (c processCmd) ExecutionMode() ExecutionMode { return c.mode }
func (c processCmd) JobSpec() JobSpec             { return NewJobSpec("process").Build() }
func (c processCmd) SerializeToJSON() ([]byte, error) {
	return json.Marshal(struct{ ID int }{c.id})
}

// noJobSpecCmd supports Background/Scheduled per ExecutionMode but
// does not implement JobSpecProvider, exercising the missing-spec path.
type noJobSpecCmd struct{ mode ExecutionMode }

func (c noJobSpecCmd) ExecutionMode() ExecutionMode { return c.mode }

// noSerializerCmd has a JobSpec but no Serializer.
type noSerializerCmd struct{ mode ExecutionMode }

func (c noSerializerCmd) ExecutionMode() ExecutionMode { return c.mode }
func (c noSerializerCmd) JobSpec() JobSpec             { return NewJobSpec("x").Build() }

type countingEffect struct {
	calls      int
	batchCalls int
	err        error
	panicOn    bool
}

func (e *countingEffect) Execute(ctx context.Context, cmd Command, ectx EffectContext) (Event, error) {
	e.calls++
	if e.panicOn {
		panic("boom")
	}
	if e.err != nil {
		return nil, e.err
	}
	p := cmd.(processCmd)
	return testResult{ID: p.id}, nil
}

func (e *countingEffect) ExecuteBatch(ctx context.Context, cmds []Command, ectx EffectContext) ([]Event, error) {
	e.batchCalls++
	events := make([]Event, 0, len(cmds))
	for _, c := range cmds {
		p := c.(processCmd)
		events = append(events, testResult{ID: p.id})
	}
	return events, nil
}

type fakeJobQueue struct {
	enqueued  int
	scheduled int
}

func (q *fakeJobQueue) Enqueue(ctx context.Context, payload []byte, spec JobSpec) (string, error) {
	q.enqueued++
	return "job-1", nil
}

func (q *fakeJobQueue) Schedule(ctx context.Context, payload []byte, spec JobSpec, runAt time.Time) (string, error) {
	q.scheduled++
	return "job-2", nil
}

// --- tests ---

func TestDispatcherDuplicateRegistrationPanics(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	d.WithEffect(processCmd{}, &countingEffect{})
	assert.Panics(t, func() { d.WithEffect(processCmd{}, &countingEffect{}) })
}

func TestDispatcherTryWithEffectReturnsError(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	require.NoError(t, d.TryWithEffect(processCmd{}, &countingEffect{}))
	err := d.TryWithEffect(processCmd{}, &countingEffect{})
	assert.ErrorIs(t, err, ErrEffectAlreadyRegistered)
}

func TestDispatcherWithEffectReplaceOverwrites(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	first := &countingEffect{}
	second := &countingEffect{}
	d.WithEffect(processCmd{}, first)
	d.WithEffectReplace(processCmd{}, second)

	require.NoError(t, d.Dispatch(context.Background(), []Command{processCmd{id: 1, mode: Inline()}}))
	assert.Equal(t, 0, first.calls)
	assert.Equal(t, 1, second.calls)
}

func TestDispatchSingleCommandEmitsEvent(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	d := NewDispatcher(nil, bus)
	eff := &countingEffect{}
	d.WithEffect(processCmd{}, eff)

	require.NoError(t, d.Dispatch(context.Background(), []Command{processCmd{id: 5, mode: Inline()}}))

	env, _, _ := recv.Recv()
	v, ok := As[testResult](env)
	require.True(t, ok)
	assert.Equal(t, 5, v.ID)
	assert.Equal(t, 1, eff.calls)
	assert.Equal(t, 0, eff.batchCalls)
}

func TestDispatchBatchInvokesExecuteBatchOnce(t *testing.T) {
	bus := NewEventBus(8)
	recv := bus.Subscribe()
	d := NewDispatcher(nil, bus)
	eff := &countingEffect{}
	d.WithEffect(processCmd{}, eff)

	cmds := []Command{
		processCmd{id: 1, mode: Inline()},
		processCmd{id: 2, mode: Inline()},
		processCmd{id: 3, mode: Inline()},
	}
	require.NoError(t, d.Dispatch(context.Background(), cmds))

	assert.Equal(t, 1, eff.batchCalls)
	assert.Equal(t, 0, eff.calls)

	for i := 1; i <= 3; i++ {
		env, _, _ := recv.Recv()
		v, _ := As[testResult](env)
		assert.Equal(t, i, v.ID)
	}
}

// --- the two critical rules from the reference implementation ---

func TestDispatchExecutesBackgroundCommandsInline(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	d := NewDispatcher(nil, bus)
	eff := &countingEffect{}
	d.WithEffect(processCmd{}, eff)

	cmd := processCmd{id: 1, mode: Background()}
	require.NoError(t, d.Dispatch(context.Background(), []Command{cmd}))

	assert.Equal(t, 1, eff.calls, "Dispatch must run the effect regardless of declared execution mode")
	env, _, _ := recv.Recv()
	_, ok := As[testResult](env)
	assert.True(t, ok)
}

func TestDispatchOneEnqueuesBackgroundCommandsWithoutCallingEffect(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	eff := &countingEffect{}
	d.WithEffect(processCmd{}, eff)
	jq := &fakeJobQueue{}
	d.WithJobQueue(jq)

	cmd := processCmd{id: 1, mode: Background()}
	require.NoError(t, d.DispatchOne(context.Background(), cmd))

	assert.Equal(t, 0, eff.calls, "DispatchOne must not execute background commands directly")
	assert.Equal(t, 1, jq.enqueued)
}

func TestDispatchOneSchedulesScheduledCommands(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	d.WithEffect(processCmd{}, &countingEffect{})
	jq := &fakeJobQueue{}
	d.WithJobQueue(jq)

	cmd := processCmd{id: 1, mode: Scheduled(time.Now().Add(time.Hour))}
	require.NoError(t, d.DispatchOne(context.Background(), cmd))
	assert.Equal(t, 1, jq.scheduled)
}

func TestDispatchOneInlineDelegatesToDispatch(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	eff := &countingEffect{}
	d.WithEffect(processCmd{}, eff)

	require.NoError(t, d.DispatchOne(context.Background(), processCmd{id: 1, mode: Inline()}))
	assert.Equal(t, 1, eff.calls)
}

func TestDispatchOneNoOpJobQueueRefusesBackground(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	d.WithEffect(processCmd{}, &countingEffect{})

	err := d.DispatchOne(context.Background(), processCmd{id: 1, mode: Background()})
	assert.ErrorIs(t, err, ErrNoJobQueueConfigured)
}

func TestDispatchOneMissingJobSpecErrors(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	err := d.DispatchOne(context.Background(), noJobSpecCmd{mode: Background()})
	assert.ErrorIs(t, err, ErrMissingJobSpec)

	err = d.DispatchOne(context.Background(), noJobSpecCmd{mode: Scheduled(time.Now())})
	assert.ErrorIs(t, err, ErrMissingJobSpec)
}

func TestDispatchOneMissingSerializerErrors(t *testing.T) {
	bus := NewEventBus(4)
	d := NewDispatcher(nil, bus)
	err := d.DispatchOne(context.Background(), noSerializerCmd{mode: Background()})
	assert.ErrorIs(t, err, ErrMissingSerializer)

	err = d.DispatchOne(context.Background(), noSerializerCmd{mode: Scheduled(time.Now())})
	assert.ErrorIs(t, err, ErrMissingSerializer)
}

// --- failure / panic safety ---

func TestDispatchWithCorrelationEffectErrorRecordsInflightAndEmitsCommandFailed(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	inflight := NewInflightTracker()
	d := NewDispatcher(nil, bus)
	eff := &countingEffect{err: errors.New("boom")}
	d.WithEffect(processCmd{}, eff)

	cid := NewCorrelationId()
	err := d.DispatchWithCorrelation(context.Background(), []Command{processCmd{id: 1, mode: Inline()}}, cid, inflight)
	require.NoError(t, err, "dispatch_with_correlation itself always returns nil")

	assert.Equal(t, 0, inflight.ActiveCount(), "error with no waiters reaps immediately")

	env, _, _ := recv.Recv()
	failed, ok := As[CommandFailed](env)
	require.True(t, ok)
	assert.Equal(t, cid, failed.Cid)
}

func TestDispatchWithCorrelationEffectPanicIsCaught(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	inflight := NewInflightTracker()
	d := NewDispatcher(nil, bus)
	d.WithEffect(processCmd{}, &countingEffect{panicOn: true})

	cid := NewCorrelationId()
	err := d.DispatchWithCorrelation(context.Background(), []Command{processCmd{id: 1, mode: Inline()}}, cid, inflight)
	require.NoError(t, err)

	env, _, _ := recv.Recv()
	_, ok := As[CommandFailed](env)
	assert.True(t, ok)
}

func TestDispatchWithCorrelationSuccessDecrementsInflight(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	inflight := NewInflightTracker()
	d := NewDispatcher(nil, bus)
	d.WithEffect(processCmd{}, &countingEffect{})

	cid := NewCorrelationId()
	inflight.Inc(cid, 1) // simulate the Runtime's per-event guard
	err := d.DispatchWithCorrelation(context.Background(), []Command{processCmd{id: 1, mode: Inline()}}, cid, inflight)
	require.NoError(t, err)

	assert.Equal(t, 0, inflight.ActiveCount())
	env, _, _ := recv.Recv()
	_, ok := As[testResult](env)
	assert.True(t, ok)
}

func TestDispatchWithCorrelationNoEffectRegisteredRecordsError(t *testing.T) {
	bus := NewEventBus(4)
	inflight := NewInflightTracker()
	d := NewDispatcher(nil, bus)

	cid := NewCorrelationId()
	err := d.DispatchWithCorrelation(context.Background(), []Command{processCmd{id: 1, mode: Inline()}}, cid, inflight)
	require.NoError(t, err)
	assert.Equal(t, 0, inflight.ActiveCount())
}

func TestSanitizerAppliedToCommandFailed(t *testing.T) {
	bus := NewEventBus(4)
	recv := bus.Subscribe()
	d := NewDispatcher(nil, bus).WithSanitizer(func(s string) string { return "[redacted]" })
	d.WithEffect(processCmd{}, &countingEffect{err: errors.New("secret token abc123")})

	cid := NewCorrelationId()
	require.NoError(t, d.DispatchWithCorrelation(context.Background(), []Command{processCmd{id: 1, mode: Inline()}}, cid, nil))

	env, _, _ := recv.Recv()
	failed, _ := As[CommandFailed](env)
	assert.Equal(t, "[redacted]", failed.SanitizedMessage)
}
