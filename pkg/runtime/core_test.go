package runtime

import (
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

type testTrigger struct{ ID int }

func (testTrigger) Role() EventRole { return RoleInput }

type testResult struct{ ID int }

func (testResult) Role() EventRole { return RoleFact }

func TestCorrelationIdNoneSentinel(t *testing.T) {
	assert.True(t, NoCorrelation.IsNone())
	assert.False(t, NoCorrelation.IsSome())
	assert.Equal(t, "NONE", NoCorrelation.String())
}

func TestCorrelationIdSome(t *testing.T) {
	c := NewCorrelationId()
	assert.True(t, c.IsSome())
	assert.NotEqual(t, "NONE", c.String())
}

func TestCorrelationFromUUID(t *testing.T) {
	id := uuid.New()
	c := CorrelationFromUUID(id)
	assert.Equal(t, id, c.UUID())
}

func TestEventRoleClassification(t *testing.T) {
	assert.True(t, RoleInput.IsInput())
	assert.True(t, RoleInput.IsActionable())
	assert.True(t, RoleFact.IsFact())
	assert.True(t, RoleFact.IsActionable())
	assert.True(t, RoleSignal.IsSignal())
	assert.False(t, RoleSignal.IsActionable())
}

func TestEnvelopeDowncast(t *testing.T) {
	env := NewEnvelope(testTrigger{ID: 7})
	v, ok := As[testTrigger](env)
	assert.True(t, ok)
	assert.Equal(t, 7, v.ID)

	_, ok = As[testResult](env)
	assert.False(t, ok)
}

func TestEnvelopeMatchChain(t *testing.T) {
	env := NewEnvelope(testResult{ID: 9})
	m := NewEnvelopeMatch(env)

	chain := TryMatch[string](m).
		OrTry(func(m EnvelopeMatch) MatchResult[string] {
			if v, ok := EventAs[testTrigger](m); ok {
				return Matched(strconv.Itoa(v.ID))
			}
			return NoMatch[string]()
		}).
		OrTry(func(m EnvelopeMatch) MatchResult[string] {
			if v, ok := EventAs[testResult](m); ok {
				return Matched(strconv.Itoa(v.ID))
			}
			return NoMatch[string]()
		})

	r := chain.Result()
	assert.True(t, r.IsMatch())
	assert.Equal(t, "9", r.Value())
}

func TestExecutionModeKinds(t *testing.T) {
	assert.True(t, Inline().IsInline())
	assert.True(t, Background().IsBackground())
	runAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sch := Scheduled(runAt)
	assert.True(t, sch.IsScheduled())
	assert.Equal(t, runAt, sch.RunAt())
}
