package common

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionStatusStringAndParse(t *testing.T) {
	a := assert.New(t)

	a.Equal("Completed", ESessionStatus.Completed().String())

	var s SessionStatus
	a.NoError(s.Parse("failed"))
	a.Equal(ESessionStatus.Failed(), s)

	a.Error(s.Parse("not-a-status"))
}

func TestSessionStatusIsTerminal(t *testing.T) {
	a := assert.New(t)

	a.True(ESessionStatus.Completed().IsTerminal())
	a.True(ESessionStatus.Failed().IsTerminal())
	a.True(ESessionStatus.Cancelled().IsTerminal())
	a.False(ESessionStatus.Queued().IsTerminal())
	a.False(ESessionStatus.Processing().IsTerminal())
}

func TestStageOrder(t *testing.T) {
	a := assert.New(t)

	a.Equal(0, EStage.Initializing().Order())
	a.Equal(6, EStage.Finalizing().Order())
	a.Equal(-1, EStage.Completed().Order())
	a.Equal(-1, EStage.Failed().Order())
}

func TestStageJSONRoundTrip(t *testing.T) {
	a := assert.New(t)

	b, err := json.Marshal(EStage.Scripting())
	a.NoError(err)
	a.Equal(`"Scripting"`, string(b))

	var s Stage
	a.NoError(json.Unmarshal(b, &s))
	a.Equal(EStage.Scripting(), s)
}

func TestQualityTierMultiplier(t *testing.T) {
	a := assert.New(t)

	a.Equal(0.5, EQualityTier.Low().Multiplier())
	a.Equal(1.0, EQualityTier.Medium().Multiplier())
	a.Equal(1.5, EQualityTier.High().Multiplier())
	a.Equal(2.0, EQualityTier.Ultra().Multiplier())
}

func TestPriorityParseCaseInsensitive(t *testing.T) {
	a := assert.New(t)

	var p Priority
	a.NoError(p.Parse("URGENT"))
	a.Equal(EPriority.Urgent(), p)
}
