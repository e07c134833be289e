package progress

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/lordpython/videoforge/common"
	"github.com/lordpython/videoforge/session"
)

func newTestMonitor(t *testing.T) (*Monitor, uuid.UUID, func() (session.Session, error)) {
	t.Helper()
	store, err := session.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	id, err := store.Create(session.JobRequest{Prompt: "p", DurationSec: 30}, "u")
	if err != nil {
		t.Fatalf("store.Create: %v", err)
	}
	m := New(store)
	m.Start(id, nil)
	return m, id, func() (session.Session, error) { return store.Get(id) }
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	a := assert.New(t)

	var sum float64
	for _, w := range DefaultWeights() {
		sum += w
	}
	a.InDelta(1.0, sum, 1e-9)
}

func TestUpdateStageProgressWritesThroughOverall(t *testing.T) {
	a := assert.New(t)

	m, id, get := newTestMonitor(t)

	a.NoError(m.UpdateStageProgress(id, common.EStage.Researching(), 0.5))

	sess, err := get()
	a.NoError(err)
	a.InDelta(0.10*0.5, sess.Progress, 1e-9)
	a.Equal(common.EStage.Researching(), sess.Stage)
}

func TestUpdateStageProgressClampsOutOfRange(t *testing.T) {
	a := assert.New(t)

	m, id, _ := newTestMonitor(t)

	a.NoError(m.UpdateStageProgress(id, common.EStage.Researching(), 5))
	snap, err := m.Progress(id)
	a.NoError(err)
	a.Equal(float64(1), snap.PerStage[common.EStage.Researching()].Progress)
}

func TestAdvanceMarksPriorStagesComplete(t *testing.T) {
	a := assert.New(t)

	m, id, _ := newTestMonitor(t)

	a.NoError(m.Advance(id, common.EStage.AssetSourcing()))

	snap, err := m.Progress(id)
	a.NoError(err)
	a.Equal(common.EStage.AssetSourcing(), snap.CurrentStage)
	a.Equal(float64(1), snap.PerStage[common.EStage.Initializing()].Progress)
	a.Equal(float64(1), snap.PerStage[common.EStage.Researching()].Progress)
	a.Equal(float64(1), snap.PerStage[common.EStage.Scripting()].Progress)
}

func TestCompleteSuccessSetsFullProgressAndStopsTracking(t *testing.T) {
	a := assert.New(t)

	m, id, get := newTestMonitor(t)

	a.NoError(m.Complete(id, true, ""))

	sess, err := get()
	a.NoError(err)
	a.Equal(common.ESessionStatus.Completed(), sess.Status)
	a.Equal(float64(1), sess.Progress)

	_, err = m.Progress(id)
	a.Error(err)
}

func TestCompleteFailurePreservesPartialProgressAndError(t *testing.T) {
	a := assert.New(t)

	m, id, get := newTestMonitor(t)

	a.NoError(m.UpdateStageProgress(id, common.EStage.Researching(), 1))
	a.NoError(m.Complete(id, false, "upstream timeout"))

	sess, err := get()
	a.NoError(err)
	a.Equal(common.ESessionStatus.Failed(), sess.Status)
	a.Equal("upstream timeout", sess.Error)
	a.True(sess.Progress > 0 && sess.Progress < 1)
}

func TestProgressUnknownSessionReturnsNotFound(t *testing.T) {
	a := assert.New(t)

	store, err := session.New(t.TempDir(), nil)
	a.NoError(err)
	m := New(store)

	_, err = m.Progress(uuid.New())
	a.Error(err)
	a.Equal(common.EErrorKind.NotFound(), common.KindOf(err))
}
