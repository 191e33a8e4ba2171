package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"cinegenius-server/internal/models"
)

func sampleAnalysis() models.ScriptAnalysis {
	return models.ScriptAnalysis{
		Title:   "Night Shift",
		Logline: "A nurse uncovers a secret.",
		Scenes: []models.Scene{
			{SceneNumber: 1, Setting: "INT. HOSPITAL", TimeOfDay: "NIGHT", Summary: "Ann arrives.", Characters: []string{"Ann"}, Locations: "Hospital", Pages: "1"},
		},
		Characters: []models.Character{{Name: "Ann", Description: "Nurse"}},
	}
}

func loadingShots(scene int, n int) models.ShotList {
	list := models.ShotList{SceneNumber: scene}
	for i := 1; i <= n; i++ {
		list.Shots = append(list.Shots, models.Shot{ShotNumber: i, ShotType: "Wide", Lens: "24mm", Description: "d", IsLoadingImage: true})
	}
	return list
}

func TestApplyAnalysis_ResetsDerivedSlots(t *testing.T) {
	s := New("s")
	epoch, ok := s.ApplyAnalysis(s.Epoch(), sampleAnalysis())
	require.True(t, ok)

	require.True(t, s.ApplySchedule(epoch, []models.ScheduleDay{{Day: 1}}))
	require.True(t, s.ApplyGuide(epoch, 1, models.ProductionBible{}))
	s.AppendQuestion("who?")

	next, ok := s.ApplyAnalysis(epoch, sampleAnalysis())
	require.True(t, ok)
	assert.Greater(t, next, epoch)

	_, ok = s.Schedule()
	assert.False(t, ok)
	_, ok = s.Guide(1)
	assert.False(t, ok)
	assert.Empty(t, s.Conversation())
	_, ok = s.Analysis()
	assert.True(t, ok)
}

func TestReset_ClearsEverySlot(t *testing.T) {
	s := New("s")
	epoch, _ := s.ApplyAnalysis(0, sampleAnalysis())
	s.ApplySchedule(epoch, []models.ScheduleDay{{Day: 1}})
	s.ApplyShotList(epoch, loadingShots(1, 2))
	s.ApplyGuide(epoch, 1, models.ProductionBible{})
	s.ApplyContinuity(epoch, models.ContinuityAnalysis{})
	s.AppendQuestion("q")

	after := s.Reset()
	assert.Equal(t, epoch+1, after)

	_, ok := s.Analysis()
	assert.False(t, ok)
	_, ok = s.Schedule()
	assert.False(t, ok)
	_, ok = s.ShotList()
	assert.False(t, ok)
	_, ok = s.Guide(1)
	assert.False(t, ok)
	_, ok = s.Continuity()
	assert.False(t, ok)
	assert.Empty(t, s.Conversation())
}

func TestStaleEpochWritesAreDropped(t *testing.T) {
	s := New("s")
	epoch, _ := s.ApplyAnalysis(0, sampleAnalysis())
	version, ok := s.ApplyShotList(epoch, loadingShots(1, 1))
	require.True(t, ok)

	s.Reset()

	assert.False(t, s.ApplySchedule(epoch, []models.ScheduleDay{{Day: 1}}))
	assert.False(t, s.ApplyGuide(epoch, 1, models.ProductionBible{}))
	assert.False(t, s.ApplyContinuity(epoch, models.ContinuityAnalysis{}))
	_, ok = s.UpdateShotImage(epoch, version, 0, "data:image/jpeg;base64,AA==")
	assert.False(t, ok)
	_, ok = s.ApplyAnalysis(epoch, sampleAnalysis())
	assert.False(t, ok)

	_, ok = s.Schedule()
	assert.False(t, ok)
}

func TestUpdateShotImage(t *testing.T) {
	s := New("s")
	epoch := s.Epoch()
	version, ok := s.ApplyShotList(epoch, loadingShots(3, 3))
	require.True(t, ok)

	shot, ok := s.UpdateShotImage(epoch, version, 1, models.ImageErrorSentinel)
	require.True(t, ok)
	assert.Equal(t, 2, shot.ShotNumber)
	assert.True(t, shot.ImageFailed())
	assert.False(t, shot.IsLoadingImage)

	// Повторное разрешение того же кадра игнорируется
	_, ok = s.UpdateShotImage(epoch, version, 1, "data:image/jpeg;base64,AA==")
	assert.False(t, ok)

	_, ok = s.UpdateShotImage(epoch, version, 3, "x")
	assert.False(t, ok)
	_, ok = s.UpdateShotImage(epoch, version, -1, "x")
	assert.False(t, ok)

	list, _ := s.ShotList()
	assert.True(t, list.Shots[0].IsLoadingImage)
	assert.Equal(t, models.ImageErrorSentinel, list.Shots[1].ImageURL)
	assert.True(t, list.Shots[2].IsLoadingImage)
}

func TestUpdateShotImage_DuplicateShotNumbers(t *testing.T) {
	s := New("s")
	epoch := s.Epoch()
	list := loadingShots(1, 2)
	list.Shots[1].ShotNumber = 1
	version, ok := s.ApplyShotList(epoch, list)
	require.True(t, ok)

	_, ok = s.UpdateShotImage(epoch, version, 0, "data:image/jpeg;base64,AA==")
	require.True(t, ok)
	_, ok = s.UpdateShotImage(epoch, version, 1, "data:image/jpeg;base64,AQ==")
	require.True(t, ok)

	stored, _ := s.ShotList()
	for _, shot := range stored.Shots {
		assert.False(t, shot.IsLoadingImage)
	}
	assert.Equal(t, "data:image/jpeg;base64,AQ==", stored.Shots[1].ImageURL)
}

func TestUpdateShotImage_ReplacedListRejectsOldVersion(t *testing.T) {
	s := New("s")
	epoch := s.Epoch()
	first, ok := s.ApplyShotList(epoch, loadingShots(1, 1))
	require.True(t, ok)
	second, ok := s.ApplyShotList(epoch, loadingShots(1, 1))
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	_, ok = s.UpdateShotImage(epoch, first, 0, "data:image/jpeg;base64,T0xE")
	assert.False(t, ok)

	list, _ := s.ShotList()
	assert.True(t, list.Shots[0].IsLoadingImage)
	assert.Empty(t, list.Shots[0].ImageURL)

	_, ok = s.UpdateShotImage(epoch, second, 0, "data:image/jpeg;base64,TkVX")
	assert.True(t, ok)
}

func TestShotListIsCopied(t *testing.T) {
	s := New("s")
	s.ApplyShotList(0, loadingShots(1, 1))
	list, _ := s.ShotList()
	list.Shots[0].Description = "changed"

	again, _ := s.ShotList()
	assert.Equal(t, "d", again.Shots[0].Description)
}

func TestResolvePending_AfterConcurrentAppends(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := New("s")
	const n = 20
	tickets := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tickets[i] = s.AppendQuestion(fmt.Sprintf("q%d", i))
		}(i)
	}
	wg.Wait()

	for i := n - 1; i >= 0; i-- {
		require.True(t, s.ResolvePending(tickets[i], fmt.Sprintf("a-%s", tickets[i])))
	}
	assert.False(t, s.ResolvePending(tickets[0], "again"))

	turns := s.Conversation()
	require.Len(t, turns, 2*n)
	for i := 0; i < len(turns); i += 2 {
		assert.Equal(t, models.RoleUser, turns[i].Role)
		assert.Equal(t, models.RoleAssistant, turns[i+1].Role)
		assert.Empty(t, turns[i+1].PendingID)
	}
}

func TestResolvePending_AfterResetIsDropped(t *testing.T) {
	s := New("s")
	ticket := s.AppendQuestion("q")
	s.Reset()
	assert.False(t, s.ResolvePending(ticket, "late answer"))
	assert.Empty(t, s.Conversation())
}

func TestDoGuide_SingleFlight(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := New("s")
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex

	generate := func() (models.ProductionBible, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		<-release
		return models.ProductionBible{Camera: []models.CameraNote{{Recommendation: "ARRI"}}}, nil
	}

	var wg sync.WaitGroup
	results := make([]models.ProductionBible, 2)
	started := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		results[0], _, _ = s.DoGuide(0, 1, generate)
	}()
	<-started
	// Даем первому вызову войти в singleflight
	time.Sleep(20 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _, _ = s.DoGuide(0, 1, generate)
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, calls)
	assert.Equal(t, "ARRI", results[0].Camera[0].Recommendation)
	assert.Equal(t, results[0], results[1])
}

func TestDoGuide_NewEpochDoesNotJoinOldFlight(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := New("s")
	release := make(chan struct{})
	started := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _, _ = s.DoGuide(0, 1, func() (models.ProductionBible, error) {
			close(started)
			<-release
			return models.ProductionBible{Camera: []models.CameraNote{{Recommendation: "OLD"}}}, nil
		})
	}()
	<-started

	guide, err, shared := s.DoGuide(1, 1, func() (models.ProductionBible, error) {
		return models.ProductionBible{Camera: []models.CameraNote{{Recommendation: "NEW"}}}, nil
	})
	require.NoError(t, err)
	assert.False(t, shared)
	assert.Equal(t, "NEW", guide.Camera[0].Recommendation)

	close(release)
	wg.Wait()
}

func TestSnapshotRestore(t *testing.T) {
	s := New("s-1")
	epoch, _ := s.ApplyAnalysis(0, sampleAnalysis())
	version, _ := s.ApplyShotList(epoch, loadingShots(1, 2))
	s.UpdateShotImage(epoch, version, 0, "data:image/jpeg;base64,AA==")
	s.ApplyGuide(epoch, 1, models.ProductionBible{Art: []models.ArtNote{{Prop: "lamp"}}})
	s.AppendQuestion("q")

	restored := Restore(s.Snapshot())
	assert.Equal(t, "s-1", restored.ID)
	assert.Equal(t, epoch, restored.Epoch())

	list, ok := restored.ShotList()
	require.True(t, ok)
	assert.Equal(t, "data:image/jpeg;base64,AA==", list.Shots[0].ImageURL)
	assert.False(t, list.Shots[1].IsLoadingImage)
	assert.Equal(t, models.ImageErrorSentinel, list.Shots[1].ImageURL)

	g, ok := restored.Guide(1)
	require.True(t, ok)
	assert.Equal(t, "lamp", g.Art[0].Prop)

	turns := restored.Conversation()
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
}

type memStore struct {
	mu    sync.Mutex
	snaps map[string]Snapshot
}

func newMemStore() *memStore { return &memStore{snaps: make(map[string]Snapshot)} }

func (m *memStore) Save(_ context.Context, snap Snapshot, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.SessionID] = snap
	return nil
}

func (m *memStore) Load(_ context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return Snapshot{}, models.ErrSessionNotFound
	}
	return snap, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}

func TestManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewManager(store, time.Hour, zap.NewNop())
	defer m.Close()

	s := m.Create(ctx)
	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrSessionNotFound)

	epoch, _ := s.ApplyAnalysis(s.Epoch(), sampleAnalysis())
	m.Persist(ctx, s)

	// Новый экземпляр сервиса восстанавливает сессию из хранилища
	other := NewManager(store, time.Hour, zap.NewNop())
	defer other.Close()
	restored, err := other.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, epoch, restored.Epoch())
	_, ok := restored.Analysis()
	assert.True(t, ok)

	newEpoch, err := m.Reset(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, epoch+1, newEpoch)

	require.NoError(t, m.Delete(ctx, s.ID))
	assert.ErrorIs(t, m.Delete(ctx, s.ID), models.ErrSessionNotFound)
	_, err = store.Load(ctx, s.ID)
	assert.ErrorIs(t, err, models.ErrSessionNotFound)
}

func TestManager_EvictIdle(t *testing.T) {
	defer goleak.VerifyNone(t)
	m := NewManager(nil, time.Millisecond, zap.NewNop())
	defer m.Close()
	m.Create(context.Background())
	m.StartJanitor(time.Hour)

	assert.Equal(t, 1, m.evictIdle(time.Now().Add(time.Second)))
	assert.Equal(t, 0, m.Len())
}
