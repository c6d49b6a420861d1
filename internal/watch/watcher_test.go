package watch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu  sync.Mutex
	fp  map[string]int64
	err error
}

func (f *fakeSource) Fingerprints(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]int64, len(f.fp))
	for k, v := range f.fp {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSource) set(id string, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fp[id] = v
}

func TestCheck_DetectsChanges(t *testing.T) {
	src := &fakeSource{fp: map[string]int64{"a": 1, "b": 1}}
	w := New(src, time.Hour, nil, nil)

	assert.Empty(t, w.Check())

	src.set("a", 2)
	src.set("c", 1)
	delete(src.fp, "b")

	changes := w.Check()
	sort.Slice(changes, func(i, j int) bool { return changes[i].ID < changes[j].ID })
	assert.Equal(t, []Change{
		{ID: "a", Kind: Updated},
		{ID: "b", Kind: Removed},
		{ID: "c", Kind: Added},
	}, changes)

	assert.Empty(t, w.Check())
}

func TestCheck_ErrorKeepsBaseline(t *testing.T) {
	src := &fakeSource{fp: map[string]int64{"a": 1}}
	w := New(src, time.Hour, nil, nil)
	w.Check()

	src.err = errors.New("db locked")
	assert.Nil(t, w.Check())

	src.err = nil
	src.set("a", 2)
	assert.Equal(t, []Change{{ID: "a", Kind: Updated}}, w.Check())
}

func TestWatcher_PollsUntilStopped(t *testing.T) {
	src := &fakeSource{fp: map[string]int64{"a": 1}}
	got := make(chan Change, 4)
	w := New(src, 10*time.Millisecond, func(c Change) { got <- c }, nil)
	w.Start()
	defer w.Stop()

	src.set("a", 5)

	select {
	case c := <-got:
		require.Equal(t, Change{ID: "a", Kind: Updated}, c)
	case <-time.After(2 * time.Second):
		t.Fatal("change not reported")
	}
}
