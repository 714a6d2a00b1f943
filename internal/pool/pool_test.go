package pool

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/alertd/internal/model"
)

type fakeInstance struct {
	kind     model.Kind
	content  string
	resets   int
	inert    bool
	invalid  bool
	disposed bool
}

func (f *fakeInstance) Kind() model.Kind { return f.kind }

func (f *fakeInstance) Reset() bool {
	f.resets++
	f.content = ""
	return !f.inert
}

func (f *fakeInstance) Valid() bool { return !f.invalid && !f.disposed }

func (f *fakeInstance) Dispose() { f.disposed = true }

func newTestPool(maxSize int) *Pool {
	p := New(maxSize, nil)
	p.Register(model.KindToast, func() (Instance, error) {
		return &fakeInstance{kind: model.KindToast}, nil
	})
	p.Register(model.KindBanner, func() (Instance, error) {
		return &fakeInstance{kind: model.KindBanner}, nil
	})
	return p
}

func TestPool_AcquireNew(t *testing.T) {
	p := newTestPool(2)

	inst, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	assert.Equal(t, model.KindToast, inst.Kind())
	assert.Equal(t, 0, p.IdleCount(model.KindToast))
	assert.Equal(t, 1, p.ActiveCount())
	assert.Equal(t, uint64(1), p.Stats().Created)
}

func TestPool_ReuseIsIdentityPreserving(t *testing.T) {
	p := newTestPool(2)

	first, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	first.(*fakeInstance).content = "hello"

	p.Release(first)
	assert.Equal(t, 1, p.IdleCount(model.KindToast))
	assert.Equal(t, 0, p.ActiveCount())
	assert.True(t, p.IsIdle(first))
	assert.Empty(t, first.(*fakeInstance).content, "release resets visible state")

	second, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 0, p.IdleCount(model.KindToast))
	assert.False(t, p.IsIdle(second))

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(1), stats.Reused)
}

func TestPool_ReuseIsPerKind(t *testing.T) {
	p := newTestPool(2)

	toast, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	p.Release(toast)

	banner, err := p.Acquire(model.KindBanner)
	require.NoError(t, err)
	assert.NotSame(t, toast, banner)
	assert.Equal(t, 1, p.IdleCount(model.KindToast))
}

func TestPool_MaxSize(t *testing.T) {
	p := newTestPool(1)

	a, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	b, err := p.Acquire(model.KindToast)
	require.NoError(t, err)

	p.Release(a)
	assert.Equal(t, 1, p.IdleCount(model.KindToast))

	// b is discarded, not pooled
	p.Release(b)
	assert.Equal(t, 1, p.IdleCount(model.KindToast))
	assert.True(t, p.IsIdle(a))
	assert.True(t, b.(*fakeInstance).disposed)
	assert.Equal(t, uint64(1), p.Stats().Disposed)
}

func TestPool_DuplicateReleaseIsNoop(t *testing.T) {
	p := newTestPool(5)

	inst, err := p.Acquire(model.KindToast)
	require.NoError(t, err)

	p.Release(inst)
	p.Release(inst)
	assert.Equal(t, 1, p.IdleCount(model.KindToast))
	assert.Equal(t, 1, inst.(*fakeInstance).resets)
}

func TestPool_ReleaseUntrackedIsNoop(t *testing.T) {
	p := newTestPool(5)

	stranger := &fakeInstance{kind: model.KindToast}
	p.Release(stranger)
	p.Release(nil)

	assert.Equal(t, 0, p.IdleCount(model.KindToast))
	assert.Equal(t, 0, stranger.resets)
}

func TestPool_ReleaseInvalidIsNoop(t *testing.T) {
	p := newTestPool(5)

	inst, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	inst.(*fakeInstance).invalid = true

	p.Release(inst)
	assert.Equal(t, 0, p.IdleCount(model.KindToast))
	assert.Equal(t, 0, p.ActiveCount())
	assert.Equal(t, 0, inst.(*fakeInstance).resets)
}

func TestPool_ReleaseInertIsDisposed(t *testing.T) {
	p := newTestPool(5)

	inst, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	inst.(*fakeInstance).inert = true

	p.Release(inst)
	assert.Equal(t, 0, p.IdleCount(model.KindToast))
	assert.True(t, inst.(*fakeInstance).disposed)
}

func TestPool_AcquireSkipsInvalidIdle(t *testing.T) {
	p := newTestPool(5)

	inst, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	p.Release(inst)
	inst.(*fakeInstance).invalid = true

	fresh, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	assert.NotSame(t, inst, fresh)
	assert.Equal(t, uint64(2), p.Stats().Created)
}

func TestPool_UnknownKind(t *testing.T) {
	p := newTestPool(5)

	_, err := p.Acquire("hologram")
	assert.ErrorIs(t, err, ErrUnknownKind)
	assert.False(t, p.Has("hologram"))
	assert.True(t, p.Has(model.KindToast))
}

func TestPool_Kinds(t *testing.T) {
	p := New(5, nil)
	assert.Empty(t, p.Kinds())

	p = newTestPool(5)
	p.Register(model.KindAlert, func() (Instance, error) {
		return &fakeInstance{kind: model.KindAlert}, nil
	})
	assert.Equal(t, []model.Kind{model.KindAlert, model.KindBanner, model.KindToast}, p.Kinds())
}

func TestPool_ConstructionFailure(t *testing.T) {
	p := New(5, nil)
	cause := errors.New("out of handles")
	p.Register(model.KindAlert, func() (Instance, error) {
		return nil, cause
	})
	p.Register(model.KindToast, func() (Instance, error) {
		return nil, nil
	})

	_, err := p.Acquire(model.KindAlert)
	assert.ErrorIs(t, err, ErrConstruction)
	assert.ErrorIs(t, err, cause)

	_, err = p.Acquire(model.KindToast)
	assert.ErrorIs(t, err, ErrConstruction)
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPool_Cleanup(t *testing.T) {
	p := newTestPool(5)

	var insts []Instance
	for range 3 {
		inst, err := p.Acquire(model.KindToast)
		require.NoError(t, err)
		insts = append(insts, inst)
	}
	for _, inst := range insts {
		p.Release(inst)
	}
	require.Equal(t, 3, p.IdleCount(model.KindToast))

	insts[0].(*fakeInstance).inert = true
	insts[1].(*fakeInstance).invalid = true

	assert.Equal(t, 2, p.Cleanup())
	assert.Equal(t, 1, p.IdleCount(model.KindToast))
	assert.True(t, p.IsIdle(insts[2]))
	assert.True(t, insts[0].(*fakeInstance).disposed)
}

func TestPool_SetMaxSizeTrims(t *testing.T) {
	p := newTestPool(5)

	var insts []Instance
	for range 4 {
		inst, err := p.Acquire(model.KindToast)
		require.NoError(t, err)
		insts = append(insts, inst)
	}
	for _, inst := range insts {
		p.Release(inst)
	}

	p.SetMaxSize(2)
	assert.Equal(t, 2, p.MaxSize())
	assert.Equal(t, 2, p.IdleCount(model.KindToast))
	assert.True(t, insts[3].(*fakeInstance).disposed)
	assert.False(t, insts[0].(*fakeInstance).disposed)
}

func TestPool_Drain(t *testing.T) {
	p := newTestPool(5)

	inst, err := p.Acquire(model.KindToast)
	require.NoError(t, err)
	p.Release(inst)

	p.Drain()
	assert.Equal(t, 0, p.IdleCount(model.KindToast))
	assert.True(t, inst.(*fakeInstance).disposed)
}
