package testsupport

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"meshforge/internal/capability"
	"meshforge/internal/mesh"
)

// ErrStubFailure is returned by StubShape when told to fail.
var ErrStubFailure = errors.New("stub shape failure")

// StubShape is a ShapeGenerator returning a unit tetrahedron. It fails on the
// calls listed in FailOn (1-based) and runs Hook before every call.
type StubShape struct {
	FailOn map[int64]bool
	Hook   func(call int64)

	calls    atomic.Int64
	releases atomic.Int64
}

func (s *StubShape) GenerateShape(ctx context.Context, _ image.Image, _ capability.ShapeParams) (*mesh.Mesh, error) {
	call := s.calls.Add(1)
	if s.Hook != nil {
		s.Hook(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.FailOn[call] {
		return nil, ErrStubFailure
	}
	return Tetrahedron(), nil
}

// ReleaseCache counts releases.
func (s *StubShape) ReleaseCache(context.Context) error {
	s.releases.Add(1)
	return nil
}

// Calls returns how many shapes were requested.
func (s *StubShape) Calls() int64 { return s.calls.Load() }

// Releases returns how many times ReleaseCache ran.
func (s *StubShape) Releases() int64 { return s.releases.Load() }

// Tetrahedron returns a closed four-face mesh.
func Tetrahedron() *mesh.Mesh {
	return &mesh.Mesh{
		Vertices: [][3]float32{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		Faces:    [][3]uint32{{0, 2, 1}, {0, 1, 3}, {0, 3, 2}, {1, 2, 3}},
	}
}

// SharedFactory returns a Factory handing every worker a Set built around
// shape, with the built-in background remover, cleaner and texturer. It
// records the worker slots it was asked for.
func SharedFactory(shape capability.ShapeGenerator) (capability.Factory, func() []int) {
	var mu sync.Mutex
	var workers []int
	factory := func(worker int) (*capability.Set, error) {
		mu.Lock()
		workers = append(workers, worker)
		mu.Unlock()
		return &capability.Set{
			Shape:      shape,
			Background: capability.BorderRemover{Tolerance: 48},
			Texture:    capability.ProjectionTexturer{},
			Cleaner:    capability.NativeCleaner{},
		}, nil
	}
	return factory, func() []int {
		mu.Lock()
		defer mu.Unlock()
		return append([]int(nil), workers...)
	}
}
