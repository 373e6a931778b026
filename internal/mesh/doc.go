// Package mesh holds the indexed triangle mesh model, its file writers (OBJ,
// PLY, STL, GLB), and the geometry cleanup primitives applied after shape
// generation: floater removal, degenerate-face removal, and face reduction.
//
// Every cleanup function is a pure transform returning a new Mesh.
package mesh
