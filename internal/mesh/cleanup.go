package mesh

import (
	"math"
	"sort"
)

const degenerateAreaEpsilon = 1e-12

// RemoveDegenerateFaces drops faces that repeat a vertex index or enclose
// (near) zero area.
func RemoveDegenerateFaces(m *Mesh) *Mesh {
	out := &Mesh{Vertices: m.Vertices, Colors: m.Colors}
	out.Faces = make([][3]uint32, 0, len(m.Faces))
	for _, f := range m.Faces {
		if f[0] == f[1] || f[1] == f[2] || f[0] == f[2] {
			continue
		}
		area := length(faceNormal(m.Vertices[f[0]], m.Vertices[f[1]], m.Vertices[f[2]]))
		if area <= degenerateAreaEpsilon {
			continue
		}
		out.Faces = append(out.Faces, f)
	}
	return DropUnreferencedVertices(out)
}

// RemoveFloaters drops connected components with fewer than minFaces faces.
// The largest component is always kept so a mesh is never emptied.
func RemoveFloaters(m *Mesh, minFaces int) *Mesh {
	if len(m.Faces) == 0 {
		return m.Clone()
	}
	components := faceComponents(m)
	largest := 0
	sizes := make(map[int]int)
	for _, root := range components {
		sizes[root]++
		if sizes[root] > sizes[largest] || (sizes[root] == sizes[largest] && root < largest) {
			largest = root
		}
	}
	out := &Mesh{Vertices: m.Vertices, Colors: m.Colors}
	for i, f := range m.Faces {
		root := components[i]
		if root == largest || sizes[root] >= minFaces {
			out.Faces = append(out.Faces, f)
		}
	}
	return DropUnreferencedVertices(out)
}

// ComponentCount returns the number of face-connected components.
func ComponentCount(m *Mesh) int {
	seen := make(map[int]struct{})
	for _, root := range faceComponents(m) {
		seen[root] = struct{}{}
	}
	return len(seen)
}

// faceComponents labels every face with the smallest face index of its
// vertex-connected component.
func faceComponents(m *Mesh) []int {
	parent := make([]int, len(m.Vertices))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}
	for _, f := range m.Faces {
		union(int(f[0]), int(f[1]))
		union(int(f[1]), int(f[2]))
	}
	firstFace := make(map[int]int)
	labels := make([]int, len(m.Faces))
	for i, f := range m.Faces {
		root := find(int(f[0]))
		if _, ok := firstFace[root]; !ok {
			firstFace[root] = i
		}
		labels[i] = firstFace[root]
	}
	return labels
}

// ReduceFaces decimates m to at most maxFaces faces by vertex clustering on a
// uniform grid. The finest grid that satisfies the budget is chosen. A
// maxFaces of zero or a mesh already under budget returns a copy.
func ReduceFaces(m *Mesh, maxFaces int) *Mesh {
	if maxFaces <= 0 || len(m.Faces) <= maxFaces {
		return m.Clone()
	}
	lo, hi := 1, 1024
	var best *Mesh
	for lo <= hi {
		mid := (lo + hi) / 2
		candidate := clusterVertices(m, mid)
		if len(candidate.Faces) <= maxFaces {
			best = candidate
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best == nil {
		best = clusterVertices(m, 1)
	}
	return best
}

func clusterVertices(m *Mesh, resolution int) *Mesh {
	minV, maxV := m.Bounds()
	extent := float32(0)
	for k := 0; k < 3; k++ {
		extent = max(extent, maxV[k]-minV[k])
	}
	if extent == 0 {
		extent = 1
	}
	cell := extent / float32(resolution)

	type key [3]int32
	clusterOf := make(map[key]uint32)
	remap := make([]uint32, len(m.Vertices))
	var sums [][3]float64
	var colorSums [][3]float64
	var counts []float64
	colored := m.HasColors()

	for i, v := range m.Vertices {
		var k key
		for a := 0; a < 3; a++ {
			k[a] = int32(math.Floor(float64((v[a] - minV[a]) / cell)))
		}
		idx, ok := clusterOf[k]
		if !ok {
			idx = uint32(len(sums))
			clusterOf[k] = idx
			sums = append(sums, [3]float64{})
			colorSums = append(colorSums, [3]float64{})
			counts = append(counts, 0)
		}
		remap[i] = idx
		for a := 0; a < 3; a++ {
			sums[idx][a] += float64(v[a])
			if colored {
				colorSums[idx][a] += float64(m.Colors[i][a])
			}
		}
		counts[idx]++
	}

	out := &Mesh{Vertices: make([][3]float32, len(sums))}
	if colored {
		out.Colors = make([][3]uint8, len(sums))
	}
	for i := range sums {
		for a := 0; a < 3; a++ {
			out.Vertices[i][a] = float32(sums[i][a] / counts[i])
			if colored {
				out.Colors[i][a] = uint8(math.Round(colorSums[i][a] / counts[i]))
			}
		}
	}

	seen := make(map[[3]uint32]struct{}, len(m.Faces))
	for _, f := range m.Faces {
		g := [3]uint32{remap[f[0]], remap[f[1]], remap[f[2]]}
		if g[0] == g[1] || g[1] == g[2] || g[0] == g[2] {
			continue
		}
		canon := canonicalFace(g)
		if _, dup := seen[canon]; dup {
			continue
		}
		seen[canon] = struct{}{}
		out.Faces = append(out.Faces, g)
	}
	return DropUnreferencedVertices(out)
}

func canonicalFace(f [3]uint32) [3]uint32 {
	s := []uint32{f[0], f[1], f[2]}
	sort.Slice(s, func(i, j int) bool { return s[i] < s[j] })
	return [3]uint32{s[0], s[1], s[2]}
}

// MergeDuplicateVertices welds vertices closer than epsilon on every axis.
func MergeDuplicateVertices(m *Mesh, epsilon float32) *Mesh {
	if epsilon <= 0 {
		epsilon = 1e-6
	}
	type key [3]int64
	index := make(map[key]uint32, len(m.Vertices))
	remap := make([]uint32, len(m.Vertices))
	out := &Mesh{}
	colored := m.HasColors()
	for i, v := range m.Vertices {
		k := key{
			int64(math.Round(float64(v[0] / epsilon))),
			int64(math.Round(float64(v[1] / epsilon))),
			int64(math.Round(float64(v[2] / epsilon))),
		}
		idx, ok := index[k]
		if !ok {
			idx = uint32(len(out.Vertices))
			index[k] = idx
			out.Vertices = append(out.Vertices, v)
			if colored {
				out.Colors = append(out.Colors, m.Colors[i])
			}
		}
		remap[i] = idx
	}
	out.Faces = make([][3]uint32, 0, len(m.Faces))
	for _, f := range m.Faces {
		out.Faces = append(out.Faces, [3]uint32{remap[f[0]], remap[f[1]], remap[f[2]]})
	}
	return out
}

// DropUnreferencedVertices compacts the vertex array to the vertices used by
// faces, preserving their relative order.
func DropUnreferencedVertices(m *Mesh) *Mesh {
	used := make([]bool, len(m.Vertices))
	for _, f := range m.Faces {
		used[f[0]], used[f[1]], used[f[2]] = true, true, true
	}
	remap := make([]uint32, len(m.Vertices))
	out := &Mesh{}
	colored := m.HasColors()
	for i, v := range m.Vertices {
		if !used[i] {
			continue
		}
		remap[i] = uint32(len(out.Vertices))
		out.Vertices = append(out.Vertices, v)
		if colored {
			out.Colors = append(out.Colors, m.Colors[i])
		}
	}
	out.Faces = make([][3]uint32, len(m.Faces))
	for i, f := range m.Faces {
		out.Faces[i] = [3]uint32{remap[f[0]], remap[f[1]], remap[f[2]]}
	}
	return out
}
