package renderer

import (
	"strings"
	"testing"

	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/gpu/null"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

// newTestMesh builds a single-triangle mesh with device-resident
// buffers, enough for acceleration structure sizing and builds.
func newTestMesh(t *testing.T, device *null.Device) *metadata.Mesh {
	t.Helper()
	vb, err := device.NewBuffer(gpu.BufferDesc{Size: 3 * 32, Upload: true})
	if err != nil {
		t.Fatalf("vertex buffer: %v", err)
	}
	ib, err := device.NewBuffer(gpu.BufferDesc{Size: 3 * 4, Upload: true})
	if err != nil {
		t.Fatalf("index buffer: %v", err)
	}
	return &metadata.Mesh{
		Name:         "triangle",
		VertexBuffer: vb,
		VertexCount:  3,
		VertexStride: 32,
		IndexBuffer:  ib,
		IndexCount:   3,
		Primitives:   []metadata.PrimitiveRange{{FirstIndex: 0, IndexCount: 3}},
		Transform:    math.NewMat4Identity(),
	}
}

func TestBuildSceneAccelBuildsBottomAndTop(t *testing.T) {
	device := null.NewDevice()
	meshes := []metadata.Renderable{
		newTestMesh(t, device),
		newTestMesh(t, device),
	}

	sa, err := BuildSceneAccel(device, meshes)
	if err != nil {
		t.Fatalf("BuildSceneAccel: %v", err)
	}
	defer sa.Destroy()

	if sa.TopLevel == nil {
		t.Fatal("no top-level structure built")
	}
	for i, m := range meshes {
		if m.AccelStructure() == nil {
			t.Fatalf("mesh %d has no bottom-level structure", i)
		}
	}

	// One submission: every bottom build, then the top build, with a
	// barrier after each so the shared scratch buffer is reused safely.
	var bottoms, tops, barriers int
	for _, op := range device.Ops() {
		switch {
		case strings.HasPrefix(op, "build-accel bottom"):
			bottoms++
		case strings.HasPrefix(op, "build-accel top"):
			tops++
		case op == "uav-barrier":
			barriers++
		}
	}
	if bottoms != 2 {
		t.Fatalf("bottom-level builds = %d, want 2", bottoms)
	}
	if tops != 1 {
		t.Fatalf("top-level builds = %d, want 1", tops)
	}
	if barriers < bottoms+tops {
		t.Fatalf("uav barriers = %d, want at least %d", barriers, bottoms+tops)
	}
}

func TestBuildSceneAccelSharesLargestScratch(t *testing.T) {
	device := null.NewDevice()

	small := newTestMesh(t, device)
	big := newTestMesh(t, device)
	big.IndexCount = 3000
	big.Primitives = []metadata.PrimitiveRange{{FirstIndex: 0, IndexCount: 3000}}

	var want uint64
	for _, m := range []*metadata.Mesh{small, big} {
		info := device.AccelPrebuildInfo(gpu.AccelInputs{Geometries: m.AccelGeometry()})
		if info.ScratchSize > want {
			want = info.ScratchSize
		}
	}
	if top := device.AccelPrebuildInfo(gpu.AccelInputs{TopLevel: true, InstanceCount: 2}); top.ScratchSize > want {
		want = top.ScratchSize
	}

	sa, err := BuildSceneAccel(device, []metadata.Renderable{small, big})
	if err != nil {
		t.Fatalf("BuildSceneAccel: %v", err)
	}
	defer sa.Destroy()

	if sa.scratch.Size() != want {
		t.Fatalf("scratch is %d bytes, want the largest requirement %d", sa.scratch.Size(), want)
	}
}

func TestBuildSceneAccelRejectsEmptyScene(t *testing.T) {
	device := null.NewDevice()

	// No renderables at all.
	if _, err := BuildSceneAccel(device, nil); err == nil {
		t.Fatal("empty scene built an acceleration structure")
	}

	// A renderable with no geometry opts out; a scene of only those is
	// still empty.
	bare := &metadata.Mesh{Name: "bare", Transform: math.NewMat4Identity()}
	if _, err := BuildSceneAccel(device, []metadata.Renderable{bare}); err == nil {
		t.Fatal("geometry-less scene built an acceleration structure")
	}
}
