package metadata

import (
	"testing"

	"github.com/prism-engine/prism/engine/math"
)

func TestAddQuadFoldsMatchingCommands(t *testing.T) {
	dl := &DrawList{}
	clip := [4]int32{0, 0, 100, 100}
	white := math.NewVec4(1, 1, 1, 1)

	dl.AddQuad(0, 0, 10, 10, 0, 0, 1, 1, white, 3, clip)
	dl.AddQuad(10, 0, 10, 10, 0, 0, 1, 1, white, 3, clip)
	if len(dl.Commands) != 1 {
		t.Fatalf("Commands = %d, want the second quad folded into the first", len(dl.Commands))
	}
	if dl.Commands[0].IndexCount != 12 {
		t.Fatalf("IndexCount = %d, want 12", dl.Commands[0].IndexCount)
	}

	// A different texture breaks the run.
	dl.AddQuad(20, 0, 10, 10, 0, 0, 1, 1, white, 4, clip)
	if len(dl.Commands) != 2 {
		t.Fatalf("Commands = %d after texture change, want 2", len(dl.Commands))
	}

	// So does a different clip rectangle.
	dl.AddQuad(30, 0, 10, 10, 0, 0, 1, 1, white, 4, [4]int32{0, 0, 50, 50})
	if len(dl.Commands) != 3 {
		t.Fatalf("Commands = %d after clip change, want 3", len(dl.Commands))
	}
}

func TestAccumulateTotals(t *testing.T) {
	white := math.NewVec4(1, 1, 1, 1)
	clip := [4]int32{0, 0, 10, 10}

	a := &DrawList{}
	a.AddQuad(0, 0, 1, 1, 0, 0, 1, 1, white, 0, clip)
	b := &DrawList{}
	b.AddQuad(0, 0, 1, 1, 0, 0, 1, 1, white, 0, clip)
	b.AddQuad(2, 0, 1, 1, 0, 0, 1, 1, white, 0, clip)

	dd := &DrawData{Lists: []*DrawList{a, b}}
	dd.Accumulate()
	if dd.TotalVertexCount != 12 {
		t.Fatalf("TotalVertexCount = %d, want 12", dd.TotalVertexCount)
	}
	if dd.TotalIndexCount != 18 {
		t.Fatalf("TotalIndexCount = %d, want 18", dd.TotalIndexCount)
	}
}
