package loaders

import (
	"fmt"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

type ModelLoader struct{}

/**
 * @brief Loads a glTF document into mesh configs: position + normal +
 * texcoord vertices, uint32 indices and one primitive range per glTF
 * primitive. Triangle topology only; anything else is an error the
 * boot code treats as fatal.
 */
func (ml *ModelLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("gltf open %q: %w", path, err)
	}

	var configs []*metadata.MeshConfig
	for mi, gm := range doc.Meshes {
		name := gm.Name
		if name == "" {
			name = fmt.Sprintf("mesh_%d", mi)
		}
		cfg := &metadata.MeshConfig{Name: name}

		for pi, prim := range gm.Primitives {
			if prim.Mode != gltf.PrimitiveTriangles {
				return nil, fmt.Errorf("mesh %q primitive %d has unsupported topology %d, triangles only", name, pi, prim.Mode)
			}
			if err := appendPrimitive(doc, cfg, prim); err != nil {
				return nil, fmt.Errorf("mesh %q primitive %d: %w", name, pi, err)
			}
		}
		if len(cfg.Vertices) > 0 {
			configs = append(configs, cfg)
		}
	}
	if len(configs) == 0 {
		return nil, fmt.Errorf("model %q contains no triangle geometry", path)
	}

	return &metadata.Resource{
		FullPath: path,
		DataSize: uint64(len(configs)),
		Data:     configs,
	}, nil
}

// appendPrimitive decodes one primitive into the shared vertex/index
// arrays and records its sub-range.
func appendPrimitive(doc *gltf.Document, cfg *metadata.MeshConfig, prim *gltf.Primitive) error {
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		return fmt.Errorf("no POSITION attribute")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIdx], nil)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	var normals [][3]float32
	var uvs [][2]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		normals, _ = modeler.ReadNormal(doc, doc.Accessors[idx], nil)
	}
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		uvs, _ = modeler.ReadTextureCoord(doc, doc.Accessors[idx], nil)
	}

	baseVertex := uint32(len(cfg.Vertices))
	for i, p := range positions {
		v := math.Vertex3D{
			Position: math.NewVec3(p[0], p[1], p[2]),
			Normal:   math.NewVec3(0, 1, 0),
		}
		if i < len(normals) {
			v.Normal = math.NewVec3(normals[i][0], normals[i][1], normals[i][2])
		}
		if i < len(uvs) {
			v.Texcoord = math.Vec2{X: uvs[i][0], Y: uvs[i][1]}
		}
		cfg.Vertices = append(cfg.Vertices, v)
	}

	firstIndex := uint32(len(cfg.Indices))
	if prim.Indices == nil {
		return fmt.Errorf("unindexed primitives are not supported")
	}
	indices, err := modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], nil)
	if err != nil {
		return fmt.Errorf("indices: %w", err)
	}
	for _, idx := range indices {
		cfg.Indices = append(cfg.Indices, baseVertex+idx)
	}

	cfg.Primitives = append(cfg.Primitives, metadata.PrimitiveRange{
		FirstIndex: firstIndex,
		IndexCount: uint32(len(indices)),
	})
	return nil
}

func (ml *ModelLoader) Unload(resource *metadata.Resource) error {
	return nil
}
