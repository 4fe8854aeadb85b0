package testbed

import (
	"encoding/binary"
	"fmt"
	stdmath "math"
	"strings"

	"github.com/prism-engine/prism/engine"
	"github.com/prism-engine/prism/engine/config"
	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/math"
	"github.com/prism-engine/prism/engine/renderer/gpu"
	"github.com/prism-engine/prism/engine/renderer/metadata"
	"github.com/prism-engine/prism/engine/renderer/ui"
)

const vertexStride = 32

type TestGame struct {
	*engine.Game
}

type gameState struct {
	width  uint32
	height uint32

	meshes      []*metadata.Mesh
	font        *metadata.FontAtlas
	fontTexture gpu.Texture

	moveSpeed float32
	turnSpeed float32

	showOverlay bool
}

func NewTestGame() (*TestGame, error) {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &config.ApplicationConfig{
				Name:        "Prism Testbed",
				StartPosX:   100,
				StartPosY:   100,
				StartWidth:  1280,
				StartHeight: 720,
				AssetRoot:   "assets",
				LogLevel:    "debug",
				Renderer: config.RendererConfig{
					FramesInFlight:    2,
					VSync:             true,
					RayTracedShadows:  true,
					DebugViewCapacity: 256,
					MaxGPUTimers:      16,
				},
			},
			State: &gameState{
				moveSpeed:   5.0,
				turnSpeed:   1.5,
				showOverlay: true,
			},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnBuildOverlay = tg.BuildOverlay
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg, nil
}

func (g *TestGame) Boot() error {
	core.LogInfo("booting testbed...")

	// Pick up user overrides when a config file sits next to the
	// binary.
	if cfg, err := config.Load("prism.toml"); err == nil {
		g.ApplicationConfig = cfg
	}

	state := g.State.(*gameState)
	state.width = g.ApplicationConfig.StartWidth
	state.height = g.ApplicationConfig.StartHeight

	return nil
}

func (g *TestGame) Initialize() error {
	core.LogDebug("TestGame Initialize fn....")

	if g.Engine == nil {
		return fmt.Errorf("the engine is not yet initialized")
	}

	state := g.State.(*gameState)
	r := g.Engine.Renderer()

	camera := r.Camera()
	camera.SetPosition(math.NewVec3(0.0, 2.0, 8.0))

	// Ground plane plus a cube lets shadows show up without any model
	// on disk.
	ground, err := g.createMesh(planeConfig("ground", 20.0))
	if err != nil {
		return err
	}
	cube, err := g.createMesh(cubeConfig("test_cube", 2.0))
	if err != nil {
		return err
	}
	cube.Transform = math.NewMat4Translation(math.NewVec3(0.0, 1.0, 0.0))
	state.meshes = append(state.meshes, ground, cube)

	// A model from disk is a bonus, not a requirement.
	if res, err := g.Engine.Assets().LoadAsset("sponza", metadata.ResourceTypeModel, nil); err != nil {
		core.LogWarn("no model asset found, continuing with generated geometry: %v", err)
	} else {
		configs := res.Data.([]*metadata.MeshConfig)
		for _, cfg := range configs {
			mesh, err := g.createMesh(cfg)
			if err != nil {
				return err
			}
			state.meshes = append(state.meshes, mesh)
		}
		core.LogInfo("loaded model '%s' with %d meshes", res.Name, len(configs))
	}

	if err := g.loadFont(); err != nil {
		return err
	}

	renderables := make([]metadata.Renderable, len(state.meshes))
	for i, m := range state.meshes {
		renderables[i] = m
	}
	r.SetScene(renderables)
	if err := r.PrepareScene(); err != nil {
		return err
	}

	return nil
}

// loadFont decodes the debug font atlas, uploads its pixels through
// the async upload engine and registers the texture with the debug
// view table so overlay text can sample it.
func (g *TestGame) loadFont() error {
	state := g.State.(*gameState)
	r := g.Engine.Renderer()

	res, err := g.Engine.Assets().LoadAsset("ubuntu_mono_21px", metadata.ResourceTypeBitmapFont, nil)
	if err != nil {
		core.LogWarn("no font asset found, overlay text disabled: %v", err)
		return nil
	}
	atlas := res.Data.(*metadata.FontAtlas)

	texture, err := g.Engine.Device().NewTexture(gpu.TextureDesc{
		Width:  atlas.AtlasSizeX,
		Height: atlas.AtlasSizeY,
		Format: gpu.FormatRGBA8Unorm,
	})
	if err != nil {
		return err
	}

	ticket, err := r.Uploads().QueueTexture2DUpload(texture, gpu.FormatRGBA8Unorm, atlas.Pixels,
		atlas.AtlasSizeX, atlas.AtlasSizeY, gpu.StateNone, gpu.StateShaderResource)
	if err != nil {
		texture.Destroy()
		return err
	}
	ticket.Wait()

	view, err := r.Overlay().Registry().BindTextureView(texture, gpu.ViewDesc{Format: gpu.FormatRGBA8Unorm})
	if err != nil {
		texture.Destroy()
		return err
	}
	atlas.View = view

	state.font = atlas
	state.fontTexture = texture

	core.LogInfo("font atlas '%s' bound to view %d", atlas.Face, view)
	return nil
}

// createMesh pushes one mesh config's geometry into device buffers.
func (g *TestGame) createMesh(cfg *metadata.MeshConfig) (*metadata.Mesh, error) {
	device := g.Engine.Device()

	vertexData := make([]byte, len(cfg.Vertices)*vertexStride)
	for i, v := range cfg.Vertices {
		encodeVertex3D(vertexData[i*vertexStride:], v)
	}

	vb, err := device.NewBuffer(gpu.BufferDesc{Size: uint64(len(vertexData)), Upload: true})
	if err != nil {
		return nil, err
	}
	mapped, err := vb.Map()
	if err != nil {
		vb.Destroy()
		return nil, err
	}
	copy(mapped, vertexData)
	vb.Unmap()

	indexData := make([]byte, len(cfg.Indices)*4)
	for i, idx := range cfg.Indices {
		binary.LittleEndian.PutUint32(indexData[i*4:], idx)
	}

	ib, err := device.NewBuffer(gpu.BufferDesc{Size: uint64(len(indexData)), Upload: true})
	if err != nil {
		vb.Destroy()
		return nil, err
	}
	mapped, err = ib.Map()
	if err != nil {
		vb.Destroy()
		ib.Destroy()
		return nil, err
	}
	copy(mapped, indexData)
	ib.Unmap()

	primitives := cfg.Primitives
	if len(primitives) == 0 {
		primitives = []metadata.PrimitiveRange{{FirstIndex: 0, IndexCount: uint32(len(cfg.Indices))}}
	}

	return &metadata.Mesh{
		Name:         cfg.Name,
		VertexBuffer: vb,
		VertexCount:  uint32(len(cfg.Vertices)),
		VertexStride: vertexStride,
		IndexBuffer:  ib,
		IndexCount:   uint32(len(cfg.Indices)),
		Primitives:   primitives,
		Transform:    math.NewMat4Identity(),
	}, nil
}

func (g *TestGame) Update(deltaTime float64) error {
	state := g.State.(*gameState)
	camera := g.Engine.Renderer().Camera()

	move := state.moveSpeed * float32(deltaTime)
	turn := state.turnSpeed * float32(deltaTime)

	if core.InputIsKeyDown(core.KEY_W) {
		camera.MoveForward(move)
	}
	if core.InputIsKeyDown(core.KEY_S) {
		camera.MoveBackward(move)
	}
	if core.InputIsKeyDown(core.KEY_A) {
		camera.MoveLeft(move)
	}
	if core.InputIsKeyDown(core.KEY_D) {
		camera.MoveRight(move)
	}
	if core.InputIsKeyDown(core.KEY_Q) {
		camera.MoveDown(move)
	}
	if core.InputIsKeyDown(core.KEY_E) {
		camera.MoveUp(move)
	}

	if core.InputIsKeyDown(core.KEY_LEFT) {
		camera.Yaw(turn)
	}
	if core.InputIsKeyDown(core.KEY_RIGHT) {
		camera.Yaw(-turn)
	}
	if core.InputIsKeyDown(core.KEY_UP) {
		camera.Pitch(turn)
	}
	if core.InputIsKeyDown(core.KEY_DOWN) {
		camera.Pitch(-turn)
	}

	// Mouse look while the right button is held.
	if core.InputIsButtonDown(core.BUTTON_RIGHT) {
		x, y := core.InputGetMousePosition()
		px, py := core.InputGetPreviousMousePosition()
		camera.Yaw(float32(px-x) * 0.003)
		camera.Pitch(float32(py-y) * 0.003)
	}

	if core.InputIsKeyUp(core.KEY_O) && core.InputWasKeyDown(core.KEY_O) {
		state.showOverlay = !state.showOverlay
	}

	if core.InputIsKeyUp(core.KEY_P) && core.InputWasKeyDown(core.KEY_P) {
		pos := camera.GetPosition()
		core.LogDebug("Pos:[%.2f, %.2f, %.2f]", pos.X, pos.Y, pos.Z)
	}

	// Spin the cube so shadows visibly move.
	if len(state.meshes) > 1 {
		angle := float32(0.5 * deltaTime)
		spin := math.NewMat4EulerY(angle)
		state.meshes[1].Transform = state.meshes[1].Transform.Mul(spin)
	}

	return nil
}

func (g *TestGame) BuildOverlay(drawData *metadata.DrawData, deltaTime float64) error {
	state := g.State.(*gameState)
	if !state.showOverlay || state.font == nil {
		return nil
	}

	timers := g.Engine.Renderer().Timers()
	fps, frameTime := core.MetricsFrame()
	camera := g.Engine.Renderer().Camera()
	pos := camera.GetPosition()

	var sb strings.Builder
	fmt.Fprintf(&sb, "FPS: %5.1f (%4.2fms)\n", fps, frameTime)
	fmt.Fprintf(&sb, "Pos: [%6.2f %6.2f %6.2f]\n", pos.X, pos.Y, pos.Z)
	for _, name := range timers.Names() {
		if ms, ok := timers.Duration(name); ok {
			fmt.Fprintf(&sb, "%-14s %6.3fms\n", name, ms)
		}
	}

	clip := [4]int32{0, 0, int32(state.width), int32(state.height)}
	dl := &metadata.DrawList{}
	ui.AddText(dl, state.font, sb.String(), 10, 10+float32(state.font.LineHeight),
		math.NewVec4(1.0, 1.0, 1.0, 1.0), clip)
	drawData.Lists = append(drawData.Lists, dl)

	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width = width
	state.height = height
	return nil
}

func (g *TestGame) Shutdown() error {
	state := g.State.(*gameState)
	r := g.Engine.Renderer()

	if err := r.WaitIdle(); err != nil {
		core.LogWarn("wait idle before testbed shutdown failed: %v", err)
	}

	if state.font != nil && state.fontTexture != nil {
		if err := r.Overlay().Registry().UnbindTextureView(state.font.View); err != nil {
			core.LogWarn("failed to unbind font atlas view: %v", err)
		}
		state.fontTexture.Destroy()
		state.fontTexture = nil
	}

	for _, m := range state.meshes {
		if m.VertexBuffer != nil {
			m.VertexBuffer.Destroy()
		}
		if m.IndexBuffer != nil {
			m.IndexBuffer.Destroy()
		}
	}
	state.meshes = nil

	return nil
}

func encodeVertex3D(dst []byte, v math.Vertex3D) {
	binary.LittleEndian.PutUint32(dst[0:], stdmath.Float32bits(v.Position.X))
	binary.LittleEndian.PutUint32(dst[4:], stdmath.Float32bits(v.Position.Y))
	binary.LittleEndian.PutUint32(dst[8:], stdmath.Float32bits(v.Position.Z))
	binary.LittleEndian.PutUint32(dst[12:], stdmath.Float32bits(v.Normal.X))
	binary.LittleEndian.PutUint32(dst[16:], stdmath.Float32bits(v.Normal.Y))
	binary.LittleEndian.PutUint32(dst[20:], stdmath.Float32bits(v.Normal.Z))
	binary.LittleEndian.PutUint32(dst[24:], stdmath.Float32bits(v.Texcoord.X))
	binary.LittleEndian.PutUint32(dst[28:], stdmath.Float32bits(v.Texcoord.Y))
}

// planeConfig builds a single quad in the XZ plane centered on the
// origin, normal up.
func planeConfig(name string, size float32) *metadata.MeshConfig {
	h := size * 0.5
	up := math.NewVec3(0, 1, 0)
	return &metadata.MeshConfig{
		Name: name,
		Vertices: []math.Vertex3D{
			{Position: math.NewVec3(-h, 0, -h), Normal: up, Texcoord: math.Vec2{X: 0, Y: 0}},
			{Position: math.NewVec3(h, 0, -h), Normal: up, Texcoord: math.Vec2{X: 1, Y: 0}},
			{Position: math.NewVec3(h, 0, h), Normal: up, Texcoord: math.Vec2{X: 1, Y: 1}},
			{Position: math.NewVec3(-h, 0, h), Normal: up, Texcoord: math.Vec2{X: 0, Y: 1}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// cubeConfig builds an axis-aligned cube with per-face normals.
func cubeConfig(name string, size float32) *metadata.MeshConfig {
	h := size * 0.5
	faces := []struct {
		normal math.Vec3
		corner [4]math.Vec3
	}{
		{math.NewVec3(0, 0, 1), [4]math.Vec3{{X: -h, Y: -h, Z: h}, {X: h, Y: -h, Z: h}, {X: h, Y: h, Z: h}, {X: -h, Y: h, Z: h}}},
		{math.NewVec3(0, 0, -1), [4]math.Vec3{{X: h, Y: -h, Z: -h}, {X: -h, Y: -h, Z: -h}, {X: -h, Y: h, Z: -h}, {X: h, Y: h, Z: -h}}},
		{math.NewVec3(1, 0, 0), [4]math.Vec3{{X: h, Y: -h, Z: h}, {X: h, Y: -h, Z: -h}, {X: h, Y: h, Z: -h}, {X: h, Y: h, Z: h}}},
		{math.NewVec3(-1, 0, 0), [4]math.Vec3{{X: -h, Y: -h, Z: -h}, {X: -h, Y: -h, Z: h}, {X: -h, Y: h, Z: h}, {X: -h, Y: h, Z: -h}}},
		{math.NewVec3(0, 1, 0), [4]math.Vec3{{X: -h, Y: h, Z: h}, {X: h, Y: h, Z: h}, {X: h, Y: h, Z: -h}, {X: -h, Y: h, Z: -h}}},
		{math.NewVec3(0, -1, 0), [4]math.Vec3{{X: -h, Y: -h, Z: -h}, {X: h, Y: -h, Z: -h}, {X: h, Y: -h, Z: h}, {X: -h, Y: -h, Z: h}}},
	}
	cfg := &metadata.MeshConfig{Name: name}
	uvs := [4]math.Vec2{{X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	for _, f := range faces {
		base := uint32(len(cfg.Vertices))
		for i := 0; i < 4; i++ {
			cfg.Vertices = append(cfg.Vertices, math.Vertex3D{
				Position: f.corner[i],
				Normal:   f.normal,
				Texcoord: uvs[i],
			})
		}
		cfg.Indices = append(cfg.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	return cfg
}
