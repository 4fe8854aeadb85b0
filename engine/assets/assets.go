package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/prism-engine/prism/engine/assets/loaders"
	"github.com/prism-engine/prism/engine/core"
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

type AssetInfo struct {
	ID         string
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

/**
 * @brief Indexes the asset root, resolves logical names to files and
 * watches the tree for changes. File changes surface as
 * EVENT_CODE_ASSET_CHANGED events on the main thread.
 */
type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &AssetManager{
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[metadata.ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	am.root = assetsDir

	go am.start()

	if err := am.addRecursive(assetsDir); err != nil {
		return err
	}

	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeModel, &loaders.ModelLoader{})
	am.registerLoader(metadata.ResourceTypeBitmapFont, &loaders.BitmapFontLoader{})

	return nil
}

// addRecursive starts watching the named directory and all
// sub-directories, indexing every file on the way.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name, false)
}

func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// pathFor resolves a logical asset name to a path under the root.
func (am *AssetManager) pathFor(name string, resourceType metadata.ResourceType) (string, error) {
	switch resourceType {
	case metadata.ResourceTypeShader:
		return filepath.Join(am.root, "shaders", name+".spv"), nil
	case metadata.ResourceTypeModel:
		return filepath.Join(am.root, "models", name+".gltf"), nil
	case metadata.ResourceTypeBitmapFont:
		return filepath.Join(am.root, "fonts", name+".fnt"), nil
	default:
		return "", fmt.Errorf("unknown resource type %d", resourceType)
	}
}

// LoadAsset resolves a logical name and runs the registered loader.
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	path, err := am.pathFor(name, resourceType)
	if err != nil {
		return nil, err
	}

	loader, exists := am.loaders[resourceType]
	if !exists {
		return nil, fmt.Errorf("no loader registered for asset type %d", resourceType)
	}

	resource, err := loader.Load(path, resourceType, params)
	if err != nil {
		return nil, err
	}
	resource.Name = name

	am.mutex.Lock()
	info, indexed := am.assets[path]
	if !indexed {
		info = AssetInfo{ID: uuid.New().String(), Path: path, Type: resourceType}
	}
	info.LastLoaded = time.Now()
	am.assets[path] = info
	am.mutex.Unlock()

	resource.ID = info.ID
	return resource, nil
}

func (am *AssetManager) UnloadAsset(resource *metadata.Resource) error {
	if resource == nil {
		return nil
	}
	for _, loader := range am.loaders {
		if err := loader.Unload(resource); err != nil {
			return err
		}
	}
	return nil
}

func (am *AssetManager) start() {
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					am.watchRecursive(e.Name, false)
				}
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
			}
			if e.Op&fsnotify.Remove != 0 {
				am.removeAsset(e.Name)
				am.fsnotify.Remove(e.Name)
			}

		case e, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(e.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

// watchRecursive adds all directories under the given one to the watch
// list, or removes them when unWatch is set.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	wd = wd + "/"
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.indexFile(strings.TrimPrefix(walkPath, wd))
		return nil
	})
}

func typeForExtension(path string) (metadata.ResourceType, bool) {
	switch filepath.Ext(path) {
	case ".spv":
		return metadata.ResourceTypeShader, true
	case ".gltf", ".glb":
		return metadata.ResourceTypeModel, true
	case ".fnt":
		return metadata.ResourceTypeBitmapFont, true
	case ".png", ".tga":
		return metadata.ResourceTypeImage, true
	}
	return 0, false
}

func (am *AssetManager) indexFile(path string) {
	t, known := typeForExtension(path)
	if !known {
		return
	}
	am.mutex.Lock()
	if _, exists := am.assets[path]; !exists {
		am.assets[path] = AssetInfo{ID: uuid.New().String(), Path: path, Type: t}
	}
	am.mutex.Unlock()
}

// handleFileEvent re-indexes a changed file and announces the change.
// Runs on the watcher goroutine, so the event is queued, not fired.
func (am *AssetManager) handleFileEvent(path string) {
	if _, known := typeForExtension(path); !known {
		return
	}
	am.indexFile(path)
	core.EventEnqueue(core.EventContext{
		Type: core.EVENT_CODE_ASSET_CHANGED,
		Data: &core.AssetEvent{Path: path},
	})
}

func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	delete(am.assets, path)
	am.mutex.Unlock()
}

// AssetCount reports how many files the index currently holds.
func (am *AssetManager) AssetCount() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

func (am *AssetManager) Shutdown() {
	if am.isClosed {
		return
	}
	am.isClosed = true
	close(am.done)
}
