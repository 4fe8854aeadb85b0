package assets

import (
	"github.com/prism-engine/prism/engine/renderer/metadata"
)

// Loader decodes one resource type from disk.
type Loader interface {
	Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error)
	Unload(resource *metadata.Resource) error
}
