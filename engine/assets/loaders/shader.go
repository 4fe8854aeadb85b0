package loaders

import (
	"os"

	"github.com/prism-engine/prism/engine/renderer/metadata"
)

type ShaderLoader struct{}

// Load reads a SPIR-V binary and returns the raw bytecode blob.
func (sl *ShaderLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		FullPath: path,
		DataSize: uint64(len(data)),
		Data:     data,
	}, nil
}

func (sl *ShaderLoader) Unload(resource *metadata.Resource) error {
	return nil
}
