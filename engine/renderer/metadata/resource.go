package metadata

type ResourceType int

/** @brief Pre-defined resource types. */
const (
	/** @brief Shader bytecode resource type. */
	ResourceTypeShader ResourceType = iota
	/** @brief Model resource type (collection of mesh configs). */
	ResourceTypeModel
	/** @brief Bitmap font resource type. */
	ResourceTypeBitmapFont
	/** @brief Image resource type. */
	ResourceTypeImage
)

/** @brief An invalid identifier sentinel. */
const InvalidID uint32 = 0xFFFFFFFF

/**
 * @brief A generic structure for a resource. All resource loaders
 * load data into these.
 */
type Resource struct {
	/** @brief The unique identifier assigned by the asset manager. */
	ID string
	/** @brief The name of the resource. */
	Name string
	/** @brief The full file path of the resource. */
	FullPath string
	/** @brief The size of the resource data in bytes. */
	DataSize uint64
	/** @brief The resource data. */
	Data interface{}
}
