package media

type ID string

func (id ID) String() string {
	return string(id)
}

func (id ID) None() bool {
	return id == ""
}

// Artifact file names inside an asset directory.
const (
	OriginalBasename  = "original"
	CompositeFilename = "composite.png"
	ThumbFilename     = "thumb.jpg"
)

func OriginalFilename(ext Extension) string {
	return OriginalBasename + "." + string(ext)
}

// ImageAsset is an accepted upload. It is immutable once created.
type ImageAsset struct {
	ID     ID   `json:"id"`
	Width  int  `json:"width"`
	Height int  `json:"height"`
	Mime   Mime `json:"mime"`

	// ContentHash is the hex encoded SHA-256 of the persisted bytes. It is
	// used for integrity checks only, never as identity.
	ContentHash string `json:"contentHash"`

	// StoragePath of the normalized original (<root>/<id>/original.<ext>)
	StoragePath string `json:"storagePath"`
}

// RenderJob lives for a single Render call.
type RenderJob struct {
	AssetID       ID
	BasePath      string
	MaskPath      string
	UserImagePath string
	Bounds        Bounds
	Transform     Transform
	OutputDPI     int
}

func (j RenderJob) HasMask() bool {
	return j.MaskPath != ""
}

type AccessToken struct {
	AssetID   ID     `json:"assetId"`
	FileName  string `json:"fileName"`
	ExpiresAt int64  `json:"expiresAt"`
	MAC       string `json:"mac"`
}
