package model

type AssetBackend string

const (
	BackendImageHost AssetBackend = "image-host"
	BackendLocal     AssetBackend = "local"
	BackendExport    AssetBackend = "export"
)

// Blob is a pasted image as received from the editor.
type Blob struct {
	Name string
	MIME string
	Data []byte
}

// AssetPlacement records where one paste event ended up. GeneratedName is
// fixed for the event even if the backend changes.
type AssetPlacement struct {
	SourceName    string       `json:"source_name"`
	GeneratedName string       `json:"generated_name"`
	Backend       AssetBackend `json:"backend"`
	Reference     string       `json:"reference"`
}

// Markdown is the snippet inserted at the editor cursor.
func (p AssetPlacement) Markdown() string {
	return "![](" + p.Reference + ")\n"
}
