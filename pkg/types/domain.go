package types

// Model represents a named OCR model present in the assets directory.
type Model struct {
	// Name passed as the model parameter (file name without extension).
	// example: captcha-v3
	Name string `json:"name" example:"captcha-v3"`
	// Absolute path to the model file on disk.
	// example: /home/user/.cache/embykeeper/data/captcha-v3.traineddata
	Path string `json:"path" example:"/home/user/.cache/embykeeper/data/captcha-v3.traineddata"`
	// Size of the model file in bytes.
	// example: 1048576
	SizeBytes int64 `json:"size_bytes" example:"1048576"`
	// Whether the JSON metadata sidecar is present. A model without it
	// cannot be loaded.
	// example: true
	HasMeta bool `json:"has_meta" example:"true"`
	// Charset declared by the metadata, if any.
	// example: 0123456789
	Charset string `json:"charset,omitempty" example:"0123456789"`
}
