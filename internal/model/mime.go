package model

// Supported image MIME types for uploads.
const (
	MimeTypeJPEG = "image/jpeg"
	MimeTypePNG  = "image/png"
	MimeTypeGIF  = "image/gif"
	MimeTypeWebP = "image/webp"
)

// SupportedImageTypes returns the MIME types accepted for image uploads.
func SupportedImageTypes() []string {
	return []string{
		MimeTypeJPEG,
		MimeTypePNG,
		MimeTypeGIF,
		MimeTypeWebP,
	}
}

// IsSupportedImageType reports whether mimeType may be uploaded.
func IsSupportedImageType(mimeType string) bool {
	switch mimeType {
	case MimeTypeJPEG, MimeTypePNG, MimeTypeGIF, MimeTypeWebP:
		return true
	}
	return false
}

// ExtensionForMime returns the canonical file extension (with dot) for a
// supported image MIME type, or "" when unknown.
func ExtensionForMime(mimeType string) string {
	switch mimeType {
	case MimeTypeJPEG:
		return ".jpg"
	case MimeTypePNG:
		return ".png"
	case MimeTypeGIF:
		return ".gif"
	case MimeTypeWebP:
		return ".webp"
	}
	return ""
}
