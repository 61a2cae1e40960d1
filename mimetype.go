package nodefs

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"
)

// Common MIME types
const (
	MIMETypeTextPlain       = "text/plain"
	MIMETypeTextHTML        = "text/html"
	MIMETypeTextCSS         = "text/css"
	MIMETypeTextJavaScript  = "text/javascript"
	MIMETypeApplicationJSON = "application/json"
	MIMETypeApplicationXML  = "application/xml"
	MIMETypeImageJPEG       = "image/jpeg"
	MIMETypeImagePNG        = "image/png"
	MIMETypeImageGIF        = "image/gif"
	MIMETypeImageSVG        = "image/svg+xml"
	MIMETypeImageWebP       = "image/webp"
	MIMETypeAudioMP3        = "audio/mpeg"
	MIMETypeAudioOGG        = "audio/ogg"
	MIMETypeVideoMP4        = "video/mp4"
	MIMETypeVideoWebM       = "video/webm"
	MIMETypeApplicationPDF  = "application/pdf"
	MIMETypeApplicationZip  = "application/zip"
	MIMETypeOctetStream     = "application/octet-stream"
	MIMETypeDirectory       = "directory"
)

// Common file extensions to MIME types mapping
var extensionToMIME = map[string]string{
	".txt":   MIMETypeTextPlain,
	".html":  MIMETypeTextHTML,
	".htm":   MIMETypeTextHTML,
	".css":   MIMETypeTextCSS,
	".js":    MIMETypeTextJavaScript,
	".json":  MIMETypeApplicationJSON,
	".xml":   MIMETypeApplicationXML,
	".jpg":   MIMETypeImageJPEG,
	".jpeg":  MIMETypeImageJPEG,
	".png":   MIMETypeImagePNG,
	".gif":   MIMETypeImageGIF,
	".svg":   MIMETypeImageSVG,
	".webp":  MIMETypeImageWebP,
	".mp3":   MIMETypeAudioMP3,
	".ogg":   MIMETypeAudioOGG,
	".mp4":   MIMETypeVideoMP4,
	".webm":  MIMETypeVideoWebM,
	".pdf":   MIMETypeApplicationPDF,
	".zip":   MIMETypeApplicationZip,
	".gz":    "application/gzip",
	".tar":   "application/x-tar",
	".csv":   "text/csv",
	".md":    "text/markdown",
	".doc":   "application/msword",
	".docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":   "application/vnd.ms-excel",
	".xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":   "application/vnd.ms-powerpoint",
	".pptx":  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".eot":   "application/vnd.ms-fontobject",
	".otf":   "font/otf",
}

// GuessContentType determines a MIME type from the extension of filePath,
// then from sniffing data, then from the system MIME table. Unknown content
// is "application/octet-stream".
func GuessContentType(filePath string, data []byte) string {
	ext := strings.ToLower(path.Ext(filePath))
	if contentType, ok := extensionToMIME[ext]; ok {
		return contentType
	}

	if len(data) > 0 {
		return http.DetectContentType(data)
	}

	if contentType := mime.TypeByExtension(ext); contentType != "" {
		return contentType
	}

	return MIMETypeOctetStream
}

// sniffLen is how much content http.DetectContentType looks at.
const sniffLen = 512

// SniffContentType reads up to 512 bytes of r and guesses the MIME type of
// filePath from them.
func SniffContentType(filePath string, r io.Reader) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return GuessContentType(filePath, buf[:n]), nil
}

// GetFileExtensionForMIME returns a suitable file extension for a given MIME type
func GetFileExtensionForMIME(contentType string) string {
	// Remove any parameters from the content type
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	contentType = strings.TrimSpace(contentType)

	// Check for common MIME types
	switch contentType {
	case MIMETypeTextPlain:
		return ".txt"
	case MIMETypeTextHTML:
		return ".html"
	case MIMETypeTextCSS:
		return ".css"
	case MIMETypeTextJavaScript:
		return ".js"
	case MIMETypeApplicationJSON:
		return ".json"
	case MIMETypeApplicationXML:
		return ".xml"
	case MIMETypeImageJPEG:
		return ".jpg"
	case MIMETypeImagePNG:
		return ".png"
	case MIMETypeImageGIF:
		return ".gif"
	case MIMETypeImageSVG:
		return ".svg"
	case MIMETypeImageWebP:
		return ".webp"
	case MIMETypeAudioMP3:
		return ".mp3"
	case MIMETypeAudioOGG:
		return ".ogg"
	case MIMETypeVideoMP4:
		return ".mp4"
	case MIMETypeVideoWebM:
		return ".webm"
	case MIMETypeApplicationPDF:
		return ".pdf"
	case MIMETypeApplicationZip:
		return ".zip"
	}

	// For unknown MIME types, try to get an extension from the mime package
	exts, err := mime.ExtensionsByType(contentType)
	if err == nil && len(exts) > 0 {
		return exts[0]
	}

	// Fall back to .bin for binary data
	return ".bin"
}
