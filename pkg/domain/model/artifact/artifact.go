package artifact

import (
	"mime"
	"path"
	"strings"

	"github.com/secmon-lab/agentrun/pkg/domain/types"
)

var binaryExtensions = map[string]struct{}{
	".pdf":  {},
	".doc":  {},
	".docx": {},
	".ppt":  {},
	".pptx": {},
	".xls":  {},
	".xlsx": {},
	".odt":  {},
	".odp":  {},
	".ods":  {},
	".zip":  {},
	".tar":  {},
	".gz":   {},
	".tgz":  {},
	".7z":   {},
	".rar":  {},
}

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".svg":  {},
	".webp": {},
	".bmp":  {},
	".ico":  {},
}

var reactExtensions = map[string]struct{}{
	".jsx": {},
	".tsx": {},
}

// File is one generated file. Exactly one of Text, Data or URL is set
// depending on Kind.
type File struct {
	Name string         `json:"name"`
	Kind types.FileKind `json:"kind"`
	// Text holds decoded content of text and react source files
	Text string `json:"text,omitempty"`
	// Data holds raw bytes of binary documents; they are never decoded
	Data []byte `json:"-"`
	// URL references images and binary documents for download
	URL string `json:"url,omitempty"`
}

func ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// Classify decides the kind of a file by its name
func Classify(name string) types.FileKind {
	e := ext(name)
	if _, ok := imageExtensions[e]; ok {
		return types.FileKindImage
	}
	if _, ok := binaryExtensions[e]; ok {
		return types.FileKindBinary
	}
	if _, ok := reactExtensions[e]; ok {
		return types.FileKindReact
	}
	return types.FileKindText
}

// IsBinary reports whether the file belongs to the closed set of office and
// archive formats
func IsBinary(name string) bool {
	return Classify(name) == types.FileKindBinary
}

// ContentType infers the MIME type from the name's extension
func ContentType(name string) string {
	e := ext(name)
	switch e {
	case ".jsx", ".tsx", ".ts":
		return "text/plain; charset=utf-8"
	case ".md":
		return "text/markdown; charset=utf-8"
	}
	if ct := mime.TypeByExtension(e); ct != "" {
		return ct
	}
	if Classify(name) == types.FileKindText {
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

// ValidName rejects names that escape the workspace
func ValidName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return false
	}
	return true
}

// FileList is the response of the file listing endpoint
type FileList struct {
	Files []string `json:"files"`
}

// LogList is the response of the run log endpoint
type LogList struct {
	Logs []string `json:"logs"`
}
