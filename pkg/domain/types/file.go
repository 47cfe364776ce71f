package types

// FileKind is the read-time classification of a generated file
type FileKind string

const (
	FileKindText   FileKind = "text"
	FileKindReact  FileKind = "react"
	FileKindBinary FileKind = "binary"
	FileKindImage  FileKind = "image"
)

func (x FileKind) String() string {
	return string(x)
}
