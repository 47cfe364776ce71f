package types

// Category is the semantic class of one raw log line
type Category string

const (
	CategoryThought Category = "thought"
	CategoryTool    Category = "tool"
	CategoryError   Category = "error"
	CategoryInfo    Category = "info"
)

func (x Category) String() string {
	return string(x)
}

// Title returns the fixed section label of the category. Info sections are
// titled by their first line, so it returns an empty string for CategoryInfo.
func (x Category) Title() string {
	switch x {
	case CategoryThought:
		return "Thoughts"
	case CategoryTool:
		return "Tools"
	case CategoryError:
		return "Error"
	default:
		return ""
	}
}

// Level is a log level as written by loguru style loggers
type Level string

const (
	LevelDebug   Level = "DEBUG"
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

func (x Level) String() string {
	return string(x)
}

// LevelOf maps a line category to the level used in the terminal transcript
func LevelOf(c Category) Level {
	if c == CategoryError {
		return LevelError
	}
	return LevelInfo
}
