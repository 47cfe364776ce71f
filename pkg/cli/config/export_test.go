package config

func NewAgentForTest(mode, file string) *Agent {
	return &Agent{mode: mode, file: file}
}

func NewClientForTest(server, scope string) *Client {
	return &Client{server: server, scope: scope}
}

func NewCatalogForTest(backend, dir string) *Catalog {
	return &Catalog{backend: backend, dir: dir}
}

func NewStorageForTest(dir string) *Storage {
	return &Storage{dir: dir}
}

func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}
