package agent

import "time"

const demoPace = 150 * time.Millisecond

const demoIndex = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>{prompt}</title>
  <link rel="stylesheet" href="styles.css">
</head>
<body>
  <div id="root"></div>
  <script type="module" src="App.jsx"></script>
</body>
</html>
`

const demoApp = `import React, { useState } from 'react';
import { Plus, Minus } from 'lucide-react';
import { motion } from 'framer-motion';

export default function App() {
  const [count, setCount] = useState(0);
  return (
    <motion.div className="app" animate={{ opacity: 1 }}>
      <h1>{answer} counter</h1>
      <p className="subtitle">{prompt}</p>
      <div className="controls">
        <button onClick={() => setCount(count - 1)}><Minus size={16} /></button>
        <span className="count">{count}</span>
        <button onClick={() => setCount(count + 1)}><Plus size={16} /></button>
      </div>
    </motion.div>
  );
}
`

const demoStyles = `.app {
  font-family: system-ui, sans-serif;
  max-width: 480px;
  margin: 48px auto;
  text-align: center;
}

.controls {
  display: flex;
  gap: 16px;
  justify-content: center;
  align-items: center;
}

.count {
  font-size: 2rem;
  min-width: 3ch;
}
`

// DemoSteps is a scripted run covering every log category and one input
// request. Files are written to the workspace before the run ends.
func DemoSteps(prompt string) []Step {
	return []Step{
		{Line: "✨ Manus's thoughts: I will build a small app for: {prompt}", Delay: demoPace},
		{Line: "The request needs a page, a component and a stylesheet"},
		{Ask: "Which style do you prefer for the app? (e.g. Minimal, Playful)", Delay: demoPace},
		{Line: "✨ Manus's thoughts: The user prefers {answer}", Delay: demoPace},
		{Line: "🛠️ Manus selected 1 tools to use", Delay: demoPace},
		{Line: "🧰 Tools being prepared: ['str_replace_editor']"},
		{Line: "🔧 Activating tool: 'str_replace_editor'..."},
		{File: &ScriptFile{Name: "index.html", Content: demoIndex}, Delay: demoPace},
		{File: &ScriptFile{Name: "App.jsx", Content: demoApp}},
		{File: &ScriptFile{Name: "styles.css", Content: demoStyles}},
		{Line: "🎯 Tool 'str_replace_editor' completed its mission! Created index.html, App.jsx, styles.css"},
		{Line: "Generated 3 files in the workspace", Delay: demoPace},
		{Line: "Task completed"},
	}
}
