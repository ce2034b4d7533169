package simulator

import (
	"fmt"
	"strings"
)

// projectFile is one file the simulator "generates".
type projectFile struct {
	Path     string
	Language string
	Content  string
}

const defaultProjectName = "My App"

// projectFiles returns the fixed file set streamed for every session. The
// prompt only names the project.
func projectFiles(prompt string) []projectFile {
	name := strings.TrimSpace(prompt)
	if name == "" {
		name = defaultProjectName
	}
	return []projectFile{
		{
			Path:     "package.json",
			Language: "json",
			Content: `{
  "name": "generated-app",
  "version": "1.0.0",
  "private": true,
  "type": "module",
  "scripts": {
    "dev": "vite",
    "build": "tsc && vite build"
  },
  "dependencies": {
    "react": "^19.0.0",
    "react-dom": "^19.0.0",
    "react-router-dom": "^7.0.0"
  }
}
`,
		},
		{
			Path:     "src/main.tsx",
			Language: "tsx",
			Content: `import React from 'react';
import ReactDOM from 'react-dom/client';
import App from './App';
import './index.css';

ReactDOM.createRoot(document.getElementById('root')!).render(
  <React.StrictMode>
    <App />
  </React.StrictMode>
);
`,
		},
		{
			Path:     "src/App.tsx",
			Language: "tsx",
			Content: `import { BrowserRouter, Routes, Route } from 'react-router-dom';
import Layout from './components/Layout';
import HomePage from './pages/HomePage';

export default function App() {
  return (
    <BrowserRouter>
      <Routes>
        <Route element={<Layout />}>
          <Route path="/" element={<HomePage />} />
        </Route>
      </Routes>
    </BrowserRouter>
  );
}
`,
		},
		{
			Path:     "src/index.css",
			Language: "css",
			Content: `@import 'tailwindcss';

body {
  font-family: 'Inter', system-ui, sans-serif;
}
`,
		},
		{
			Path:     "src/components/Layout.tsx",
			Language: "tsx",
			Content: fmt.Sprintf(`import { Outlet } from 'react-router-dom';

export default function Layout() {
  return (
    <div className="min-h-screen">
      <nav className="border-b px-6 py-4 font-bold">%s</nav>
      <main className="max-w-6xl mx-auto px-6 py-10">
        <Outlet />
      </main>
    </div>
  );
}
`, jsxText(name)),
		},
		{
			Path:     "src/pages/HomePage.tsx",
			Language: "tsx",
			Content: `import { useState } from 'react';

export default function HomePage() {
  const [count, setCount] = useState(0);

  return (
    <section className="text-center py-16">
      <h1 className="text-5xl font-bold mb-4">Welcome to Your App</h1>
      <button onClick={() => setCount(c => c + 1)}>Clicked {count} times</button>
    </section>
  );
}
`,
		},
	}
}

// jsxText escapes characters that would break out of JSX text content.
func jsxText(s string) string {
	r := strings.NewReplacer("{", "&#123;", "}", "&#125;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

// chunks splits content into pieces of size runes. The last piece may be
// shorter.
func chunks(content string, size int) []string {
	runes := []rune(content)
	var out []string
	for i := 0; i < len(runes); i += size {
		out = append(out, string(runes[i:min(i+size, len(runes))]))
	}
	return out
}

// chunkTokens approximates the token cost of a chunk: a quarter of its
// length, at least one.
func chunkTokens(chunk string) int {
	return max(1, len(chunk)/4)
}
