package scaffold

// skeleton maps project-relative paths to their initial contents. The
// result builds cleanly with the default configuration and shows every
// template kind the build renders.
var skeleton = map[string]string{
	".gitignore": "/public/\n/.sitegen/\n.env.local\n",

	"templates/base.html": `<!DOCTYPE html>
<html lang="{{ .Site.Language }}">
<head>
  <meta charset="utf-8">
  <title>{{ block "title" . }}{{ .Title }} | {{ .Site.Title }}{{ end }}</title>
  <link rel="stylesheet" href="{{ urlFor "/site.css" }}">
  <link rel="alternate" type="application/atom+xml" href="{{ urlFor "/atom.xml" }}">
</head>
<body>
  <header><a href="{{ urlFor "/" }}">{{ .Site.Title }}</a></header>
  <main>{{ block "main" . }}{{ end }}</main>
</body>
</html>
`,

	"templates/index.html": `{{/* extends "base.html" */}}
{{ define "title" }}{{ .Site.Title }}{{ end }}
{{ define "main" }}
{{ .Content }}
<ul>
{{ range .Site.Pages }}<li><a href="{{ .URL }}">{{ .Title }}</a></li>
{{ end }}</ul>
{{ end }}
`,

	"templates/section.html": `{{/* extends "base.html" */}}
{{ define "main" }}
<h1>{{ .Title }}</h1>
{{ .Content }}
<ul>
{{ range .Pager.Items }}<li><a href="{{ .URL }}">{{ .Title }}</a></li>
{{ end }}</ul>
{{ with .Pager }}{{ if .Prev }}<a href="{{ .Prev }}">Newer</a>{{ end }} {{ if .Next }}<a href="{{ .Next }}">Older</a>{{ end }}{{ end }}
{{ end }}
`,

	"templates/page.html": `{{/* extends "base.html" */}}
{{ define "main" }}
<article>
  <h1>{{ .Title }}</h1>
  {{ .Content }}
</article>
{{ end }}
`,

	"templates/taxonomy.html": `{{/* extends "base.html" */}}
{{ define "main" }}
<h1>{{ title .Taxonomy.Name }}</h1>
<ul>
{{ range .Taxonomy.Terms }}<li><a href="{{ .URL }}">{{ .Name }}</a> ({{ len .Pages }})</li>
{{ end }}</ul>
{{ end }}
`,

	"templates/term.html": `{{/* extends "base.html" */}}
{{ define "main" }}
<h1>{{ .Term.Name }}</h1>
<ul>
{{ range .Pager.Items }}<li><a href="{{ .URL }}">{{ .Title }}</a></li>
{{ end }}</ul>
{{ end }}
`,

	"templates/404.html": `{{/* extends "base.html" */}}
{{ define "main" }}
<h1>Page not found</h1>
<p><a href="{{ urlFor "/" }}">Back to the start page</a></p>
{{ end }}
`,

	"templates/shortcodes/note.html": `{{/* param kind default="info" */}}<aside class="note {{ .kind }}">{{ .Body | markdown }}</aside>
`,

	"includes/about-sitegen.md": "This site is built with sitegen.\n",

	"data/menu.yaml": "- title: Posts\n  url: /posts/\n",

	"content/_index.md": `---
title: Home
---
Welcome to your new site.

{{ include(path="about-sitegen.md") }}
`,

	"content/posts/_index.md": `---
title: Posts
sort_by: date
---
`,

	"content/posts/hello-world.md": `---
title: Hello, world
date: 2024-01-01
tags: [welcome]
---
This is your first post. Edit it in content/posts/hello-world.md.

{% note(kind="tip") %}
Run **sitegen preview** and this page reloads as you type.
{% end %}

Back to [the posts](@/posts/_index.md).
`,

	"static/robots.txt": "User-agent: *\nAllow: /\n",

	"styles/site.css": `body { font-family: system-ui, sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.6; }
.note { border-left: 4px solid #36c; padding: .5rem 1rem; background: #f3f6fc; }
.note.tip { border-color: #3a6; background: #f2faf4; }
`,
}
