// Package render turns page bodies and templates into HTML.
//
// A page body goes through include expansion, executable block extraction,
// shortcode expansion, code execution, Markdown conversion and placeholder
// substitution, in that order. The result is then wrapped by the page's
// html/template, compiled together with the templates it extends and
// includes.
//
// Templates declare inheritance on their first line:
//
//	{{/* extends "base.html" */}}
//
// and fill the parent's {{ block }} slots with {{ define }}. Shortcodes live
// in templates/shortcodes and declare parameters in leading comments:
//
//	{{/* param src required */}}
//	{{/* param alt default="" */}}
package render
