// Package execute runs fenced code blocks in external interpreters and
// caches their results by content hash.
//
// A block is identified by the page it lives on, its position on that page
// and its language tag. Its cache key covers everything that can influence
// the output: the source, the canonical options, the interpreter name and
// version, and for session languages the sources of every earlier block in
// the same session. A key therefore never maps to a result produced from
// different inputs.
package execute
