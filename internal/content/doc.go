// Package content parses content files into File values and assembles them
// into the Site model of sections and pages.
//
// Parsing is pure: Parse never touches the filesystem. Assemble derives URLs,
// output paths and section ordering from a set of parsed files and is cheap
// enough to run on every build, so incremental builds only re-parse files that
// changed and re-assemble the rest from memory.
package content
