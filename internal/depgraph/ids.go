package depgraph

import "strings"

// EntityKind is the prefix of an entity id.
type EntityKind string

const (
	EntityPage      EntityKind = "page"
	EntitySection   EntityKind = "section"
	EntityTemplate  EntityKind = "template"
	EntityShortcode EntityKind = "shortcode"
	EntityInclude   EntityKind = "include"
	EntityData      EntityKind = "data"
	EntityTerm      EntityKind = "term"
	EntityAsset     EntityKind = "asset"
)

func id(kind EntityKind, name string) string { return string(kind) + ":" + name }

func PageID(path string) string        { return id(EntityPage, path) }
func SectionID(dir string) string      { return id(EntitySection, dir) }
func TemplateID(name string) string    { return id(EntityTemplate, name) }
func ShortcodeID(name string) string   { return id(EntityShortcode, name) }
func IncludeID(path string) string     { return id(EntityInclude, path) }
func DataID(name string) string        { return id(EntityData, name) }
func TermID(tax, slug string) string   { return id(EntityTerm, tax+"/"+slug) }
func TaxonomyID(tax string) string     { return id(EntityTerm, tax) }
func AssetID(path string) string       { return id(EntityAsset, path) }

// Split returns the kind and name of an entity id.
func Split(entityID string) (EntityKind, string) {
	kind, name, _ := strings.Cut(entityID, ":")
	return EntityKind(kind), name
}
