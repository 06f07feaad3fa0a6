// Package depgraph records which build entities consume which others.
//
// Entities are identified by typed string ids (page:, template:, ...). Every
// node declares the producers it references; the graph keeps a reverse index
// so AffectedBy can walk from a changed producer to everything downstream.
// References to producers that do not exist yet are kept, which lets a newly
// created template or include invalidate pages that were waiting for it.
package depgraph
