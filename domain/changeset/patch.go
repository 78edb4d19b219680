package changeset

import "github.com/emergent-company/graphmerge/pkg/rdf"

// Patch is the explicit diff a pipeline stage returns. Stages never touch a
// changeset directly; they describe what should change and Apply produces the
// next snapshot.
type Patch struct {
	// Insert, Update and Remove add to the respective partitions.
	Insert []rdf.Statement
	Update []rdf.Statement
	Remove []rdf.Statement
	// Affect adds read-only context for the caller.
	Affect []rdf.Statement
	// Drop takes statements out of the inserted partition. It does not touch
	// the store.
	Drop []rdf.Statement
	// Rewrites redirect identifiers in the inserted and updated partitions.
	Rewrites []rdf.IdentifierMapping
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return len(p.Insert) == 0 && len(p.Update) == 0 && len(p.Remove) == 0 &&
		len(p.Affect) == 0 && len(p.Drop) == 0 && len(p.Rewrites) == 0
}

// Merge concatenates two patches. The result applies p first, then o, within
// each section.
func (p Patch) Merge(o Patch) Patch {
	return Patch{
		Insert:   append(append([]rdf.Statement(nil), p.Insert...), o.Insert...),
		Update:   append(append([]rdf.Statement(nil), p.Update...), o.Update...),
		Remove:   append(append([]rdf.Statement(nil), p.Remove...), o.Remove...),
		Affect:   append(append([]rdf.Statement(nil), p.Affect...), o.Affect...),
		Drop:     append(append([]rdf.Statement(nil), p.Drop...), o.Drop...),
		Rewrites: append(append([]rdf.IdentifierMapping(nil), p.Rewrites...), o.Rewrites...),
	}
}
