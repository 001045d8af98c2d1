// Package events is the authoritative catalogue of document event names.
//
// Event producers (the document manager, the unit of work, the metadata factory
// and the XML marshaller) and event listeners both refer to these constants, so
// a typo becomes a compile error instead of a listener that never fires.
//
// The set is closed: every name the library can raise is declared here, and the
// event manager rejects any Name that is not. New names are only ever appended;
// existing values never change because listener registrations bind to them.
package events

// Name is the identifier of a document event. Its string value is the stable
// dispatch key.
type Name string

// Category groups event names by the part of the library that raises them.
type Category string

const (
	// CategoryLifecycle covers persist, update, remove and load of a document.
	CategoryLifecycle Category = "lifecycle"
	// CategoryMarshalling covers XML serialization and deserialization.
	CategoryMarshalling Category = "marshalling"
	// CategoryMetadata covers mapping metadata loading.
	CategoryMetadata Category = "metadata"
	// CategoryTransaction covers the flush of a unit of work.
	CategoryTransaction Category = "transaction"
)

const (
	// PreRemove occurs for a document before the remove operation for that
	// document is executed by the document manager.
	PreRemove Name = "preRemove"

	// PostRemove occurs for a document after it has been deleted. It is
	// raised after the database delete operation.
	PostRemove Name = "postRemove"

	// PrePersist occurs for a document before the persist operation for that
	// document is executed by the document manager.
	PrePersist Name = "prePersist"

	// PostPersist occurs for a document after it has been made persistent,
	// after the database insert. Generated identifiers are already set on the
	// document when it fires.
	PostPersist Name = "postPersist"

	// PreUpdate occurs before the database update of a document's data.
	PreUpdate Name = "preUpdate"

	// PostUpdate occurs after the database update of a document's data.
	PostUpdate Name = "postUpdate"

	// PreLoad occurs before a document is loaded from the database, or before
	// a refresh is applied to it.
	PreLoad Name = "preLoad"

	// PostLoad occurs after a document has been loaded from the database, or
	// after a refresh has been applied to it.
	//
	// It fires before any associations are initialized, so listeners must not
	// access associations.
	PostLoad Name = "postLoad"

	// PreMarshal occurs before a document is marshalled to XML.
	PreMarshal Name = "preMarshal"

	// PostMarshal occurs after a document has been marshalled to XML.
	PostMarshal Name = "postMarshal"

	// PreUnmarshal occurs before XML is unmarshalled into a document.
	PreUnmarshal Name = "preUnmarshal"

	// PostUnmarshal occurs after XML has been unmarshalled into a document.
	PostUnmarshal Name = "postUnmarshal"

	// LoadClassMetadata occurs once per class, after its mapping metadata has
	// been loaded from a mapping source (struct tags, yaml or toml).
	LoadClassMetadata Name = "loadClassMetadata"

	// OnFlush occurs when a flush is invoked, after the change-sets of all
	// managed documents are computed and before any database operation. It is
	// only raised when there is something to flush.
	OnFlush Name = "onFlush"
)

type entry struct {
	name        Name
	category    Category
	counterpart Name
	pre         bool
}

// registry lists every event in declaration order. Append only.
var registry = [...]entry{
	{PreRemove, CategoryLifecycle, PostRemove, true},
	{PostRemove, CategoryLifecycle, PreRemove, false},
	{PrePersist, CategoryLifecycle, PostPersist, true},
	{PostPersist, CategoryLifecycle, PrePersist, false},
	{PreUpdate, CategoryLifecycle, PostUpdate, true},
	{PostUpdate, CategoryLifecycle, PreUpdate, false},
	{PreLoad, CategoryLifecycle, PostLoad, true},
	{PostLoad, CategoryLifecycle, PreLoad, false},
	{PreMarshal, CategoryMarshalling, PostMarshal, true},
	{PostMarshal, CategoryMarshalling, PreMarshal, false},
	{PreUnmarshal, CategoryMarshalling, PostUnmarshal, true},
	{PostUnmarshal, CategoryMarshalling, PreUnmarshal, false},
	{LoadClassMetadata, CategoryMetadata, "", false},
	{OnFlush, CategoryTransaction, "", false},
}

var index = func() map[Name]int {
	m := make(map[Name]int, len(registry))
	for i, e := range registry {
		m[e.name] = i
	}
	return m
}()

// All returns every event name in declaration order. The returned slice is a
// copy and may be modified by the caller.
func All() []Name {
	out := make([]Name, len(registry))
	for i, e := range registry {
		out[i] = e.name
	}
	return out
}

// Lookup resolves a string to a registered Name. Matching is exact and case
// sensitive.
func Lookup(s string) (Name, bool) {
	if _, ok := index[Name(s)]; ok {
		return Name(s), true
	}
	return "", false
}

// ByCategory returns the names of the given category in declaration order.
func ByCategory(category Category) []Name {
	var out []Name
	for _, e := range registry {
		if e.category == category {
			out = append(out, e.name)
		}
	}
	return out
}

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{CategoryLifecycle, CategoryMarshalling, CategoryMetadata, CategoryTransaction}
}

func (n Name) String() string { return string(n) }

// Known reports whether n is part of the registry.
func (n Name) Known() bool {
	_, ok := index[n]
	return ok
}

// Category returns the category of n, or the empty Category when n is unknown.
func (n Name) Category() Category {
	if i, ok := index[n]; ok {
		return registry[i].category
	}
	return ""
}

// IsPre reports whether n is the "before" half of a pre/post pair.
func (n Name) IsPre() bool {
	i, ok := index[n]
	return ok && registry[i].pre
}

// IsPost reports whether n is the "after" half of a pre/post pair.
func (n Name) IsPost() bool {
	i, ok := index[n]
	return ok && !registry[i].pre && registry[i].counterpart != ""
}

// Counterpart returns the other half of a pre/post pair: PrePersist for
// PostPersist and vice versa. LoadClassMetadata and OnFlush have none.
func (n Name) Counterpart() (Name, bool) {
	i, ok := index[n]
	if !ok || registry[i].counterpart == "" {
		return "", false
	}
	return registry[i].counterpart, true
}

// DocumentScoped reports whether n is raised for a single document, which is
// the case for the lifecycle and marshalling categories.
func (n Name) DocumentScoped() bool {
	c := n.Category()
	return c == CategoryLifecycle || c == CategoryMarshalling
}
