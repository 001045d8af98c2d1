package core

import "errors"

var (
	// ErrUnknownEvent is returned when a listener is registered for a name
	// that is not part of the events registry.
	ErrUnknownEvent = errors.New("core: unknown event")
	// ErrUnmappedDocument is returned when a document's type has no loaded
	// metadata in the document manager's MetadataFactory.
	ErrUnmappedDocument = errors.New("core: document type is not mapped")
	// ErrDocumentNotManaged is returned when an operation requires a document
	// tracked by the unit of work.
	ErrDocumentNotManaged = errors.New("core: document is not managed")
	// ErrNoIdentifier is returned when a schema has no primary key field or a
	// document's identifier is empty where one is required.
	ErrNoIdentifier = errors.New("core: document has no identifier")
	// ErrDocumentNotFound is returned when a lookup by identifier matches nothing.
	ErrDocumentNotFound = errors.New("core: document not found")
)
