// Package metadata builds the JSON document that describes a product in the
// blob store.
//
// A document has the keys name, description, category, images, attributes
// and created_at, always in that order. Attributes are an arbitrary JSON
// object whose keys are serialized in the order the caller supplied them.
// Documents are write-once: the blob identifier returned by the upload is
// the only handle on them.
package metadata
