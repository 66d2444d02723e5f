// Package catalog implements product registration and catalog upkeep.
//
// RegisterProduct is the full pipeline: images are uploaded one by one, a
// metadata document referencing them is uploaded, and only then is the
// product inserted with status pending_blockchain. The returned
// BlockchainData carries the price as a decimal string of the 10^18-scaled
// integer for the contract call made by the client.
//
// Uploads are at-least-once. A failure partway through leaves the blobs sent
// so far in the gateway; the count is logged as orphaned_uploads.
package catalog
