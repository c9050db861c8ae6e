// Package valuestore combines the dynamic-value codec and the
// normalizer over a single BlobStore, giving callers Put/Get/Delete
// over whole structured values instead of flat JSON blobs.
package valuestore
