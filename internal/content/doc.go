// Package content defines what a register can hold.
//
// [Content] is a closed sum type: [Text], [Link] or [File]. Values are
// persisted as tagged JSON records via [Marshal] and read back with
// [Unmarshal]; anything Unmarshal cannot interpret yields an error wrapping
// [ErrParse]. File content only references its bytes; the bytes themselves
// live in blob storage under File.BlobKey.
package content
