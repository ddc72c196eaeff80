package domain

import "context"

// FetchedMedia describes an artifact acquired from its source and spooled to
// local disk, ready for upload to the unsigned store.
type FetchedMedia struct {
	SourceID string
	Title    string
	Ext      string
	Path     string
}

// Fetcher acquires a source artifact. Acquisition is an external collaborator
// (a downloader tool invoked out of process); the core only consumes this
// contract.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string) (FetchedMedia, error)
}
