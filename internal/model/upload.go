package model

import "io"

// Upload is one file handed to the media store.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}
