// Package assets sorts archive entries into image and video assets.
package assets

import (
	"path"
	"strings"

	"github.com/tendant/catalog-ingest-pipeline/internal/archive"
)

// Kind is the asset category
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Folder markers that must appear in an asset path
const (
	ImageFolder = "Poster_Images"
	VideoFolder = "Movie_Videos"
)

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

var videoTypes = map[string]string{
	".mp4": "video/mp4",
	".mov": "video/quicktime",
	".avi": "video/x-msvideo",
}

// Asset is a classified media file
type Asset struct {
	Kind        Kind
	Path        string
	ContentType string
	entry       *archive.Entry
}

// Bytes reads the asset content from the archive
func (a Asset) Bytes() ([]byte, error) {
	return a.entry.Bytes()
}

// Classify partitions entries into images and videos, in input order.
// Anything else is dropped.
func Classify(entries []*archive.Entry) (images, videos []Asset) {
	for _, e := range entries {
		ext := strings.ToLower(path.Ext(e.Path))
		switch {
		case strings.Contains(e.Path, ImageFolder) && imageTypes[ext] != "":
			images = append(images, Asset{Kind: KindImage, Path: e.Path, ContentType: imageTypes[ext], entry: e})
		case strings.Contains(e.Path, VideoFolder) && videoTypes[ext] != "":
			videos = append(videos, Asset{Kind: KindVideo, Path: e.Path, ContentType: videoTypes[ext], entry: e})
		}
	}
	return images, videos
}
