package http

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/dittofiles/pkg/files"
)

// uploadMetadata is the JSON "metadata" part of an upload.
type uploadMetadata struct {
	// Filename defaults to the file part's filename.
	Filename    string   `json:"filename" validate:"omitempty,max=255"`
	Visibility  string   `json:"visibility" validate:"required"`
	Tags        []string `json:"tags" validate:"max=32,dive,max=64"`
	ContentType string   `json:"contentType" validate:"omitempty,max=255"`

	// Size is the declared content length; absent means unknown.
	Size *int64 `json:"size" validate:"omitempty,min=0"`
}

type renameRequest struct {
	Filename string `json:"filename" validate:"required,max=255"`
}

// fileResponse is a record plus its download path.
type fileResponse struct {
	files.FileRecord
	DownloadURL string `json:"downloadUrl"`
}

func newFileResponse(rec files.FileRecord) fileResponse {
	return fileResponse{FileRecord: rec, DownloadURL: downloadPath(rec.LinkID)}
}

type pageResponse struct {
	Items []fileResponse `json:"items"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
	Total int            `json:"total"`
}

func newPageResponse(page files.Page) pageResponse {
	items := make([]fileResponse, len(page.Items))
	for i, rec := range page.Items {
		items[i] = newFileResponse(rec)
	}
	return pageResponse{Items: items, Page: page.Page, Size: page.Size, Total: page.Total}
}

func downloadPath(linkID string) string {
	return "/d/" + linkID
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
