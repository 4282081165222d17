package feishu

import (
	"context"
	"net/http"
	"strconv"
)

const listPageSize = 100

// File is one entry of a drive folder listing.
type File struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Token string `json:"token"`
	URL   string `json:"url"`
}

// ListFiles returns every entry of folder; an empty folder token lists the
// root of the caller's drive.
func (c *Client) ListFiles(ctx context.Context, folder string) ([]File, error) {
	var files []File
	pageToken := ""

	for {
		req, err := c.authorized(ctx)
		if err != nil {
			return nil, err
		}
		req.SetQueryParam("page_size", strconv.Itoa(listPageSize))
		if folder != "" {
			req.SetQueryParam("folder_token", folder)
		}
		if pageToken != "" {
			req.SetQueryParam("page_token", pageToken)
		}

		var resp struct {
			Data struct {
				Files         []File `json:"files"`
				HasMore       bool   `json:"has_more"`
				NextPageToken string `json:"next_page_token"`
			} `json:"data"`
		}
		if err := execute(req, http.MethodGet, "/drive/v1/files", "list files", &resp); err != nil {
			return nil, err
		}

		files = append(files, resp.Data.Files...)
		if !resp.Data.HasMore || resp.Data.NextPageToken == "" {
			return files, nil
		}
		pageToken = resp.Data.NextPageToken
	}
}

// FileNames lists folder and keeps only the names.
func (c *Client) FileNames(ctx context.Context, folder string) ([]string, error) {
	files, err := c.ListFiles(ctx, folder)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names, nil
}
