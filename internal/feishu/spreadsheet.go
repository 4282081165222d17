package feishu

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"xinfadi_prices/internal/grid"

	"github.com/rs/zerolog/log"
)

// SpreadsheetRef identifies the spreadsheet an upload created.
type SpreadsheetRef struct {
	Token   string
	SheetID string
	Title   string
	URL     string
}

// SpreadsheetInfo is the metadata Feishu keeps for a spreadsheet.
type SpreadsheetInfo struct {
	Title       string `json:"title"`
	FolderToken string `json:"folder_token"`
	URL         string `json:"url"`
	Token       string `json:"spreadsheet_token"`
	OwnerID     string `json:"owner_id"`
}

// Sheet is one tab of a spreadsheet.
type Sheet struct {
	SheetID string `json:"sheet_id"`
	Title   string `json:"title"`
	Index   int    `json:"index"`
}

var errNoSheets = errors.New("spreadsheet has no sheets")

// CreateSpreadsheet makes an empty spreadsheet in folder.
func (c *Client) CreateSpreadsheet(ctx context.Context, title, folder string) (*SpreadsheetRef, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]string{"title": title}
	if folder != "" {
		body["folder_token"] = folder
	}

	var resp struct {
		Data struct {
			Spreadsheet struct {
				Token string `json:"spreadsheet_token"`
				URL   string `json:"url"`
				Title string `json:"title"`
			} `json:"spreadsheet"`
		} `json:"data"`
	}
	if err := execute(req.SetBody(body), http.MethodPost, "/sheets/v3/spreadsheets", "create spreadsheet", &resp); err != nil {
		return nil, err
	}

	ref := &SpreadsheetRef{
		Token: resp.Data.Spreadsheet.Token,
		Title: title,
		URL:   resp.Data.Spreadsheet.URL,
	}
	log.Info().Str("title", title).Str("token", ref.Token).Str("url", ref.URL).Msg("Spreadsheet created")
	return ref, nil
}

// SpreadsheetInfo fetches spreadsheet metadata.
func (c *Client) SpreadsheetInfo(ctx context.Context, token string) (*SpreadsheetInfo, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Spreadsheet SpreadsheetInfo `json:"spreadsheet"`
		} `json:"data"`
	}
	if err := execute(req, http.MethodGet, "/sheets/v3/spreadsheets/"+token, "get spreadsheet", &resp); err != nil {
		return nil, err
	}
	return &resp.Data.Spreadsheet, nil
}

// ListSheets returns the tabs of a spreadsheet in their display order.
func (c *Client) ListSheets(ctx context.Context, token string) ([]Sheet, error) {
	req, err := c.authorized(ctx)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			Sheets []Sheet `json:"sheets"`
		} `json:"data"`
	}
	if err := execute(req, http.MethodGet, "/sheets/v3/spreadsheets/"+token+"/sheets/query", "query sheets", &resp); err != nil {
		return nil, err
	}
	return resp.Data.Sheets, nil
}

// FirstSheetID is the id of the default tab of a new spreadsheet.
func (c *Client) FirstSheetID(ctx context.Context, token string) (string, error) {
	sheets, err := c.ListSheets(ctx, token)
	if err != nil {
		return "", err
	}
	if len(sheets) == 0 {
		return "", fmt.Errorf("failed to pick sheet of %s: %w", token, errNoSheets)
	}
	return sheets[0].SheetID, nil
}

// AddSheet appends a tab named title, renamed if that title is taken, and
// returns its id.
func (c *Client) AddSheet(ctx context.Context, token, title string) (string, error) {
	sheets, err := c.ListSheets(ctx, token)
	if err != nil {
		return "", err
	}
	existing := make([]string, len(sheets))
	for i, s := range sheets {
		existing[i] = s.Title
	}
	title = grid.UniqueName(title, existing)

	req, err := c.authorized(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]any{
		"requests": []any{
			map[string]any{
				"addSheet": map[string]any{
					"properties": map[string]any{"title": title},
				},
			},
		},
	}
	var resp struct {
		Data struct {
			Replies []struct {
				AddSheet struct {
					Properties struct {
						SheetID string `json:"sheetId"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"replies"`
		} `json:"data"`
	}
	path := "/sheets/v2/spreadsheets/" + token + "/sheets_batch_update"
	if err := execute(req.SetBody(body), http.MethodPost, path, "add sheet", &resp); err != nil {
		return "", err
	}
	if len(resp.Data.Replies) == 0 {
		return "", &APIError{Op: "add sheet", Code: -1, Msg: "no reply for addSheet"}
	}

	id := resp.Data.Replies[0].AddSheet.Properties.SheetID
	log.Info().Str("title", title).Str("sheet_id", id).Msg("Sheet added")
	return id, nil
}
