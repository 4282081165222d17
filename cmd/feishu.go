package cmd

import (
	"bufio"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"xinfadi_prices/internal/app"
	"xinfadi_prices/internal/export"
	"xinfadi_prices/internal/feishu"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var uploadTitle string

var feishuCmd = &cobra.Command{
	Use:   "feishu",
	Short: "Manage Feishu credentials and spreadsheets",
}

var feishuInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		created, err := feishu.NewConfigStore(settings.FeishuConfigPath).Init(settings.RedirectURL())
		if err != nil {
			return err
		}
		if !created {
			fmt.Fprintf(cmd.OutOrStdout(), "配置文件已存在: %s\n", settings.FeishuConfigPath)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已创建配置模板: %s\n请填写 app_id 和 app_secret 后运行 feishu auth 或 feishu simple\n", settings.FeishuConfigPath)
		return nil
	},
}

var feishuSimpleCmd = &cobra.Command{
	Use:   "simple",
	Short: "Use app-level (tenant) tokens instead of user authorization",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := app.NewTokenManager(settings)
		if err != nil {
			return err
		}
		if err := tokens.EnableServiceMode(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "已启用应用授权模式")
		return nil
	},
}

var feishuAuthCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authorize as a user through the browser",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tokens, err := app.NewTokenManager(settings)
		if err != nil {
			return err
		}

		srv := feishu.NewAuthServer(settings.FeishuRedirectAddr)
		if err := srv.Listen(); err != nil {
			return err
		}

		authURL := tokens.AuthURL(feishu.AuthState)
		fmt.Fprintf(cmd.OutOrStdout(), "请在浏览器中完成授权:\n%s\n", authURL)
		if err := openBrowser(authURL); err != nil {
			log.Warn().Err(err).Msg("Could not open a browser, open the URL manually")
		}

		code, err := srv.Wait(ctx, feishu.AuthTimeout)
		if err != nil {
			return err
		}
		if err := tokens.ExchangeCode(ctx, code); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "授权成功")
		return nil
	},
}

var feishuAuthManualCmd = &cobra.Command{
	Use:   "auth-manual [redirect-url]",
	Short: "Authorize by pasting the redirect URL",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tokens, err := app.NewTokenManager(settings)
		if err != nil {
			return err
		}

		var redirect string
		if len(args) == 1 {
			redirect = args[0]
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "请在浏览器中打开:\n%s\n授权后将浏览器地址栏中的完整URL粘贴到这里:\n", tokens.AuthURL(feishu.AuthState))
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read redirect URL: %w", err)
			}
			redirect = line
		}

		code, err := feishu.CodeFromRedirect(redirect)
		if err != nil {
			return err
		}
		if err := tokens.ExchangeCode(ctx, code); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "授权成功")
		return nil
	},
}

var feishuTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check the token and list the target folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		tokens, client, err := app.NewFeishuClient(settings)
		if err != nil {
			return err
		}

		mode := "用户授权"
		if tokens.ServiceMode() {
			mode = "应用授权"
		}
		tok, err := tokens.Bearer(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "模式: %s, 令牌有效期至 %s\n", mode, tok.Expiry.Format("2006-01-02 15:04:05"))

		files, err := client.ListFiles(ctx, tokens.FolderToken())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "连接正常, 文件夹中有 %d 个文件\n", len(files))
		return nil
	},
}

var feishuListCmd = &cobra.Command{
	Use:   "list-files",
	Short: "List files in the configured folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, client, err := app.NewFeishuClient(settings)
		if err != nil {
			return err
		}
		files, err := client.ListFiles(cmd.Context(), tokens.FolderToken())
		if err != nil {
			return err
		}
		for _, f := range files {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", f.Type, f.Name, f.URL)
		}
		return nil
	},
}

var feishuUploadCmd = &cobra.Command{
	Use:   "upload <csv-file>",
	Short: "Upload a saved CSV file as a new spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := export.ReadCSV(args[0])
		if err != nil {
			return err
		}
		title := uploadTitle
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
		}

		tokens, client, err := app.NewFeishuClient(settings)
		if err != nil {
			return err
		}
		ref, err := client.UploadTable(cmd.Context(), table, title, tokens.FolderToken(), true)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已上传 %d 条: %s\n", len(table), ref.URL)
		return nil
	},
}

var feishuInfoCmd = &cobra.Command{
	Use:   "info <spreadsheet-token>",
	Short: "Show a spreadsheet and its sheets",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		_, client, err := app.NewFeishuClient(settings)
		if err != nil {
			return err
		}
		info, err := client.SpreadsheetInfo(ctx, args[0])
		if err != nil {
			return err
		}
		sheets, err := client.ListSheets(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", info.Title, info.URL)
		for _, s := range sheets {
			fmt.Fprintf(cmd.OutOrStdout(), "  %d\t%s\t%s\n", s.Index, s.SheetID, s.Title)
		}
		return nil
	},
}

var feishuAddSheetCmd = &cobra.Command{
	Use:   "add-sheet <spreadsheet-token> <title>",
	Short: "Add a uniquely named sheet to a spreadsheet",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, client, err := app.NewFeishuClient(settings)
		if err != nil {
			return err
		}
		id, err := client.AddSheet(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已添加工作表: %s\n", id)
		return nil
	},
}

func init() {
	feishuUploadCmd.Flags().StringVar(&uploadTitle, "title", "", "Spreadsheet title (default: file name)")

	feishuCmd.AddCommand(feishuInitCmd)
	feishuCmd.AddCommand(feishuSimpleCmd)
	feishuCmd.AddCommand(feishuAuthCmd)
	feishuCmd.AddCommand(feishuAuthManualCmd)
	feishuCmd.AddCommand(feishuTestCmd)
	feishuCmd.AddCommand(feishuListCmd)
	feishuCmd.AddCommand(feishuUploadCmd)
	feishuCmd.AddCommand(feishuInfoCmd)
	feishuCmd.AddCommand(feishuAddSheetCmd)
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
