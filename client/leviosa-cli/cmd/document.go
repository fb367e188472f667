package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type artifact struct {
	Markdown string `json:"markdown"`
	RawText  string `json:"raw_text"`
}

var uploadCmd = &cobra.Command{
	Use:   "upload [file]",
	Short: "Upload a PDF or image and print its server path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newAPIClient(serverURL).postFile("/api/upload", args[0])
		if err != nil {
			return err
		}
		var out struct {
			Filename string `json:"filename"`
			Path     string `json:"path"`
		}
		if err := decodeJSON(resp, &out); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out.Path)
		return nil
	},
}

var (
	layoutEnhanced bool
	layoutOCR      bool
	layoutRemote   bool
)

var layoutCmd = &cobra.Command{
	Use:   "layout [file]",
	Short: "Detect layout regions and print them as JSON",
	Long:  `Detect layout regions of a local file, or of an uploaded file with --remote, and print the document JSON.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, err := layoutEndpoint(layoutEnhanced, layoutOCR, layoutRemote)
		if err != nil {
			return err
		}
		c := newAPIClient(serverURL)
		if layoutRemote {
			r, err := c.postJSON(endpoint, map[string]string{"path": args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), r)
		}
		r, err := c.postFile(endpoint, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), r)
	},
}

func layoutEndpoint(enhanced, ocr, remote bool) (string, error) {
	switch {
	case enhanced && ocr:
		return "", fmt.Errorf("--enhanced and --ocr are mutually exclusive")
	case ocr && remote:
		return "/api/ocr/path", nil
	case ocr:
		return "/api/ocr/file", nil
	case enhanced && remote:
		return "/api/layout/path/enhanced", nil
	case enhanced:
		return "/api/layout/enhanced", nil
	case remote:
		return "/api/layout/path", nil
	default:
		return "/api/layout", nil
	}
}

var (
	markdownMode   string
	markdownOutput string
)

var markdownCmd = &cobra.Command{
	Use:   "markdown [file]",
	Short: "Reconstruct a PDF or image as Markdown",
	Long: `Reconstruct a PDF or image as Markdown.

Modes:
  direct   single generation call, fails when no model is configured
  refined  draft plus a refinement pass
  ocr      OCR text lines instead of layout regions
  stream   print each page as soon as it is ready`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if markdownOutput != "" {
			f, err := os.Create(markdownOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		return convertFile(newAPIClient(serverURL), markdownMode, args[0], out)
	},
}

func convertFile(c *apiClient, mode, path string, out io.Writer) error {
	var endpoint string
	switch mode {
	case "direct":
		endpoint = "/api/layout/enhanced/markdown/direct/multipage"
	case "refined":
		endpoint = "/api/layout/enhanced/markdown/refined"
	case "ocr":
		endpoint = "/api/ocr-to-markdown"
	case "stream":
		resp, err := c.postFile("/api/layout/enhanced/markdown/stream", path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		first := true
		return readNDJSON(resp.Body, func(pm pageMarkdown) error {
			if !first {
				if _, err := io.WriteString(out, "\n\n"); err != nil {
					return err
				}
			}
			first = false
			_, err := io.WriteString(out, pm.Markdown)
			return err
		})
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}

	resp, err := c.postFile(endpoint, path)
	if err != nil {
		return err
	}
	var art artifact
	if err := decodeJSON(resp, &art); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, art.Markdown)
	return err
}

var refineCmd = &cobra.Command{
	Use:   "refine [markdown-file]",
	Short: "Refine an existing Markdown file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		resp, err := newAPIClient(serverURL).postJSON("/api/markdown/refine", map[string]string{"markdown": string(data)})
		if err != nil {
			return err
		}
		var art artifact
		if err := decodeJSON(resp, &art); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), art.Markdown)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd, layoutCmd, markdownCmd, refineCmd)

	layoutCmd.Flags().BoolVar(&layoutEnhanced, "enhanced", false, "apply heuristic reclassification")
	layoutCmd.Flags().BoolVar(&layoutOCR, "ocr", false, "return OCR text lines instead of layout regions")
	layoutCmd.Flags().BoolVar(&layoutRemote, "remote", false, "treat the argument as a path returned by upload")

	markdownCmd.Flags().StringVarP(&markdownMode, "mode", "m", "refined", "direct, refined, ocr or stream")
	markdownCmd.Flags().StringVarP(&markdownOutput, "output", "o", "", "write markdown to this file instead of stdout")
}
