package cmd

import (
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch [upload-path]",
	Short: "Stream per-page markdown of an uploaded file over a websocket",
	Long:  `Stream per-page markdown of a file previously stored with "leviosa-cli upload". Press Ctrl+C to stop generation.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wsURL, err := websocketURL(serverURL, args[0])
		if err != nil {
			return err
		}
		interrupt := make(chan os.Signal, 1)
		signal.Notify(interrupt, os.Interrupt)
		defer signal.Stop(interrupt)
		return watchMarkdown(wsURL, cmd.OutOrStdout(), interrupt)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

type wsMessage struct {
	Type     string `json:"type"`
	Page     int    `json:"page"`
	Markdown string `json:"markdown"`
	Pages    int    `json:"pages"`
	Detail   string `json:"detail"`
}

// websocketURL maps the HTTP server URL onto the /ws/markdown endpoint.
func websocketURL(server, path string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/markdown"
	u.RawQuery = url.Values{"path": {path}}.Encode()
	return u.String(), nil
}

func watchMarkdown(wsURL string, out io.Writer, interrupt <-chan os.Signal) error {
	log.Printf("Connecting to %s", wsURL)

	c, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer c.Close()

	messages := make(chan wsMessage)
	readErr := make(chan error, 1)
	go func() {
		defer close(messages)
		for {
			var msg wsMessage
			if err := c.ReadJSON(&msg); err != nil {
				readErr <- err
				return
			}
			messages <- msg
		}
	}()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				err := <-readErr
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("read: %w", err)
			}
			switch msg.Type {
			case "page":
				fmt.Fprintf(out, "<!-- page %d -->\n%s\n\n", msg.Page, msg.Markdown)
			case "done":
				log.Printf("Done, %d pages", msg.Pages)
				return nil
			case "error":
				return fmt.Errorf("server error: %s", msg.Detail)
			}
		case <-interrupt:
			log.Println("interrupt")
			// Closing tells the server to stop generating further pages.
			err := c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			if err != nil {
				return fmt.Errorf("write close: %w", err)
			}
			return nil
		}
	}
}
