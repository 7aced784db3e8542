package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/raidwatch/raidwatch/internal/tui/app"
	"github.com/raidwatch/raidwatch/internal/tui/client"
)

func main() {
	cliApp := &cli.App{
		Name:  "raidwatch-tui",
		Usage: "terminal dashboard for a running raidwatch server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Value: "ws://127.0.0.1:8080/ws", Usage: "WebSocket URL of the raidwatch server"},
			&cli.StringFlag{Name: "token", Usage: "auth token (if the server requires it)", EnvVars: []string{"RAIDWATCH_TOKEN"}},
			&cli.StringFlag{Name: "log-file", Usage: "write client logs here instead of discarding them"},
		},
		Action: run,
	}
	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	// The alternate screen owns the terminal.
	log.SetOutput(io.Discard)
	if path := ctx.String("log-file"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		defer f.Close()
		log.SetOutput(f)
		log.SetLevel(log.DebugLevel)
	}

	wsURL := ctx.String("url")
	token := ctx.String("token")
	ws := client.NewWSClient(wsURL, token)
	defer ws.Close()

	m := app.New(ws, client.NewHTTPClient(deriveHTTPBase(wsURL), token))
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx.Context)).Run()
	return err
}

// deriveHTTPBase converts ws://host:port/ws → http://host:port
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
