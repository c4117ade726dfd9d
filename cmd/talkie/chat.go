package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adi-253/Talkie/chatsync/internal/api"
	"github.com/adi-253/Talkie/chatsync/internal/chat"
	"github.com/adi-253/Talkie/chatsync/internal/config"
	"github.com/adi-253/Talkie/chatsync/internal/metrics"
	"github.com/adi-253/Talkie/chatsync/internal/models"
	"github.com/adi-253/Talkie/chatsync/internal/realtime"
)

func init() {
	rootCmd.AddCommand(chatCmd)

	flags := chatCmd.Flags()
	flags.String("api", "", "chat API base URL")
	flags.String("realtime", "", "realtime websocket URL")
	flags.String("token", "", "bearer token")
	flags.String("user", "", "your user id")
	flags.String("name", "", "your display name")
	flags.String("workspace", "", "workspace whose chat to open")
	bindFlags(flags.Lookup, map[string]string{
		"api_base_url": "api",
		"realtime_url": "realtime",
		"token":        "token",
		"user_id":      "user",
		"user_name":    "name",
		"workspace_id": "workspace",
	})
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the workspace chat in the terminal",
	Long: `Opens the workspace chat. Type a line to send it, or use a command:

  /reply <id> <text>     reply to a message
  /edit <id> <text>      replace the text of your message
  /delete <id>           delete your message
  /attach <path> [text]  send a file
  /older                 load older messages
  /read                  mark the chat as read
  /quit                  leave

Message ids may be shortened to any unique prefix.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.RequireClient(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runChat(ctx, cfg, os.Stdin, cmd.OutOrStdout())
	},
}

// reloadToken re-reads the configuration and hands back a token that differs
// from the rejected one.
func reloadToken(ctx context.Context, stale string) (string, error) {
	fresh, err := config.LoadFrom(viper.New())
	if err != nil {
		return "", err
	}
	if fresh.Token == "" || fresh.Token == stale {
		return "", errors.New("no new token configured")
	}
	return fresh.Token, nil
}

func runChat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	gateway := api.NewGateway(cfg.Token, api.RefreshFunc(reloadToken))
	gateway.OnInvalidate(func(err error) {
		log.Error().Err(err).Msg("Credentials rejected, signing out")
		cancel()
	})

	client := api.NewClient(cfg, gateway)
	channel := realtime.NewChannel(cfg, gateway, realtime.WithMetrics(m))
	defer channel.Close()

	if err := channel.Connect(ctx); err != nil {
		return err
	}

	unread := chat.NewUnreadCounter(cfg, client, channel, chat.WithMetrics(m))
	if err := unread.Mount(ctx); err != nil {
		return fmt.Errorf("failed to open workspace chat: %w", err)
	}
	defer unread.Unmount()

	session := chat.NewSession(cfg, unread.ChatID(), client, channel, chat.WithMetrics(m))
	defer session.Close()
	channel.OnError(session.ReportConnectionError)

	if err := session.Open(ctx); err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}

	ui := newRenderer(out, cfg.UserID)
	ui.timeline(session.Timeline(), session.HasMore())

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-session.Updates():
			ui.timeline(session.Timeline(), session.HasMore())
			ui.typing(session.TypingIndicator())

		case <-unread.Updates():
			ui.unread(unread.Count())

		case n := <-session.Notices():
			ui.notice(n)

		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := runCommand(ctx, session, unread, strings.TrimSpace(line))
			if err != nil && !notified(err) {
				ui.errorf("%v", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// runCommand executes one input line. It reports whether the user asked to quit.
// Input arrives a line at a time, so each composed line counts as one
// keystroke and the typing run ends after the idle timeout.
func runCommand(ctx context.Context, session *chat.Session, unread *chat.UnreadCounter, line string) (bool, error) {
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		session.Keystroke()
		return false, session.Send(ctx, chat.SendInput{Content: line})
	}

	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	if composes(name) {
		session.Keystroke()
	}

	switch name {
	case "/quit":
		return true, nil

	case "/older":
		_, err := session.LoadOlder(ctx)
		return false, err

	case "/read":
		return false, unread.MarkAsRead()

	case "/reply":
		ref, text, _ := strings.Cut(rest, " ")
		id, err := resolveID(session.Timeline(), ref)
		if err != nil {
			return false, err
		}
		return false, session.Send(ctx, chat.SendInput{Content: text, ReplyToID: id})

	case "/edit":
		ref, text, _ := strings.Cut(rest, " ")
		id, err := resolveID(session.Timeline(), ref)
		if err != nil {
			return false, err
		}
		return false, session.Edit(ctx, id, text)

	case "/delete":
		id, err := resolveID(session.Timeline(), rest)
		if err != nil {
			return false, err
		}
		return false, session.Delete(ctx, id)

	case "/attach":
		path, text, _ := strings.Cut(rest, " ")
		upload, err := readUpload(path)
		if err != nil {
			return false, err
		}
		return false, session.Send(ctx, chat.SendInput{Content: text, Uploads: []models.Upload{upload}})
	}
	return false, fmt.Errorf("unknown command %s", name)
}

func composes(command string) bool {
	switch command {
	case "/reply", "/edit", "/attach":
		return true
	}
	return false
}

// notified reports whether a failed request was already announced as a
// session notice. Local rejections are only returned.
func notified(err error) bool {
	var statusErr *api.StatusError
	return errors.As(err, &statusErr) ||
		errors.Is(err, api.ErrSessionInvalidated) ||
		chat.Classify(err) == chat.ClassTransport
}

// resolveID expands a unique id prefix against the loaded timeline.
func resolveID(t *chat.Timeline, prefix string) (string, error) {
	if prefix == "" {
		return "", errors.New("message id required")
	}
	var match string
	for _, id := range t.IDs() {
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				return "", fmt.Errorf("message id %q is ambiguous", prefix)
			}
			match = id
		}
	}
	if match == "" {
		return "", fmt.Errorf("no message with id %q", prefix)
	}
	return match, nil
}

func readUpload(path string) (models.Upload, error) {
	if path == "" {
		return models.Upload{}, errors.New("file path required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Upload{}, fmt.Errorf("failed to read attachment: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return models.Upload{FileName: filepath.Base(path), MimeType: mimeType, Data: data}, nil
}
