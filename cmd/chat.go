package cmd

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/supportchat/internal/domain"
	"github.com/xiaot623/gogo/supportchat/internal/protocol"
)

var (
	chatURL   string
	chatToken string
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a running server over WebSocket",
	Long: `Connect to the WebSocket endpoint, authenticate with a bearer token and
exchange messages interactively.

Commands:
  /new [title]   start a new session
  /quit          exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatToken == "" {
			return errors.New("--token is required")
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Connecting to %s...\n", chatURL)
		client, err := dialChat(chatURL, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer client.Close()

		owner, err := client.Hello(chatToken)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Authenticated as %s\n", idStyle.Render(owner))
		fmt.Fprintln(cmd.OutOrStdout(), "Type a message and press Enter to send. /new starts a session, /quit exits.")

		go client.ReadMessages()
		return client.repl(cmd.InOrStdin(), exitOnSignal())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatURL, "url", "ws://localhost:5000/api/chat/ws", "WebSocket endpoint")
	chatCmd.Flags().StringVar(&chatToken, "token", "", "bearer token (see the token command)")
	rootCmd.AddCommand(chatCmd)
}

// chatClient is a line-oriented WebSocket client.
type chatClient struct {
	conn *websocket.Conn
	out  io.Writer
	done chan struct{}

	mu        sync.Mutex
	sessionID string
	seq       int
}

func dialChat(addr string, out io.Writer) (*chatClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &chatClient{conn: conn, out: out, done: make(chan struct{})}, nil
}

// Close closes the client connection.
func (c *chatClient) Close() error {
	close(c.done)
	return c.conn.Close()
}

// Hello sends the token and waits for hello_ack.
func (c *chatClient) Hello(token string) (string, error) {
	msg := protocol.HelloMessage{
		BaseMessage: protocol.BaseMessage{Type: protocol.TypeHello, Ts: time.Now().UnixMilli()},
		Token:       token,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return "", fmt.Errorf("write hello: %w", err)
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read hello_ack: %w", err)
	}

	var ack struct {
		protocol.HelloAckMessage
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &ack); err != nil {
		return "", fmt.Errorf("unmarshal hello_ack: %w", err)
	}
	if ack.Type == protocol.TypeError {
		return "", fmt.Errorf("hello failed: %s - %s", ack.Code, ack.Message)
	}
	if ack.Type != protocol.TypeHelloAck {
		return "", fmt.Errorf("expected hello_ack, got: %s", ack.Type)
	}
	return ack.OwnerID, nil
}

func (c *chatClient) nextRequestID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return fmt.Sprintf("req_%d", c.seq)
}

func (c *chatClient) currentSession() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *chatClient) setSession(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

// CreateSession asks for a new session; the id arrives with session_result.
func (c *chatClient) CreateSession(title string) error {
	return c.conn.WriteJSON(protocol.CreateSessionMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeCreateSession,
			Ts:        time.Now().UnixMilli(),
			RequestID: c.nextRequestID(),
		},
		Title: title,
	})
}

// SendMessage sends text to the current session.
func (c *chatClient) SendMessage(text string) error {
	sessionID := c.currentSession()
	if sessionID == "" {
		return errors.New("no session yet, use /new first")
	}
	return c.conn.WriteJSON(protocol.SendMessageMessage{
		BaseMessage: protocol.BaseMessage{
			Type:      protocol.TypeSendMessage,
			Ts:        time.Now().UnixMilli(),
			RequestID: c.nextRequestID(),
			SessionID: sessionID,
		},
		Message: text,
	})
}

// ReadMessages reads and prints messages from the server until the
// connection closes.
func (c *chatClient) ReadMessages() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					log.Printf("Read error: %v", err)
				}
			}
			return
		}
		c.handleFrame(data)
	}
}

func (c *chatClient) handleFrame(data []byte) {
	var base protocol.BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		log.Printf("Unmarshal error: %v", err)
		return
	}

	switch base.Type {
	case protocol.TypeSessionResult:
		var msg struct {
			Session *domain.Session `json:"session"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Session == nil {
			return
		}
		c.setSession(msg.Session.SessionID)
		fmt.Fprintf(c.out, "\nStarted %s %s\n", titleStyle.Render(msg.Session.Title), idStyle.Render(msg.Session.SessionID))
	case protocol.TypeMessageResult:
		var msg protocol.MessageResultMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Result == nil {
			return
		}
		fmt.Fprintf(c.out, "\n%s %s\n", assistantStyle.Render("assistant:"), msg.Result.AIResponse.Content)
	case protocol.TypeError:
		var msg protocol.ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return
		}
		fmt.Fprintf(c.out, "\n%s %s\n", errorStyle.Render(msg.Code+":"), msg.Message)
	default:
		var event domain.SessionEvent
		if err := json.Unmarshal(data, &event); err != nil {
			return
		}
		fmt.Fprintf(c.out, "%s\n", dateStyle.Render(fmt.Sprintf("[%s] %s %q (%d messages)", event.Type, event.SessionID, event.Title, event.MessageCount)))
	}
}

// repl reads lines from in until EOF, /quit or a signal.
func (c *chatClient) repl(in io.Reader, interrupt <-chan os.Signal) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-interrupt:
			fmt.Fprintln(c.out, "\nInterrupted")
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			input := strings.TrimSpace(line)
			switch {
			case input == "":
				continue
			case input == "/quit":
				fmt.Fprintln(c.out, "Bye!")
				return nil
			case input == "/new" || strings.HasPrefix(input, "/new "):
				if err := c.CreateSession(strings.TrimSpace(strings.TrimPrefix(input, "/new"))); err != nil {
					return fmt.Errorf("create session: %w", err)
				}
			default:
				if err := c.SendMessage(input); err != nil {
					fmt.Fprintln(c.out, errorStyle.Render(err.Error()))
				}
			}
		}
	}
}
