package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/creastat/chatstore"
	"github.com/creastat/chatstore/agent"
	"github.com/creastat/chatstore/identity"
	"github.com/creastat/chatstore/session"
	"github.com/creastat/chatstore/sessionstore"
)

const helpText = `Commands:
  /new                 start a new chat
  /list                list chats
  /use <n|id>          switch to a chat
  /sync                reconcile with the backend
  /login <email> <pw>  sign in
  /guest               continue as guest
  /logout              sign out and clear local chats
  /image <path> [text] send an image
  /title               ask the backend to title the current chat
  /health              check the backend
  /quit                exit
Anything else is sent as a message.`

type repl struct {
	store  *sessionstore.Store
	client *agent.Client
	in     *bufio.Scanner
	out    io.Writer
}

func newREPL(store *sessionstore.Store, client *agent.Client, in io.Reader, out io.Writer) *repl {
	return &repl{store: store, client: client, in: bufio.NewScanner(in), out: out}
}

func (r *repl) run(ctx context.Context) error {
	r.printf("%s\n", helpText)
	r.printCurrent()

	for {
		r.printf("> ")
		if !r.in.Scan() {
			return r.in.Err()
		}
		line := strings.TrimSpace(r.in.Text())
		if line == "" {
			continue
		}
		if line == "/quit" || line == "/exit" {
			return nil
		}
		if err := r.handle(ctx, line); err != nil {
			r.printf("error: %v\n", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (r *repl) handle(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, "/") {
		return r.send(ctx, sessionstore.SendRequest{Content: line})
	}

	cmd, args, _ := strings.Cut(line, " ")
	args = strings.TrimSpace(args)

	switch cmd {
	case "/help":
		r.printf("%s\n", helpText)
	case "/new":
		r.store.CreateSession()
		r.printCurrent()
	case "/list":
		r.list()
	case "/use":
		return r.use(args)
	case "/sync":
		if err := r.store.SyncWithBackend(ctx); err != nil {
			return err
		}
		r.list()
	case "/login":
		email, password, ok := strings.Cut(args, " ")
		if !ok {
			return errors.New("usage: /login <email> <password>")
		}
		if err := r.store.Login(ctx, identity.Credentials{Email: email, Password: strings.TrimSpace(password)}); err != nil {
			return err
		}
		r.printf("signed in as %s\n", r.store.State().User.Email)
		r.list()
	case "/guest":
		user := r.store.LoginAsGuest()
		r.printf("continuing as %s\n", user.Name)
	case "/logout":
		r.store.Logout(ctx)
		r.printf("signed out\n")
	case "/image":
		path, caption, _ := strings.Cut(args, " ")
		if path == "" {
			return errors.New("usage: /image <path> [text]")
		}
		return r.sendImage(ctx, path, strings.TrimSpace(caption))
	case "/title":
		cur := r.store.GetCurrentSession()
		if cur == nil {
			return chatstore.ErrNoActiveSession
		}
		title, err := r.store.RefreshTitle(ctx, cur.ID)
		if err != nil {
			return err
		}
		r.printf("title: %s\n", title)
	case "/health":
		status, err := r.client.Health(ctx)
		if err != nil {
			return err
		}
		r.printf("%s (breaker %s)\n", status.Status, r.client.BreakerState())
	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil
}

func (r *repl) send(ctx context.Context, req sessionstore.SendRequest) error {
	reply, err := r.store.SendMessage(ctx, req)
	if err != nil {
		r.printf("assistant: %s\n", sessionstore.ErrorReply)
		return err
	}
	r.printMessage(reply)
	return nil
}

func (r *repl) sendImage(ctx context.Context, path, caption string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if caption == "" {
		caption = "What is this?"
	}
	return r.send(ctx, sessionstore.SendRequest{
		Content:  caption,
		Image:    &agent.Image{Filename: filepath.Base(path), Data: data},
		ImageURL: "file://" + abs,
	})
}

func (r *repl) use(arg string) error {
	if arg == "" {
		return errors.New("usage: /use <n|id>")
	}
	sessions := r.store.State().Sessions
	target := arg
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(sessions) {
			return fmt.Errorf("no chat #%d", n)
		}
		target = sessions[n-1].ID
	}
	r.store.SetCurrentSession(target)
	cur := r.store.GetCurrentSession()
	if cur == nil {
		return fmt.Errorf("no chat %s", target)
	}
	r.printf("== %s ==\n", cur.Title)
	for _, m := range cur.Messages {
		r.printMessage(m)
	}
	return nil
}

func (r *repl) list() {
	st := r.store.State()
	if len(st.Sessions) == 0 {
		r.printf("no chats\n")
		return
	}
	for i, cs := range st.Sessions {
		marker := " "
		if cs.ID == st.CurrentSessionID {
			marker = "*"
		}
		r.printf("%s %2d. %-36s %3d msgs  %s\n", marker, i+1, cs.Title, len(cs.Messages), cs.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
}

func (r *repl) printCurrent() {
	st := r.store.State()
	who := "nobody"
	if st.User != nil {
		who = st.User.Name
	}
	title := "none"
	if cur := r.store.GetCurrentSession(); cur != nil {
		title = cur.Title
	}
	r.printf("user: %s, chat: %s\n", who, title)
}

func (r *repl) printMessage(m session.Message) {
	r.printf("%s: %s\n", m.Sender, m.Content)
	for _, p := range m.Products {
		r.printf("  - %s %s (%s) %s\n",
			agent.PlainText(p.Name), agent.PlainText(p.Price), agent.PlainText(p.Marketplace), p.Link)
		r.printf("    image: %s\n", agent.ProductImage(agent.Product{Image: p.Image}))
	}
}

func (r *repl) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}
