package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Uttam-Mahata/qchat"
)

const defaultIdentityPath = "qchat-identity.json"

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fatal("usage: qchat <keygen|fingerprint|register|rooms|create|join|send|history|watch> [args]")
	}

	switch os.Args[1] {
	case "keygen":
		keygen()
	case "fingerprint":
		fingerprint()
	case "register":
		if len(os.Args) < 3 {
			fatal("usage: qchat register <username>")
		}
		register(os.Args[2])
	case "rooms":
		listRooms()
	case "create":
		if len(os.Args) < 3 {
			fatal("usage: qchat create <room-name>")
		}
		createRoom(os.Args[2])
	case "join":
		if len(os.Args) < 3 {
			fatal("usage: qchat join <room-id>")
		}
		joinRoom(os.Args[2])
	case "send":
		if len(os.Args) < 4 {
			fatal("usage: qchat send <room-id> <text>")
		}
		send(os.Args[2], os.Args[3])
	case "history":
		if len(os.Args) < 3 {
			fatal("usage: qchat history <room-id>")
		}
		history(os.Args[2])
	case "watch":
		watch()
	default:
		fatal("unknown command: %s", os.Args[1])
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func identityPath() string {
	if path := os.Getenv("QCHAT_IDENTITY"); path != "" {
		return path
	}
	return defaultIdentityPath
}

func loadIdentity() *qchat.Identity {
	identity, err := qchat.LoadIdentity(identityPath())
	if err != nil {
		fatal("load identity from %s: %v (run 'qchat keygen' first)", identityPath(), err)
	}
	return identity
}

// newClient builds a client from the environment. Commands other than
// register and keygen also log in.
func newClient(login bool) (*qchat.Client, context.Context, context.CancelFunc) {
	serverURL := os.Getenv("QCHAT_URL")
	if serverURL == "" {
		fatal("QCHAT_URL environment variable is required")
	}

	identity := loadIdentity()
	client, err := qchat.New(serverURL, identity)
	if err != nil {
		fatal("create client: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)

	if login {
		username := identity.Username()
		password := os.Getenv("QCHAT_PASSWORD")
		if username == "" {
			fatal("identity is not registered; run 'qchat register <username>' first")
		}
		if password == "" {
			fatal("QCHAT_PASSWORD environment variable is required")
		}
		if err := client.Login(ctx, username, password); err != nil {
			fatal("login: %v", err)
		}
	}
	return client, ctx, cancel
}

func keygen() {
	path := identityPath()
	if _, err := os.Stat(path); err == nil {
		fatal("identity file %s already exists, refusing to overwrite", path)
	}

	identity, err := qchat.NewIdentity()
	if err != nil {
		fatal("generate identity: %v", err)
	}
	if err := identity.SaveFile(path); err != nil {
		fatal("save identity: %v", err)
	}

	fmt.Printf("identity written to %s\n", path)
	fmt.Printf("fingerprint: %s\n", identity.Fingerprint())
}

func fingerprint() {
	// With a username argument, look the contact up on the server and
	// print their key's fingerprint for out-of-band comparison.
	if len(os.Args) >= 3 {
		client, ctx, cancel := newClient(true)
		defer cancel()
		defer client.Close()

		fp, err := client.ContactFingerprint(ctx, os.Args[2])
		if err != nil {
			fatal("fingerprint of %s: %v", os.Args[2], err)
		}
		fmt.Printf("%s: %s\n", os.Args[2], fp)
		return
	}

	identity := loadIdentity()
	fmt.Println(identity.Fingerprint())
}

func register(username string) {
	password := os.Getenv("QCHAT_PASSWORD")
	if password == "" {
		fatal("QCHAT_PASSWORD environment variable is required")
	}

	client, ctx, cancel := newClient(false)
	defer cancel()
	defer client.Close()

	if err := client.Register(ctx, username, password); err != nil {
		fatal("register: %v", err)
	}

	// Persist the username binding so later commands can log in.
	if err := client.Identity().SaveFile(identityPath()); err != nil {
		fatal("update identity file: %v", err)
	}
	fmt.Printf("registered %s\n", username)
	fmt.Printf("fingerprint: %s\n", client.Identity().Fingerprint())
}

func listRooms() {
	client, ctx, cancel := newClient(true)
	defer cancel()
	defer client.Close()

	rooms, err := client.Rooms(ctx)
	if err != nil {
		fatal("list rooms: %v", err)
	}
	if len(rooms) == 0 {
		fmt.Println("no rooms")
		return
	}
	for _, room := range rooms {
		fmt.Printf("%s  %s\n", room.ID(), room.Name())
	}
}

func createRoom(name string) {
	client, ctx, cancel := newClient(true)
	defer cancel()
	defer client.Close()

	room, err := client.CreateRoom(ctx, name)
	if err != nil {
		fatal("create room: %v", err)
	}
	fmt.Printf("created %s  %s\n", room.ID(), room.Name())
}

func joinRoom(roomID string) {
	client, ctx, cancel := newClient(true)
	defer cancel()
	defer client.Close()

	room, err := client.JoinRoom(ctx, roomID)
	if err != nil {
		fatal("join room: %v", err)
	}
	fmt.Printf("joined %s  %s\n", room.ID(), room.Name())
}

func send(roomID, text string) {
	client, ctx, cancel := newClient(true)
	defer cancel()
	defer client.Close()

	room, err := client.JoinRoom(ctx, roomID)
	if err != nil {
		fatal("open room: %v", err)
	}

	result, err := room.Send(ctx, text)
	if err != nil {
		fatal("send: %v", err)
	}
	for _, skipped := range result.Skipped {
		fmt.Fprintf(os.Stderr, "warning: not delivered to %s: %v\n", skipped.Recipient, skipped.Err)
	}
	fmt.Printf("sent %s\n", result.MessageID)
}

func history(roomID string) {
	client, ctx, cancel := newClient(true)
	defer cancel()
	defer client.Close()

	room, err := client.JoinRoom(ctx, roomID)
	if err != nil {
		fatal("open room: %v", err)
	}

	msgs, err := room.Messages(ctx, "")
	if err != nil {
		fatal("history: %v", err)
	}
	for _, msg := range msgs {
		printMessage(msg)
	}
}

func watch() {
	client, _, cancel := newClient(true)
	cancel() // login context only; watching runs until interrupted
	defer client.Close()

	unsubscribe := client.Watch(printMessage)
	defer unsubscribe()

	fmt.Println("watching (ctrl-c to stop)")
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
}

func printMessage(msg *qchat.Message) {
	stamp := msg.SentAt.Local().Format("15:04:05")
	if msg.Kind == qchat.KindDocument {
		fmt.Printf("[%s] %s sent document %q (%d bytes)\n", stamp, msg.Sender, msg.Name, len(msg.Data()))
		return
	}
	fmt.Printf("[%s] %s: %s\n", stamp, msg.Sender, msg.Text())
}
