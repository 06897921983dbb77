package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	"github.com/shanjith1316/Capstone-Project/internal/chatclient"
	"github.com/shanjith1316/Capstone-Project/internal/config"
	"github.com/shanjith1316/Capstone-Project/internal/server"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerURL string `env:"CHAT_SERVER_URL,default=http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL,default=warn"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))

	stdin := bufio.NewScanner(os.Stdin)
	api := chatclient.NewAPIClient(cfg.ServerURL)

	userID, err := login(stdin, api)
	if err != nil {
		return exitRuntime, err
	}

	reconciler := chatclient.NewReconciler(func(messages []server.MessagePayload, _ bool) {
		render(userID, messages)
	})

	handlers := chatclient.Handlers{
		OnMessage: reconciler.MergeLive,
		OnUserOnline: func(id int64) {
			fmt.Printf("* user %d is online\n", id)
		},
		OnUserOffline: func(id int64) {
			fmt.Printf("* user %d went offline\n", id)
		},
		OnOnlineUsers: func(ids []int64) {
			fmt.Printf("* online now: %v\n", ids)
		},
		OnError: func(message string) {
			fmt.Printf("! server error: %s\n", message)
		},
		OnStateChange: func(state chatclient.State) {
			fmt.Printf("* connection: %s\n", state)
		},
	}

	session, err := chatclient.NewSession(cfg.ServerURL, api.Token(), chatclient.NewWebSocketTransport(), handlers, log)
	if err != nil {
		return exitConfig, err
	}
	defer session.Stop()

	if err := session.Start(); err != nil {
		return exitRuntime, fmt.Errorf("could not connect: %w", err)
	}
	if err := session.RequestOnlineUsers(); err != nil {
		log.Warn("presence query failed", "error", err)
	}

	fmt.Println("Commands: /users, /online, /open <id>, /quit. Anything else is sent to the open conversation.")
	return commandLoop(stdin, api, session, reconciler, userID)
}

// login authenticates interactively, registering first when asked.
func login(stdin *bufio.Scanner, api *chatclient.APIClient) (int64, error) {
	username := prompt(stdin, "Username: ")
	password := prompt(stdin, "Password: ")

	if err := api.Login(username, password); err != nil {
		fmt.Printf("Login failed (%v). Register this account? [y/N] ", err)
		if !stdin.Scan() || strings.ToLower(strings.TrimSpace(stdin.Text())) != "y" {
			return 0, fmt.Errorf("login aborted")
		}
		if err := api.Register(username, password); err != nil {
			return 0, fmt.Errorf("registration failed: %w", err)
		}
		if err := api.Login(username, password); err != nil {
			return 0, fmt.Errorf("login failed: %w", err)
		}
	}

	users, err := api.Users()
	if err != nil {
		return 0, fmt.Errorf("could not fetch users: %w", err)
	}
	for _, u := range users {
		if u.Username == username {
			return u.ID, nil
		}
	}
	return 0, fmt.Errorf("logged-in user missing from user list")
}

func commandLoop(stdin *bufio.Scanner, api *chatclient.APIClient, session *chatclient.Session,
	reconciler *chatclient.Reconciler, userID int64) (int, error) {

	var peerID int64

	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			return exitOK, nil
		}
		line := strings.TrimSpace(stdin.Text())

		switch {
		case line == "":
		case line == "/quit":
			return exitOK, nil

		case line == "/users":
			users, err := api.Users()
			if err != nil {
				fmt.Printf("! %v\n", err)
				continue
			}
			for _, u := range users {
				fmt.Printf("  %d - %s\n", u.ID, u.Username)
			}

		case line == "/online":
			if err := session.RequestOnlineUsers(); err != nil {
				fmt.Printf("! %v\n", err)
			}

		case strings.HasPrefix(line, "/open "):
			id, err := strconv.ParseInt(strings.TrimSpace(strings.TrimPrefix(line, "/open ")), 10, 64)
			if err != nil || id <= 0 {
				fmt.Println("! usage: /open <user id>")
				continue
			}
			peerID = id
			key := chatclient.KeyFor(userID, peerID)
			history, err := api.History(peerID)
			if err != nil {
				fmt.Printf("! could not fetch history: %v\n", err)
			} else {
				reconciler.ReplaceHistory(key, history)
			}
			reconciler.Activate(key)

		default:
			if peerID == 0 {
				fmt.Println("! open a conversation first with /open <id>")
				continue
			}
			if err := session.Send(strconv.FormatInt(peerID, 10), line); err != nil {
				fmt.Printf("! send failed: %v\n", err)
			}
		}
	}
}

func prompt(stdin *bufio.Scanner, label string) string {
	fmt.Print(label)
	if !stdin.Scan() {
		return ""
	}
	return strings.TrimSpace(stdin.Text())
}

// render prints the visible conversation log.
func render(userID int64, messages []server.MessagePayload) {
	fmt.Println("----------------------------------------")
	if len(messages) == 0 {
		fmt.Println("  (no messages yet)")
	}
	for _, msg := range messages {
		who := msg.SenderUsername
		if msg.SenderID == userID {
			who = "You"
		}
		fmt.Printf("  [%s] %s: %s\n", msg.Timestamp.Local().Format("15:04:05"), who, msg.Content)
	}
	fmt.Println("----------------------------------------")
}
