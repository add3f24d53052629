package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	orbit "github.com/orbit-social/orbit-go"
	"github.com/spf13/cobra"
)

var (
	chatSendGroup bool
	chatListenLog bool
)

func init() {
	chatSendCmd.Flags().BoolVarP(&chatSendGroup, "group", "g", false, "treat the target id as a group id")
	chatListenCmd.Flags().BoolVar(&chatListenLog, "verbose", false, "log connection internals to stderr")
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatListenCmd)
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Realtime chat commands",
}

var chatSendCmd = &cobra.Command{
	Use:   "send <user-id|group-id> <message>",
	Short: "Send a chat message",
	Long:  "Send a message over the realtime connection, falling back to HTTP delivery when the socket is unavailable.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		target, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid target id %q", args[0])
		}
		content := args[1]

		client := getClient()
		session := orbit.NewSession(client, nil)
		defer session.Disconnect()

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		delivered := false
		if err := session.Connect(ctx); err == nil {
			if chatSendGroup {
				delivered = session.SendGroupMessage(target, content)
			} else {
				delivered = session.SendPrivateMessage(target, content)
			}
		}

		if delivered {
			fmt.Println("Sent (realtime)")
			return nil
		}

		// Realtime unavailable; deliver over HTTP instead.
		var res *orbit.Result
		if chatSendGroup {
			res, err = client.Messages.SendGroup(ctx, target, content)
		} else {
			res, err = client.Messages.SendPrivate(ctx, target, content)
		}
		if err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
		if !res.OK {
			if res.Error != nil {
				return fmt.Errorf("send failed: %s", res.Error.Message)
			}
			return fmt.Errorf("send failed")
		}
		fmt.Println("Sent (http)")
		return nil
	},
}

var chatListenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Connect and print realtime activity until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		sink := orbit.NewChannelSink(64)
		cfg := &orbit.SessionConfig{Sink: sink}
		session := orbit.NewSession(client, cfg)
		defer session.Disconnect()

		session.OnMessage(func(convID string, msg orbit.Message) {
			who := fmt.Sprintf("user %d", msg.SenderID)
			if msg.IsOwnMessage {
				who = "me"
			}
			fmt.Printf("[%s] %s: %s\n", convID, who, msg.Content)
		})
		session.OnTyping(func(convID string, userID int64, typing bool) {
			if typing {
				fmt.Printf("[%s] user %d is typing...\n", convID, userID)
			}
		})
		session.OnPresence(func(userID int64, online bool) {
			state := "offline"
			if online {
				state = "online"
			}
			fmt.Printf("* user %d is now %s\n", userID, state)
		})
		session.OnStateChange(func(state orbit.ConnectionState) {
			if state.Err != "" {
				fmt.Fprintf(os.Stderr, "! connection: %s (%s)\n", state.State, state.Err)
			} else if chatListenLog {
				fmt.Fprintf(os.Stderr, "! connection: %s\n", state.State)
			}
		})

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := session.Connect(ctx); err != nil {
			cancel()
			return fmt.Errorf("connect failed: %w", err)
		}
		cancel()

		fmt.Println("Listening. Press Ctrl-C to stop.")

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

		for {
			select {
			case n := <-sink.C:
				fmt.Printf("* notification [%s] %s: %s\n", n.Type, n.Title, n.Message)
			case <-sig:
				fmt.Println("\nBye.")
				return nil
			}
		}
	},
}
