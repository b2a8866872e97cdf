package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/profile"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	name := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(name); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := api.Dial(profile.SocketPath(name))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", name, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		prefix := ""
		if len(args) > 1 {
			prefix = args[1]
		}
		cmdWatch(c.Chat, prefix)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch args[0] {
	case "status":
		cmdStatus(ctx, c.Chat, *jsonFlag)
	case "connect":
		resp, err := c.Chat.Connect(ctx)
		exitOn(err)
		printState(resp, *jsonFlag)
	case "disconnect":
		resp, err := c.Chat.Disconnect(ctx)
		exitOn(err)
		printState(resp, *jsonFlag)
	case "join":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl join <room> [pseudo]")
			os.Exit(1)
		}
		fields := map[string]any{"room": args[1]}
		if len(args) > 2 {
			fields["pseudo"] = strings.Join(args[2:], " ")
		}
		_, err := c.Chat.JoinRoom(ctx, mustStruct(fields))
		exitOn(err)
		fmt.Printf("Joined %s\n", args[1])
	case "send":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: chatctl send <text...>")
			os.Exit(1)
		}
		_, err := c.Chat.SendMessage(ctx, wrapperspb.String(strings.Join(args[1:], " ")))
		exitOn(err)
	case "geo":
		cmdGeo(ctx, c.Chat, args[1:])
	case "image":
		cmdImage(ctx, c.Chat, args[1:])
	case "rooms":
		cmdRooms(ctx, c.Chat, *jsonFlag)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                     Show connection and room state")
	fmt.Fprintln(os.Stderr, "  connect                    Connect to the chat server")
	fmt.Fprintln(os.Stderr, "  disconnect                 Close the connection")
	fmt.Fprintln(os.Stderr, "  join <room> [pseudo]       Join a room")
	fmt.Fprintln(os.Stderr, "  send <text...>             Send a text message")
	fmt.Fprintln(os.Stderr, "  geo <lat> <lng> [acc]      Share a position")
	fmt.Fprintln(os.Stderr, "  image <id> <file>          Upload and share an image")
	fmt.Fprintln(os.Stderr, "  rooms                      List rooms known to the server")
	fmt.Fprintln(os.Stderr, "  watch [prefix]             Stream daemon events")
}

func cmdStatus(ctx context.Context, c *api.ChatServiceClient, jsonOut bool) {
	resp, err := c.GetState(ctx)
	exitOn(err)
	printState(resp, jsonOut)
}

func printState(st *structpb.Struct, jsonOut bool) {
	if jsonOut {
		outputJSON(st)
		return
	}
	f := st.GetFields()
	state := "disconnected"
	switch {
	case f["connected"].GetBoolValue():
		state = "connected"
	case f["connecting"].GetBoolValue():
		state = "connecting"
	}
	if p := f["profile"].GetStringValue(); p != "" {
		fmt.Printf("Profile:  %s\n", p)
	}
	fmt.Printf("Status:   %s\n", state)
	if e := f["error"].GetStringValue(); e != "" {
		fmt.Printf("Error:    %s\n", e)
	}
	fmt.Printf("Room:     %s\n", f["room"].GetStringValue())
	fmt.Printf("Pseudo:   %s\n", f["pseudo"].GetStringValue())
	fmt.Printf("Messages: %d\n", len(f["messages"].GetListValue().GetValues()))
	if up, ok := f["uptime_ms"]; ok {
		fmt.Printf("Uptime:   %dms\n", int64(up.GetNumberValue()))
	}
}

func cmdGeo(ctx context.Context, c *api.ChatServiceClient, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chatctl geo <lat> <lng> [accuracy]")
		os.Exit(1)
	}
	fields := map[string]any{}
	for i, key := range []string{"lat", "lng", "accuracy"} {
		if i >= len(args) {
			break
		}
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: invalid %s %q\n", key, args[i])
			os.Exit(1)
		}
		fields[key] = v
	}
	_, err := c.SendGeolocation(ctx, mustStruct(fields))
	exitOn(err)
}

func cmdImage(ctx context.Context, c *api.ChatServiceClient, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: chatctl image <id> <file>")
		os.Exit(1)
	}
	data, err := os.ReadFile(args[1])
	exitOn(err)
	_, err = c.SendImage(ctx, mustStruct(map[string]any{"id": args[0], "data": string(data)}))
	exitOn(err)
	fmt.Printf("Sent image %s\n", args[0])
}

func cmdRooms(ctx context.Context, c *api.ChatServiceClient, jsonOut bool) {
	resp, err := c.ListRooms(ctx)
	exitOn(err)
	if jsonOut {
		outputJSON(resp)
		return
	}
	if len(resp.GetValues()) == 0 {
		fmt.Println("No rooms found.")
		return
	}
	for _, v := range resp.GetValues() {
		fmt.Println(v.GetStringValue())
	}
}

func cmdWatch(c *api.ChatServiceClient, prefix string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := c.WatchEvents(ctx, prefix)
	exitOn(err)
	for {
		evt, err := stream.Recv()
		if errors.Is(err, io.EOF) || ctx.Err() != nil {
			return
		}
		exitOn(err)
		outputJSON(evt)
	}
}

func mustStruct(fields map[string]any) *structpb.Struct {
	s, err := structpb.NewStruct(fields)
	exitOn(err)
	return s
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func outputJSON(m proto.Message) {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		return
	}
	fmt.Println(string(data))
}
