package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ai-assistant-be/pkg/chatclient"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

var (
	userColor      = color.New(color.FgCyan, color.Bold)
	assistantColor = color.New(color.FgGreen)
	noticeColor    = color.New(color.FgYellow)
	statsColor     = color.New(color.FgMagenta)
	faintColor     = color.New(color.Faint)
)

// consoleSink renders dispatcher effects to the terminal.
type consoleSink struct{}

func (consoleSink) RenderUser(content string, ts time.Time) {
	userColor.Printf("you [%s]> ", ts.Local().Format("15:04:05"))
	fmt.Println(content)
}

func (consoleSink) RenderAssistant(content string, ts time.Time) {
	assistantColor.Printf("assistant [%s]> ", ts.Local().Format("15:04:05"))
	fmt.Println(content)
}

func (consoleSink) StatsUpdated(s chatclient.Stats) {
	statsColor.Printf("· models: %d  docs: %d  conversations: %d\n",
		s.ActiveModels, s.DocCount, s.Conversations)
}

func (consoleSink) Notify(text string, ttl time.Duration) {
	noticeColor.Printf("! %s\n", text)
}

func main() {
	serverURL := flag.String("server", "http://localhost:3000", "backend base URL")
	model := flag.String("model", "", "model override sent with each message")
	useRAG := flag.Bool("rag", false, "ground answers in uploaded documents")
	flag.Parse()

	logger := zap.NewNop()
	if os.Getenv("CHAT_DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	}

	transport := chatclient.NewTransport(chatclient.Options{
		BaseURL: *serverURL,
		Logger:  logger,
	})

	sink := consoleSink{}
	dispatcher := chatclient.NewDispatcher(transport, sink, logger)
	dispatcher.Model = *model
	dispatcher.UseRAG = *useRAG

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller := chatclient.NewStatsPoller(*serverURL, dispatcher, logger)
	go poller.Run(ctx)

	go func() {
		for ev := range transport.Events() {
			switch ev.Kind {
			case chatclient.EventConnected:
				faintColor.Printf("-- connected (session %s)\n", transport.SessionID())
			case chatclient.EventDisconnected:
				faintColor.Printf("-- disconnected (code %d)\n", ev.Code)
			case chatclient.EventMessage:
				dispatcher.Dispatch(ev.Inbound)
			case chatclient.EventNotice:
				sink.Notify(ev.Text, ev.TTL)
			case chatclient.EventFatal:
				noticeColor.Printf("! %s\n", ev.Text)
				faintColor.Println("-- type /connect to try again")
			}
		}
	}()

	faintColor.Printf("session %s, connecting to %s\n", transport.SessionID(), *serverURL)
	faintColor.Println("commands: /connect /disconnect /model <name> /rag on|off /stats /quit")
	transport.Connect()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "/") {
			if !runCommand(line, transport, dispatcher) {
				break
			}
			continue
		}

		if err := dispatcher.ComposeAndSend(line); err != nil {
			logger.Debug("send failed", zap.Error(err))
		}
	}

	transport.Disconnect()
}

// runCommand handles a slash command, returning false on /quit.
func runCommand(line string, transport *chatclient.Transport, dispatcher *chatclient.Dispatcher) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return false
	case "/connect":
		transport.Connect()
	case "/disconnect":
		transport.Disconnect()
		faintColor.Println("-- disconnected by request")
	case "/model":
		if len(fields) < 2 {
			noticeColor.Println("! usage: /model <name>")
			break
		}
		dispatcher.Model = fields[1]
		faintColor.Printf("-- model set to %s\n", fields[1])
	case "/rag":
		if len(fields) < 2 || (fields[1] != "on" && fields[1] != "off") {
			noticeColor.Println("! usage: /rag on|off")
			break
		}
		dispatcher.UseRAG = fields[1] == "on"
		faintColor.Printf("-- rag %s\n", fields[1])
	case "/stats":
		s := dispatcher.Stats()
		statsColor.Printf("· models: %d  docs: %d  conversations: %d\n",
			s.ActiveModels, s.DocCount, s.Conversations)
	default:
		noticeColor.Printf("! unknown command %s\n", fields[0])
	}
	return true
}
