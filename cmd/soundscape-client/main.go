package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/chzyer/readline"
	flag "github.com/spf13/pflag"

	"soundscape/pkg/spec"
)

const (
	app_name      = "Soundscape-Client"
	version_major = 1
	version_minor = 0
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem(spec.CmdAbout),
	readline.PcItem(spec.CmdPing),
	readline.PcItem(spec.CmdWhoAmI),
	readline.PcItem(spec.CmdStatus),
	readline.PcItem(spec.CmdSong),
	readline.PcItem(spec.CmdListSongs),
	readline.PcItem(spec.CmdSubscribe),
	readline.PcItem(spec.CmdLoad),
	readline.PcItem(spec.CmdCue),
	readline.PcItem(spec.CmdPlay),
	readline.PcItem(spec.CmdStop),
	readline.PcItem(spec.CmdTransition,
		readline.PcItem(spec.ModeNextBar),
		readline.PcItem(spec.ModeNow),
	),
	readline.PcItem(spec.CmdCancel),
	readline.PcItem("QUIT"),
)

func main() {
	socket := flag.StringP("socket", "s", envOr("SOUNDSCAPE_SOCKET", spec.DefaultSocket), "control socket path")
	flag.Parse()

	conn, err := net.Dial("unix", *socket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect %s: %v\n", *socket, err)
		os.Exit(1)
	}
	defer conn.Close()

	// one-shot: soundscape-client STATUS
	if flag.NArg() > 0 {
		os.Exit(oneShot(conn, strings.Join(flag.Args(), " ")))
	}
	interactive(conn)
}

func oneShot(conn net.Conn, line string) int {
	if _, err := fmt.Fprintln(conn, line); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		return 1
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	r := bufio.NewReader(conn)
	for {
		reply, err := r.ReadString('\n')
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			return 1
		}
		reply = strings.TrimRight(reply, "\n")
		// owners get events interleaved with replies
		if strings.HasPrefix(reply, spec.EventPrefix) {
			continue
		}
		fmt.Println(reply)
		if strings.HasPrefix(reply, spec.ErrPrefix) {
			return 1
		}
		return 0
	}
}

func interactive(conn net.Conn) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "soundscape> ",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "QUIT",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "readline:", err)
		os.Exit(1)
	}
	defer rl.Close()

	fmt.Fprintf(rl.Stdout(), "%s V.%d.%d\n", app_name, version_major, version_minor)
	fmt.Fprintln(rl.Stdout(), `Type an IPC command, "QUIT" to exit`)

	// socket -> terminal
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			fmt.Fprintln(rl.Stdout(), sc.Text())
		}
		fmt.Fprintln(rl.Stdout(), "SOCKET CLOSED")
		rl.Close()
	}()

	// terminal -> socket
	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		}
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "QUIT") {
			fmt.Fprintln(rl.Stdout(), "Bye.")
			break
		}
		if _, err := fmt.Fprintln(conn, line); err != nil {
			fmt.Fprintln(rl.Stderr(), "WRITE ERROR:", err)
			break
		}
	}
	conn.Close()
	<-closed
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
