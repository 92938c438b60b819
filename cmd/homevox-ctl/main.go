package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	cli "github.com/spf13/pflag"

	"homevox/internal/ipc"
)

var commands = map[string]string{
	"start": ipc.StartRecording,
	"stop":  ipc.StopRecording,
}

func main() {
	port := cli.Int("voice-port", 40191, "Voice trigger port")
	cli.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] start|stop\n", os.Args[0])
		cli.PrintDefaults()
	}
	cli.Parse()

	if cli.NArg() != 1 {
		cli.Usage()
		os.Exit(2)
	}
	cmd, ok := commands[cli.Arg(0)]
	if !ok {
		cli.Usage()
		os.Exit(2)
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(*port))
	if err := ipc.SendCommand(addr, cmd); err != nil {
		fmt.Println("homevox-daemon not running:", err)
		os.Exit(1)
	}
}
