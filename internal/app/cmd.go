package app

import (
	"errors"
	"fmt"
	"strings"
)

// Command はconfideのサブコマンド。
type Command string

const (
	CommandServe       Command = "serve"
	CommandWorker      Command = "worker"
	CommandMigrate     Command = "migrate"
	CommandHealthcheck Command = "healthcheck" // distrolessイメージのHEALTHCHECK用
)

// ErrUnknownCommand は未知のサブコマンドが指定されたことを表す。
var ErrUnknownCommand = errors.New("unknown command")

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// Commands は利用可能なサブコマンドを返す。
func Commands() []Command {
	return append([]Command(nil), commands...)
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数がなければserveを返す。2つ目以降の引数は無視する。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 || args[0] == "" {
		return CommandServe, nil
	}
	name := strings.ToLower(strings.TrimSpace(args[0]))
	for _, c := range commands {
		if string(c) == name {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w %q (available: %s)", ErrUnknownCommand, args[0], usage())
}

func usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return strings.Join(names, ", ")
}
