// Command kvctl is an interactive REPL over a durable pool file, ported
// from original_source/src/main.cpp's w/r/d command loop. Each command is
// its own single-statement transaction: begin, do the one operation,
// commit.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"sehlabs.com/midas/internal/durable"
	"sehlabs.com/midas/internal/mvcc"
)

var poolFile string

func init() {
	flag.StringVar(&poolFile, "pool-file", "midas.db",
		`Path to the durable pool file backing the key/value store`)
}

func usage() {
	fmt.Println("Commands:")
	fmt.Println("  w KEY VALUE     Inserts or updates the specified pair")
	fmt.Println("  r KEY           Retrieves the value associated with the key (if any)")
	fmt.Println("  d KEY           Removes the pair with the given key (if any)")
	fmt.Println("  q               Quits")
}

func execCommand(engine *mvcc.Engine, cmd, key, value string) {
	switch {
	case cmd == "w" && key != "" && value != "":
		tx := engine.Begin()
		if err := engine.Write(tx, []byte(key), []byte(value)); err != nil {
			fmt.Printf("write failed: %v\n", err)
			return
		}
		if err := engine.Commit(tx); err != nil {
			fmt.Printf("commit failed: %v\n", err)
			return
		}
		fmt.Println("write successful!")

	case cmd == "r" && key != "":
		tx := engine.Begin()
		result, err := engine.Read(tx, []byte(key))
		if errors.Is(err, mvcc.ErrValueNotFound) {
			fmt.Println("read failed: no such key")
			return
		}
		if err != nil {
			fmt.Printf("read failed: %v\n", err)
			return
		}
		if err := engine.Commit(tx); err != nil {
			fmt.Printf("commit failed: %v\n", err)
			return
		}
		fmt.Printf("read successful! -> %s\n", result)

	case cmd == "d" && key != "":
		tx := engine.Begin()
		if err := engine.Drop(tx, []byte(key)); err != nil {
			fmt.Printf("drop failed: %v\n", err)
			return
		}
		if err := engine.Commit(tx); err != nil {
			fmt.Printf("commit failed: %v\n", err)
			return
		}
		fmt.Println("drop successful!")

	default:
		fmt.Println("error: unknown command or missing arguments!")
		fmt.Printf("  cmd: %s\n  key: %s\n  val: %s\n", cmd, key, value)
		usage()
	}
}

func splitCommand(line string) (cmd, key, value string) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 3)
	switch len(fields) {
	case 3:
		return fields[0], fields[1], fields[2]
	case 2:
		return fields[0], fields[1], ""
	case 1:
		return fields[0], "", ""
	default:
		return "", "", ""
	}
}

func main() {
	flag.Parse()

	log, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to construct logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	pool, err := durable.OpenBoltPool(poolFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open pool file %q: %v\n", poolFile, err)
		os.Exit(1)
	}
	defer pool.Close()

	engine, err := mvcc.NewEngine(pool, log.Sugar())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to construct engine: %v\n", err)
		os.Exit(1)
	}

	usage()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("Enter command (q for quit): ")
		if !scanner.Scan() {
			break
		}
		line := scanner.Text()
		cmd, key, value := splitCommand(line)
		if cmd == "q" {
			break
		}
		if cmd == "" {
			continue
		}
		execCommand(engine, cmd, key, value)
	}
}
