// Command nifflerdb is a thin CLI over the niffler facade: put, get, del
// and print against a single store file. Grounded on the teacher's
// cmd/server/main.go (log.Fatalf on open failure, fmt.Println progress
// messages) — there is no third-party CLI/flags library anywhere in the
// retrieved pack, so flag from the standard library is used; see
// DESIGN.md.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"nifflerdb"
	"nifflerdb/internal/storage/layout"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nifflerdb -file <path> <put <key> <value>|get <key>|del <key>|print>")
	flag.PrintDefaults()
}

func main() {
	filePath := flag.String("file", "niffler.db", "path to the store file")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cmd := args[0]
	rest := args[1:]

	_, err := os.Stat(*filePath)
	createNew := os.IsNotExist(err)

	db, err := niffler.Open(*filePath, createNew)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *filePath, err)
	}
	defer db.Close()

	switch cmd {
	case "put":
		if len(rest) != 2 {
			usage()
			os.Exit(2)
		}
		key := layout.NewKey(rest[0])
		inserted, err := db.Insert(key, []byte(rest[1]))
		if err != nil {
			log.Fatalf("put failed: %v", err)
		}
		if !inserted {
			fmt.Println("key already exists")
			os.Exit(1)
		}
		fmt.Println("ok")

	case "get":
		if len(rest) != 1 {
			usage()
			os.Exit(2)
		}
		key := layout.NewKey(rest[0])
		val, ok, err := db.Find(key)
		if err != nil {
			log.Fatalf("get failed: %v", err)
		}
		if !ok {
			fmt.Println("not found")
			os.Exit(1)
		}
		fmt.Println(string(val))

	case "del":
		if len(rest) != 1 {
			usage()
			os.Exit(2)
		}
		key := layout.NewKey(rest[0])
		removed, err := db.Remove(key)
		if err != nil {
			log.Fatalf("del failed: %v", err)
		}
		if !removed {
			fmt.Println("not found")
			os.Exit(1)
		}
		fmt.Println("ok")

	case "print":
		out, err := db.Print()
		if err != nil {
			log.Fatalf("print failed: %v", err)
		}
		fmt.Print(out)

	default:
		usage()
		os.Exit(2)
	}
}
