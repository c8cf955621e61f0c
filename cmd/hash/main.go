// Package main is a utility for generating bcrypt hashes of passwords. The
// storefront stores only bcrypt hashes — never raw passwords — so this tool
// is used when manually seeding an admin account without running the full
// server. The resulting hash can be inserted directly into the users table.
package main

import (
	"fmt"
	"os"

	"github.com/Daziusm/anonbuci-sub001/internal/auth"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(1)
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
