// genhash prints the bcrypt hash for ADMIN_PASSWORD_HASH.
//
//	genhash 'my password'
//	echo -n 'my password' | genhash
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

func main() {
	password := ""
	if len(os.Args) > 1 {
		password = os.Args[1]
	} else {
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		password = strings.TrimRight(line, "\r\n")
	}
	if len(password) < 4 {
		fmt.Fprintln(os.Stderr, "password must be at least 4 characters")
		os.Exit(2)
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	if err != nil {
		panic(err)
	}
	fmt.Println(string(h))
}
