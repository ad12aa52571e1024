//go:build ignore

package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/larkela/chunkline/internal/auth"
)

func main() {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	db, err := sql.Open("sqlite", filepath.Join(home, ".chunkline", "chunkline.db"))
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	password := auth.GeneratePairingPassword()
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal(err)
	}

	result, err := db.Exec("UPDATE pairing_credential SET password_hash = ? WHERE id = 1", hash)
	if err != nil {
		log.Fatal(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		log.Fatal(err)
	}

	if rows == 0 {
		fmt.Println("No pairing credential found. Creating one...")
		_, err = db.Exec(
			"INSERT INTO pairing_credential (id, password_hash, created_at) VALUES (1, ?, ?)",
			hash, time.Now().Unix(),
		)
		if err != nil {
			log.Fatal(err)
		}
	}

	fmt.Println("========================================")
	fmt.Println("Pairing password has been reset!")
	fmt.Printf("Password: %s\n", password)
	fmt.Println("Existing client tokens stay valid.")
	fmt.Println("========================================")
}
