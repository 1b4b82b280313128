package main

import (
	"encoding/json/v2"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/shelfmark/shelfmark-server/internal/domain"
)

func main() {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = os.ExpandEnv("$HOME/shelfmark/db")
	}

	opts := badger.DefaultOptions(dbPath).
		WithReadOnly(true).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Println("=== Database Inspection ===")
	fmt.Println()

	type ownerStats struct {
		books       int
		ghosts      int
		public      int
		pending     int
		annotations int
		tombstones  int
		binaryBytes int64
	}
	owners := map[string]*ownerStats{}
	stats := func(owner string) *ownerStats {
		s, ok := owners[owner]
		if !ok {
			s = &ownerStats{}
			owners[owner] = s
		}
		return s
	}

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := string(item.Key())

			switch {
			case strings.HasPrefix(key, "book:idx:"):
				// Secondary index, counted via the primary record.

			case strings.HasPrefix(key, "book:"):
				err := item.Value(func(val []byte) error {
					var book domain.Book
					if err := json.Unmarshal(val, &book); err != nil {
						return err
					}
					s := stats(book.OwnerIdentity)
					s.books++
					if book.IsGhost() {
						s.ghosts++
					}
					if book.IsPublic {
						s.public++
					}
					if book.SyncPending {
						s.pending++
					}
					return nil
				})
				if err != nil {
					fmt.Printf("  ! unreadable book record %s: %v\n", key, err)
				}

			case strings.HasPrefix(key, "bin:"):
				parts := strings.SplitN(key, ":", 3)
				if len(parts) == 3 {
					stats(parts[1]).binaryBytes += item.ValueSize()
				}

			case strings.HasPrefix(key, "ann:"):
				parts := strings.SplitN(key, ":", 3)
				if len(parts) == 3 {
					s := stats(parts[1])
					s.annotations++
					err := item.Value(func(val []byte) error {
						var a domain.Annotation
						if err := json.Unmarshal(val, &a); err != nil {
							return err
						}
						if a.SyncPending {
							s.pending++
						}
						return nil
					})
					if err != nil {
						fmt.Printf("  ! unreadable annotation %s: %v\n", key, err)
					}
				}

			case strings.HasPrefix(key, "tomb:"):
				parts := strings.SplitN(key, ":", 3)
				if len(parts) == 3 {
					stats(parts[1]).tombstones++
				}

			case key == "spectate:session":
				err := item.Value(func(val []byte) error {
					var session domain.SpectateSession
					if err := json.Unmarshal(val, &session); err != nil {
						return err
					}
					fmt.Printf("Active spectate session: %s (last synced %s)\n\n",
						session.Target, session.LastSynced.Format("2006-01-02 15:04:05"))
					return nil
				})
				if err != nil {
					fmt.Printf("  ! unreadable spectate session: %v\n", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		log.Fatalf("Inspection failed: %v", err)
	}

	if len(owners) == 0 {
		fmt.Println("Database is empty.")
		return
	}

	for owner, s := range owners {
		fmt.Printf("Partition %s\n", owner)
		fmt.Printf("  Books:        %d (%d ghosts, %d public, %d sync pending)\n",
			s.books, s.ghosts, s.public, s.pending)
		fmt.Printf("  Annotations:  %d\n", s.annotations)
		fmt.Printf("  Tombstones:   %d pending\n", s.tombstones)
		fmt.Printf("  Binary data:  %.1f MB\n", float64(s.binaryBytes)/(1024*1024))
		fmt.Println()
	}
}
