// Package usbid looks up vendor and product names in the usb.ids database
// shipped by most Linux distributions.
//
// Load the database once, then look names up:
//
//	db := usbid.New()
//	if err := db.Load(); err == nil {
//	    name := db.Vendor(0x10C4)
//	}
//
// A missing database is not fatal; lookups return empty strings.
package usbid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the standard locations of the database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// ErrNotFound is returned by Load when no database file exists.
var ErrNotFound = errors.New("usb.ids database not found")

// Database caches vendor and product names.
type Database struct {
	mu       sync.RWMutex
	paths    []string
	source   string
	vendors  map[uint16]string
	products map[uint32]string
}

// New returns a database that searches paths, or DefaultPaths if none
// are given.
func New(paths ...string) *Database {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	return &Database{
		paths:    paths,
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
}

// Load parses the first database file found. Loading twice is a no-op.
func (db *Database) Load() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.source != "" {
		return nil
	}
	for _, path := range db.paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		err = db.parse(f)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		db.source = path
		return nil
	}
	return ErrNotFound
}

// Parse reads a database in usb.ids format from r.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.parse(r)
}

// Vendor lines are "vvvv  name"; product lines are "\tpppp  name" and
// belong to the vendor above them. Any other top-level section (device
// classes, languages) ends the vendor list.
func (db *Database) parse(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	vendor, inVendor := uint16(0), false

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '\t' {
			if !inVendor || strings.HasPrefix(line, "\t\t") {
				continue
			}
			if id, name, ok := entry(line[1:]); ok {
				db.products[uint32(vendor)<<16|uint32(id)] = name
			}
			continue
		}
		id, name, ok := entry(line)
		inVendor = ok
		if ok {
			vendor = id
			db.vendors[id] = name
		}
	}
	return scanner.Err()
}

// entry splits "xxxx  name".
func entry(s string) (uint16, string, bool) {
	if len(s) < 6 || s[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(s[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimSpace(s[5:])
	return uint16(id), name, name != ""
}

// Source returns the file Load read, or "" if none was read.
func (db *Database) Source() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.source
}

// Vendor returns the name of vid.
func (db *Database) Vendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// Product returns the name of pid under vid.
func (db *Database) Product(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Len returns the number of vendors and products known.
func (db *Database) Len() (vendors, products int) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors), len(db.products)
}
