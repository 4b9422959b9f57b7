// Package clients decides which chat users may submit invoices and under
// which name their invoices are filed.
package clients

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Client is a registered submitter.
type Client struct {
	TelegramID int64  `json:"telegram_id"`
	Name       string `json:"name"`
}

// Registry looks up registered clients.
type Registry interface {
	Lookup(ctx context.Context, telegramID int64, profileName string) (Client, bool)
}

// Directory is a static Registry. An empty directory is open: every user
// is registered under their chat profile name.
type Directory struct {
	names map[int64]string
}

// ParseDirectory reads a comma separated list of "telegramID:Display Name"
// entries. Blank entries are skipped.
func ParseDirectory(list string) (*Directory, error) {
	d := &Directory{names: make(map[int64]string)}
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idPart, name, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("client entry %q: want id:name", entry)
		}
		id, err := strconv.ParseInt(strings.TrimSpace(idPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("client entry %q: bad telegram id: %w", entry, err)
		}
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("client entry %q: empty name", entry)
		}
		d.names[id] = name
	}
	return d, nil
}

// Open reports whether the directory registers everyone.
func (d *Directory) Open() bool {
	return len(d.names) == 0
}

// Len returns the number of listed clients.
func (d *Directory) Len() int {
	return len(d.names)
}

// Lookup implements Registry.
func (d *Directory) Lookup(_ context.Context, telegramID int64, profileName string) (Client, bool) {
	if d.Open() {
		name := strings.TrimSpace(profileName)
		if name == "" {
			name = "User " + strconv.FormatInt(telegramID, 10)
		}
		return Client{TelegramID: telegramID, Name: name}, true
	}
	name, ok := d.names[telegramID]
	if !ok {
		return Client{}, false
	}
	return Client{TelegramID: telegramID, Name: name}, true
}

var _ Registry = (*Directory)(nil)
