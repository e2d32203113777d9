package policy

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Kind describes one policy type: how its settings are read from a
// definition document, read from and written to the server, and compared.
type Kind interface {
	// Name is the logical name used in definition documents.
	Name() string
	// DisplayName is the server-side policy type display name.
	DisplayName() string
	// TypeID is the well-known server type id, used when no display name matches.
	TypeID() uuid.UUID
	Description() string
	Fields() []Field

	DecodeSettings(raw map[string]any) (any, error)
	DecodeServerSettings(raw json.RawMessage) (any, error)
	EncodeSettings(settings any) (map[string]any, error)
	EqualSettings(desired, server any) bool
}

// Field documents one settings key of a Kind.
type Field struct {
	Name        string
	Description string
	Default     string
}

var (
	kinds   = make(map[string]Kind)
	kindsMu sync.RWMutex
)

func RegisterKind(k Kind) {
	if k == nil {
		panic("policy kind is nil")
	}
	key := strings.ToLower(k.Name())
	if key == "" {
		panic("policy kind name is empty")
	}

	kindsMu.Lock()
	defer kindsMu.Unlock()
	if _, exists := kinds[key]; exists {
		panic(fmt.Sprintf("policy kind %s already registered", k.Name()))
	}
	kinds[key] = k
}

// LookupKind resolves a kind by logical name or display name, ignoring case.
func LookupKind(name string) (Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, false
	}

	kindsMu.RLock()
	defer kindsMu.RUnlock()
	if k, ok := kinds[name]; ok {
		return k, true
	}
	for _, k := range kinds {
		if strings.ToLower(k.DisplayName()) == name {
			return k, true
		}
	}
	return nil, false
}

// Kinds returns all registered kinds sorted by name.
func Kinds() []Kind {
	kindsMu.RLock()
	defer kindsMu.RUnlock()

	all := make([]Kind, 0, len(kinds))
	for _, k := range kinds {
		all = append(all, k)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Name() < all[j].Name()
	})
	return all
}
