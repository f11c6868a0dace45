package tile

import (
	"fmt"
	"strconv"
	"strings"
)

// ID identifies one tile at one hierarchy level. The zero value is valid
// (level 0, index 0) and IDs compare structurally.
type ID struct {
	Level uint8
	Index uint32
}

// String renders the ID as "level/index".
func (id ID) String() string {
	return fmt.Sprintf("%d/%d", id.Level, id.Index)
}

// Path returns the tile's location relative to the store root.
func (id ID) Path() string {
	return fmt.Sprintf("%d/%d%s", id.Level, id.Index, fileExt)
}

// ParseID parses "level/index" back into an ID.
func ParseID(s string) (ID, error) {
	level, index, ok := strings.Cut(s, "/")
	if !ok {
		return ID{}, fmt.Errorf("tile id %q: want level/index", s)
	}
	l, err := strconv.ParseUint(level, 10, 8)
	if err != nil {
		return ID{}, fmt.Errorf("tile id %q: bad level: %w", s, err)
	}
	i, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return ID{}, fmt.Errorf("tile id %q: bad index: %w", s, err)
	}
	return ID{Level: uint8(l), Index: uint32(i)}, nil
}
