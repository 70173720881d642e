package data

import (
	"fmt"
	"math"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"

	"github.com/worldsync/server/internal/net/packet"
	"github.com/worldsync/server/internal/world"
)

// TileEntry is one occupied grid cell of the map.
type TileEntry struct {
	X          int32  `yaml:"x"`
	Z          int32  `yaml:"z"`
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`     // building, road, park, ...
	Instance   string `yaml:"instance"` // world, apartment, poi
	InstanceID uint16 `yaml:"instance_id"`
}

type tileFile struct {
	TileSize float32     `yaml:"tile_size"`
	Tiles    []TileEntry `yaml:"tiles"`
}

type tileKey struct {
	x int32
	z int32
}

// TileTable maps world positions to the tile that covers them. Read-only
// after load.
type TileTable struct {
	size  float32
	tiles map[tileKey]world.Descriptor
}

// LoadTileTable loads tiles.yaml.
func LoadTileTable(path string) (*TileTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tile table: %w", err)
	}
	return ParseTileTable(raw)
}

// ParseTileTable builds a table from YAML.
func ParseTileTable(raw []byte) (*TileTable, error) {
	var f tileFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse tile table: %w", err)
	}
	if f.TileSize <= 0 {
		return nil, fmt.Errorf("parse tile table: tile_size must be positive, got %v", f.TileSize)
	}
	t := &TileTable{
		size:  f.TileSize,
		tiles: make(map[tileKey]world.Descriptor, len(f.Tiles)),
	}
	for _, e := range f.Tiles {
		st, err := parseInstance(e.Instance)
		if err != nil {
			return nil, fmt.Errorf("tile %q at %d,%d: %w", e.Name, e.X, e.Z, err)
		}
		key := tileKey{x: e.X, z: e.Z}
		if _, dup := t.tiles[key]; dup {
			return nil, fmt.Errorf("tile %q: duplicate cell %d,%d", e.Name, e.X, e.Z)
		}
		t.tiles[key] = world.Descriptor{
			Name:          e.Name,
			Kind:          e.Kind,
			InstanceID:    e.InstanceID,
			InstanceState: st,
		}
	}
	return t, nil
}

func parseInstance(s string) (packet.InstanceState, error) {
	switch s {
	case "", "world":
		return packet.InstanceWorld, nil
	case "apartment":
		return packet.InstanceApartment, nil
	case "poi":
		return packet.InstancePOI, nil
	}
	return 0, fmt.Errorf("unknown instance %q", s)
}

// GetEntityAt returns the tile covering pos on the ground plane.
func (t *TileTable) GetEntityAt(pos mgl32.Vec3) (world.Descriptor, bool) {
	key := tileKey{
		x: int32(math.Floor(float64(pos.X() / t.size))),
		z: int32(math.Floor(float64(pos.Z() / t.size))),
	}
	d, ok := t.tiles[key]
	return d, ok
}

// Count returns the total number of tiles loaded.
func (t *TileTable) Count() int {
	return len(t.tiles)
}
