// Package tile reads and writes graph tiles: fixed-size directed edge
// records plus an offset-addressed blob of shared edge geometry.
package tile

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// NoElevationData is stored as the mean elevation of shapes without any
// elevation coverage. It sits just outside the valid SRTM range.
const NoElevationData = 32768.0

const (
	magic   = "GELV"
	version = 1
	fileExt = ".gph"

	headerSize     = 16
	edgeRecordSize = 20
	infoHeaderSize = 8
	pointSize      = 16
)

const flagHasElevation = 1 << 0

// Directed edge flag bits.
const (
	edgeForward = 1 << 0
	edgeTunnel  = 1 << 1
	edgeBridge  = 1 << 2
	edgeFerry   = 1 << 3
)

// DirectedEdge is one directional traversal of a segment. The elevation
// fields (WeightedGrade, MaxUpSlope, MaxDownSlope) are what this tool fills
// in; everything else comes from the graph build.
type DirectedEdge struct {
	EdgeInfoOffset uint32
	Length         float32 // meters

	Forward bool // traverses its EdgeInfo shape in forward order
	Tunnel  bool
	Bridge  bool
	Ferry   bool

	WeightedGrade uint8 // quantized, 0-15, 6 = flat
	MaxUpSlope    float32
	MaxDownSlope  float32
}

// EdgeInfo is the geometry shared by the two directions of one segment.
// Its identity within a tile is its byte offset into the edge-info blob.
type EdgeInfo struct {
	offset        uint32
	MeanElevation float32
	Shape         []orb.Point
}

// Offset returns the record's byte offset within the tile's edge-info blob.
func (ei *EdgeInfo) Offset() uint32 {
	return ei.offset
}

// Tile is the unit of work: a header, the directed edge records, and the
// edge-info records they reference. Exactly one worker owns a loaded tile
// at a time, so none of its methods lock.
type Tile struct {
	ID           ID
	HasElevation bool
	Edges        []DirectedEdge

	infos        []*EdgeInfo // in blob order, offsets ascending
	infoByOffset map[uint32]*EdgeInfo
}

// NewTile creates an empty tile for id.
func NewTile(id ID) *Tile {
	return &Tile{
		ID:           id,
		infoByOffset: make(map[uint32]*EdgeInfo),
	}
}

// AddEdgeInfo appends a geometry record and returns the offset directed
// edges use to reference it.
func (t *Tile) AddEdgeInfo(shape []orb.Point) uint32 {
	var offset uint32
	if n := len(t.infos); n > 0 {
		last := t.infos[n-1]
		offset = last.offset + uint32(infoHeaderSize+len(last.Shape)*pointSize)
	}
	ei := &EdgeInfo{offset: offset, Shape: shape}
	t.infos = append(t.infos, ei)
	t.infoByOffset[offset] = ei
	return offset
}

// EdgeInfo resolves an offset to its geometry record.
func (t *Tile) EdgeInfo(offset uint32) (*EdgeInfo, error) {
	ei, ok := t.infoByOffset[offset]
	if !ok {
		return nil, fmt.Errorf("tile %s: no edge info at offset %d", t.ID, offset)
	}
	return ei, nil
}

// EdgeInfoCount returns the number of geometry records in the tile.
func (t *Tile) EdgeInfoCount() int {
	return len(t.infos)
}

// Marshal serializes the tile. Record order is preserved, so a tile that is
// unmarshaled and re-marshaled without edits is byte-identical.
func (t *Tile) Marshal() []byte {
	infoSize := 0
	for _, ei := range t.infos {
		infoSize += infoHeaderSize + len(ei.Shape)*pointSize
	}

	buf := make([]byte, headerSize+len(t.Edges)*edgeRecordSize+infoSize)
	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[4:6], version)
	var flags uint16
	if t.HasElevation {
		flags |= flagHasElevation
	}
	binary.LittleEndian.PutUint16(buf[6:8], flags)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(t.Edges)))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(infoSize))

	off := headerSize
	for _, e := range t.Edges {
		binary.LittleEndian.PutUint32(buf[off:], e.EdgeInfoOffset)
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(e.Length))
		buf[off+8] = e.flagBits()
		buf[off+9] = e.WeightedGrade
		// two bytes of padding at off+10
		binary.LittleEndian.PutUint32(buf[off+12:], math.Float32bits(e.MaxUpSlope))
		binary.LittleEndian.PutUint32(buf[off+16:], math.Float32bits(e.MaxDownSlope))
		off += edgeRecordSize
	}

	for _, ei := range t.infos {
		binary.LittleEndian.PutUint32(buf[off:], uint32(len(ei.Shape)))
		binary.LittleEndian.PutUint32(buf[off+4:], math.Float32bits(ei.MeanElevation))
		off += infoHeaderSize
		for _, p := range ei.Shape {
			binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(p[0]))
			binary.LittleEndian.PutUint64(buf[off+8:], math.Float64bits(p[1]))
			off += pointSize
		}
	}
	return buf
}

// Unmarshal parses a serialized tile.
func Unmarshal(id ID, buf []byte) (*Tile, error) {
	if len(buf) < headerSize || string(buf[0:4]) != magic {
		return nil, fmt.Errorf("tile %s: not a graph tile", id)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != version {
		return nil, fmt.Errorf("tile %s: unsupported version %d", id, v)
	}
	flags := binary.LittleEndian.Uint16(buf[6:8])
	edgeCount := int(binary.LittleEndian.Uint32(buf[8:12]))
	infoSize := int(binary.LittleEndian.Uint32(buf[12:16]))

	if len(buf) != headerSize+edgeCount*edgeRecordSize+infoSize {
		return nil, fmt.Errorf("tile %s: truncated (%d bytes)", id, len(buf))
	}

	t := NewTile(id)
	t.HasElevation = flags&flagHasElevation != 0
	t.Edges = make([]DirectedEdge, edgeCount)

	off := headerSize
	for i := range t.Edges {
		e := &t.Edges[i]
		e.EdgeInfoOffset = binary.LittleEndian.Uint32(buf[off:])
		e.Length = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))
		e.setFlagBits(buf[off+8])
		e.WeightedGrade = buf[off+9]
		e.MaxUpSlope = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+12:]))
		e.MaxDownSlope = math.Float32frombits(binary.LittleEndian.Uint32(buf[off+16:]))
		off += edgeRecordSize
	}

	blobStart := off
	for off < len(buf) {
		if len(buf)-off < infoHeaderSize {
			return nil, fmt.Errorf("tile %s: truncated edge info", id)
		}
		offset := uint32(off - blobStart)
		points := int(binary.LittleEndian.Uint32(buf[off:]))
		mean := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4:]))
		off += infoHeaderSize
		if len(buf)-off < points*pointSize {
			return nil, fmt.Errorf("tile %s: truncated shape at offset %d", id, offset)
		}
		shape := make([]orb.Point, points)
		for i := range shape {
			shape[i][0] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
			shape[i][1] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off+8:]))
			off += pointSize
		}
		ei := &EdgeInfo{offset: offset, MeanElevation: mean, Shape: shape}
		t.infos = append(t.infos, ei)
		t.infoByOffset[offset] = ei
	}

	for i, e := range t.Edges {
		if _, ok := t.infoByOffset[e.EdgeInfoOffset]; !ok {
			return nil, fmt.Errorf("tile %s: edge %d references missing edge info %d",
				id, i, e.EdgeInfoOffset)
		}
	}
	return t, nil
}

func (e *DirectedEdge) flagBits() byte {
	var b byte
	if e.Forward {
		b |= edgeForward
	}
	if e.Tunnel {
		b |= edgeTunnel
	}
	if e.Bridge {
		b |= edgeBridge
	}
	if e.Ferry {
		b |= edgeFerry
	}
	return b
}

func (e *DirectedEdge) setFlagBits(b byte) {
	e.Forward = b&edgeForward != 0
	e.Tunnel = b&edgeTunnel != 0
	e.Bridge = b&edgeBridge != 0
	e.Ferry = b&edgeFerry != 0
}
