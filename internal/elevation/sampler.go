package elevation

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/edsrzf/mmap-go"
	"github.com/paulmach/orb"
)

// NoDataValue is returned for points without elevation coverage. It matches
// the SRTM void value so raw postings pass through unchanged.
const NoDataValue = -32768.0

// Sampler reads elevations from a directory of SRTM-style .hgt rasters
// (one file per 1°x1° cell, square grid of big-endian int16 postings,
// named by the cell's southwest corner, e.g. N47E008.hgt).
//
// Raster files are opened lazily and memory-mapped. The tile map is guarded
// by a mutex; once a raster is mapped, reads go straight to the mapping, so
// a single Sampler is safe to share across all workers.
type Sampler struct {
	dir string

	mu      sync.Mutex
	rasters map[cellKey]*raster // nil entry records a known-missing cell
}

// cellKey is the southwest corner of a 1°x1° cell in whole degrees.
type cellKey struct {
	lat, lon int
}

type raster struct {
	file *os.File
	data mmap.MMap
	n    int // postings per side
}

// NewSampler creates a sampler over dir. Rasters are opened on first use,
// so a missing or empty directory only surfaces as no-data heights.
func NewSampler(dir string) *Sampler {
	return &Sampler{
		dir:     dir,
		rasters: make(map[cellKey]*raster),
	}
}

// Height returns the bilinearly interpolated elevation at p, or NoDataValue
// when the covering raster is absent or void at that location.
func (s *Sampler) Height(p orb.Point) float64 {
	lon, lat := p[0], p[1]
	key := cellKey{
		lat: int(math.Floor(lat)),
		lon: int(math.Floor(lon)),
	}

	r := s.raster(key)
	if r == nil {
		return NoDataValue
	}

	// Fractional position within the cell. Row 0 is the north edge.
	fx := (lon - float64(key.lon)) * float64(r.n-1)
	fy := (1 - (lat - float64(key.lat))) * float64(r.n-1)

	x0 := int(fx)
	y0 := int(fy)
	if x0 >= r.n-1 {
		x0 = r.n - 2
	}
	if y0 >= r.n-1 {
		y0 = r.n - 2
	}

	h00 := r.posting(y0, x0)
	h01 := r.posting(y0, x0+1)
	h10 := r.posting(y0+1, x0)
	h11 := r.posting(y0+1, x0+1)
	if h00 == NoDataValue || h01 == NoDataValue || h10 == NoDataValue || h11 == NoDataValue {
		return NoDataValue
	}

	wx := fx - float64(x0)
	wy := fy - float64(y0)
	top := h00*(1-wx) + h01*wx
	bottom := h10*(1-wx) + h11*wx
	return top*(1-wy) + bottom*wy
}

// SampleAll returns the elevation at every point, in order.
func (s *Sampler) SampleAll(points []orb.Point) []float64 {
	heights := make([]float64, len(points))
	for i, p := range points {
		heights[i] = s.Height(p)
	}
	return heights
}

// Close unmaps and closes all open rasters.
func (s *Sampler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for key, r := range s.rasters {
		if r == nil {
			continue
		}
		if err := r.data.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := r.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.rasters, key)
	}
	return firstErr
}

// raster returns the mapped raster for key, opening it on first use.
// Returns nil when the cell has no usable raster file.
func (s *Sampler) raster(key cellKey) *raster {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.rasters[key]; ok {
		return r
	}
	r, err := openRaster(filepath.Join(s.dir, cellName(key)))
	if err != nil {
		// Remember the miss so we stat each absent cell only once.
		s.rasters[key] = nil
		return nil
	}
	s.rasters[key] = r
	return r
}

func openRaster(path string) (*raster, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	// The grid must be square: size = n*n postings of 2 bytes.
	n := int(math.Sqrt(float64(info.Size() / 2)))
	if n < 2 || int64(n)*int64(n)*2 != info.Size() {
		f.Close()
		return nil, fmt.Errorf("raster %s has unexpected size %d", path, info.Size())
	}

	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &raster{file: f, data: data, n: n}, nil
}

func (r *raster) posting(row, col int) float64 {
	off := (row*r.n + col) * 2
	v := int16(binary.BigEndian.Uint16(r.data[off : off+2]))
	return float64(v)
}

// cellName builds the .hgt file name for a cell, e.g. N47E008.hgt.
func cellName(key cellKey) string {
	ns, lat := byte('N'), key.lat
	if lat < 0 {
		ns, lat = 'S', -lat
	}
	ew, lon := byte('E'), key.lon
	if lon < 0 {
		ew, lon = 'W', -lon
	}
	return fmt.Sprintf("%c%02d%c%03d.hgt", ns, lat, ew, lon)
}
