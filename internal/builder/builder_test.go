package builder

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/wegman-software/graphelev-go/internal/config"
	"github.com/wegman-software/graphelev-go/internal/elevation"
	"github.com/wegman-software/graphelev-go/internal/grade"
	"github.com/wegman-software/graphelev-go/internal/tile"
)

// flatGrade is the quantized encoding of a 0% weighted grade.
var flatGrade = grade.Quantize(0)

// writeRaster writes a synthetic .hgt raster with n postings per side.
func writeRaster(t *testing.T, dir, name string, n int, height func(row, col int) int16) {
	t.Helper()

	buf := make([]byte, n*n*2)
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			off := (row*n + col) * 2
			binary.BigEndian.PutUint16(buf[off:off+2], uint16(height(row, col)))
		}
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf, 0o644); err != nil {
		t.Fatalf("writing raster: %v", err)
	}
}

// risingTerrain writes a raster over N00E000 whose heights rise 80 m per
// posting column (121 per side), about 8.6% grade eastward at the equator.
func risingTerrain(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeRaster(t, dir, "N00E000.hgt", 121, func(row, col int) int16 {
		return int16(col * 80)
	})
	return dir
}

// eastwardShape is a ~500 m west-to-east shape over the rising terrain.
var eastwardShape = []orb.Point{{0.30, 0.50}, {0.3045, 0.50}}

func newTestConfig(t *testing.T, elevationDir string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.TileDir = t.TempDir()
	cfg.ElevationDir = elevationDir
	cfg.Workers = 2
	return cfg
}

func TestComputeGradesTunnelAndFerry(t *testing.T) {
	sampler := elevation.NewSampler(risingTerrain(t))
	defer sampler.Close()

	for _, tc := range []struct {
		name string
		edge tile.DirectedEdge
	}{
		{"tunnel", tile.DirectedEdge{Length: 500, Tunnel: true}},
		{"ferry", tile.DirectedEdge{Length: 500, Ferry: true}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cg, mean := computeGrades(sampler, &tc.edge, eastwardShape)
			if cg.forwardGrade != flatGrade || cg.reverseGrade != flatGrade {
				t.Errorf("grades = %d/%d, want flat %d", cg.forwardGrade, cg.reverseGrade, flatGrade)
			}
			if cg.forwardUp != 0 || cg.forwardDown != 0 || cg.reverseUp != 0 || cg.reverseDown != 0 {
				t.Errorf("slopes should be zero, got %+v", cg)
			}
			if mean != 0 {
				t.Errorf("mean = %f, want 0 without sampling", mean)
			}
		})
	}
}

func TestComputeGradesShortEdge(t *testing.T) {
	sampler := elevation.NewSampler(risingTerrain(t))
	defer sampler.Close()

	// Below the minimum interval: no grade, but the mean survives.
	edge := tile.DirectedEdge{Length: 8, Forward: true}
	cg, mean := computeGrades(sampler, &edge, eastwardShape)

	if cg.forwardGrade != flatGrade || cg.reverseGrade != flatGrade {
		t.Errorf("short edge grades = %d/%d, want flat %d", cg.forwardGrade, cg.reverseGrade, flatGrade)
	}
	if cg.forwardUp != 0 || cg.reverseDown != 0 {
		t.Errorf("short edge slopes should be zero, got %+v", cg)
	}
	if mean <= 0 {
		t.Errorf("mean = %f, want the sampled endpoint mean", mean)
	}
}

func TestComputeGradesBridgeSamplesEndpointsOnly(t *testing.T) {
	// Flat terrain with a mountain in the middle of the cell. A bridge
	// spanning it is sampled at its endpoints only, so the mountain must
	// not show up in its slopes.
	dir := t.TempDir()
	writeRaster(t, dir, "N00E000.hgt", 121, func(row, col int) int16 {
		if col >= 40 && col <= 80 {
			return 5000
		}
		return 0
	})
	sampler := elevation.NewSampler(dir)
	defer sampler.Close()

	shape := []orb.Point{{0.2, 0.5}, {0.8, 0.5}}
	length := float32(66700)

	bridge := tile.DirectedEdge{Length: length, Forward: true, Bridge: true}
	cg, _ := computeGrades(sampler, &bridge, shape)
	if cg.forwardUp != 0 || cg.forwardGrade != flatGrade {
		t.Errorf("bridge saw the mountain: %+v", cg)
	}

	road := tile.DirectedEdge{Length: length, Forward: true}
	cg, _ = computeGrades(sampler, &road, shape)
	if cg.forwardUp == 0 {
		t.Errorf("resampled road should see the mountain: %+v", cg)
	}
}

func TestComputeGradesNoCoverage(t *testing.T) {
	sampler := elevation.NewSampler(t.TempDir())
	defer sampler.Close()

	edge := tile.DirectedEdge{Length: 500, Forward: true}
	cg, mean := computeGrades(sampler, &edge, eastwardShape)

	if mean != elevation.NoDataValue {
		t.Errorf("mean = %f, want the no-data sentinel", mean)
	}
	if cg.forwardGrade != flatGrade || cg.forwardUp != 0 {
		t.Errorf("void heights should give flat grades, got %+v", cg)
	}
}

func TestBuildSharedEdgeInfo(t *testing.T) {
	cfg := newTestConfig(t, risingTerrain(t))

	// Two directed edges over one shape, one per direction.
	tl := tile.NewTile(tile.ID{Level: 2, Index: 7})
	off := tl.AddEdgeInfo(eastwardShape)
	tl.Edges = []tile.DirectedEdge{
		{EdgeInfoOffset: off, Length: 500, Forward: true},
		{EdgeInfoOffset: off, Length: 500},
	}
	store := tile.NewStore(cfg.TileDir, 0)
	if err := store.Save(tl); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := Build(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := tile.NewStore(cfg.TileDir, 0).Load(tl.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !got.HasElevation {
		t.Error("HasElevation not set after build")
	}

	fwd, rev := got.Edges[0], got.Edges[1]
	if fwd.WeightedGrade <= flatGrade {
		t.Errorf("uphill edge grade = %d, want > %d", fwd.WeightedGrade, flatGrade)
	}
	if rev.WeightedGrade >= flatGrade {
		t.Errorf("downhill edge grade = %d, want < %d", rev.WeightedGrade, flatGrade)
	}
	if fwd.MaxUpSlope <= 0 {
		t.Errorf("uphill MaxUpSlope = %f, want > 0", fwd.MaxUpSlope)
	}
	if rev.MaxDownSlope >= 0 {
		t.Errorf("downhill MaxDownSlope = %f, want < 0", rev.MaxDownSlope)
	}
	// The two directions mirror the same height profile.
	if fwd.MaxUpSlope != -rev.MaxDownSlope || fwd.MaxDownSlope != -rev.MaxUpSlope {
		t.Errorf("slopes do not mirror: fwd %+v rev %+v", fwd, rev)
	}

	ei, err := got.EdgeInfo(off)
	if err != nil {
		t.Fatalf("EdgeInfo: %v", err)
	}
	if ei.MeanElevation <= 0 || ei.MeanElevation == tile.NoElevationData {
		t.Errorf("MeanElevation = %f, want a sampled mean", ei.MeanElevation)
	}
}

func TestBuildMapsNoDataToNoElevation(t *testing.T) {
	cfg := newTestConfig(t, risingTerrain(t))

	// Shape in a cell with no raster: the no-data sentinel must surface as
	// the reserved no-elevation constant, never as the raw sentinel.
	tl := tile.NewTile(tile.ID{Level: 0, Index: 9})
	off := tl.AddEdgeInfo([]orb.Point{{5.30, 0.50}, {5.3045, 0.50}})
	tl.Edges = []tile.DirectedEdge{{EdgeInfoOffset: off, Length: 500, Forward: true}}
	if err := tile.NewStore(cfg.TileDir, 0).Save(tl); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := Build(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	got, err := tile.NewStore(cfg.TileDir, 0).Load(tl.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ei, err := got.EdgeInfo(off)
	if err != nil {
		t.Fatalf("EdgeInfo: %v", err)
	}
	if ei.MeanElevation != tile.NoElevationData {
		t.Errorf("MeanElevation = %f, want NoElevationData", ei.MeanElevation)
	}
	if got.Edges[0].WeightedGrade != flatGrade {
		t.Errorf("grade without coverage = %d, want flat %d", got.Edges[0].WeightedGrade, flatGrade)
	}
}

func TestBuildProcessesEveryTileOnce(t *testing.T) {
	cfg := newTestConfig(t, risingTerrain(t))
	cfg.Workers = 4

	store := tile.NewStore(cfg.TileDir, 0)
	var ids []tile.ID
	for i := 0; i < 25; i++ {
		tl := tile.NewTile(tile.ID{Level: uint8(i % 3), Index: uint32(i)})
		off := tl.AddEdgeInfo(eastwardShape)
		tl.Edges = []tile.DirectedEdge{{EdgeInfoOffset: off, Length: 500, Forward: true}}
		if err := store.Save(tl); err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, tl.ID)
	}

	if err := Build(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	fresh := tile.NewStore(cfg.TileDir, 0)
	for _, id := range ids {
		got, err := fresh.Load(id)
		if err != nil {
			t.Fatalf("Load %s: %v", id, err)
		}
		if !got.HasElevation {
			t.Errorf("tile %s was not processed", id)
		}
	}
}

func TestBuildIdempotent(t *testing.T) {
	cfg := newTestConfig(t, risingTerrain(t))

	tl := tile.NewTile(tile.ID{Level: 1, Index: 42})
	off := tl.AddEdgeInfo(eastwardShape)
	tl.Edges = []tile.DirectedEdge{
		{EdgeInfoOffset: off, Length: 500, Forward: true},
		{EdgeInfoOffset: off, Length: 500},
	}
	if err := tile.NewStore(cfg.TileDir, 0).Save(tl); err != nil {
		t.Fatalf("Save: %v", err)
	}
	path := filepath.Join(cfg.TileDir, tl.ID.Path())

	if err := Build(context.Background(), cfg, nil); err != nil {
		t.Fatalf("first Build: %v", err)
	}
	first, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading tile: %v", err)
	}

	if err := Build(context.Background(), cfg, nil); err != nil {
		t.Fatalf("second Build: %v", err)
	}
	second, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading tile: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("processing the same tile twice changed its bytes")
	}
}

func TestBuildExplicitTileSubset(t *testing.T) {
	cfg := newTestConfig(t, risingTerrain(t))

	store := tile.NewStore(cfg.TileDir, 0)
	var ids []tile.ID
	for i := 0; i < 4; i++ {
		tl := tile.NewTile(tile.ID{Level: 0, Index: uint32(i)})
		off := tl.AddEdgeInfo(eastwardShape)
		tl.Edges = []tile.DirectedEdge{{EdgeInfoOffset: off, Length: 500, Forward: true}}
		if err := store.Save(tl); err != nil {
			t.Fatalf("Save: %v", err)
		}
		ids = append(ids, tl.ID)
	}

	if err := Build(context.Background(), cfg, ids[:2]); err != nil {
		t.Fatalf("Build: %v", err)
	}

	fresh := tile.NewStore(cfg.TileDir, 0)
	for i, id := range ids {
		got, err := fresh.Load(id)
		if err != nil {
			t.Fatalf("Load %s: %v", id, err)
		}
		if want := i < 2; got.HasElevation != want {
			t.Errorf("tile %s processed = %v, want %v", id, got.HasElevation, want)
		}
	}
}

func TestBuildMissingElevationDir(t *testing.T) {
	cfg := newTestConfig(t, filepath.Join(t.TempDir(), "does-not-exist"))

	tl := tile.NewTile(tile.ID{Level: 0, Index: 1})
	off := tl.AddEdgeInfo(eastwardShape)
	tl.Edges = []tile.DirectedEdge{{EdgeInfoOffset: off, Length: 500, Forward: true}}
	if err := tile.NewStore(cfg.TileDir, 0).Save(tl); err != nil {
		t.Fatalf("Save: %v", err)
	}
	path := filepath.Join(cfg.TileDir, tl.ID.Path())
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading tile: %v", err)
	}

	// Not an error, just a no-op.
	if err := Build(context.Background(), cfg, nil); err != nil {
		t.Fatalf("Build: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading tile: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("tiles must not be touched when elevation data is absent")
	}
}

func TestBuildCorruptTileFails(t *testing.T) {
	cfg := newTestConfig(t, risingTerrain(t))

	path := filepath.Join(cfg.TileDir, "0", "1.gph")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not a tile"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := Build(context.Background(), cfg, nil); err == nil {
		t.Error("a corrupt tile must fail the run")
	}
}
