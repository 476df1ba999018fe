package rundir

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
)

// Sample is one input sample's entry in the manifest: a stable slug id,
// the file paths to read, and an optional per-sample abundance override.
type Sample struct {
	ID          string   `json:"id"`
	Files       []string `json:"files"`
	MinAbundance int     `json:"min_abundance,omitempty"`
}

// Config is the subset of the manifest that must match exactly between a
// run and any run it is repart-from'd against.
type Config struct {
	K               int    `json:"k"`
	M               int    `json:"m"`
	P               int    `json:"p"`
	MinimizerType   int    `json:"minimizer_type"`   // 0 lexicographic, 1 frequency
	RepartitionType int    `json:"repartition_type"` // 0 unordered, 1 ordered
	HashWindow      uint64 `json:"hash_window,omitempty"`
	Encoding        string `json:"encoding"` // fixed "ACTG-2bit", persisted for self-description
}

// Compatible reports whether c and other can share a repartition table
// (repart-from requires identical k, m, and P).
func (c Config) Compatible(other Config) bool {
	return c.K == other.K && c.M == other.M && c.P == other.P
}

// Manifest is the run directory's root descriptor: the sample list, the
// configuration, and the progress sentinel for each pipeline stage.
type Manifest struct {
	Samples  []Sample        `json:"samples"`
	Config   Config          `json:"config"`
	Progress map[string]bool `json:"progress"` // stage name -> completed
}

// NewManifest builds an empty manifest for the given config and samples.
func NewManifest(cfg Config, samples []Sample) *Manifest {
	return &Manifest{Samples: samples, Config: cfg, Progress: map[string]bool{}}
}

// ManifestPath is the fixed manifest filename within a run directory.
func ManifestPath(runDir string) string { return filepath.Join(runDir, "manifest.json") }

// Save writes the manifest as indented JSON to its run directory's
// conventional path, mirroring bio-pamtool's checksum command's use of
// json.MarshalIndent for a self-describing summary file.
func (m *Manifest) Save(runDir string) error {
	js, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	ctx := vcontext.Background()
	w, err := file.Create(ctx, ManifestPath(runDir))
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, w, &err)
	_, err = w.Writer(ctx).Write(js)
	return err
}

// LoadManifest reads the manifest from its conventional path within runDir.
func LoadManifest(runDir string) (m *Manifest, err error) {
	ctx := vcontext.Background()
	var r file.File
	if r, err = file.Open(ctx, ManifestPath(runDir)); err != nil {
		return nil, err
	}
	defer file.CloseAndReport(ctx, r, &err)
	b, err := ioutil.ReadAll(r.Reader(ctx))
	if err != nil {
		return nil, err
	}
	m = &Manifest{}
	if err := json.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("rundir: malformed manifest at %s: %w", ManifestPath(runDir), err)
	}
	return m, nil
}

// MarkDone records that stage completed successfully.
func (m *Manifest) MarkDone(stage string) { m.Progress[stage] = true }

// IsDone reports whether stage previously completed.
func (m *Manifest) IsDone(stage string) bool { return m.Progress[stage] }

// Standard subdirectory layout under a run directory.
const (
	SuperKDir  = "superkmers"
	CountsDir  = "counts"
	MatrixDir  = "matrices"
	FiltersDir = "filters"
	HistDir    = "histograms"
)

// Layout returns the fixed set of subdirectories a freshly created run
// directory must contain.
func Layout(runDir string) []string {
	dirs := []string{SuperKDir, CountsDir, MatrixDir, FiltersDir, HistDir}
	out := make([]string, len(dirs))
	for i, d := range dirs {
		out[i] = filepath.Join(runDir, d)
	}
	return out
}
