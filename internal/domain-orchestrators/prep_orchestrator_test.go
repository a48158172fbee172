package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"

	adapters "github.com/jurobystricky/autospec/internal/domain-adapters/gateways"
	"github.com/jurobystricky/autospec/internal/domain/entities"
	"github.com/jurobystricky/autospec/internal/domain/services"
)

const tomlList = "https://proxy.golang.org/github.com/!burnt!sushi/toml/@v/list"

// Mock implementations for testing
type mockFetcher struct {
	files   map[string][]byte
	fetched []string
	err     error
}

func (m *mockFetcher) Fetch(_ context.Context, url, dir string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.write(url, filepath.Join(dir, path.Base(url)))
}

func (m *mockFetcher) FetchAll(_ context.Context, list entities.ArchiveList, dir string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	paths := make([]string, len(list))
	for i, e := range list {
		p, err := m.write(e.URL, filepath.Join(dir, path.Base(e.URL)))
		if err != nil {
			return nil, err
		}
		paths[i] = p
	}
	return paths, nil
}

func (m *mockFetcher) write(url, dest string) (string, error) {
	data, ok := m.files[url]
	if !ok {
		return "", errors.New("404 " + url)
	}
	m.fetched = append(m.fetched, url)
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return "", err
	}
	return dest, os.WriteFile(dest, data, 0600)
}

type mockInspector struct {
	classified []string
	resolved   []string
}

func (m *mockInspector) Classify(d *entities.Descriptor) error {
	m.classified = append(m.classified, d.Reference)
	return d.Advance(entities.StateClassified)
}

func (m *mockInspector) ResolveLayout(d *entities.Descriptor) error {
	m.resolved = append(m.resolved, d.Reference)
	if d.LayoutResolved() {
		return nil
	}
	return d.SetLayout("", entities.FileStem(d.Reference))
}

type countingExtractor struct {
	calls  int
	failOn string
}

func (m *countingExtractor) Extract(d *entities.Descriptor, _ string) error {
	if d.Reference == m.failOn {
		return errors.New("disk full")
	}
	m.calls++
	return nil
}

type mockOverrides struct {
	pattern entities.BuildPattern
	pins    entities.VersionPins
	err     error
	primary entities.Detection
}

func (m *mockOverrides) Load(cfg *entities.BuildConfig, primary *entities.Detection) error {
	m.primary = *primary
	if m.err != nil {
		return m.err
	}
	if m.pattern != "" {
		cfg.SetBuildPattern(m.pattern, entities.StrengthOverride)
	}
	cfg.PinnedVersions = m.pins
	return nil
}

type mockVerifier struct {
	err   error
	calls int
}

func (m *mockVerifier) VerifyGPGSignature(_ context.Context, _, _ string) error {
	m.calls++
	return m.err
}

func (m *mockVerifier) VerifyGPGSignatureFromFile(_, _ string) error {
	m.calls++
	return m.err
}

type mockManifestWriter struct {
	written *entities.Manifest
	path    string
}

func (m *mockManifestWriter) WriteManifest(man *entities.Manifest, p string) error {
	m.written, m.path = man, p
	return nil
}

func moduleZip(t *testing.T, modPath, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"go.mod":    "module " + modPath + "\n",
		"decode.go": "package toml\n",
	} {
		w, err := zw.Create(modPath + "@" + version + "/" + name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestExpandModuleProxy(t *testing.T) {
	base := strings.TrimSuffix(tomlList, "list")
	got, err := ExpandModuleProxy(tomlList, []string{"v0.3.1", "v0.3.0", "v0.2.0"})
	if err != nil {
		t.Fatalf("ExpandModuleProxy() error = %v", err)
	}

	var want entities.ArchiveList
	for _, v := range []string{"v0.3.1", "v0.3.0", "v0.2.0"} {
		want = append(want,
			entities.ArchiveEntry{URL: base + v + ".info", Destination: entities.SkipDestination},
			entities.ArchiveEntry{URL: base + v + ".mod", Destination: entities.SkipDestination},
			entities.ArchiveEntry{URL: base + v + ".zip", Destination: entities.ExtractDestination},
		)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandModuleProxy() mismatch (-want +got):\n%s", diff)
	}
	if got.Extractable() != 3 {
		t.Errorf("Extractable() = %d, want 3", got.Extractable())
	}
}

func TestExpandModuleProxy_VersionedPrimary(t *testing.T) {
	base := strings.TrimSuffix(tomlList, "list")
	got, err := ExpandModuleProxy(base+"v0.3.0.zip", []string{"v0.3.1", "v0.3.0"})
	if err != nil {
		t.Fatalf("ExpandModuleProxy() error = %v", err)
	}
	want := []string{base + "v0.3.1.info", base + "v0.3.1.mod", base + "v0.3.1.zip"}
	if diff := cmp.Diff(want, got.URLs()); diff != "" {
		t.Errorf("URLs mismatch (-want +got):\n%s", diff)
	}

	if _, err := ExpandModuleProxy("https://example.org/foo-1.0.tar.gz", []string{"v1.0.0"}); err == nil {
		t.Error("ExpandModuleProxy() of a non-proxy URL should fail")
	}
}

func TestExpandPinnedVersions(t *testing.T) {
	pins := entities.VersionPins{
		{Version: "5.0", URL: "https://example.org/foo-5.0.tar.gz"},
		{Version: "4.0", URL: "https://example.org/foo-4.0.tar.gz"},
		{Version: "3.5", URL: "https://example.org/foo-3.5.tar.gz"},
		{Version: "3.0", URL: "https://example.org/foo-3.0.tar.gz"},
	}

	got := ExpandPinnedVersions("4.0", pins)
	want := entities.ArchiveList{
		{URL: "https://example.org/foo-5.0.tar.gz"},
		{URL: "https://example.org/foo-3.5.tar.gz"},
		{URL: "https://example.org/foo-3.0.tar.gz"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandPinnedVersions() mismatch (-want +got):\n%s", diff)
	}

	if got := ExpandPinnedVersions("1.0", nil); len(got) != 0 {
		t.Errorf("ExpandPinnedVersions(nil) = %v, want empty", got)
	}
}

func TestExpandPinnedVersions_CRAN(t *testing.T) {
	const primary = "https://cran.r-project.org/src/contrib/raster_3.0-12.tar.gz"
	d := services.DefaultGrammar().Detect(primary)
	pins := entities.VersionPins{
		{Version: "3.0-12", URL: primary},
		{Version: "3.0-11", URL: "https://cran.r-project.org/src/contrib/raster_3.0-11.tar.gz"},
		{Version: "3.0.12", URL: primary},
	}

	got := ExpandPinnedVersions(d.URLVersion(), pins)
	want := entities.ArchiveList{
		{URL: "https://cran.r-project.org/src/contrib/raster_3.0-11.tar.gz"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ExpandPinnedVersions() mismatch (-want +got):\n%s", diff)
	}
}

func TestExpandExtraArchives(t *testing.T) {
	cfg := entities.NewBuildConfig()
	cfg.ExtraArchives = entities.ArchiveList{{URL: "https://example.org/data.tar.gz", Destination: "share/data"}}

	got := ExpandExtraArchives(cfg)
	got[0].URL = "changed"
	if cfg.ExtraArchives[0].URL != "https://example.org/data.tar.gz" {
		t.Error("ExpandExtraArchives() returned an alias of the configuration")
	}
	if ExpandExtraArchives(nil) != nil {
		t.Error("ExpandExtraArchives(nil) should be nil")
	}
}

func TestExtractSources_Count(t *testing.T) {
	tests := []struct {
		name  string
		dests []entities.Destination
		want  int
	}{
		{"primary only", nil, 1},
		{"one skip of four", []entities.Destination{"", ":", "", ""}, 4},
		{"all skipped", []entities.Destination{":", ":", ":"}, 1},
		{"module proxy triples", []entities.Destination{":", ":", "", ":", ":", ""}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inspector := &mockInspector{}
			extractor := &countingExtractor{}
			o := NewPrepOrchestrator(nil, nil, nil, inspector, extractor, nil, PrepOrchestratorConfig{})

			primary := entities.NewDescriptor("https://example.org/foo-1.0.tar.gz", "", "/dl/foo-1.0.tar.gz")
			var aux []*entities.Descriptor
			for i, dest := range tt.dests {
				ref := "https://example.org/aux-" + string(rune('a'+i)) + ".tar.gz"
				aux = append(aux, entities.NewDescriptor(ref, dest, "/dl/"+path.Base(ref)))
			}

			got, err := o.ExtractSources(primary, aux, t.TempDir())
			if err != nil {
				t.Fatalf("ExtractSources() error = %v", err)
			}
			if got != tt.want || extractor.calls != tt.want {
				t.Errorf("ExtractSources() = %d (extractor calls %d), want %d", got, extractor.calls, tt.want)
			}
			if len(inspector.resolved) != tt.want {
				t.Errorf("layouts resolved = %d, want %d", len(inspector.resolved), tt.want)
			}
			for _, d := range aux {
				want := entities.StateExtracted
				if d.Skip() {
					want = entities.StateSkipped
				}
				if d.State != want {
					t.Errorf("%s state = %s, want %s", d.Reference, d.State, want)
				}
			}
		})
	}
}

func TestExtractSources_StopsOnFailure(t *testing.T) {
	extractor := &countingExtractor{failOn: "https://example.org/b.tar.gz"}
	o := NewPrepOrchestrator(nil, nil, nil, &mockInspector{}, extractor, nil, PrepOrchestratorConfig{})

	aux := []*entities.Descriptor{
		entities.NewDescriptor("https://example.org/a.tar.gz", "", "/dl/a.tar.gz"),
		entities.NewDescriptor("https://example.org/b.tar.gz", "", "/dl/b.tar.gz"),
		entities.NewDescriptor("https://example.org/c.tar.gz", "", "/dl/c.tar.gz"),
	}
	got, err := o.ExtractSources(nil, aux, t.TempDir())
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("ExtractSources() error = %v, want disk full", err)
	}
	if got != 1 {
		t.Errorf("ExtractSources() = %d, want 1", got)
	}
	if aux[2].State != entities.StateUnclassified {
		t.Errorf("descriptor after failure state = %s, want unclassified", aux[2].State)
	}
}

func TestPrepare_ModuleProxy(t *testing.T) {
	base := strings.TrimSuffix(tomlList, "list")
	fetcher := &mockFetcher{files: map[string][]byte{
		tomlList:             []byte("v0.3.0\nv0.3.1\n"),
		base + "v0.3.1.info": []byte(`{"Version":"v0.3.1"}`),
		base + "v0.3.1.mod":  []byte("module github.com/BurntSushi/toml\n"),
		base + "v0.3.1.zip":  moduleZip(t, "github.com/BurntSushi/toml", "v0.3.1"),
		base + "v0.3.0.info": []byte(`{"Version":"v0.3.0"}`),
		base + "v0.3.0.mod":  []byte("module github.com/BurntSushi/toml\n"),
		base + "v0.3.0.zip":  moduleZip(t, "github.com/BurntSushi/toml", "v0.3.0"),
	}}

	manifests := &mockManifestWriter{}
	o := NewPrepOrchestrator(nil, fetcher,
		adapters.NewModuleVersionFetcher(nil),
		adapters.NewArchiveInspector(nil),
		adapters.NewArchiveExtractor(nil),
		nil,
		PrepOrchestratorConfig{Tool: &entities.ToolConfig{GitTemplate: "https://git.example.org/pkgs/{name}"}},
	).WithChecksums(adapters.NewChecksumVerifier()).
		WithManifestWriter(manifests).
		WithBOMGenerator(adapters.NewSBOMGenerator(nil))

	buildRoot := filepath.Join(t.TempDir(), "build")
	result, err := o.Prepare(context.Background(), PrepRequest{
		URL:          tomlList,
		BuildRoot:    buildRoot,
		DownloadDir:  filepath.Join(t.TempDir(), "dl"),
		ManifestPath: "manifest.yaml",
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if result.Detection.Version != "v0.3.1" || result.Detection.Name != "toml" {
		t.Errorf("detected %s %s, want toml v0.3.1", result.Detection.Name, result.Detection.Version)
	}
	if result.Detection.PURL != "pkg:golang/github.com/BurntSushi/toml@v0.3.1" {
		t.Errorf("PURL = %s", result.Detection.PURL)
	}
	if result.Pattern != entities.PatternGoDep || result.Strength != entities.StrengthURL {
		t.Errorf("pattern = %s/%d, want godep/10", result.Pattern, result.Strength)
	}
	if len(result.Archives) != 6 {
		t.Errorf("archives = %d, want 6", len(result.Archives))
	}
	if result.Extracted != 3 {
		t.Errorf("Extracted = %d, want 3", result.Extracted)
	}

	for _, p := range []string{
		"list/list",
		"github.com/BurntSushi/toml@v0.3.1/go.mod",
		"github.com/BurntSushi/toml@v0.3.0/decode.go",
	} {
		if _, err := os.Stat(filepath.Join(buildRoot, p)); err != nil {
			t.Errorf("expected %s in build root: %v", p, err)
		}
	}
	if _, err := os.Stat(filepath.Join(buildRoot, "v0.3.1.info")); !os.IsNotExist(err) {
		t.Error("metadata-only file was extracted")
	}

	m := manifests.written
	if m == nil || manifests.path != "manifest.yaml" {
		t.Fatalf("manifest not written: %+v", manifests)
	}
	if m.PackagingRepo != "https://git.example.org/pkgs/toml" {
		t.Errorf("PackagingRepo = %s", m.PackagingRepo)
	}
	if p := m.Primary(); p == nil || p.Type != entities.ContainerModuleList || p.Subdir != "list" {
		t.Errorf("primary record = %+v", p)
	}
	var states []string
	for _, a := range m.Archives {
		states = append(states, a.State.String())
		if a.SHA256 == "" {
			t.Errorf("%s has no checksum", a.URL)
		}
	}
	wantStates := []string{"extracted", "skipped", "skipped", "extracted", "skipped", "skipped", "extracted"}
	if diff := cmp.Diff(wantStates, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
	if result.SBOM == nil || len(result.SBOM.Components) != 7 {
		t.Errorf("SBOM = %+v, want 7 components", result.SBOM)
	}
}

func TestPrepare_OverrideAndPins(t *testing.T) {
	fetcher := &mockFetcher{files: map[string][]byte{
		"https://example.org/dl/foo-1.0.tar.gz": []byte("one"),
		"https://example.org/dl/foo-0.9.tar.gz": []byte("nine"),
	}}
	inspector := &mockInspector{}
	extractor := &countingExtractor{}
	overrides := &mockOverrides{
		pattern: entities.PatternCMake,
		pins: entities.VersionPins{
			{Version: "1.0", URL: "https://example.org/dl/foo-1.0.tar.gz"},
			{Version: "0.9", URL: "https://example.org/dl/foo-0.9.tar.gz"},
		},
	}
	o := NewPrepOrchestrator(nil, fetcher, nil, inspector, extractor, overrides, PrepOrchestratorConfig{})

	result, err := o.Prepare(context.Background(), PrepRequest{
		URL:       "https://example.org/dl/foo-1.0.tar.gz",
		BuildRoot: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if result.Pattern != entities.PatternCMake || result.Strength != entities.StrengthOverride {
		t.Errorf("pattern = %s/%d, want override cmake/20", result.Pattern, result.Strength)
	}
	if diff := cmp.Diff([]string{"https://example.org/dl/foo-0.9.tar.gz"}, result.Archives.URLs()); diff != "" {
		t.Errorf("archives mismatch (-want +got):\n%s", diff)
	}
	if extractor.calls != 2 {
		t.Errorf("extractions = %d, want 2", extractor.calls)
	}
	if result.Manifest == nil || result.Manifest.Name != "foo" || result.Manifest.Version != "1.0" {
		t.Errorf("manifest = %+v", result.Manifest)
	}
}

func TestPrepare_CRANPinsKeepPrimaryOnce(t *testing.T) {
	const (
		primary = "https://cran.r-project.org/src/contrib/raster_3.0-12.tar.gz"
		older   = "https://cran.r-project.org/src/contrib/raster_3.0-11.tar.gz"
	)
	fetcher := &mockFetcher{files: map[string][]byte{primary: []byte("12"), older: []byte("11")}}
	extractor := &countingExtractor{}
	overrides := &mockOverrides{pins: entities.VersionPins{
		{Version: "3.0-12", URL: primary},
		{Version: "3.0-11", URL: older},
	}}
	o := NewPrepOrchestrator(nil, fetcher, nil, &mockInspector{}, extractor, overrides, PrepOrchestratorConfig{})

	result, err := o.Prepare(context.Background(), PrepRequest{URL: primary, BuildRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if diff := cmp.Diff([]string{older}, result.Archives.URLs()); diff != "" {
		t.Errorf("archives mismatch (-want +got):\n%s", diff)
	}
	if extractor.calls != 2 {
		t.Errorf("extractions = %d, want 2", extractor.calls)
	}
	if overrides.primary.Name != "R-raster" || overrides.primary.URLVersion() != "3.0-12" {
		t.Errorf("overrides saw %s %s, want R-raster 3.0-12", overrides.primary.Name, overrides.primary.URLVersion())
	}
}

func TestPrepare_Hints(t *testing.T) {
	fetcher := &mockFetcher{files: map[string][]byte{"https://example.org/snapshot.tar.gz": []byte("x")}}
	o := NewPrepOrchestrator(nil, fetcher, nil, &mockInspector{}, &countingExtractor{}, nil, PrepOrchestratorConfig{})

	result, err := o.Prepare(context.Background(), PrepRequest{
		URL:       "https://example.org/snapshot.tar.gz",
		BuildRoot: t.TempDir(),
		Name:      "widget",
		Version:   "2.1",
	})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if result.Detection.Name != "widget" || result.Detection.Version != "2.1" {
		t.Errorf("detected %s %s, want widget 2.1", result.Detection.Name, result.Detection.Version)
	}
	if result.Pattern != entities.PatternConfigure || result.Strength != entities.StrengthNone {
		t.Errorf("pattern = %s/%d, want fallback configure/0", result.Pattern, result.Strength)
	}
}

func TestPrepare_Errors(t *testing.T) {
	url := "https://example.org/dl/foo-1.0.tar.gz"
	files := map[string][]byte{url: []byte("one")}

	tests := []struct {
		name      string
		req       PrepRequest
		fetcher   *mockFetcher
		overrides *mockOverrides
		verifier  *mockVerifier
		wantErr   string
	}{
		{
			name:    "no url",
			req:     PrepRequest{BuildRoot: "b"},
			fetcher: &mockFetcher{files: files},
			wantErr: "no source URL",
		},
		{
			name:    "fetch failure",
			req:     PrepRequest{URL: url},
			fetcher: &mockFetcher{err: errors.New("connection refused")},
			wantErr: "failed to fetch primary archive",
		},
		{
			name:      "override failure",
			req:       PrepRequest{URL: url},
			fetcher:   &mockFetcher{files: files},
			overrides: &mockOverrides{err: errors.New("bad release")},
			wantErr:   "failed to load overrides",
		},
		{
			name:    "signature without verifier",
			req:     PrepRequest{URL: url, SignatureURL: url + ".asc"},
			fetcher: &mockFetcher{files: files},
			wantErr: "no verifier",
		},
		{
			name:     "bad signature",
			req:      PrepRequest{URL: url, SignatureFile: "foo.sig"},
			fetcher:  &mockFetcher{files: files},
			verifier: &mockVerifier{err: errors.New("GPG signature verification failed")},
			wantErr:  "GPG signature verification failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := &countingExtractor{}
			o := NewPrepOrchestrator(nil, tt.fetcher, nil, &mockInspector{}, extractor, nil, PrepOrchestratorConfig{})
			if tt.overrides != nil {
				o.overrides = tt.overrides
			}
			if tt.verifier != nil {
				o.WithSignatureVerifier(tt.verifier)
			}
			if tt.req.BuildRoot == "" {
				tt.req.BuildRoot = t.TempDir()
			}

			_, err := o.Prepare(context.Background(), tt.req)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Prepare() error = %v, want %q", err, tt.wantErr)
			}
			if extractor.calls != 0 {
				t.Errorf("extracted %d sources after a fatal error", extractor.calls)
			}
		})
	}
}
