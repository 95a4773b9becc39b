package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ecfplookup/pkg/errors"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

// trackingReader fails the test if anything reads it.
type trackingReader struct {
	mu   sync.Mutex
	read bool
}

func (r *trackingReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.read = true
	return 0, fmt.Errorf("stdin must not be read")
}

func (r *trackingReader) wasRead() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read
}

type result struct {
	err    error
	stdout string
	stderr string
}

func execute(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	err := ExecuteArgs(context.Background(), args, strings.NewReader(stdin), &out, &errOut)
	return result{err: err, stdout: out.String(), stderr: errOut.String()}
}

// fakeEngine serves the engine API.  Every molecule gets identifiers 1 and 2;
// identifier 1 has one occurrence, identifier 2 has two.
type fakeEngine struct {
	mu        sync.Mutex
	calls     map[string]int
	userAgent string
	srv       *httptest.Server
}

func newFakeEngine(t *testing.T) *fakeEngine {
	t.Helper()
	fe := &fakeEngine{calls: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ecfp/fingerprint", func(w http.ResponseWriter, r *http.Request) {
		fe.count("fingerprint")
		fe.mu.Lock()
		fe.userAgent = r.Header.Get("User-Agent")
		fe.mu.Unlock()
		_, _ = w.Write([]byte(`{"identifiers":[2,1]}`))
	})
	mux.HandleFunc("/v1/ecfp/lookup", func(w http.ResponseWriter, r *http.Request) {
		fe.count("lookup")
		var req struct {
			Molecule struct {
				Source string `json:"source"`
			} `json:"molecule"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		_, _ = fmt.Fprintf(w, `{"features":[
			{"identifier":1,"bit_position":1,"diameter":0,"center_atom":0,"substructure":{"format":"smiles","source":"C"}},
			{"identifier":2,"bit_position":2,"diameter":2,"center_atom":0,"substructure":{"format":"smiles","source":"CO"}},
			{"identifier":2,"bit_position":2,"diameter":2,"center_atom":1,"substructure":{"format":"smiles","source":"CO"}}
		]}`)
	})
	mux.HandleFunc("/v1/smarts", func(w http.ResponseWriter, r *http.Request) {
		fe.count("smarts")
		var req struct {
			Substructure struct {
				Source string `json:"source"`
			} `json:"substructure"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		smarts := map[string]string{"C": "[#6]", "CO": "[#6]-[#8]"}[req.Substructure.Source]
		_ = json.NewEncoder(w).Encode(map[string]string{"smarts": smarts})
	})
	fe.srv = httptest.NewServer(mux)
	t.Cleanup(fe.srv.Close)
	return fe
}

func (fe *fakeEngine) count(op string) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	fe.calls[op]++
}

func (fe *fakeEngine) callCount(op string) int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.calls[op]
}

func outputLines(stdout string) []string {
	s := strings.TrimSuffix(stdout, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

const twoSMILES = "CCO ethanol\nCC ethane\n"

// ---------------------------------------------------------------------------
// Argument handling
// ---------------------------------------------------------------------------

func TestNormalizeArgs(t *testing.T) {
	flags := NewRootCommand().Flags()
	got := normalizeArgs(flags, []string{"-idname", "-idprop", "ID", "-idprop=X", "-c", "p.yaml", "-h", "--engine-url", "u", "-unknown", "--", "-idname"})
	assert.Equal(t, []string{"--idname", "--idprop", "ID", "--idprop=X", "-c", "p.yaml", "-h", "--engine-url", "u", "-unknown", "--", "-idname"}, got)
}

func TestNewRootCommand_Flags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"idname", "idprop", "config", "settings", "engine-url", "engine-timeout", "format", "log-level", "log-format", "metrics-push-url"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "c", cmd.Flags().Lookup("config").Shorthand)
}

func TestHelp_DoesNotReadStdin(t *testing.T) {
	stdin := &trackingReader{}
	var out, errOut bytes.Buffer
	err := ExecuteArgs(context.Background(), []string{"-h"}, stdin, &out, &errOut)

	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))
	assert.False(t, stdin.wasRead())
	assert.Contains(t, out.String(), "--idname")
	assert.Contains(t, out.String(), "--idprop")
	assert.Contains(t, out.String(), "-c, --config")
}

func TestVersion(t *testing.T) {
	r := execute(t, "", "--version")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, Version)
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{"-unknown"},
		{"--idprop"},
		{"extra-arg"},
		{"--engine-timeout", "soon"},
	} {
		r := execute(t, twoSMILES, args...)
		require.Error(t, r.err, args)
		assert.Equal(t, ExitUsage, ExitCode(r.err), args)
		assert.Contains(t, r.stderr, "Error: ", args)
		assert.Empty(t, r.stdout, args)
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New(errors.ErrCodeNoInput, "no molecule read")))
	assert.Equal(t, ExitUsage, ExitCode(&usageError{err: fmt.Errorf("bad flag")}))
	assert.Equal(t, ExitUsage, ExitCode(fmt.Errorf("wrapped: %w", &usageError{err: fmt.Errorf("bad flag")})))
}

// ---------------------------------------------------------------------------
// Configuration failures
// ---------------------------------------------------------------------------

func TestMissingParameterFile(t *testing.T) {
	fe := newFakeEngine(t)
	stdin := &trackingReader{}
	var out, errOut bytes.Buffer
	err := ExecuteArgs(context.Background(),
		[]string{"-c", filepath.Join(t.TempDir(), "missing.yaml"), "--engine-url", fe.srv.URL},
		stdin, &out, &errOut)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeConfiguration))
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.False(t, stdin.wasRead())
	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "Error: [CONFIG_001]")
	assert.Equal(t, 0, fe.callCount("fingerprint"))
}

func TestInvalidParameterFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecfp.yaml")
	require.NoError(t, os.WriteFile(path, []byte("length: 1000\n"), 0o600))

	r := execute(t, twoSMILES, "-c", path)
	require.Error(t, r.err)
	assert.True(t, errors.IsCode(r.err, errors.ErrCodeConfiguration))
	assert.Empty(t, r.stdout)
}

func TestInvalidSettings(t *testing.T) {
	r := execute(t, twoSMILES, "--engine-url", "ftp://engine")
	require.Error(t, r.err)
	assert.True(t, errors.IsCode(r.err, errors.ErrCodeConfiguration))

	r = execute(t, twoSMILES, "--format", "pdb")
	require.Error(t, r.err)
	assert.True(t, errors.IsCode(r.err, errors.ErrCodeConfiguration))
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func TestEmptyInput(t *testing.T) {
	fe := newFakeEngine(t)
	r := execute(t, "", "--engine-url", fe.srv.URL)

	require.Error(t, r.err)
	assert.True(t, errors.IsCode(r.err, errors.ErrCodeNoInput))
	assert.Equal(t, ExitFailure, ExitCode(r.err))
	assert.Empty(t, r.stdout)
	assert.Contains(t, r.stderr, "Error: [RUN_001] no molecule read")
}

func TestRun_CounterIDs(t *testing.T) {
	fe := newFakeEngine(t)
	r := execute(t, twoSMILES, "--engine-url", fe.srv.URL)
	require.NoError(t, r.err)

	lines := outputLines(r.stdout)
	require.Len(t, lines, 6)
	assert.Contains(t, lines, "[#6] 1 ECFPID: 1 ECFPBIT: 1 DIA: 0 ATOM: 0")
	assert.Contains(t, lines, "[#6]-[#8] 1 ECFPID: 2 ECFPBIT: 2 DIA: 2 ATOM: 0")
	assert.Contains(t, lines, "[#6]-[#8] 1 ECFPID: 2 ECFPBIT: 2 DIA: 2 ATOM: 1")
	assert.Contains(t, lines, "[#6] 2 ECFPID: 1 ECFPBIT: 1 DIA: 0 ATOM: 0")

	assert.Equal(t, 2, fe.callCount("fingerprint"))
	assert.Equal(t, 2, fe.callCount("lookup"))
	assert.Equal(t, 6, fe.callCount("smarts"))
	assert.Contains(t, r.stderr, "run_id")
	assert.Contains(t, r.stderr, fe.srv.URL)

	fe.mu.Lock()
	defer fe.mu.Unlock()
	assert.Equal(t, "ecfplookup/"+Version, fe.userAgent)
}

func TestRun_SingleDashNameIDs(t *testing.T) {
	fe := newFakeEngine(t)
	r := execute(t, twoSMILES, "-idname", "--engine-url", fe.srv.URL)
	require.NoError(t, r.err)

	for _, l := range outputLines(r.stdout) {
		id := strings.Fields(l)[1]
		assert.Contains(t, []string{"ethanol", "ethane"}, id)
	}
}

func TestRun_PropertyIDsFromSDF(t *testing.T) {
	fe := newFakeEngine(t)
	sdf := "ethanol\n\n\n  3  2  0  0  0  0  0  0  0  0999 V2000\nM  END\n> <CHEMBL_ID>\nCHEMBL545\n\n$$$$\n"
	r := execute(t, sdf, "-idprop", "CHEMBL_ID", "--engine-url", fe.srv.URL)
	require.NoError(t, r.err)

	lines := outputLines(r.stdout)
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Equal(t, "CHEMBL545", strings.Fields(l)[1])
	}
}

func TestRun_MultiLinePropertyIDs(t *testing.T) {
	fe := newFakeEngine(t)
	sdf := "ethanol\n\n\n  3  2  0  0  0  0  0  0  0  0999 V2000\nM  END\n> <SYNONYMS>\nethanol\nethyl alcohol\n\n$$$$\n"
	r := execute(t, sdf, "-idprop", "SYNONYMS", "--engine-url", fe.srv.URL)
	require.NoError(t, r.err)

	lines := outputLines(r.stdout)
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "[#6"), l)
		assert.Contains(t, l, " ethanol ethyl alcohol ECFPID: ")
	}
}

func TestRun_EmptyPropertyNameIsUsageError(t *testing.T) {
	fe := newFakeEngine(t)
	for _, args := range [][]string{
		{"-idprop", ""},
		{"-idprop="},
		{"--idprop", "  "},
		{"-idname", "-idprop", ""},
	} {
		stdin := &trackingReader{}
		var out, errOut bytes.Buffer
		err := ExecuteArgs(context.Background(), append(args, "--engine-url", fe.srv.URL), stdin, &out, &errOut)

		require.Error(t, err, args)
		assert.Equal(t, ExitUsage, ExitCode(err), args)
		assert.Contains(t, errOut.String(), "-idprop needs a non-empty property name", args)
		assert.Empty(t, out.String(), args)
		assert.False(t, stdin.wasRead(), args)
	}
	assert.Equal(t, 0, fe.callCount("fingerprint"))
}

func TestRun_MissingProperty(t *testing.T) {
	fe := newFakeEngine(t)
	r := execute(t, twoSMILES, "-idprop", "CHEMBL_ID", "--engine-url", fe.srv.URL)
	require.Error(t, r.err)
	assert.True(t, errors.IsCode(r.err, errors.ErrCodeMoleculePropertyMissing))
	assert.Equal(t, 0, fe.callCount("fingerprint"))
}

func TestRun_ParseErrorAborts(t *testing.T) {
	fe := newFakeEngine(t)
	r := execute(t, "CCO ok\nC(C broken\nCC never\n", "--engine-url", fe.srv.URL)
	require.Error(t, r.err)
	assert.True(t, errors.IsCode(r.err, errors.ErrCodeMoleculeParsingFailed))
	assert.Len(t, outputLines(r.stdout), 3)
	assert.Equal(t, 1, fe.callCount("fingerprint"))
}

func TestRun_EngineDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	r := execute(t, twoSMILES, "--engine-url", url)
	require.Error(t, r.err)
	assert.True(t, errors.IsCode(r.err, errors.ErrCodeFingerprintGenerationFailed))
	assert.Equal(t, ExitFailure, ExitCode(r.err))
}

func TestRun_SettingsFromEnvironment(t *testing.T) {
	fe := newFakeEngine(t)
	t.Setenv("ECFPLOOKUP_ENGINE_URL", fe.srv.URL)
	t.Setenv("ECFPLOOKUP_LOG_FORMAT", "json")

	r := execute(t, twoSMILES)
	require.NoError(t, r.err)
	assert.Len(t, outputLines(r.stdout), 6)
	assert.Contains(t, r.stderr, `"run_id"`)
}

func TestRun_SettingsFile(t *testing.T) {
	fe := newFakeEngine(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf("engine:\n  url: %s\nlog:\n  level: error\n", fe.srv.URL)), 0o600))

	r := execute(t, twoSMILES, "--settings", path)
	require.NoError(t, r.err)
	assert.Len(t, outputLines(r.stdout), 6)
	assert.Empty(t, r.stderr)
}

func TestRun_ParameterFileIsSent(t *testing.T) {
	var mu sync.Mutex
	var lengths []int
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ecfp/fingerprint", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Parameters struct {
				Length   int `json:"length"`
				Diameter int `json:"diameter"`
			} `json:"parameters"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		lengths = append(lengths, req.Parameters.Length)
		mu.Unlock()
		_, _ = w.Write([]byte(`{"identifiers":[]}`))
	})
	mux.HandleFunc("/v1/ecfp/lookup", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"features":[]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "ecfp.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"length": 2048, "diameter": 6}`), 0o600))

	r := execute(t, "CCO\n", "-c", path, "--engine-url", srv.URL)
	require.NoError(t, r.err)
	assert.Empty(t, r.stdout)
	assert.Equal(t, []int{2048}, lengths)
}

func TestRun_PushesMetrics(t *testing.T) {
	fe := newFakeEngine(t)
	var mu sync.Mutex
	var pushedPath string
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		pushedPath = r.URL.Path
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer gw.Close()

	r := execute(t, twoSMILES, "--engine-url", fe.srv.URL, "--metrics-push-url", gw.URL)
	require.NoError(t, r.err)

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(pushedPath, "/metrics/job/ecfplookup/run_id/"), pushedPath)
}
