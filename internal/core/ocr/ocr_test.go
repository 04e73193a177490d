package ocr

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/idscan/constants"
)

type call struct {
	name string
	args []string
}

// fakeRunner answers tesseract with canned output and emulates converters
// by writing a file at the requested output path.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []call
	text    string
	tsv     string
	textErr error
	convErr error
}

func (f *fakeRunner) Run(_ context.Context, name string, _ *slog.Logger, args ...string) ([]byte, []byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, args: args})
	f.mu.Unlock()

	switch name {
	case "tesseract":
		if args[len(args)-1] == "tsv" {
			return []byte(f.tsv), nil, nil
		}
		if f.textErr != nil {
			return nil, []byte("read error"), f.textErr
		}
		return []byte(f.text), nil, nil
	case "heif-convert", "magick":
		if f.convErr != nil {
			return nil, []byte("bad heic"), f.convErr
		}
		return nil, nil, os.WriteFile(args[1], []byte("png"), 0o644)
	case "sips":
		return nil, nil, os.WriteFile(args[len(args)-1], []byte("png"), 0o644)
	}
	return nil, nil, errors.New("unexpected command " + name)
}

func (f *fakeRunner) callsTo(name string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

const passportText = "PASSPORT\r\nPASSPORT NO: A1234567\t\tSURNAME: DOE\n\n\n\nGIVEN NAMES: JOHN\n-----\nEXPIRY DATE 12/11/30\n"

func TestExtractor_Image(t *testing.T) {
	fr := &fakeRunner{text: passportText}
	e := NewExtractor(Config{TessdataDir: "/td"}, nil, WithRunner(fr))

	res, err := e.Extract(context.Background(), "/scans/id.JPG")
	require.NoError(t, err)
	assert.Equal(t, constants.IMAGE, res.SourceType)
	assert.Equal(t, "image-ocr", res.Method)
	assert.Equal(t, "eng", res.Language)
	assert.Equal(t, "PASSPORT\nPASSPORT NO: A1234567 SURNAME: DOE\n\nGIVEN NAMES: JOHN\n\nEXPIRY DATE 12/11/30", res.Text)
	assert.Greater(t, res.Confidence, float32(0.5))

	calls := fr.callsTo("tesseract")
	require.Len(t, calls, 1)
	args := strings.Join(calls[0].args, " ")
	assert.Equal(t, "/scans/id.JPG stdout -l eng --psm 3 --tessdata-dir /td -c preserve_interword_spaces=1", args)
}

func TestExtractor_TSVConfidence(t *testing.T) {
	tsv := "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
		"1\t1\t0\t0\t0\t0\t0\t0\t100\t100\t-1\t\n" +
		"5\t1\t1\t1\t1\t1\t1\t1\t10\t10\t90\tPASSPORT\n" +
		"5\t1\t1\t1\t1\t2\t1\t1\t10\t10\t70\tNO\n"
	fr := &fakeRunner{text: "hello", tsv: tsv}
	e := NewExtractor(Config{EnableTSVConfidence: true}, nil, WithRunner(fr))

	res, err := e.Extract(context.Background(), "id.png")
	require.NoError(t, err)
	// tsv mean 0.8, heuristic 0.2 for text without any id features
	assert.InDelta(t, 0.7*0.8+0.3*0.2, res.Confidence, 1e-6)
	assert.Len(t, fr.callsTo("tesseract"), 2)
}

func TestExtractor_TesseractFailure(t *testing.T) {
	fr := &fakeRunner{textErr: errors.New("exit status 1")}
	e := NewExtractor(Config{}, nil, WithRunner(fr))

	res, err := e.Extract(context.Background(), "id.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tesseract")
	assert.Equal(t, []string{"read error"}, res.Warnings)
}

func TestExtractor_UnsupportedExtension(t *testing.T) {
	e := NewExtractor(Config{}, nil, WithRunner(&fakeRunner{}))
	for _, p := range []string{"scan.pdf", "notes.txt", "noext"} {
		_, err := e.Extract(context.Background(), p)
		assert.Error(t, err, p)
	}
}

func TestExtractor_HEICCachedByContentHash(t *testing.T) {
	cache := t.TempDir()
	fr := &fakeRunner{text: "PASSPORT NO: A1234567"}
	e := NewExtractor(Config{HeicConverter: "heif-convert", ArtifactCacheDir: cache}, nil, WithRunner(fr))
	ctx := WithContentHash(context.Background(), "abc123")

	_, err := e.Extract(ctx, "/photos/id.HEIC")
	require.NoError(t, err)
	_, err = e.Extract(ctx, "/photos/id.HEIC")
	require.NoError(t, err)

	assert.Len(t, fr.callsTo("heif-convert"), 1)
	assert.FileExists(t, filepath.Join(cache, "abc123.png"))
	tess := fr.callsTo("tesseract")
	require.Len(t, tess, 2)
	assert.Equal(t, filepath.Join(cache, "abc123.png"), tess[1].args[0])
}

func TestExtractor_HEICWithoutHashUsesTempFile(t *testing.T) {
	fr := &fakeRunner{text: "x"}
	e := NewExtractor(Config{HeicConverter: "sips", ArtifactCacheDir: t.TempDir()}, nil, WithRunner(fr))

	_, err := e.Extract(context.Background(), "id.heif")
	require.NoError(t, err)

	tess := fr.callsTo("tesseract")
	require.Len(t, tess, 1)
	assert.NoFileExists(t, tess[0].args[0], "temp png removed after extraction")
}

func TestExtractor_HEICErrors(t *testing.T) {
	_, err := NewExtractor(Config{}, nil, WithRunner(&fakeRunner{})).Extract(context.Background(), "id.heic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEIC not supported")

	fr := &fakeRunner{convErr: errors.New("exit status 2")}
	res, err := NewExtractor(Config{HeicConverter: "magick"}, nil, WithRunner(fr)).Extract(context.Background(), "id.heic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magick failed")
	assert.Equal(t, []string{"bad heic"}, res.Warnings)
	assert.Empty(t, fr.callsTo("tesseract"))
}

func TestHeuristicConfidence(t *testing.T) {
	assert.InDelta(t, 0.2, heuristicConfidence(""), 1e-6)
	assert.InDelta(t, 0.2, heuristicConfidence("lorem ipsum"), 1e-6)

	full := "REPUBLIC OF UTOPIA PASSPORT NO: A1234567 SURNAME: DOE GIVEN NAMES: JOHN EXPIRY DATE 12/11/30 NATIONALITY UTOPIAN"
	assert.InDelta(t, 1.0, heuristicConfidence(full), 1e-6)

	assert.InDelta(t, 0.4, heuristicConfidence("DL 12/11/2030"), 1e-6)
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "", CleanText(""))
	assert.Equal(t, "A B\nC", CleanText("  A\t\tB   \r\nC  \n"))
	assert.Equal(t, "A\n\nB", CleanText("A\n====\n\n\n\nB"))
	assert.Equal(t, "05/09/23 O1", CleanText("05/09/23 O1"))
}

func TestMeanTSVConfidence(t *testing.T) {
	assert.Equal(t, float32(0), meanTSVConfidence(""))
	assert.Equal(t, float32(0), meanTSVConfidence("header\n1\t2\n"))
}
