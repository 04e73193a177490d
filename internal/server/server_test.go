package server

import (
	"context"
	"encoding/base64"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/idscan/internal/core"
	"github.com/joseph-ayodele/idscan/internal/core/identity"
	"github.com/joseph-ayodele/idscan/internal/core/ocr"
	"github.com/joseph-ayodele/idscan/internal/export"
	"github.com/joseph-ayodele/idscan/internal/ingest"
	"github.com/joseph-ayodele/idscan/internal/repository"
)

// scriptedOCR returns canned text keyed by file name.
type scriptedOCR struct {
	mu    sync.Mutex
	texts map[string]string
}

func (s *scriptedOCR) Extract(_ context.Context, path string) (ocr.ExtractionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.texts[filepath.Base(path)]
	if !ok {
		return ocr.ExtractionResult{}, errors.New("tesseract: empty page")
	}
	return ocr.ExtractionResult{Text: text, Method: "image-ocr", Confidence: 0.9}, nil
}

type testEnv struct {
	client *ScannerClient
	conn   *grpc.ClientConn
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Config{DSN: repository.MemoryDSN}, nil)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	files := repository.NewScanFileRepository(db, nil)
	jobs := repository.NewExtractJobRepository(db, nil)
	docs := repository.NewDocumentRepository(db, nil)

	recognizer := &scriptedOCR{texts: map[string]string{
		"passport.png": "PASSPORT NO: A1234567\nSURNAME: DOE GIVEN NAMES: JOHN\nEXPIRY DATE 12/11/30",
		"license.jpg":  "MH32300011066\nName: Rahul Sharma 12-05-1990\nValidity: 11-05-2035",
	}}
	clock := identity.ClockFunc(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) })
	proc := core.NewProcessor(nil, recognizer, identity.NewEngine(identity.WithClock(clock)), files, jobs, docs)

	svc := NewScannerService(proc, ingest.NewFSIngestor(files, nil), docs, nil,
		WithExporter(export.NewService(docs, nil)))

	lis := bufconn.Listen(1 << 20)
	gs, _ := NewGRPCServer(svc, nil)
	go func() { _ = gs.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		gs.Stop()
		_ = db.Close()
	})

	dir := t.TempDir()
	for _, name := range []string{"passport.png", "license.jpg", "blurry.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("image:"+name), 0o600))
	}
	return &testEnv{client: NewScannerClient(conn), conn: conn, dir: dir}
}

func TestExtractText(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.client.Call(ctx, MethodExtractText, map[string]any{
		"text":          "PASSPORT NO: A1234567 EXPIRY DATE 12/11/30",
		"document_type": "passport",
	})
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, "A1234567", m["document_number"])
	assert.Equal(t, "Not Found", m["name"])
	assert.Equal(t, true, m["needs_review"])
	assert.Equal(t, "passport", m["document_type"])
}

func TestExtractText_EmptyTextYieldsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, fields := range []map[string]any{
		{"document_type": "license"},
		{"text": "", "document_type": "license"},
		{"text": "  \n ", "document_type": "passport"},
	} {
		out, err := env.client.Call(ctx, MethodExtractText, fields)
		require.NoError(t, err)
		m := out.AsMap()
		assert.Equal(t, "Not Found", m["name"])
		assert.Equal(t, "Not Found", m["document_number"])
		assert.Equal(t, "Not Found", m["expiration_date"])
		assert.Equal(t, true, m["needs_review"])
	}
}

func TestExtractText_InvalidArgument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{"unknown type", map[string]any{"text": "X", "document_type": "visa"}},
		{"missing type", map[string]any{"text": "X"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.Call(ctx, MethodExtractText, tt.fields)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestScanFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.client.Call(ctx, MethodScanFile, map[string]any{
		"path":          filepath.Join(env.dir, "license.jpg"),
		"document_type": "license",
	})
	require.NoError(t, err)
	m := out.AsMap()
	assert.NotEmpty(t, m["file_id"])
	assert.Equal(t, false, m["deduplicated"])
	assert.Equal(t, false, m["needs_review"])
	assert.NotContains(t, m, "error")
	result := m["result"].(map[string]any)
	assert.Equal(t, "MH32300011066", result["document_number"])
	assert.Equal(t, "RAHUL SHARMA", result["name"])
	assert.Equal(t, "2035-05-11", result["expiration_date"])

	again, err := env.client.Call(ctx, MethodScanFile, map[string]any{
		"path":          filepath.Join(env.dir, "license.jpg"),
		"document_type": "license",
	})
	require.NoError(t, err)
	assert.Equal(t, true, again.AsMap()["deduplicated"])
	assert.Equal(t, m["file_id"], again.AsMap()["file_id"])
}

func TestScanFile_OCRFailure(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.client.Call(context.Background(), MethodScanFile, map[string]any{
		"path":          filepath.Join(env.dir, "blurry.png"),
		"document_type": "passport",
	})
	require.NoError(t, err)
	m := out.AsMap()
	assert.Equal(t, ScanFailedMessage, m["error"])
	assert.NotContains(t, m, "result")
}

func TestScanFile_InvalidArgument(t *testing.T) {
	env := newTestEnv(t)
	notes := filepath.Join(env.dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o600))

	for _, path := range []string{"", notes, filepath.Join(env.dir, "missing.png")} {
		_, err := env.client.Call(context.Background(), MethodScanFile, map[string]any{
			"path":          path,
			"document_type": "passport",
		})
		assert.Equal(t, codes.InvalidArgument, status.Code(err), path)
	}
}

func TestScanDirectoryListAndExport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	out, err := env.client.Call(ctx, MethodScanDirectory, map[string]any{
		"root":          env.dir,
		"document_type": "passport",
	})
	require.NoError(t, err)
	m := out.AsMap()
	assert.EqualValues(t, 3, m["matched"])
	assert.EqualValues(t, 2, m["queued"])
	assert.Len(t, m["results"], 3)

	list, err := env.client.Call(ctx, MethodListDocuments, map[string]any{"document_type": "passport"})
	require.NoError(t, err)
	docs := list.AsMap()["documents"].([]any)
	require.Len(t, docs, 2)
	numbers := []any{docs[0].(map[string]any)["document_number"], docs[1].(map[string]any)["document_number"]}
	assert.Contains(t, numbers, "A1234567")

	limited, err := env.client.Call(ctx, MethodListDocuments, map[string]any{"limit": 1})
	require.NoError(t, err)
	assert.Len(t, limited.AsMap()["documents"], 1)

	huge, err := env.client.Call(ctx, MethodListDocuments, map[string]any{"limit": 1e20})
	require.NoError(t, err)
	assert.Len(t, huge.AsMap()["documents"], 2)

	_, err = env.client.Call(ctx, MethodListDocuments, map[string]any{"limit": -3})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	exp, err := env.client.Call(ctx, MethodExportDocuments, map[string]any{})
	require.NoError(t, err)
	data, err := base64.StdEncoding.DecodeString(exp.AsMap()["xlsx_base64"].(string))
	require.NoError(t, err)
	assert.Equal(t, "PK", string(data[:2]))
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), RequestIDHeader, "req-42")

	var header metadata.MD
	_, err := env.client.Call(ctx, MethodExtractText, map[string]any{
		"text":          "DL NO: TN0719980012",
		"document_type": "license",
	}, grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(RequestIDHeader))
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, err := healthpb.NewHealthClient(env.conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ScannerServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestDocumentFilter_ClampsLimit(t *testing.T) {
	tests := []struct {
		limit float64
		want  int
	}{
		{0, 0},
		{25, 25},
		{1000, 1000},
		{5000, 1000},
		{1e20, 1000},
	}
	for _, tt := range tests {
		in, err := structpb.NewStruct(map[string]any{"limit": tt.limit})
		require.NoError(t, err)
		f, err := documentFilter(in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, f.Limit, tt.limit)
	}
}
