package ocr

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

type ctxKey string

const ctxKeyContentHash ctxKey = "ocr.content_hash_hex"

// WithContentHash attaches the file's hex SHA-256 so converted artifacts can be cached.
func WithContentHash(ctx context.Context, hex string) context.Context {
	return context.WithValue(ctx, ctxKeyContentHash, hex)
}

func contentHashFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ctxKeyContentHash).(string)
	return v, ok && v != ""
}

// converterArgs returns the command line that turns in into a PNG at out.
func converterArgs(converter, in, out string) (string, []string, error) {
	switch converter {
	case "heif-convert":
		return "heif-convert", []string{in, out}, nil
	case "magick":
		return "magick", []string{in, out}, nil
	case "sips":
		return "sips", []string{"-s", "format", "png", in, "--out", out}, nil
	}
	return "", nil, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")
}

// convertHEICtoPNG converts a HEIC/HEIF photo to PNG.
// With cacheDir and hashHex set, the PNG lives at {cacheDir}/{hashHex}.png and
// is reused on later calls; cleanup is nil then. Otherwise the PNG is written
// to a temp dir that cleanup removes.
func convertHEICtoPNG(ctx context.Context, r Runner, logger *slog.Logger, converter, in, cacheDir, hashHex string) (string, []string, func(), error) {
	cached := ""
	if cacheDir != "" && hashHex != "" {
		cached = filepath.Join(cacheDir, hashHex+".png")
		if st, err := os.Stat(cached); err == nil && !st.IsDir() {
			logger.Debug("using cached heic->png", "cache", cached)
			return cached, nil, nil, nil
		}
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			return "", nil, nil, fmt.Errorf("create artifact cache: %w", err)
		}
	}

	if _, _, err := converterArgs(converter, in, ""); err != nil {
		return "", nil, nil, err
	}

	tmpDir, err := os.MkdirTemp("", "idscan-heic-*")
	if err != nil {
		return "", nil, nil, err
	}
	cleanup := func() { _ = os.RemoveAll(tmpDir) }
	out := filepath.Join(tmpDir, "page.png")
	name, args, _ := converterArgs(converter, in, out)

	if _, errb, err := r.Run(ctx, name, logger, args...); err != nil {
		cleanup()
		return "", nonEmpty(string(errb)), nil, fmt.Errorf("%s failed: %w", name, err)
	}
	if _, err := os.Stat(out); err != nil {
		cleanup()
		return "", nil, nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}

	if cached == "" {
		return out, nil, cleanup, nil
	}
	defer cleanup()
	if err := persistArtifact(out, cached); err != nil {
		return "", nil, nil, fmt.Errorf("cache heic->png: %w", err)
	}
	logger.Debug("cached heic->png", "cache", cached)
	return cached, nil, nil, nil
}

// persistArtifact moves src to dst, falling back to a copy across devices.
// An existing dst written by a concurrent conversion is kept.
func persistArtifact(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if st, err := os.Stat(dst); err == nil && !st.IsDir() {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	outF, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(outF, in); err != nil {
		_ = outF.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := outF.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
