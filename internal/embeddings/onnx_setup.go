//go:build cgo

package embeddings

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"go.uber.org/zap"
)

// DefaultONNXRuntimeVersion is the runtime release fastembed-go is built against.
const DefaultONNXRuntimeVersion = "1.23.0"

const onnxReleaseURL = "https://github.com/microsoft/onnxruntime/releases/download/v%[1]s/onnxruntime-%[2]s-%[1]s.tgz"

// ErrUnsupportedPlatform is returned for a GOOS/GOARCH without a runtime build.
var ErrUnsupportedPlatform = errors.New("unsupported platform")

// onnxInstall describes one runtime release unpacked into dir.
type onnxInstall struct {
	dir      string
	version  string
	platform string // release archive suffix, e.g. linux-x64
	lib      string // shared library file name
	release  string // download URL format, see onnxReleaseURL
}

func newONNXInstall(dir, version, goos, goarch string) (onnxInstall, error) {
	platforms := map[string]string{
		"linux/amd64":  "linux-x64",
		"linux/arm64":  "linux-aarch64",
		"darwin/amd64": "osx-x86_64",
		"darwin/arm64": "osx-arm64",
	}
	platform, ok := platforms[goos+"/"+goarch]
	if !ok {
		return onnxInstall{}, fmt.Errorf("%w: %s/%s", ErrUnsupportedPlatform, goos, goarch)
	}
	lib := "libonnxruntime.so"
	if goos == "darwin" {
		lib = "libonnxruntime.dylib"
	}
	if version == "" {
		version = DefaultONNXRuntimeVersion
	}
	return onnxInstall{dir: dir, version: version, platform: platform, lib: lib, release: onnxReleaseURL}, nil
}

func (i onnxInstall) url() string {
	return fmt.Sprintf(i.release, i.version, i.platform)
}

func (i onnxInstall) libraryPath() string {
	return filepath.Join(i.dir, i.lib)
}

// onnxInstallDir is where `vecfs setup` and the daemon keep the runtime.
func onnxInstallDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".config", "vecfs", "lib")
}

// GetONNXLibraryPath returns ONNX_PATH when set, else the managed install
// when present, else "".
func GetONNXLibraryPath() string {
	if p := os.Getenv("ONNX_PATH"); p != "" {
		return p
	}
	inst, err := newONNXInstall(onnxInstallDir(), "", runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return ""
	}
	if _, err := os.Stat(inst.libraryPath()); err != nil {
		return ""
	}
	return inst.libraryPath()
}

// DownloadONNXRuntime installs the runtime for this platform into the
// managed directory. An empty version means DefaultONNXRuntimeVersion.
func DownloadONNXRuntime(ctx context.Context, version string) error {
	inst, err := newONNXInstall(onnxInstallDir(), version, runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return err
	}
	return inst.download(ctx, http.DefaultClient)
}

func (i onnxInstall) download(ctx context.Context, client *http.Client) error {
	if err := os.MkdirAll(i.dir, 0700); err != nil {
		return fmt.Errorf("creating %s: %w", i.dir, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.url(), nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading ONNX runtime: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading ONNX runtime: status %d", resp.StatusCode)
	}
	if err := i.extract(resp.Body); err != nil {
		return fmt.Errorf("extracting ONNX runtime: %w", err)
	}
	return nil
}

// extract copies the lib/ directory of a release tarball into i.dir,
// keeping its symlinks. It fails unless the shared library was among them.
func (i onnxInstall) extract(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()

	prefix := fmt.Sprintf("onnxruntime-%s-%s/lib/", i.platform, i.version)
	found := false
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		name := strings.TrimPrefix(hdr.Name, "./")
		if !strings.HasPrefix(name, prefix) || hdr.Typeflag == tar.TypeDir {
			continue
		}
		base := filepath.Base(name)
		dest := filepath.Join(i.dir, base)

		switch hdr.Typeflag {
		case tar.TypeSymlink:
			_ = os.Remove(dest)
			if err := os.Symlink(hdr.Linkname, dest); err != nil {
				continue
			}
		case tar.TypeReg:
			if err := writeFile(dest, tr); err != nil {
				return err
			}
		default:
			continue
		}
		if base == i.lib || strings.HasPrefix(base, i.lib+".") {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%s not found in archive", i.lib)
	}
	return nil
}

func writeFile(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// EnsureONNXRuntime returns the runtime library path, downloading the
// runtime first when neither ONNX_PATH nor the managed install exists. It
// sets ONNX_PATH for fastembed-go.
func EnsureONNXRuntime(ctx context.Context, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if path := GetONNXLibraryPath(); path != "" {
		return path, nil
	}

	logger.Info("onnx runtime not found, downloading",
		zap.String("version", DefaultONNXRuntimeVersion),
		zap.String("platform", runtime.GOOS+"/"+runtime.GOARCH))
	if err := DownloadONNXRuntime(ctx, ""); err != nil {
		return "", fmt.Errorf("installing ONNX runtime (set ONNX_PATH to use an existing one): %w", err)
	}
	path := GetONNXLibraryPath()
	if path == "" {
		return "", errors.New("ONNX runtime installed but library not found")
	}
	if err := os.Setenv("ONNX_PATH", path); err != nil {
		return "", err
	}
	logger.Info("onnx runtime installed", zap.String("path", path))
	return path, nil
}
