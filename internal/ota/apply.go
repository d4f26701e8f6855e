package ota

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

const maxImageSize = 64 << 20

// ExecApplier downloads the image into StagingDir and re-executes the
// process from it.
type ExecApplier struct {
	StagingDir string
	Client     *http.Client
	Args       []string

	exec func(path string, argv, env []string) error
}

func NewExecApplier(stagingDir string) *ExecApplier {
	return &ExecApplier{
		StagingDir: stagingDir,
		Client:     &http.Client{Timeout: 5 * time.Minute},
		Args:       os.Args[1:],
		exec:       syscall.Exec,
	}
}

func (a *ExecApplier) Apply(ctx context.Context, m Manifest) error {
	path, err := a.download(ctx, m)
	if err != nil {
		return err
	}
	argv := append([]string{path}, a.Args...)
	if err := a.exec(path, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", path, err)
	}
	return nil
}

func (a *ExecApplier) download(ctx context.Context, m Manifest) (string, error) {
	if err := os.MkdirAll(a.StagingDir, 0o755); err != nil {
		return "", fmt.Errorf("staging dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	resp, err := a.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download image: status %d", resp.StatusCode)
	}

	final := filepath.Join(a.StagingDir, FirmwareType+"-"+m.Version)
	tmp, err := os.CreateTemp(a.StagingDir, ".image-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(resp.Body, maxImageSize+1))
	if err == nil && n > maxImageSize {
		err = fmt.Errorf("image larger than %d bytes", maxImageSize)
	}
	if err == nil && n == 0 {
		err = fmt.Errorf("empty image")
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", err
	}
	return final, nil
}
