package monit

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/sirupsen/logrus"
)

// FetchFunc opens a remote archive for reading
type FetchFunc func(ctx context.Context, url string) (io.ReadCloser, error)

// Download retry settings
const (
	fetchMaxRetries = 3
	fetchBaseDelay  = 1 * time.Second
	fetchMaxDelay   = 10 * time.Second
)

// NewHTTPFetch returns a FetchFunc that retries network errors and 5xx responses
func NewHTTPFetch(client *http.Client, logger logrus.FieldLogger) FetchFunc {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	policy := retrypolicy.NewBuilder[*http.Response]().
		HandleIf(func(_ *http.Response, err error) bool {
			return err != nil && !errors.Is(err, errPermanentFetch)
		}).
		WithBackoff(fetchBaseDelay, fetchMaxDelay).
		WithMaxRetries(fetchMaxRetries).
		ReturnLastFailure().
		Build()

	return func(ctx context.Context, url string) (io.ReadCloser, error) {
		resp, err := failsafe.With(policy).WithContext(ctx).Get(func() (*http.Response, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", errPermanentFetch, err)
			}
			resp, err := client.Do(req)
			if err != nil {
				logger.WithError(err).WithField("url", url).Debug("download attempt failed")
				return nil, err
			}
			switch {
			case resp.StatusCode == http.StatusOK:
				return resp, nil
			case resp.StatusCode >= 500:
				_ = resp.Body.Close()
				logger.WithFields(logrus.Fields{"url": url, "status": resp.StatusCode}).Debug("download attempt failed")
				return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
			default:
				_ = resp.Body.Close()
				return nil, fmt.Errorf("%w: GET %s: HTTP %d", errPermanentFetch, url, resp.StatusCode)
			}
		})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	}
}

var errPermanentFetch = errors.New("download failed")

type archiveInstaller struct {
	strategy Strategy
	fetch    FetchFunc
	log      logrus.FieldLogger
}

func (a *archiveInstaller) Binary() string {
	return a.strategy.Binary
}

func (a *archiveInstaller) Install(ctx context.Context) error {
	if _, err := os.Stat(a.strategy.Binary); err == nil {
		a.log.WithField("binary", a.strategy.Binary).Debug("archive already installed")
		return nil
	}

	parent := filepath.Dir(a.strategy.InstallDir)
	if err := os.MkdirAll(parent, ExecMode); err != nil {
		return fmt.Errorf("creating %s: %w", parent, err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(a.strategy.InstallDir)+"-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmp)
	}()

	a.log.WithField("url", a.strategy.URL).Info("downloading archive")
	body, err := a.fetch(ctx, a.strategy.URL)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", a.strategy.URL, err)
	}
	defer func() { _ = body.Close() }()

	if err := extractTarGz(body, tmp, 1); err != nil {
		return fmt.Errorf("extracting %s: %w", a.strategy.URL, err)
	}
	rel, err := filepath.Rel(a.strategy.InstallDir, a.strategy.Binary)
	if err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(tmp, rel)); err != nil {
		return fmt.Errorf("archive %s has no %s: %w", a.strategy.URL, rel, err)
	}
	// MkdirTemp creates 0700; the install root must be traversable by a non-root owner
	if err := os.Chmod(tmp, ExecMode); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmp, err)
	}
	if err := os.RemoveAll(a.strategy.InstallDir); err != nil {
		return fmt.Errorf("removing stale %s: %w", a.strategy.InstallDir, err)
	}
	if err := os.Rename(tmp, a.strategy.InstallDir); err != nil {
		return fmt.Errorf("installing %s: %w", a.strategy.InstallDir, err)
	}
	a.log.WithField("binary", a.strategy.Binary).Info("archive installed")
	return nil
}

func (a *archiveInstaller) Uninstall(_ context.Context) error {
	if err := os.RemoveAll(a.strategy.InstallDir); err != nil {
		return fmt.Errorf("removing %s: %w", a.strategy.InstallDir, err)
	}
	return nil
}

// extractTarGz unpacks r into dest, dropping the first strip path components
// of every entry. Entries that would land outside dest are rejected.
func extractTarGz(r io.Reader, dest string, strip int) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to decompress: %w", err)
	}
	defer func() { _ = gz.Close() }()

	root := filepath.Clean(dest) + string(os.PathSeparator)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("tar read error: %w", err)
		}

		parts := strings.Split(strings.Trim(path.Clean(hdr.Name), "/"), "/")
		if parts[0] == ".." {
			return fmt.Errorf("entry %q escapes destination", hdr.Name)
		}
		if len(parts) <= strip {
			continue
		}
		target := filepath.Join(dest, filepath.FromSlash(strings.Join(parts[strip:], "/")))
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, ExecMode); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, hdr.FileInfo().Mode().Perm()); err != nil {
				return err
			}
		case tar.TypeSymlink:
			link := filepath.Join(filepath.Dir(target), hdr.Linkname)
			if filepath.IsAbs(hdr.Linkname) || !strings.HasPrefix(link, root) {
				return fmt.Errorf("symlink %q escapes destination", hdr.Name)
			}
			if err := os.MkdirAll(filepath.Dir(target), ExecMode); err != nil {
				return err
			}
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func writeEntry(r io.Reader, target string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), ExecMode); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
