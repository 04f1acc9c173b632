package monit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/template"

	"github.com/google/renameio/v2"
	"github.com/sirupsen/logrus"
)

// EnsureDirectories creates the config root, conf.d and var directories
func (i *Instance) EnsureDirectories() error {
	uid, gid, err := lookupIDs(i.Owner, i.Group)
	if err != nil {
		return err
	}
	for _, dir := range []string{i.Path, i.ConfdPath(), i.VarPath} {
		if err := os.MkdirAll(dir, DirMode); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		if err := os.Chmod(dir, DirMode); err != nil {
			return fmt.Errorf("chmod %s: %w", dir, err)
		}
		if err := chown(dir, uid, gid); err != nil {
			return err
		}
	}
	return nil
}

var configTemplate = template.Must(template.New("monitrc").Parse(`set daemon {{ .DaemonInterval }}
{{- if gt .DaemonDelay 0 }} with start delay {{ .DaemonDelay }}{{ end }}
set logfile syslog
set pidfile {{ .PidFile }}
set idfile {{ .VarPath }}/monit.id
set statefile {{ .VarPath }}/monit.state
set eventqueue basedir {{ .VarPath }}/events slots {{ .EventSlots }}
{{- if .HTTPDPort }}
{{ if .Socket }}set httpd unixsocket {{ .HTTPDPort }}{{ else }}set httpd port {{ .HTTPDPort }} and use address localhost{{ end }}
{{- if .Credentials }}
  include {{ .Credentials }}
{{- end }}
{{- end }}
include {{ .Confd }}/*
`))

// RenderConfig renders the main config from the instance settings. The
// httpd block includes the credentials file when a password is set.
func (i *Instance) RenderConfig() ([]byte, error) {
	data := struct {
		*Instance
		PidFile     string
		Socket      bool
		Credentials string
		Confd       string
	}{
		Instance: i,
		PidFile:  i.PidFile(),
		Socket:   i.HTTPDIsSocket(),
		Confd:    i.ConfdPath(),
	}
	if i.HTTPDPassword != "" {
		data.Credentials = i.CredentialsPath()
	}
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", ConfigFileName, err)
	}
	return buf.Bytes(), nil
}

// WriteConfig validates and atomically installs the main config file.
// It reports whether the file changed.
func (i *Instance) WriteConfig(ctx context.Context, content []byte) (bool, error) {
	return i.writeValidated(ctx, i.ConfigPath(), content)
}

// WriteCredentials writes the httpd credentials file included by the main config
func (i *Instance) WriteCredentials() (bool, error) {
	content := fmt.Sprintf("allow %s:%s\n", i.HTTPDUsername, i.HTTPDPassword)
	path := i.CredentialsPath()
	if same, err := sameContent(path, []byte(content)); err != nil || same {
		return false, err
	}
	uid, gid, err := lookupIDs(i.Owner, i.Group)
	if err != nil {
		return false, err
	}
	if err := renameio.WriteFile(path, []byte(content), FileMode); err != nil {
		return false, fmt.Errorf("writing credentials: %w", err)
	}
	return true, chown(path, uid, gid)
}

// WriteFragment validates and installs conf.d/<name>.conf, then asks the
// daemon to reload. A failed reload is logged, not returned.
func (i *Instance) WriteFragment(ctx context.Context, name string, content []byte) (bool, error) {
	path := i.FragmentPath(name)
	changed, err := i.writeValidated(ctx, path, content)
	if err != nil || !changed {
		return changed, err
	}
	i.reloadBestEffort(ctx, path)
	return true, nil
}

// DeleteFragment removes conf.d/<name>.conf and asks the daemon to reload
func (i *Instance) DeleteFragment(ctx context.Context, name string) (bool, error) {
	path := i.FragmentPath(name)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("removing %s: %w", path, err)
	}
	i.reloadBestEffort(ctx, path)
	return true, nil
}

func (i *Instance) reloadBestEffort(ctx context.Context, path string) {
	if err := i.Reload(ctx); err != nil {
		i.logger().WithError(err).WithField("path", path).Warn("reload after fragment change failed")
	}
}

// writeValidated stages content next to path, dry-runs it through the
// supervisor and only then renames it into place.
func (i *Instance) writeValidated(ctx context.Context, path string, content []byte) (bool, error) {
	same, err := sameContent(path, content)
	if err != nil {
		return false, err
	}
	if same {
		return false, nil
	}
	uid, gid, err := lookupIDs(i.Owner, i.Group)
	if err != nil {
		return false, err
	}

	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(FileMode))
	if err != nil {
		return false, fmt.Errorf("staging %s: %w", path, err)
	}
	defer func() {
		_ = pf.Cleanup()
	}()

	if _, err := pf.Write(content); err != nil {
		return false, fmt.Errorf("writing %s: %w", pf.Name(), err)
	}
	if err := pf.Chmod(FileMode); err != nil {
		return false, fmt.Errorf("chmod %s: %w", pf.Name(), err)
	}
	if uid >= 0 || gid >= 0 {
		if err := pf.Chown(uid, gid); err != nil {
			return false, fmt.Errorf("chown %s: %w", pf.Name(), err)
		}
	}
	if err := i.Validate(ctx, pf.Name()); err != nil {
		i.logger().WithError(err).WithField("path", path).Error("config rejected, keeping previous content")
		return false, err
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return false, fmt.Errorf("replacing %s: %w", path, err)
	}
	i.logger().WithFields(logrus.Fields{"path": path, "bytes": len(content)}).Info("config written")
	return true, nil
}

func sameContent(path string, content []byte) (bool, error) {
	existing, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", path, err)
	}
	return bytes.Equal(existing, content), nil
}

func chown(path string, uid, gid int) error {
	if uid < 0 && gid < 0 {
		return nil
	}
	if err := os.Lchown(path, uid, gid); err != nil {
		return fmt.Errorf("chown %s: %w", path, err)
	}
	return nil
}
