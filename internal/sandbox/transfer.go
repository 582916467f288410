package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var errNotPersistent = errors.New("operation requires a persistent session")

// Upload copies a local file into the session filesystem. remotePath defaults
// to the file's base name under the working directory. Persistent sessions
// only: an ephemeral runtime has no durable filesystem worth populating.
func Upload(ctx context.Context, mgr Manager, sess *Session, localPath, remotePath string) error {
	if sess.Mode() != ModePersistent {
		return &TransferError{Op: "upload", Path: localPath, Err: errNotPersistent}
	}
	containerID, err := sess.acquire(ctx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return &TransferError{Op: "upload", Path: localPath, Err: err}
	}

	if remotePath == "" {
		remotePath = filepath.Join(workDir, filepath.Base(localPath))
	}
	destDir := filepath.Dir(remotePath)

	// Docker extracts the archive into an existing directory, so create
	// intermediate directories through the exec gate first.
	if destDir != "/" && destDir != workDir {
		if out, execErr := mgr.Exec(ctx, containerID, []string{"mkdir", "-p", destDir}); execErr != nil {
			return &TransferError{Op: "upload", Path: remotePath, Err: execErr}
		} else if out.ExitCode != 0 {
			return &TransferError{Op: "upload", Path: remotePath, Err: fmt.Errorf("mkdir %s: %s", destDir, strings.TrimSpace(out.Output))}
		}
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr := &tar.Header{
		Name: filepath.Base(remotePath),
		Mode: 0o644,
		Size: int64(len(data)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	if _, err := tw.Write(data); err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	if err := tw.Close(); err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}

	if err := mgr.CopyTo(ctx, containerID, destDir, &buf); err != nil {
		return &TransferError{Op: "upload", Path: remotePath, Err: err}
	}
	sess.touch()
	return nil
}

// Download copies a file out of the session filesystem. localPath defaults to
// the remote base name in the current directory.
func Download(ctx context.Context, mgr Manager, sess *Session, remotePath, localPath string) error {
	if sess.Mode() != ModePersistent {
		return &TransferError{Op: "download", Path: remotePath, Err: errNotPersistent}
	}
	containerID, err := sess.acquire(ctx)
	if err != nil {
		return err
	}

	reader, err := mgr.CopyFrom(ctx, containerID, remotePath)
	if err != nil {
		return &TransferError{Op: "download", Path: remotePath, Err: err}
	}
	defer reader.Close()

	if localPath == "" {
		localPath = filepath.Base(remotePath)
	}

	data, err := extractSingleFile(reader, filepath.Base(remotePath))
	if err != nil {
		return &TransferError{Op: "download", Path: remotePath, Err: err}
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return &TransferError{Op: "download", Path: localPath, Err: err}
	}
	sess.touch()
	return nil
}

// List returns the entries of a directory in the session filesystem.
func List(ctx context.Context, mgr Manager, sess *Session, dir string) ([]string, error) {
	if sess.Mode() != ModePersistent {
		return nil, &TransferError{Op: "list", Path: dir, Err: errNotPersistent}
	}
	containerID, err := sess.acquire(ctx)
	if err != nil {
		return nil, err
	}

	if dir == "" {
		dir = workDir
	}
	outcome, err := mgr.Exec(ctx, containerID, []string{"ls", "-1A", dir})
	if err != nil {
		return nil, &TransferError{Op: "list", Path: dir, Err: err}
	}
	if outcome.ExitCode != 0 {
		return nil, &TransferError{Op: "list", Path: dir, Err: fmt.Errorf("ls exited %d: %s", outcome.ExitCode, strings.TrimSpace(outcome.Output))}
	}
	sess.touch()

	var entries []string
	for _, line := range strings.Split(outcome.Output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			entries = append(entries, line)
		}
	}
	return entries, nil
}

// extractSingleFile pulls one regular file out of a Docker copy tar stream.
func extractSingleFile(r io.Reader, name string) ([]byte, error) {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("file %q not found in archive", name)
		}
		if err != nil {
			return nil, fmt.Errorf("read tar archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if filepath.Base(hdr.Name) != name {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("read tar entry %q: %w", hdr.Name, err)
		}
		return data, nil
	}
}
