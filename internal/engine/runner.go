package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
)

type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Output joins stdout and stderr for error reporting.
func (r *ExecResult) Output() string {
	return r.Stdout + r.Stderr
}

type execOptions struct {
	Env     []string
	WorkDir string
	Timeout time.Duration
}

type ExecOpt func(*execOptions)

// Runner executes commands and moves files in a running container.
type Runner interface {
	Exec(ctx context.Context, containerName string, cmd []string, opts ...ExecOpt) (*ExecResult, error)
	Sh(ctx context.Context, containerName, script string, opts ...ExecOpt) (*ExecResult, error)
	CopyFrom(ctx context.Context, containerName, filePath string) ([]byte, error)
	CopyTo(ctx context.Context, containerName, dstDir string, content []byte, filename string) error
}

func WithEnv(env ...string) ExecOpt {
	return func(o *execOptions) { o.Env = append(o.Env, env...) }
}

func WithWorkDir(dir string) ExecOpt {
	return func(o *execOptions) { o.WorkDir = dir }
}

func WithTimeout(d time.Duration) ExecOpt {
	return func(o *execOptions) { o.Timeout = d }
}

type dockerRunner struct {
	cli *client.Client
}

func NewDockerRunner(cli *client.Client) Runner {
	return &dockerRunner{cli: cli}
}

// NewDockerClient connects to the daemon configured in the environment.
func NewDockerClient() (*client.Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "docker client")
	}
	return cli, nil
}

func (d *dockerRunner) CopyFrom(ctx context.Context, containerName, filePath string) ([]byte, error) {
	reader, _, err := d.cli.CopyFromContainer(ctx, containerName, filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "copy %s from container", filePath)
	}
	defer reader.Close()
	return untarFirst(reader, filePath)
}

func (d *dockerRunner) CopyTo(ctx context.Context, containerName, dstDir string, content []byte, filename string) error {
	archive, err := tarFile(filename, content)
	if err != nil {
		return err
	}
	if err := d.cli.CopyToContainer(ctx, containerName, dstDir, archive, container.CopyToContainerOptions{}); err != nil {
		return errors.Wrapf(err, "copy %s to container", filename)
	}
	return nil
}

func (d *dockerRunner) Exec(ctx context.Context, containerName string, cmd []string, opts ...ExecOpt) (*ExecResult, error) {
	o := &execOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	created, err := d.cli.ContainerExecCreate(ctx, containerName, container.ExecOptions{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		Env:          o.Env,
		WorkingDir:   o.WorkDir,
	})
	if err != nil {
		return nil, errors.Wrap(err, "exec create")
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "exec attach")
	}
	defer attach.Close()

	var outBuf, errBuf bytes.Buffer
	outputDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&outBuf, &errBuf, attach.Reader)
		outputDone <- copyErr
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err = <-outputDone:
		if err != nil {
			return nil, errors.Wrap(err, "exec stream")
		}
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, errors.Wrap(err, "exec inspect")
	}
	return &ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   outBuf.String(),
		Stderr:   errBuf.String(),
	}, nil
}

func (d *dockerRunner) Sh(ctx context.Context, containerName, script string, opts ...ExecOpt) (*ExecResult, error) {
	return d.Exec(ctx, containerName, []string{"sh", "-lc", script}, opts...)
}

// tarFile wraps one file in a tar stream, the format the copy API expects.
func tarFile(name string, content []byte) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}); err != nil {
		return nil, errors.Wrap(err, "tar write header")
	}
	if _, err := tw.Write(content); err != nil {
		return nil, errors.Wrap(err, "tar write content")
	}
	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "tar close")
	}
	return &buf, nil
}

// untarFirst returns the content of the first entry of a tar stream. The
// daemon sometimes prefixes entry names with the directory, so names are
// not checked.
func untarFirst(r io.Reader, filePath string) ([]byte, error) {
	tr := tar.NewReader(r)
	if _, err := tr.Next(); err != nil {
		if err == io.EOF {
			return nil, errors.Errorf("empty archive for %s", filePath)
		}
		return nil, errors.Wrap(err, "tar read header")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, tr); err != nil {
		return nil, errors.Wrap(err, "tar read file")
	}
	return buf.Bytes(), nil
}
