// Package engine drives the containerised matching engine through the
// docker exec API.
package engine

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/pkg/errors"
)

const (
	workDir      = "/tmp/reconciler"
	requestName  = "request.json"
	responseName = "response.json"
)

type Client struct {
	Runner        Runner
	ContainerName string
	Bin           string
	Timeout       time.Duration
}

func NewClient(r Runner, containerName, bin string, timeout time.Duration) *Client {
	if bin == "" {
		bin = "recon-engine"
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		Runner:        r,
		ContainerName: containerName,
		Bin:           bin,
		Timeout:       timeout,
	}
}

// Reconcile uploads a serialized match request under a per-job directory,
// runs the engine on it and returns the serialized response.
func (c *Client) Reconcile(ctx context.Context, jobID string, request []byte) ([]byte, error) {
	dir := path.Join(workDir, jobID)
	reqPath := path.Join(dir, requestName)
	outPath := path.Join(dir, responseName)

	if res, err := c.Runner.Sh(ctx, c.ContainerName, "mkdir -p "+dir, WithTimeout(10*time.Second)); err != nil {
		return nil, errors.Wrap(err, "mkdir work dir")
	} else if res.ExitCode != 0 {
		return nil, errors.Errorf("mkdir work dir failed (%d): %s", res.ExitCode, res.Output())
	}
	defer c.cleanup(dir)

	if err := c.Runner.CopyTo(ctx, c.ContainerName, dir, request, requestName); err != nil {
		return nil, errors.Wrap(err, "upload request")
	}

	cmd := []string{c.Bin, "reconcile", "--request", reqPath, "--output", outPath}
	res, err := c.Runner.Exec(ctx, c.ContainerName, cmd, WithWorkDir(dir), WithTimeout(c.Timeout))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("reconcile failed (%d): %s", res.ExitCode, res.Output())
	}
	return c.Runner.CopyFrom(ctx, c.ContainerName, outPath)
}

// cleanup runs detached from the request context so a cancelled job still
// frees its work dir.
func (c *Client) cleanup(dir string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, _ = c.Runner.Sh(ctx, c.ContainerName, "rm -rf "+dir)
}
