package workspace

import (
	"bytes"
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Sandbox runs a post-merge verification command (a build/test command
// configured per strand) inside an ephemeral, network-isolated
// container, scoped to "does the merged base branch still build" rather
// than arbitrary tool calls.
type Sandbox struct {
	client      *client.Client
	image       string
	memoryMB    int64
	networkMode string
}

// NewSandbox constructs a Sandbox. image defaults to "golang:alpine" and
// memoryMB to 512 when zero.
func NewSandbox(image string, memoryMB int64) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	if image == "" {
		image = "golang:alpine"
	}
	if memoryMB <= 0 {
		memoryMB = 512
	}
	return &Sandbox{client: cli, image: image, memoryMB: memoryMB * 1024 * 1024, networkMode: "none"}, nil
}

// VerifyResult is the outcome of a sandboxed post-merge check.
type VerifyResult struct {
	Passed   bool   `json:"passed"`
	ExitCode int    `json:"exitCode"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
}

// VerifyMergedWorkspace runs cmd against the strand workspace's base
// branch checkout after a merge, so a broken merge can be flagged before
// a retry attempt is wasted on it.
func (s *Sandbox) VerifyMergedWorkspace(ctx context.Context, workspaceDir, cmd string) (VerifyResult, error) {
	resp, err := s.client.ContainerCreate(ctx, &container.Config{
		Image:      s.image,
		Cmd:        []string{"sh", "-c", cmd},
		WorkingDir: "/workspace",
		Tty:        false,
	}, &container.HostConfig{
		Resources:   container.Resources{Memory: s.memoryMB},
		NetworkMode: container.NetworkMode(s.networkMode),
		Binds:       []string{fmt.Sprintf("%s:/workspace", workspaceDir)},
		AutoRemove:  true,
	}, nil, nil, "")
	if err != nil {
		return VerifyResult{}, fmt.Errorf("create container: %w", err)
	}
	containerID := resp.ID

	if err := s.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return VerifyResult{}, fmt.Errorf("start container: %w", err)
	}

	statusCh, errCh := s.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	var exitCode int
	select {
	case err := <-errCh:
		return VerifyResult{}, fmt.Errorf("wait container: %w", err)
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case <-ctx.Done():
		_ = s.client.ContainerKill(ctx, containerID, "SIGKILL")
		return VerifyResult{}, ctx.Err()
	}

	out, err := s.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return VerifyResult{ExitCode: exitCode}, fmt.Errorf("get logs: %w", err)
	}
	defer out.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	_, _ = stdcopy.StdCopy(&stdoutBuf, &stderrBuf, out)

	return VerifyResult{
		Passed:   exitCode == 0,
		ExitCode: exitCode,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
	}, nil
}

func (s *Sandbox) Close() error {
	return s.client.Close()
}
