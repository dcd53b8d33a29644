package runtime

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
)

// SandboxImage is the default image used for session containers, the same
// naming convention the teacher used for its IPython kernel image.
const SandboxImage = "agentcore-sandbox:latest"

// Sandbox runs commands and file operations inside a per-session Docker
// container via `docker exec`, generalizing the teacher's single-purpose
// IPython-over-HTTP manager into a generic Runtime.
type Sandbox struct {
	cli       *client.Client
	sessionID string
	root      string
	image     string
}

var _ Runtime = (*Sandbox)(nil)

// NewSandbox creates a Docker-backed Runtime for sessionID. The container is
// created lazily on first Exec/filesystem call.
func NewSandbox(sessionID, root string) (*Sandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if root == "" {
		root = "/workspace"
	}
	return &Sandbox{cli: cli, sessionID: sessionID, root: root, image: SandboxImage}, nil
}

func (s *Sandbox) RootDir() string { return s.root }

func (s *Sandbox) Close() error {
	return s.cli.Close()
}

func (s *Sandbox) containerName() string {
	return fmt.Sprintf("session-%s", s.sessionID)
}

// Stop force-removes the session's container.
func (s *Sandbox) Stop(ctx context.Context) error {
	return s.cli.ContainerRemove(ctx, s.containerName(), dockertypes.ContainerRemoveOptions{Force: true})
}

func (s *Sandbox) ensureRunning(ctx context.Context) error {
	name := s.containerName()
	c, err := s.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return s.createAndStart(ctx)
		}
		return fmt.Errorf("failed to inspect container: %w", err)
	}
	if c.State.Running {
		return nil
	}
	if err := s.cli.ContainerStart(ctx, name, dockertypes.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}
	return nil
}

func (s *Sandbox) createAndStart(ctx context.Context) error {
	if _, _, err := s.cli.ImageInspectWithRaw(ctx, s.image); err != nil {
		return fmt.Errorf("sandbox image %q not found: %w", s.image, err)
	}

	cfg := &container.Config{
		Image:      s.image,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: s.root,
	}
	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{},
	}

	resp, err := s.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, s.containerName())
	if err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}
	return s.cli.ContainerStart(ctx, resp.ID, dockertypes.ContainerStartOptions{})
}

func (s *Sandbox) execRaw(ctx context.Context, cmd []string, timeout time.Duration) (string, int, error) {
	if err := s.ensureRunning(ctx); err != nil {
		return "", -1, err
	}
	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	execCfg := dockertypes.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   s.root,
	}
	execID, err := s.cli.ContainerExecCreate(runCtx, s.containerName(), execCfg)
	if err != nil {
		return "", -1, fmt.Errorf("exec create: %w", err)
	}

	attach, err := s.cli.ContainerExecAttach(runCtx, execID.ID, dockertypes.ExecStartCheck{})
	if err != nil {
		return "", -1, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, attach.Reader); err != nil && err != io.EOF {
		return "", -1, fmt.Errorf("exec read: %w", err)
	}

	inspect, err := s.cli.ContainerExecInspect(runCtx, execID.ID)
	if err != nil {
		return buf.String(), -1, fmt.Errorf("exec inspect: %w", err)
	}
	return buf.String(), inspect.ExitCode, nil
}

func (s *Sandbox) Exec(ctx context.Context, command string, opts ExecOptions) (ExecResult, error) {
	timeout := 120 * time.Second
	if opts.TimeoutSeconds > 0 {
		timeout = time.Duration(opts.TimeoutSeconds) * time.Second
	}
	cwd := opts.Cwd
	if cwd == "" {
		cwd = s.root
	}
	wrapped := []string{"/bin/sh", "-c", fmt.Sprintf("cd %s && %s", shellQuote(cwd), command)}

	out, code, err := s.execRaw(ctx, wrapped, timeout)
	result := ExecResult{Output: out}
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			result.TimedOut = true
			return result, nil
		}
		if ctx.Err() == context.Canceled {
			result.Aborted = true
			return result, nil
		}
		return result, err
	}
	result.ExitCode = &code
	return result, nil
}

func (s *Sandbox) Exists(ctx context.Context, path string) (bool, error) {
	_, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", fmt.Sprintf("test -e %s", shellQuote(path))}, 10*time.Second)
	if err != nil {
		return false, err
	}
	return code == 0, nil
}

func (s *Sandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	out, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", fmt.Sprintf("base64 %s", shellQuote(path))}, 30*time.Second)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("read %s: exit %d", path, code)
	}
	return base64.StdEncoding.DecodeString(strings.TrimSpace(out))
}

func (s *Sandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	encoded := base64.StdEncoding.EncodeToString(data)
	dir := parentDir(path)
	script := fmt.Sprintf("mkdir -p %s && echo %s | base64 -d > %s", shellQuote(dir), encoded, shellQuote(path))
	_, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", script}, 30*time.Second)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("write %s: exit %d", path, code)
	}
	return nil
}

func (s *Sandbox) Mkdir(ctx context.Context, path string) error {
	_, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", fmt.Sprintf("mkdir -p %s", shellQuote(path))}, 10*time.Second)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("mkdir %s: exit %d", path, code)
	}
	return nil
}

func (s *Sandbox) Readdir(ctx context.Context, path string) ([]FileInfo, error) {
	script := fmt.Sprintf(`for f in %s/*; do [ -e "$f" ] || continue; if [ -d "$f" ]; then echo "d $(basename "$f") 0"; else echo "f $(basename "$f") $(stat -c%%s "$f" 2>/dev/null || stat -f%%z "$f")"; fi; done`, shellQuote(path))
	out, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", script}, 15*time.Second)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("readdir %s: exit %d", path, code)
	}
	var infos []FileInfo
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, " ", 3)
		if len(parts) != 3 {
			continue
		}
		size, _ := strconv.ParseInt(parts[2], 10, 64)
		infos = append(infos, FileInfo{Name: parts[1], IsDir: parts[0] == "d", Size: size})
	}
	return infos, nil
}

func (s *Sandbox) Stat(ctx context.Context, path string) (FileInfo, error) {
	script := fmt.Sprintf(`if [ -d %s ]; then echo "d $(basename %s) 0"; else echo "f $(basename %s) $(stat -c%%s %s 2>/dev/null || stat -f%%z %s)"; fi`,
		shellQuote(path), shellQuote(path), shellQuote(path), shellQuote(path), shellQuote(path))
	out, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", script}, 10*time.Second)
	if err != nil {
		return FileInfo{}, err
	}
	if code != 0 {
		return FileInfo{}, fmt.Errorf("stat %s: exit %d", path, code)
	}
	parts := strings.SplitN(strings.TrimSpace(out), " ", 3)
	if len(parts) != 3 {
		return FileInfo{}, fmt.Errorf("stat %s: unexpected output %q", path, out)
	}
	size, _ := strconv.ParseInt(parts[2], 10, 64)
	return FileInfo{Name: parts[1], IsDir: parts[0] == "d", Size: size}, nil
}

func (s *Sandbox) Remove(ctx context.Context, path string, recursive bool) error {
	flag := ""
	if recursive {
		flag = "-r"
	}
	_, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", fmt.Sprintf("rm -f %s %s", flag, shellQuote(path))}, 10*time.Second)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("remove %s: exit %d", path, code)
	}
	return nil
}

func (s *Sandbox) Rename(ctx context.Context, oldPath, newPath string) error {
	_, code, err := s.execRaw(ctx, []string{"/bin/sh", "-c", fmt.Sprintf("mv %s %s", shellQuote(oldPath), shellQuote(newPath))}, 10*time.Second)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("rename %s -> %s: exit %d", oldPath, newPath, code)
	}
	return nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func parentDir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return "/"
	}
	return path[:idx]
}
