package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/decoyd/internal/profile"
)

const (
	DefaultImage  = "browserless/chrome:latest"
	containerPort = "3000/tcp"
)

// containerLauncher runs each session's browser in a throwaway
// browserless/chrome container.
type containerLauncher struct {
	client   *client.Client
	image    string
	profile  string
	profiles *profile.Store
	logger   *zap.Logger

	containerID string
	dataDir     string
}

func newContainerLauncher(img, profileName string, profiles *profile.Store, logger *zap.Logger) (*containerLauncher, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if img == "" {
		img = DefaultImage
	}
	return &containerLauncher{
		client:   cli,
		image:    img,
		profile:  profileName,
		profiles: profiles,
		logger:   logger,
	}, nil
}

// Launch ignores headless; the container only runs headless Chrome.
func (c *containerLauncher) Launch(ctx context.Context, _ bool) (string, error) {
	runID := uuid.NewString()

	containerConfig := &container.Config{
		Image: c.image,
		Labels: map[string]string{
			"run-id":     runID,
			"managed-by": "decoyd",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			containerPort: struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerPort: []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: "0"},
			},
		},
	}

	if c.profile != "" && c.profiles != nil {
		dir, err := c.profiles.Checkout(c.profile)
		if err != nil {
			return "", fmt.Errorf("checkout profile %q: %w", c.profile, err)
		}
		c.dataDir = dir
		hostConfig.Mounts = []mount.Mount{
			{Type: mount.TypeBind, Source: dir, Target: "/data"},
		}
		containerConfig.Env = append(containerConfig.Env, "DATA_DIR=/data")
	}

	resp, err := c.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "decoy-"+runID[:8])
	if err != nil {
		c.discardDataDir()
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	c.containerID = resp.ID

	if err := c.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		c.Stop(ctx)
		return "", fmt.Errorf("failed to start container: %w", err)
	}

	inspect, err := c.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		c.Stop(ctx)
		return "", fmt.Errorf("failed to inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports[containerPort]
	if len(bindings) == 0 {
		c.Stop(ctx)
		return "", fmt.Errorf("container %s exposes no port", resp.ID[:12])
	}
	port := bindings[0].HostPort

	if err := waitForBrowserReady(ctx, port); err != nil {
		c.Stop(ctx)
		return "", fmt.Errorf("browser failed to become ready: %w", err)
	}

	c.logger.Debug("browser container started",
		zap.String("container", resp.ID[:12]),
		zap.String("port", port))

	return fmt.Sprintf("ws://127.0.0.1:%s", port), nil
}

func (c *containerLauncher) Stop(ctx context.Context) error {
	defer c.discardDataDir()
	if c.containerID == "" {
		return nil
	}
	id := c.containerID
	c.containerID = ""

	timeout := 10
	if err := c.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		c.logger.Warn("failed to stop container", zap.String("container", id), zap.Error(err))
	}

	if c.dataDir != "" {
		if err := c.profiles.Commit(c.profile, c.dataDir); err != nil {
			c.logger.Warn("failed to save browser profile", zap.String("profile", c.profile), zap.Error(err))
		}
	}

	if err := c.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("failed to remove container: %w", err)
	}
	return nil
}

func (c *containerLauncher) Owned() bool { return true }

func (c *containerLauncher) discardDataDir() {
	if c.dataDir != "" {
		os.RemoveAll(c.dataDir)
		c.dataDir = ""
	}
}

// EnsureImage pulls the browser image if the local daemon lacks it.
func EnsureImage(ctx context.Context, img string) error {
	if img == "" {
		img = DefaultImage
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}
	for _, summary := range images {
		for _, tag := range summary.RepoTags {
			if tag == img {
				return nil
			}
		}
	}

	reader, err := cli.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// waitForBrowserReady polls /json/version until Chrome answers.
func waitForBrowserReady(ctx context.Context, port string) error {
	url := fmt.Sprintf("http://127.0.0.1:%s/json/version", port)
	const maxRetries = 20

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				pause(ctx, 500*time.Millisecond)
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
