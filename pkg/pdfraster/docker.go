package pdfraster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	containerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "supermarks",
		Subsystem: "pdfraster",
		Name:      "container_duration_seconds",
		Help:      "Duration of containerised pdftoppm runs",
		Buckets:   prometheus.DefBuckets,
	}, []string{"image"})

	containerTimeouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supermarks",
		Subsystem: "pdfraster",
		Name:      "container_timeouts_total",
		Help:      "Number of containerised pdftoppm runs that hit the timeout",
	}, []string{"image"})

	containerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "supermarks",
		Subsystem: "pdfraster",
		Name:      "container_failures_total",
		Help:      "Number of containerised pdftoppm runs that failed",
	}, []string{"image"})
)

const containerWorkdir = "/work"

// DockerConfig groups container converter settings.
type DockerConfig struct {
	Host          string
	Image         string
	Timeout       time.Duration
	MemoryLimitMB int64
	Logger        zerolog.Logger
}

// Docker runs pdftoppm inside a throwaway container with networking disabled.
type Docker struct {
	client *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDocker constructs a Docker backed converter. The daemon is not contacted until use.
func NewDocker(cfg DockerConfig) (*Docker, error) {
	if cfg.Image == "" {
		return nil, errors.New("pdf converter image is required")
	}

	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	} else {
		opts = append(opts, client.FromEnv)
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &Docker{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/supermarks-api/pkg/pdfraster"),
		logger: logger.With().Str("component", "pdfraster.docker").Logger(),
	}, nil
}

// Name implements Converter.
func (d *Docker) Name() string { return "docker" }

// Available implements Converter.
func (d *Docker) Available(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if _, err := d.client.Ping(pingCtx); err != nil {
		return &UnavailableError{
			Converter: d.Name(),
			Reason:    fmt.Sprintf("docker daemon unreachable: %v", err),
			Hint:      "start the docker daemon or set DOCKER_HOST",
		}
	}

	if _, _, err := d.client.ImageInspectWithRaw(pingCtx, d.cfg.Image); err != nil {
		return &UnavailableError{
			Converter: d.Name(),
			Reason:    fmt.Sprintf("image %s not present", d.cfg.Image),
			Hint:      fmt.Sprintf("docker pull %s", d.cfg.Image),
		}
	}

	return nil
}

// Convert implements Converter.
func (d *Docker) Convert(parent context.Context, pdf []byte, dpi int) ([][]byte, error) {
	image := d.cfg.Image

	ctx, span := d.tracer.Start(parent, "pdfraster.docker.convert", trace.WithAttributes(
		attribute.String("docker.image", image),
		attribute.Int("pdf.dpi", dpi),
	))
	defer span.End()

	if err := d.Available(ctx); err != nil {
		return nil, err
	}

	dir, cleanup, err := prepareWorkspace(pdf)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory: d.cfg.MemoryLimitMB * 1024 * 1024,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: dir,
			Target: containerWorkdir,
		}},
	}

	config := &container.Config{
		Image:        image,
		Cmd:          append([]string{"pdftoppm"}, pdftoppmArgs(containerWorkdir, dpi)...),
		WorkingDir:   containerWorkdir,
		AttachStdout: true,
		AttachStderr: true,
	}

	start := time.Now()
	resp, err := d.client.ContainerCreate(ctx, config, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return nil, d.fail(span, image, fmt.Errorf("container create: %w", err))
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			d.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := d.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, d.fail(span, image, fmt.Errorf("container start: %w", err))
	}

	statusCh, errCh := d.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				containerTimeouts.WithLabelValues(image).Inc()
			}
			return nil, d.fail(span, image, fmt.Errorf("container wait: %w", err))
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		containerTimeouts.WithLabelValues(image).Inc()
		return nil, d.fail(span, image, fmt.Errorf("pdftoppm timed out after %s", d.cfg.Timeout))
	}

	containerDuration.WithLabelValues(image).Observe(time.Since(start).Seconds())

	if exitCode != 0 {
		stderr := d.stderr(parent, containerID)
		return nil, d.fail(span, image, fmt.Errorf("pdftoppm exited with %d: %s", exitCode, stderr))
	}

	pages, err := collectPages(dir)
	if err != nil {
		return nil, d.fail(span, image, err)
	}

	d.logger.Debug().Int("pages", len(pages)).Int("dpi", dpi).Dur("duration", time.Since(start)).Msg("pdf rasterized in container")
	return pages, nil
}

func (d *Docker) fail(span trace.Span, image string, err error) error {
	containerFailures.WithLabelValues(image).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (d *Docker) stderr(ctx context.Context, containerID string) string {
	reader, err := d.client.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStderr: true})
	if err != nil {
		return ""
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, io.LimitReader(reader, 64*1024)); err != nil {
		return ""
	}
	return strings.TrimSpace(stderr.String())
}

// Close shuts down the underlying Docker client.
func (d *Docker) Close() error {
	if d.client == nil {
		return nil
	}
	return d.client.Close()
}
