package node

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"github.com/spf13/afero"

	"github.com/autopeer-io/sensornode/internal/node/core"
	"github.com/autopeer-io/sensornode/internal/node/hal"
	"github.com/autopeer-io/sensornode/internal/node/hub"
	"github.com/autopeer-io/sensornode/internal/node/ota"
	"github.com/autopeer-io/sensornode/internal/node/ota/transport"
	"github.com/autopeer-io/sensornode/internal/node/sched"
	"github.com/autopeer-io/sensornode/internal/node/server"
	"github.com/autopeer-io/sensornode/internal/node/store"
	"github.com/autopeer-io/sensornode/internal/node/system"
	"github.com/autopeer-io/sensornode/internal/node/telemetry"
	"github.com/autopeer-io/sensornode/pkg/log"
	"github.com/autopeer-io/sensornode/pkg/mqtt"
	mqtttopic "github.com/autopeer-io/sensornode/pkg/mqtt/topic"
	"github.com/autopeer-io/sensornode/pkg/options"
)

type Config struct {
	NodeOptions      *options.NodeOptions
	UpdateOptions    *options.UpdateOptions
	TelemetryOptions *options.TelemetryOptions
	HALOptions       *options.HALOptions
	MqttOptions      *options.MqttOptions
	S3Options        *options.S3Options
	HttpOptions      *options.HttpOptions

	// Fs is the root file system. Defaults to the OS file system.
	Fs afero.Fs

	// HAL overrides the platform HAL.
	HAL core.HAL
}

// NewAgent wires the node. shutdown stops the process; it backs restarts
// when the host cannot be rebooted.
func (cfg *Config) NewAgent(shutdown func()) (*Agent, error) {
	nodeID := cfg.NodeOptions.ID
	if nodeID == "" {
		return nil, fmt.Errorf("FATAL: node ID is not configured")
	}

	root := cfg.Fs
	if root == nil {
		root = afero.NewOsFs()
	}
	data, install, err := cfg.initStorage(root)
	if err != nil {
		return nil, err
	}
	versions := store.NewVersionStore(data)

	id := ota.Identity{
		NodeID:      nodeID,
		RepoURL:     cfg.NodeOptions.RepoURL,
		PayloadName: cfg.NodeOptions.PayloadName,
	}
	source, err := cfg.newSource(id)
	if err != nil {
		return nil, fmt.Errorf("failed to init firmware source: %w", err)
	}

	h := cfg.HAL
	if h == nil {
		h = hal.NewHAL(cfg.HALOptions, shutdown)
	}

	a := &Agent{
		nodeID:   nodeID,
		hal:      h,
		versions: versions,
		sched: sched.New(sched.Options{
			Logger: log.WithName("sched").Logr(),
		}),
	}

	a.hub, err = cfg.initHub(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to init mqtt client: %w", err)
	}

	uo := cfg.UpdateOptions
	a.system = system.NewModule(cfg.TelemetryOptions)
	a.telemetry = telemetry.NewModule(nodeID, cfg.TelemetryOptions, store.NewOffsetsStore(data), versions.Load)
	a.update = ota.NewModule(id, ota.Options{
		LinkTimeout:     uo.LinkTimeout,
		MaxManifestSize: uo.MaxManifestSize,
		InitialDelay:    uo.InitialDelay,
		CheckInterval:   uo.CheckInterval,
		RetryDelay:      uo.RetryDelay,
		MaxAttempts:     uo.MaxAttempts,
	}, source, versions, data, install, uo.YieldEvery)

	if cfg.HttpOptions != nil && cfg.HttpOptions.Addr != "" {
		a.server = server.NewServer(cfg.HttpOptions, server.Probes{
			Healthy: a.Healthy,
			Ready:   a.Ready,
			Status:  func() any { return a.Status() },
		})
	}

	log.Info("Node configured", "nodeID", nodeID, "source", source.Location(ota.ManifestName), "dataDir", cfg.NodeOptions.DataDir)
	return a, nil
}

func (cfg *Config) initStorage(root afero.Fs) (data, install afero.Fs, err error) {
	dataDir := cfg.NodeOptions.DataDir
	installDir := cfg.NodeOptions.InstallPath()

	for _, dir := range []string{dataDir, installDir} {
		if err := root.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return afero.NewBasePathFs(root, dataDir), afero.NewBasePathFs(root, installDir), nil
}

func (cfg *Config) newSource(id ota.Identity) (transport.Source, error) {
	switch cfg.NodeOptions.Source {
	case options.SourceS3:
		client, err := transport.NewMinIOClient(cfg.S3Options)
		if err != nil {
			return nil, err
		}
		return transport.NewS3Source(client, cfg.S3Options.BucketName, cfg.S3Options.Prefix, id.NodeDir()), nil
	default:
		tr := http.DefaultTransport.(*http.Transport).Clone()
		tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: cfg.UpdateOptions.InsecureSkipVerify}
		client := &http.Client{Transport: tr, Timeout: cfg.UpdateOptions.FetchTimeout}
		return transport.NewHTTPSource(client, id.BaseURL()), nil
	}
}

func (cfg *Config) initHub(nodeID string) (*hub.Hub, error) {
	topics := mqtttopic.NewTopicBuilder(cfg.MqttOptions.TopicRoot)

	mqttConfig := cfg.MqttOptions.ToClientConfig()
	if mqttConfig.ClientID == "" {
		mqttConfig.ClientID = fmt.Sprintf("cpeer-node-%s", nodeID)
	}

	// The broker publishes this when the link drops without a clean disconnect.
	mqttConfig.WillTopic = topics.Status(nodeID)
	mqttConfig.WillPayload = []byte(mqtttopic.StatusOffline)
	mqttConfig.WillQoS = 1
	mqttConfig.WillRetain = true

	var h *hub.Hub
	mqttConfig.OnConnected = func(ctx context.Context) { h.Announce(ctx) }

	client, err := mqtt.NewClient(mqttConfig)
	if err != nil {
		return nil, err
	}
	h = hub.New(nodeID, client, topics, cfg.MqttOptions.ControlTopic, cfg.MqttOptions.QoS)
	return h, nil
}
