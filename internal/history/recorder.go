package history

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/haven-automation/haven-hub/internal/config"
	"github.com/haven-automation/haven-hub/internal/core/types"
)

const connectTimeout = 10 * time.Second

// Recorder writes entity state history to InfluxDB. Writes are batched and
// asynchronous; a slow or unreachable database never blocks the update
// path. It plugs into the entity service as a state listener.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	logger   *logrus.Logger
}

// NewRecorder connects to InfluxDB and verifies it responds
func NewRecorder(cfg config.HistoryConfig, logger *logrus.Logger) (*Recorder, error) {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(10_000),
	)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("influxdb ping failed: %w", err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("influxdb server not healthy")
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)

	r := &Recorder{
		client:   client,
		writeAPI: writeAPI,
		logger:   logger,
	}
	go r.handleWriteErrors(writeAPI.Errors())

	logger.WithField("url", cfg.URL).Info("State history recorder connected")
	return r, nil
}

// OnEntityState records a state change. Implements the entity service's
// state listener.
func (r *Recorder) OnEntityState(entity types.HavenEntity) {
	fields := map[string]interface{}{
		"state":     string(entity.GetState()),
		"available": entity.IsAvailable(),
	}

	// Numeric sensor values get their own field so they can be graphed
	if sensor, ok := entity.(*types.HavenSensorEntity); ok && sensor.NumericValue != nil {
		fields["value"] = *sensor.NumericValue
	}

	point := write.NewPoint(
		"entity_state",
		map[string]string{
			"entity_id":   entity.GetID(),
			"source":      string(entity.GetSource()),
			"entity_type": string(entity.GetType()),
		},
		fields,
		entity.GetLastUpdated(),
	)
	r.writeAPI.WritePoint(point)
}

// OnEntityRemoved is a no-op; history for removed entities is retained
func (r *Recorder) OnEntityRemoved(entityID string) {}

// Close flushes pending writes and shuts the client down
func (r *Recorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}

func (r *Recorder) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		r.logger.WithError(err).Warn("Failed to write state history")
	}
}
