package elmax

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	socketReadWait   = 90 * time.Second
	socketPingPeriod = 30 * time.Second
	reconnectInitial = time.Second
	reconnectMax     = 2 * time.Minute
)

// pushSocket keeps a notification WebSocket open against the panel and
// delivers every pushed snapshot to onFrame. It reconnects with backoff
// until its context is cancelled; the 5 minute safety poll covers the gaps.
type pushSocket struct {
	client  *Client
	wsURL   string
	onFrame func(*PanelState)
	logger  *logrus.Entry

	minReconnect time.Duration
	maxReconnect time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func newPushSocket(client *Client, wsURL string, onFrame func(*PanelState), logger *logrus.Entry) *pushSocket {
	return &pushSocket{
		client:       client,
		wsURL:        wsURL,
		onFrame:      onFrame,
		logger:       logger,
		minReconnect: reconnectInitial,
		maxReconnect: reconnectMax,
		done:         make(chan struct{}),
	}
}

// Start launches the connect/read loop
func (s *pushSocket) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

// Stop tears the socket down and waits for the loop to exit
func (s *pushSocket) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *pushSocket) run(ctx context.Context) {
	defer close(s.done)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.minReconnect
	policy.MaxInterval = s.maxReconnect
	policy.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return
		}

		gotFrame, err := s.listen(ctx)
		if err != nil && ctx.Err() == nil {
			if gotFrame {
				policy.Reset()
			}
			wait := policy.NextBackOff()
			s.logger.WithError(err).WithField("retry_in", wait).Warn("Panel socket dropped")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		return
	}
}

// listen dials and reads frames until the connection drops. gotFrame lets
// the caller reset the backoff after a healthy session.
func (s *pushSocket) listen(ctx context.Context) (gotFrame bool, err error) {
	// Scope the watcher and ping goroutines to this connection so they
	// exit with it instead of piling up across reconnects
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := map[string][]string{"Authorization": {"Bearer " + s.client.Token()}}

	conn, _, err := dialer.DialContext(connCtx, s.wsURL, header)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadMessage unblocks
	go func() {
		<-connCtx.Done()
		conn.Close()
	}()

	go s.pingLoop(connCtx, conn)

	s.logger.Debug("Panel socket connected")
	for {
		conn.SetReadDeadline(time.Now().Add(socketReadWait))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return gotFrame, err
		}

		var state PanelState
		if err := json.Unmarshal(payload, &state); err != nil {
			s.logger.WithError(err).Warn("Dropping malformed panel frame")
			continue
		}
		gotFrame = true
		s.onFrame(&state)
	}
}

func (s *pushSocket) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(socketPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
