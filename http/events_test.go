package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pricelab/apps"
	"pricelab/ml"
	"pricelab/monitoring"
	"pricelab/serving"
)

func TestPredictionEventThroughMiddleware(t *testing.T) {
	modelDir := t.TempDir()
	schema := &ml.Schema{Features: []string{"Open", "High", "Low", "Close", "Volume"}}
	model := &ml.LinearRegression{Coefficients: []float64{0, 0, 0, 1, 0}, Intercept: 1}
	require.NoError(t, ml.SaveSchema(apps.SchemaPath(modelDir, "stock"), schema))
	require.NoError(t, ml.SaveModel(apps.ModelPath(modelDir, "stock"), model))

	logger := zaptest.NewLogger(t)
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(logger, metrics)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	svc := serving.NewService(apps.All(nil), serving.Options{ModelDir: modelDir, Logger: logger})
	require.NoError(t, svc.Load("stock"))

	srv := httptest.NewServer(NewServer(DefaultServerConfig(), Deps{
		Service: svc,
		Hub:     hub,
		Metrics: metrics,
		Logger:  logger,
	}).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-hub.Done()
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := srv.Client().Post(srv.URL+"/api/predict/stock", "application/json",
		strings.NewReader(`{"Open":"1","High":"1","Low":"1","Close":"41","Volume":"1"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var event monitoring.Event
		require.NoError(t, conn.ReadJSON(&event))
		if event.Type != monitoring.PredictionServed {
			continue
		}
		assert.Equal(t, "stock", event.App)
		assert.Contains(t, string(event.Data), `"value":42`)
		return
	}
}
