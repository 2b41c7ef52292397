package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentprovenance/internal/models"
	"github.com/Lllllllleong/documentprovenance/internal/notification"
	"github.com/Lllllllleong/documentprovenance/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

const maxNotificationBytes = 1 << 20

var (
	ingestInstance *services.IngestFunction
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("IngestObject", ingestObject)
	functions.HTTP("HandleIngest", handleIngest)
}

// main is required by the Go Functions Framework.
func main() {}

func instance() (*services.IngestFunction, error) {
	once.Do(func() {
		ingestInstance, initErr = services.NewIngestFunction(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
	}
	return ingestInstance, initErr
}

// ingestObject handles a Cloud Storage object-finalized CloudEvent.
func ingestObject(ctx context.Context, e cloudevents.Event) error {
	f, err := instance()
	if err != nil {
		return err
	}

	var gcsEvent models.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	res, err := f.ProcessGCSEvent(ctx, e.Time(), gcsEvent)
	if err != nil {
		// Returning the error marks the invocation failed so the event is redelivered.
		return err
	}
	slog.Info("Object ingested.", "key", res.Key, "cid", res.CID)
	return nil
}

// handleIngest accepts an S3-shaped notification body and returns one
// result per event.
func handleIngest(w http.ResponseWriter, r *http.Request) {
	f, err := instance()
	if err != nil {
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		slog.Warn("Could not read request body", "error", err)
		http.Error(w, "Bad Request: could not read body", http.StatusBadRequest)
		return
	}

	res, err := f.HandleNotification(r.Context(), body)
	if err != nil {
		if errors.Is(err, notification.ErrValidation) {
			slog.Warn("Rejected notification", "error", err)
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Failed to process notification", "error", err)
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	switch res.Status {
	case services.StatusPartial:
		status = http.StatusMultiStatus
	case services.StatusFailed:
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
