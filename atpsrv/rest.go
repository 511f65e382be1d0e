// Copyright 2025 The ATP Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package atpsrv

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/atpproject/atp-go/atp"
	"github.com/atpproject/atp-go/internal/metrics"
	"github.com/atpproject/atp-go/internal/rest"
	"github.com/atpproject/atp-go/internal/sse"
	"github.com/atpproject/atp-go/log"
)

// RESTOption customizes the REST binding.
type RESTOption func(*restConfig)

type restConfig struct {
	http *metrics.HTTP
}

// WithRequestMetrics instruments every route with Prometheus request count and
// latency collectors registered against the provided registerer.
func WithRequestMetrics(reg prometheus.Registerer) RESTOption {
	return func(cfg *restConfig) {
		cfg.http = metrics.NewHTTP(reg)
	}
}

// NewRESTHandler binds a [RequestHandler] and a [CardGenerator] to the HTTP
// surface:
//
//	GET  /.well-known/agent-card
//	POST /message/send
//	POST /message/send/streaming
//	GET  /tasks
//	GET  /tasks/{id}
//	GET  /tasks/{id}/subscribe
//	POST /tasks/{id}/cancel
//
// Streaming endpoints respond with text/event-stream; errors are rendered as
// RFC 7807 problem documents.
func NewRESTHandler(handler RequestHandler, cards *CardGenerator, options ...RESTOption) http.Handler {
	cfg := &restConfig{}
	for _, opt := range options {
		opt(cfg)
	}

	router := chi.NewRouter()
	route := func(pattern string, h http.Handler) http.Handler {
		if cfg.http != nil {
			return cfg.http.Middleware(pattern, h)
		}
		return h
	}

	router.Method(http.MethodGet, WellKnownAgentCardPath, route(WellKnownAgentCardPath, NewAgentCardHandler(cards)))
	router.Method(http.MethodOptions, WellKnownAgentCardPath, NewAgentCardHandler(cards))
	router.Method(http.MethodPost, "/message/send", route("/message/send", handleSendMessage(handler)))
	router.Method(http.MethodPost, "/message/send/streaming", route("/message/send/streaming", handleSendStreamingMessage(handler)))
	router.Method(http.MethodGet, "/tasks", route("/tasks", handleListTasks(handler)))
	router.Method(http.MethodGet, "/tasks/{id}", route("/tasks/{id}", handleGetTask(handler)))
	router.Method(http.MethodGet, "/tasks/{id}/subscribe", route("/tasks/{id}/subscribe", handleSubscribeToTask(handler)))
	router.Method(http.MethodPost, "/tasks/{id}/cancel", route("/tasks/{id}/cancel", handleCancelTask(handler)))

	return router
}

func handleSendMessage(handler RequestHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx := attachLogger(req)

		sendReq := &atp.SendMessageRequest{}
		if err := json.NewDecoder(req.Body).Decode(sendReq); err != nil {
			writeRESTError(ctx, rw, fmt.Errorf("%w: %v", atp.ErrMalformedMessage, err), "")
			return
		}

		task, err := handler.SendMessage(ctx, sendReq)
		if err != nil {
			writeRESTError(ctx, rw, err, "")
			return
		}

		writeJSON(ctx, rw, &atp.SendMessageResponse{Task: task})
	}
}

func handleSendStreamingMessage(handler RequestHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx := attachLogger(req)

		sendReq := &atp.SendMessageRequest{}
		if err := json.NewDecoder(req.Body).Decode(sendReq); err != nil {
			writeRESTError(ctx, rw, fmt.Errorf("%w: %v", atp.ErrMalformedMessage, err), "")
			return
		}

		writeEventStream(ctx, rw, handler.SendStreamingMessage(ctx, sendReq))
	}
}

func handleGetTask(handler RequestHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx := attachLogger(req)
		taskID := atp.TaskID(chi.URLParam(req, "id"))

		includeHistory := false
		if raw := req.URL.Query().Get("include_history"); raw != "" {
			parsed, err := strconv.ParseBool(raw)
			if err != nil {
				writeRESTError(ctx, rw, fmt.Errorf("%w: include_history must be a boolean", atp.ErrInvalidFilter), taskID)
				return
			}
			includeHistory = parsed
		}

		task, err := handler.GetTask(ctx, &atp.GetTaskRequest{ID: taskID, IncludeHistory: includeHistory})
		if err != nil {
			writeRESTError(ctx, rw, err, taskID)
			return
		}

		writeJSON(ctx, rw, &atp.GetTaskResponse{Task: task})
	}
}

func handleListTasks(handler RequestHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx := attachLogger(req)

		listReq, err := parseListRequest(req)
		if err != nil {
			writeRESTError(ctx, rw, err, "")
			return
		}

		result, err := handler.ListTasks(ctx, listReq)
		if err != nil {
			writeRESTError(ctx, rw, err, "")
			return
		}
		if result.Tasks == nil {
			result.Tasks = []*atp.Task{}
		}

		writeJSON(ctx, rw, result)
	}
}

func handleCancelTask(handler RequestHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx := attachLogger(req)
		taskID := atp.TaskID(chi.URLParam(req, "id"))

		task, err := handler.CancelTask(ctx, &atp.CancelTaskRequest{ID: taskID})
		if err != nil {
			writeRESTError(ctx, rw, err, taskID)
			return
		}

		writeJSON(ctx, rw, &atp.GetTaskResponse{Task: task})
	}
}

func handleSubscribeToTask(handler RequestHandler) http.HandlerFunc {
	return func(rw http.ResponseWriter, req *http.Request) {
		ctx := attachLogger(req)
		taskID := atp.TaskID(chi.URLParam(req, "id"))

		events, err := handler.SubscribeToTask(ctx, &atp.SubscribeToTaskRequest{ID: taskID})
		if err != nil {
			writeRESTError(ctx, rw, err, taskID)
			return
		}

		writeEventStream(ctx, rw, events)
	}
}

func parseListRequest(req *http.Request) (*atp.ListTasksRequest, error) {
	query := req.URL.Query()
	listReq := &atp.ListTasksRequest{
		ContextID: query.Get("context_id"),
		Status:    atp.TaskState(query.Get("status")),
	}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: limit must be an integer", atp.ErrInvalidFilter)
		}
		listReq.Limit = limit
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: offset must be an integer", atp.ErrInvalidFilter)
		}
		listReq.Offset = offset
	}
	return listReq, nil
}

// writeEventStream frames the event sequence as SSE. The connection closes
// once the sequence ends, which for task streams happens right after the
// terminal status event has been flushed. A disconnecting client only stops
// its own stream, never the task.
func writeEventStream(ctx context.Context, rw http.ResponseWriter, events iter.Seq2[atp.Event, error]) {
	sseWriter, err := sse.NewWriter(rw)
	if err != nil {
		writeRESTError(ctx, rw, err, "")
		return
	}

	headersSent := false
	for event, err := range events {
		if err != nil {
			if !headersSent {
				writeRESTError(ctx, rw, err, "")
				return
			}
			log.Warn(ctx, "event stream aborted", "error", err)
			return
		}

		if !headersSent {
			sseWriter.WriteHeaders()
			headersSent = true
		}

		data, err := json.Marshal(event)
		if err != nil {
			log.Error(ctx, "failed to marshal event", err)
			return
		}
		if err := sseWriter.WriteEvent(ctx, event.EventName(), data); err != nil {
			log.Error(ctx, "failed to write SSE event", err)
			return
		}
	}
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, body any) {
	rw.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		log.Error(ctx, "failed to encode response", err)
	}
}

func writeRESTError(ctx context.Context, rw http.ResponseWriter, err error, taskID atp.TaskID) {
	restErr := rest.ToRESTError(err, taskID)
	rw.Header().Set("Content-Type", rest.ContentProblemJSON)
	rw.WriteHeader(restErr.Status)
	if encodeErr := json.NewEncoder(rw).Encode(restErr); encodeErr != nil {
		log.Error(ctx, "failed to write error response", encodeErr)
	}
}
