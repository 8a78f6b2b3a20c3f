package http

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/c360/switchboard/errors"
	"github.com/c360/switchboard/gateway"
	"github.com/c360/switchboard/pkg/eventid"
)

type errorResponse struct {
	Error     string            `json:"error"`
	Status    int               `json:"status"`
	RequestID string            `json:"request_id,omitempty"`
	Rejected  map[string]string `json:"rejected,omitempty"`
}

func (g *Gateway) handleSet(increment bool) http.HandlerFunc {
	op := "set"
	if increment {
		op = "inc"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		node := chi.URLParam(r, "node")

		eventID := g.events.Next(eventid.PrefixAPI)
		ctx := eventid.WithEvent(r.Context(), eventID)
		log := eventid.Logger(ctx, g.logger)

		fields, err := g.readFields(r)
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		log.Info("API "+op, "node", node, "fields", fields)

		upd, err := g.registry.SetValues(node, fields, increment)
		if err != nil {
			if errors.IsNotFound(err) {
				log.Warn("Node or sensor not found", "node", node)
				g.metrics.RecordIngestSkipped(gateway.ChannelAPI, "not_found")
			} else {
				log.Warn("All fields rejected", "node", node, "rejected", upd.Rejected)
				g.metrics.RecordIngestSkipped(gateway.ChannelAPI, "invalid")
			}
			g.writeError(w, r, err)
			return
		}
		if len(upd.Rejected) > 0 {
			log.Warn("Some fields rejected", "node", node, "rejected", upd.Rejected)
		}

		g.metrics.RecordIngestUpdate(gateway.ChannelAPI)
		g.notify(ctx, gateway.ChangeFromUpdate(upd, increment, gateway.ChannelAPI, eventID))
		writeJSON(w, http.StatusOK, upd)
	}
}

// readFields collects sensor fields from the request body: a JSON object when
// the request says so, otherwise form values (urlencoded or multipart). A body
// without a Content-Type is read as urlencoded. No fields at all is an error.
func (g *Gateway) readFields(r *http.Request) (map[string]any, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var fields map[string]any
	switch mediaType {
	case "application/json":
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&fields); err != nil {
			return nil, bodyError(err, "decode JSON body")
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(g.config.MaxRequestSize); err != nil {
			return nil, bodyError(err, "parse multipart body")
		}
		defer r.MultipartForm.RemoveAll()
		fields = lastValues(r.MultipartForm.Value)
	case "":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, bodyError(err, "read body")
		}
		values, err := url.ParseQuery(string(data))
		if err != nil {
			return nil, bodyError(err, "parse untyped body")
		}
		fields = lastValues(values)
	default:
		if err := r.ParseForm(); err != nil {
			return nil, bodyError(err, "parse form body")
		}
		fields = lastValues(r.PostForm)
	}

	if len(fields) == 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "Gateway", "readFields", "find sensor fields in body")
	}
	return fields, nil
}

// lastValues keeps the last value of every repeated form key.
func lastValues(values map[string][]string) map[string]any {
	fields := make(map[string]any, len(values))
	for key, vs := range values {
		if len(vs) > 0 {
			fields[key] = vs[len(vs)-1]
		}
	}
	return fields
}

func bodyError(err error, action string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %v", errors.ErrInvalidData, err), "Gateway", "readFields", action)
}

func (g *Gateway) handleNodeMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := g.registry.NodeMetrics(chi.URLParam(r, "node"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (g *Gateway) handleSensorMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := g.registry.SensorMetrics(chi.URLParam(r, "node"), chi.URLParam(r, "sensor"))
	if err != nil {
		g.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (g *Gateway) handleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.Metrics(false))
}

func (g *Gateway) handleByGateway(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.Snapshot().ByGateway(false))
}

func (g *Gateway) handleByNode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.Snapshot().ByNode(false))
}

func (g *Gateway) handleBySensor(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.Snapshot().BySensor(false))
}

func (g *Gateway) handleDefault(w http.ResponseWriter, r *http.Request) {
	ctx := eventid.WithEvent(r.Context(), g.events.Next(eventid.PrefixAPI))
	nodes := g.registry.DefaultValues()
	eventid.Logger(ctx, g.logger).Info("API default values", "nodes", len(nodes))

	g.notify(ctx, gateway.Change{
		Kind:    gateway.ChangeDefault,
		Channel: gateway.ChannelAPI,
		EventID: eventid.Event(ctx),
		Nodes:   nodes,
		Time:    time.Now(),
	})
	writeJSON(w, http.StatusOK, nodes)
}

func (g *Gateway) handleReset(w http.ResponseWriter, r *http.Request) {
	ctx := eventid.WithEvent(r.Context(), g.events.Next(eventid.PrefixAPI))
	nodes := g.registry.ResetValues()
	eventid.Logger(ctx, g.logger).Info("API reset values", "nodes", len(nodes))

	g.notify(ctx, gateway.Change{
		Kind:    gateway.ChangeReset,
		Channel: gateway.ChannelAPI,
		EventID: eventid.Event(ctx),
		Nodes:   nodes,
		Time:    time.Now(),
	})
	writeJSON(w, http.StatusOK, nodes)
}

func (g *Gateway) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx := eventid.WithEvent(r.Context(), g.events.Next(eventid.PrefixAPI))
	log := eventid.Logger(ctx, g.logger)

	res, err := g.reload(ctx)
	if err != nil {
		log.Error("API reload rejected, keeping current generation", "error", err)
		g.writeError(w, r, err)
		return
	}
	log.Info("API reload", "generation", res.Generation)
	writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleDump(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, g.registry.Dump())
}

func (g *Gateway) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"version":    g.info.Version,
		"commit":     g.info.Commit,
		"build_time": g.info.BuildTime,
		"go_version": runtime.Version(),
		"goroutines": runtime.NumGoroutine(),
		"uptime":     time.Since(g.started).Truncate(time.Second).String(),
		"generation": g.registry.Generation(),
		"gateways":   g.registry.Gateways(),
	})
}

func (g *Gateway) handleMyIP(w http.ResponseWriter, r *http.Request) {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ip":         ip,
		"user-agent": r.UserAgent(),
	})
}

// statusFor maps registry and configuration errors to HTTP status codes.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.IsConfig(err):
		return http.StatusUnprocessableEntity
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes an error response. Only not-found, validation and
// configuration errors carry their message; everything else is generic.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := errorResponse{
		Status:    status,
		RequestID: eventid.Request(r.Context()),
	}

	var rejected errors.ValidationErrors
	switch {
	case status == http.StatusNotFound:
		resp.Error = "node or sensor not found"
	case status == http.StatusRequestEntityTooLarge:
		resp.Error = fmt.Sprintf("request body exceeds maximum size of %d bytes", g.config.MaxRequestSize)
	case status == http.StatusUnprocessableEntity:
		resp.Error = err.Error()
	case errors.As(err, &rejected):
		resp.Error = "no field could be applied"
		resp.Rejected = rejected
	case errors.Is(err, errors.ErrInvalidData):
		resp.Error = "invalid or empty request body"
	case status == http.StatusBadRequest:
		resp.Error = "invalid request"
	default:
		resp.Error = "internal server error"
		eventid.Logger(r.Context(), g.logger).Error("Request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
