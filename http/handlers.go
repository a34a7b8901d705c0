package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"exitforecast/batch"
	"exitforecast/ml"
	"exitforecast/monitoring"
	"exitforecast/predict"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// multipart表单内存上限
const maxMultipartMemory = 32 << 20

// Predictor 预测服务接口
type Predictor interface {
	PredictOne(ctx context.Context, record predict.InputRecord) (predict.Result, error)
	PredictRecords(ctx context.Context, records []predict.InputRecord) ([]predict.Result, error)
	PredictTable(ctx context.Context, t *ml.Table, opts predict.BatchOptions) (*ml.Table, error)
	FeatureImportance() (ml.FeatureImportance, error)
	Classes() []string
	Info() ml.ArtifactInfo
}

// UploadConfig 上传配置
type UploadConfig struct {
	Encoding string `yaml:"encoding"`
	MaxRows  int    `yaml:"max_rows"`
	// PreviewRows 页面结果表最多显示的行数，0表示全部
	PreviewRows int `yaml:"preview_rows"`
}

// Handler 持有所有处理器依赖
type Handler struct {
	svc      Predictor
	metrics  *monitoring.MetricsCollector
	logger   *zap.Logger
	upload   UploadConfig
	page     *template.Template
	upgrader websocket.Upgrader
}

// NewHandler 创建处理器
func NewHandler(svc Predictor, metrics *monitoring.MetricsCollector, logger *zap.Logger, upload UploadConfig) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("predictor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := batch.Decoder(upload.Encoding); err != nil {
		return nil, fmt.Errorf("upload config: %w", err)
	}
	page, err := parsePage()
	if err != nil {
		return nil, err
	}
	return &Handler{
		svc:     svc,
		metrics: metrics,
		logger:  logger,
		upload:  upload,
		page:    page,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}, nil
}

// Register 注册所有路由
func (h *Handler) Register(mux *http.ServeMux) {
	// 页面
	mux.HandleFunc("GET /{$}", h.handlePage)
	mux.HandleFunc("POST /predict", h.handlePageSubmit)
	mux.HandleFunc("POST /batch", h.handlePageBatch)

	// 预测API
	mux.HandleFunc("POST /api/predict", h.handlePredict)
	mux.HandleFunc("POST /api/predict/batch", h.handlePredictBatch)
	mux.HandleFunc("POST /api/predict/csv", h.handlePredictCSV)
	mux.HandleFunc("GET /api/ws/predict", h.handleLive)

	// 模型信息
	mux.HandleFunc("GET /api/feature-importance", h.handleFeatureImportance)
	mux.HandleFunc("GET /api/model", h.handleModel)

	// 运维
	mux.HandleFunc("GET /api/metrics", h.handleMetrics)
	mux.HandleFunc("GET /api/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	record, err := predict.DecodeRecord(payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	result, err := h.svc.PredictOne(r.Context(), record)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handlePredictBatch(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	records, err := predict.DecodeRecords(payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	results, err := h.svc.PredictRecords(r.Context(), records)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

func (h *Handler) handlePredictCSV(w http.ResponseWriter, r *http.Request) {
	table, err := h.readUpload(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	opts := predict.BatchOptions{IncludeConfidence: queryFlag(r, "confidence")}
	out, err := h.svc.PredictTable(r.Context(), table, opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := batch.WriteCSV(&buf, out); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

func (h *Handler) handleFeatureImportance(w http.ResponseWriter, r *http.Request) {
	importance, err := h.svc.FeatureImportance()
	if err != nil {
		if !errors.Is(err, ml.ErrFeatureImportanceUnavailable) {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"available": false,
			"message":   importanceNotice,
			"features":  []ml.FeatureWeight{},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available": true,
		"features":  importance,
	})
}

func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"info":        h.svc.Info(),
		"classes":     h.svc.Classes(),
		"columns":     predict.Columns,
		"departments": predict.Departments,
		"salaries":    predict.Salaries,
		"defaults":    predict.DefaultRecord(),
	})
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeError(w, http.StatusNotFound, "metrics are disabled")
		return
	}
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, h.metrics.ExportPrometheus())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"system":  h.metrics.GetSystemStats(),
		"metrics": h.metrics.Snapshot(),
	})
}

// readUpload 从multipart的file字段或原始请求体读取CSV
func (h *Handler) readUpload(r *http.Request) (*ml.Table, error) {
	opts := batch.Options{Encoding: h.upload.Encoding, MaxRows: h.upload.MaxRows}
	if enc := r.URL.Query().Get("encoding"); enc != "" {
		if _, err := batch.Decoder(enc); err != nil {
			return nil, fmt.Errorf("%w: %v", batch.ErrMalformedCSV, err)
		}
		opts.Encoding = enc
	}

	if !isMultipart(r) {
		return batch.ReadCSV(r.Body, opts)
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return nil, err
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: form field \"file\" is required", batch.ErrMalformedCSV)
	}
	defer file.Close()
	return batch.ReadCSV(file, opts)
}

// fail 记录错误并写入对应状态码
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	fields := []zap.Field{
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Warn("request rejected", fields...)
	}
	writeError(w, status, err.Error())
}

// statusFor 错误到HTTP状态码的映射
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ml.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity
	case errors.Is(err, predict.ErrInvalidRecord), errors.Is(err, batch.ErrMalformedCSV):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	default:
		return http.StatusInternalServerError
	}
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && strings.HasPrefix(mediaType, "multipart/")
}

func queryFlag(r *http.Request, name string) bool {
	value := r.URL.Query().Get(name)
	if value == "" {
		return false
	}
	on, err := strconv.ParseBool(value)
	return err == nil && on
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
